package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/redemption/backend/internal/apperr"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t)
	cases := []struct {
		schema string
		body   string
	}{
		{CreateCommitment, `{"commitment_type":"SERVICE","action_id":"6f1c2f7e-6a4b-4c1e-9b1f-0d2a3c4b5e6f","target_date":"2026-06-01T00:00:00Z"}`},
		{CreateCommitment, `{"commitment_type":"HYBRID","custom_description":"clean the park","partner_id":"6f1c2f7e-6a4b-4c1e-9b1f-0d2a3c4b5e6f","target_date":"2026-06-01T00:00:00Z","financial_amount":500,"charity_id":7}`},
		{ReportRelapse, `{}`},
		{ReportRelapse, `{"relapse_date":"2026-03-01T10:00:00Z"}`},
		{SubmitProof, `{"media_type":"photo","media_url":"https://media.example/a.jpg","latitude":51.5,"longitude":-0.12}`},
		{VerifyProof, `{"proof_id":"6f1c2f7e-6a4b-4c1e-9b1f-0d2a3c4b5e6f","approved":true}`},
		{VerifyProof, `{"proof_id":"6f1c2f7e-6a4b-4c1e-9b1f-0d2a3c4b5e6f","approved":false,"rejection_reason":"PHOTO_UNCLEAR"}`},
		{CreateAction, `{"title":"Serve a meal","category":"community","difficulty":"easy","estimated_hours":3}`},
		{CreateCharity, `{"name":"City Food Bank","payout_account":"acct_1Nv0FGQ9RKHgCVdK"}`},
		{SavePaymentMethod, `{"customer_ref":"cus_Pq1xYz","payment_method_id":"pm_card_visa"}`},
	}
	for _, tc := range cases {
		if err := v.Validate(tc.schema, []byte(tc.body)); err != nil {
			t.Errorf("%s %s: unexpected error %v", tc.schema, tc.body, err)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	v := newTestValidator(t)
	cases := []struct {
		name   string
		schema string
		body   string
	}{
		{"not json", CreateCommitment, `{`},
		{"unknown type", CreateCommitment, `{"commitment_type":"KARMA","target_date":"2026-06-01T00:00:00Z"}`},
		{"missing target", CreateCommitment, `{"commitment_type":"SERVICE"}`},
		{"extra field", ReportRelapse, `{"relapse_date":"2026-03-01T10:00:00Z","force":true}`},
		{"bad media type", SubmitProof, `{"media_type":"gif","media_url":"x"}`},
		{"latitude out of range", SubmitProof, `{"media_type":"photo","media_url":"x","latitude":120}`},
		{"reject without reason", VerifyProof, `{"proof_id":"6f1c2f7e-6a4b-4c1e-9b1f-0d2a3c4b5e6f","approved":false}`},
		{"zero hours", CreateAction, `{"title":"Serve a meal","category":"community","difficulty":"easy","estimated_hours":0}`},
		{"bank account as payout", CreateCharity, `{"name":"City Food Bank","payout_account":"ba_123"}`},
		{"raw card number", SavePaymentMethod, `{"customer_ref":"cus_1","payment_method_id":"4242424242424242"}`},
		{"missing customer", SavePaymentMethod, `{"payment_method_id":"pm_1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.schema, []byte(tc.body))
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("got %v, want a validation error", err)
			}
			if strings.TrimSpace(apperr.Message(err)) == "" {
				t.Error("validation error should carry a message")
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.Validate("nope", []byte(`{}`))
	if err == nil || errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown schema should be an internal error, got %v", err)
	}
}
