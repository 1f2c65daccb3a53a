// Package catalog serves the curated list of redeemable actions.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/redemption/backend/internal/apperr"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/repository"
)

type Service interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	ListActive(ctx context.Context, category string) ([]*models.Action, error)
	CreateAction(ctx context.Context, in CreateActionInput) (*models.Action, error)
}

// ActionStore is implemented by repository.ActionRepo.
type ActionStore interface {
	Create(ctx context.Context, a *models.Action) error
	GetActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Action, error)
	ListActive(ctx context.Context, category string) ([]*models.Action, error)
}

type CreateActionInput struct {
	Title             string
	Description       string
	Category          string
	Difficulty        string
	EstimatedHours    float64
	ProofInstructions string
}

type service struct {
	repo ActionStore
}

func NewService(repo ActionStore) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

// FindActiveByID returns a NotFound error for unknown or retired actions.
func (s *service) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	a, err := s.repo.GetActiveByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("action not found")
	}
	return a, err
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Action, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("action not found")
	}
	return a, err
}

func (s *service) ListActive(ctx context.Context, category string) ([]*models.Action, error) {
	return s.repo.ListActive(ctx, normalizeCategory(category))
}

func (s *service) CreateAction(ctx context.Context, in CreateActionInput) (*models.Action, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	switch in.Difficulty {
	case models.ActionDifficultyEasy, models.ActionDifficultyMedium, models.ActionDifficultyHard:
	default:
		return nil, apperr.Validation("difficulty must be easy, medium or hard")
	}
	if in.EstimatedHours <= 0 {
		return nil, apperr.Validation("estimated_hours must be positive")
	}
	category := normalizeCategory(in.Category)
	if category == "" {
		return nil, apperr.Validation("category is required")
	}
	a := &models.Action{
		ID:                uuid.New(),
		Title:             title,
		Description:       in.Description,
		Category:          category,
		Difficulty:        in.Difficulty,
		EstimatedHours:    in.EstimatedHours,
		ProofInstructions: in.ProofInstructions,
		IsActive:          true,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// normalizeCategory lowercases the category so filtering is case-insensitive.
func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
