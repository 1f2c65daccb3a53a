package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/redemption/backend/internal/app"
	"github.com/redemption/backend/internal/commitments"
	"github.com/redemption/backend/internal/config"
	"github.com/redemption/backend/internal/models"
	"github.com/redemption/backend/internal/payments"
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepOverdueCmd)
	sweepCmd.AddCommand(sweepAutoApproveCmd)
	sweepCmd.AddCommand(sweepChargesCmd)

	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPromoteCmd)
	userPromoteCmd.Flags().String("role", models.UserRoleAdmin, "Role to grant (user or admin)")

	rootCmd.AddCommand(payoutCmd)
	payoutCmd.AddCommand(payoutRetryCmd)

	rootCmd.AddCommand(charityCmd)
	charityCmd.AddCommand(charityAddCmd)
	charityCmd.AddCommand(charityListCmd)
	charityAddCmd.Flags().String("payout-account", "", "Connected account that receives payouts (acct_...)")
	_ = charityAddCmd.MarkFlagRequired("payout-account")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and River migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(_ config.Config, pool *pgxpool.Pool, log *slog.Logger) error {
			return app.Migrate(cmd.Context(), pool, log)
		})
	},
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a lifecycle sweep once, outside the River schedule",
}

var sweepOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Mark commitments whose action deadline has passed as overdue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			rep, err := a.Engine.SweepOverdue(cmd.Context())
			printReport(cmd, rep)
			return err
		})
	},
}

var sweepAutoApproveCmd = &cobra.Command{
	Use:   "auto-approve",
	Short: "Approve proofs whose partner did not respond in time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			rep, err := a.Engine.SweepAutoApprove(cmd.Context())
			printReport(cmd, rep)
			return err
		})
	},
}

var sweepChargesCmd = &cobra.Command{
	Use:   "charges",
	Short: "Ask the payment gateway about charges stuck in PROCESSING",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			rep, err := a.Trigger.ReconcileCharges(cmd.Context())
			if rep != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sweep charges: checked=%d resolved=%d pending=%d failed=%d\n",
					rep.Checked, rep.Resolved, rep.Pending, rep.Errors)
			}
			return err
		})
	},
}

func printReport(cmd *cobra.Command, rep *commitments.SweepReport) {
	if rep == nil {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sweep %s: scanned=%d processed=%d skipped=%d failed=%d\n",
		rep.Sweep, rep.Scanned, rep.Processed, rep.Skipped, len(rep.Errors))
	for _, err := range rep.Errors {
		fmt.Fprintf(out, "  %v\n", err)
	}
}

// ─── user ───────────────────────────────────────────────────────────────────

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote EMAIL",
	Short: "Set the role of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			if err := a.Auth.SetRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
			return nil
		})
	},
}

// ─── payout ─────────────────────────────────────────────────────────────────

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Charity payouts",
}

var payoutRetryCmd = &cobra.Command{
	Use:   "retry DONATION_ID",
	Short: "Transfer a completed donation to its charity if it has not been paid out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.New("DONATION_ID must be a UUID")
		}
		return withApp(cmd.Context(), func(a *app.App, log *slog.Logger) error {
			if err := a.Trigger.Payout(cmd.Context(), id); err != nil {
				return err
			}
			log.Info("payout done", "donation_id", id)
			return nil
		})
	},
}

// ─── charity ────────────────────────────────────────────────────────────────

var charityCmd = &cobra.Command{
	Use:   "charity",
	Short: "Manage the charities penalties are paid to",
}

var charityAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a charity that can receive payouts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, _ := cmd.Flags().GetString("payout-account")
		if !strings.HasPrefix(account, "acct_") {
			return errors.New("--payout-account must be a connected account id (acct_...)")
		}
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			c, err := a.Accounts.CreateCharity(cmd.Context(), payments.CharityInput{Name: args[0], PayoutAccount: account})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charity %d: %s\n", c.ID, c.Name)
			return nil
		})
	},
}

var charityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the charities accepting donations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app.App, _ *slog.Logger) error {
			list, err := a.Accounts.ListCharities(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", c.ID, c.Name, c.PayoutAccount)
			}
			return nil
		})
	},
}
