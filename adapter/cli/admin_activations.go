package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iahome/platform/internal/app"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
)

// resolveUser accepts a user ID or an email address.
func resolveUser(ctx context.Context, c *app.Container, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	email, err := identityDomain.NewEmail(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user must be a UUID or an email address: %w", err)
	}
	user, err := c.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID(), nil
}

var (
	activationUser   string
	activationModule string
)

var activationsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant module access without a token debit",
	Long: `Grant module access without a token debit.

Examples:
  iahome admin activations grant --user alice@example.com --module pdf
  iahome admin activations grant --user 6e1a... --module comfyui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if activationUser == "" || activationModule == "" {
			return fmt.Errorf("user and module are required")
		}

		userID, err := resolveUser(cmd.Context(), c, activationUser)
		if err != nil {
			return err
		}
		if _, err := c.ActivationService.Grant(cmd.Context(), userID, activationModule); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Activation granted: %s for %s\n", activationModule, activationUser)
		return nil
	},
}

var activationsRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a user's module access",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if activationUser == "" || activationModule == "" {
			return fmt.Errorf("user and module are required")
		}

		userID, err := resolveUser(cmd.Context(), c, activationUser)
		if err != nil {
			return err
		}
		if err := c.ActivationService.Deactivate(cmd.Context(), userID, activationModule); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Activation revoked: %s for %s\n", activationModule, activationUser)
		return nil
	},
}

var activationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's active modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if activationUser == "" {
			return fmt.Errorf("user is required")
		}

		userID, err := resolveUser(cmd.Context(), c, activationUser)
		if err != nil {
			return err
		}
		records, err := c.ActivationService.List(cmd.Context(), userID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODULE\tSOURCE\tLEVEL\tSINCE\tEXPIRES")
		for _, r := range records {
			expires := "-"
			if r.ExpiresAt != nil {
				expires = r.ExpiresAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.ModuleID, r.Source, r.AccessLevel, r.CreatedAt.Format("2006-01-02"), expires)
		}
		return w.Flush()
	},
}

func init() {
	for _, cmd := range []*cobra.Command{activationsGrantCmd, activationsRevokeCmd, activationsListCmd} {
		cmd.Flags().StringVar(&activationUser, "user", "", "user ID or email")
	}
	activationsGrantCmd.Flags().StringVar(&activationModule, "module", "", "module slug")
	activationsRevokeCmd.Flags().StringVar(&activationModule, "module", "", "module slug")

	adminActivationsCmd.AddCommand(activationsGrantCmd)
	adminActivationsCmd.AddCommand(activationsRevokeCmd)
	adminActivationsCmd.AddCommand(activationsListCmd)
}
