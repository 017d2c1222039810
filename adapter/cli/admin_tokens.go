package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	tokensUser   string
	tokensAmount int
)

var tokensCreditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Credit tokens to a user's balance",
	Long: `Credit tokens to a user's balance.

Example:
  iahome admin tokens credit --user alice@example.com --amount 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if tokensUser == "" {
			return fmt.Errorf("user is required")
		}
		if tokensAmount <= 0 {
			return fmt.Errorf("amount must be positive")
		}

		userID, err := resolveUser(cmd.Context(), c, tokensUser)
		if err != nil {
			return err
		}
		user, err := c.UserRepo.FindByID(cmd.Context(), userID)
		if err != nil {
			return err
		}
		user.Credit(tokensAmount)
		if err := c.UserRepo.Save(cmd.Context(), user); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credited %d tokens to %s (balance: %d)\n",
			tokensAmount, user.Email(), user.TokenBalance())
		return nil
	},
}

var tokensBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's token balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if tokensUser == "" {
			return fmt.Errorf("user is required")
		}

		userID, err := resolveUser(cmd.Context(), c, tokensUser)
		if err != nil {
			return err
		}
		user, err := c.UserRepo.FindByID(cmd.Context(), userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", user.Email(), user.TokenBalance())
		return nil
	},
}

func init() {
	tokensCreditCmd.Flags().StringVar(&tokensUser, "user", "", "user ID or email")
	tokensCreditCmd.Flags().IntVar(&tokensAmount, "amount", 0, "tokens to credit")
	tokensBalanceCmd.Flags().StringVar(&tokensUser, "user", "", "user ID or email")

	adminTokensCmd.AddCommand(tokensCreditCmd)
	adminTokensCmd.AddCommand(tokensBalanceCmd)
}
