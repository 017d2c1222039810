package cli

import "github.com/spf13/cobra"

// adminCmd is the admin command group.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer the catalog, activations, and token balances",
}

var adminModulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Manage the module catalog",
}

var adminActivationsCmd = &cobra.Command{
	Use:   "activations",
	Short: "Manage user activations",
}

var adminTokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage user token balances",
}

func init() {
	adminCmd.AddCommand(adminModulesCmd)
	adminCmd.AddCommand(adminActivationsCmd)
	adminCmd.AddCommand(adminTokensCmd)
	rootCmd.AddCommand(adminCmd)
}
