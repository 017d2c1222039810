package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iahome/platform/internal/catalog/domain"
)

var modulesListCategory string

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		modules, err := c.ModuleRepo.List(cmd.Context(), domain.ListFilter{
			Category: modulesListCategory,
			Limit:    500,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tTITLE\tCATEGORY\tPRICE\tFEATURED\tACTIVE")
		for _, m := range modules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\n",
				m.Slug, m.Title, m.Category, m.Price, m.Featured, m.Active)
		}
		return w.Flush()
	},
}

var modulesSeedFile string

type seedModule struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int    `json:"price"`
	BaseURL     string `json:"baseUrl"`
	FallbackURL string `json:"fallbackUrl"`
	Featured    bool   `json:"featured"`
}

var modulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load catalog modules from a JSON file",
	Long: `Load catalog modules from a JSON file. Existing modules with the
same slug are updated.

Example:
  iahome admin modules seed --file seed/modules.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if modulesSeedFile == "" {
			return fmt.Errorf("file is required")
		}

		raw, err := os.ReadFile(modulesSeedFile)
		if err != nil {
			return err
		}
		var seeds []seedModule
		if err := json.Unmarshal(raw, &seeds); err != nil {
			return fmt.Errorf("parsing %s: %w", modulesSeedFile, err)
		}

		for _, s := range seeds {
			module, err := domain.NewModule(s.Slug, s.Title, s.Price)
			if err != nil {
				return fmt.Errorf("module %q: %w", s.Slug, err)
			}
			module.Description = s.Description
			module.Category = s.Category
			module.BaseURL = s.BaseURL
			module.FallbackURL = s.FallbackURL
			module.Featured = s.Featured

			if err := c.ModuleRepo.Save(cmd.Context(), module); err != nil {
				return fmt.Errorf("saving module %q: %w", s.Slug, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded module: %s (%d tokens)\n", s.Slug, s.Price)
		}
		return nil
	},
}

func init() {
	modulesListCmd.Flags().StringVar(&modulesListCategory, "category", "", "filter by category")
	modulesSeedCmd.Flags().StringVar(&modulesSeedFile, "file", "", "JSON file with modules to load")
	adminModulesCmd.AddCommand(modulesListCmd)
	adminModulesCmd.AddCommand(modulesSeedCmd)
}
