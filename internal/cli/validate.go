package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file and its catalog",
		Long: `Validate a twinsync configuration file without connecting to either
engine. The sync section is checked against the same rules the run command
applies, and the referenced vehicle catalog (or the built-in default) is
compiled and schema-checked.

Example:
  twinsync validate ./twinsync.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func validateConfig(rootOpts *RootOptions, path string, cmd *cobra.Command) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return WrapExitError(ExitFailure, "config invalid", err)
	}

	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return WrapExitError(ExitFailure, "catalog invalid", err)
	}

	return rootOpts.formatter(cmd).Success(validateSummary{
		Config:         path,
		Authority:      cfg.Sync.Authority,
		CatalogEntries: cat.Len(),
	})
}

type validateSummary struct {
	Config         string `json:"config"`
	Authority      string `json:"authority"`
	CatalogEntries int    `json:"catalog_entries"`
}

func (s validateSummary) String() string {
	return fmt.Sprintf("%s: ok (authority %s, %d catalog entries)", s.Config, s.Authority, s.CatalogEntries)
}
