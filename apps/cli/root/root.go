// Package root assembles the folio command tree.
package root

import (
	"github.com/spf13/cobra"

	"github.com/folio-erp/folio/apps/cli/cmd/auth"
	"github.com/folio-erp/folio/apps/cli/cmd/bootstrap"
	"github.com/folio-erp/folio/apps/cli/cmd/isbn"
)

// New builds a fresh command tree. Errors are returned to main instead of printed by cobra.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Operate the Folio ISBN pool",
		Long:          "Operator utilities for Folio: schema bootstrap, bulk ISBN imports, pool stats, reconciliation and dev tokens.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(auth.Command(), bootstrap.Command(), isbn.Command())
	return cmd
}
