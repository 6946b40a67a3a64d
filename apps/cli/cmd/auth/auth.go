package auth

import "github.com/spf13/cobra"

// Command groups token helpers for local API access.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Bearer tokens for local API calls",
	}
	cmd.AddCommand(devTokenCommand())
	return cmd
}
