package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/folio-erp/folio/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var params devtoken.Params

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint an unsigned bearer token for an API running with AUTH_PROVIDER=dev",
		Example: `  folio auth devtoken --project-id local-folio --tenant-id 2f1d7c1e-6a4b-4b43-9d55-3c1b2f0a9e11 \
    --user-id editor-1 --permissions catalog:read,catalog:write`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.Build(params, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("build token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&params.ProjectID, "project-id", "local-folio", "Firebase project id used for iss and aud")
	flags.StringVar(&params.TenantID, "tenant-id", "", "tenant UUID placed in firebase.tenant")
	flags.StringVar(&params.UserID, "user-id", "", "subject recorded as assigned_by on allocations")
	flags.StringVar(&params.Email, "email", "", "email claim (defaults to <user-id>@dev.folio.local)")
	flags.StringVar(&params.Name, "name", "", "display name")
	flags.BoolVar(&params.IsAdmin, "admin", false, "grant every capability")
	flags.StringSliceVar(&params.Permissions, "permissions", nil, "capabilities: catalog:read, catalog:write, settings:manage")
	flags.DurationVar(&params.TTL, "ttl", time.Hour, "token lifetime")

	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}
