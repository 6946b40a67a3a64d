package isbn

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/folio-erp/folio/domains/isbns/be/codec"
	isbnsservice "github.com/folio-erp/folio/domains/isbns/be/service"
	"github.com/folio-erp/folio/platform/go/persistence"
)

func assignCommand(opts *options) *cobra.Command {
	var titleID, prefixID, isbnID string

	c := &cobra.Command{
		Use:   "assign",
		Short: "Assign the next available ISBN, or a specific one, to a title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := isbnsservice.AssignInput{}
			var err error
			if input.TitleID, err = uuid.Parse(titleID); err != nil {
				return fmt.Errorf("invalid title-id uuid: %w", err)
			}
			if input.PrefixID, err = optionalUUID("prefix-id", prefixID); err != nil {
				return err
			}
			if input.IdentifierID, err = optionalUUID("isbn-id", isbnID); err != nil {
				return err
			}

			return opts.run(cmd, "cli-isbn-assign", func(ctx context.Context, d deps) error {
				assignment, err := d.svc.Assign(ctx, input)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), assignment)
			})
		},
	}

	c.Flags().StringVar(&titleID, "title-id", "", "title UUID")
	c.Flags().StringVar(&prefixID, "prefix-id", "", "restrict automatic selection to this registrant prefix")
	c.Flags().StringVar(&isbnID, "isbn-id", "", "assign this identifier instead of the oldest available one")
	c.MarkFlagsMutuallyExclusive("prefix-id", "isbn-id")
	_ = c.MarkFlagRequired("title-id")
	return c
}

func auditCommand(opts *options) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "audit",
		Short: "Print the most recent audit entries for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return opts.run(cmd, "cli-isbn-audit", func(ctx context.Context, d deps) error {
				entries, err := d.stores.Audit.ListAudit(ctx, d.tenantID, limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}

	c.Flags().IntVar(&limit, "limit", 50, "entries to print, newest first")
	return c
}

func prefixCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefix",
		Short: "Manage registrant prefixes",
	}

	var prefix, label string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a prefix that imports and assignments can be grouped under",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := normalizePrefix(prefix)
			if err != nil {
				return err
			}
			return opts.run(cmd, "cli-isbn-prefix-create", func(ctx context.Context, d deps) error {
				params := persistence.CreatePrefixParams{TenantID: d.tenantID, Prefix: normalized}
				if label != "" {
					params.Label = &label
				}
				rec, err := d.stores.Prefixes.CreatePrefix(ctx, params)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	create.Flags().StringVar(&prefix, "prefix", "", "digits every imported ISBN must start with, e.g. 9791012")
	create.Flags().StringVar(&label, "label", "", "human readable name")
	_ = create.MarkFlagRequired("prefix")

	cmd.AddCommand(create)
	return cmd
}

// titleCommand seeds catalog titles for local environments where the catalog service is absent.
func titleCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "title",
		Short: "Seed catalog titles for local testing",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Insert a title without an ISBN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "cli-isbn-title-create", func(ctx context.Context, d deps) error {
				rec, err := d.stores.Titles.CreateTitle(ctx, persistence.CreateTitleParams{TenantID: d.tenantID, Name: name})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "title name")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

// normalizePrefix strips separators the same way imported values are normalized,
// so a prefix entered as "979-10-12" still matches "9791012...".
func normalizePrefix(raw string) (string, error) {
	normalized := codec.Normalize(raw)
	if normalized == "" || len(normalized) >= codec.Length || strings.Trim(normalized, "0123456789") != "" {
		return "", fmt.Errorf("prefix %q must be 1 to %d digits", raw, codec.Length-1)
	}
	return normalized, nil
}

func optionalUUID(flag, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s uuid: %w", flag, err)
	}
	return &id, nil
}
