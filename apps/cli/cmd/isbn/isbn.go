package isbn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folio-erp/folio/domains/isbns/be/importfile"
	isbnsrepo "github.com/folio-erp/folio/domains/isbns/be/repo"
	isbnsservice "github.com/folio-erp/folio/domains/isbns/be/service"
	platformauth "github.com/folio-erp/folio/platform/go/auth"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
	"github.com/folio-erp/folio/platform/go/persistence"
	"github.com/folio-erp/folio/platform/go/requesttrace"
	"github.com/folio-erp/folio/platform/go/tenant"
)

const cliActor = "folio-cli"

type options struct {
	databaseURL string
	schema      string
	envKey      string
	tenantID    string
	logLevel    string
}

// Command groups ISBN pool operations that run directly against the database as a system actor.
func Command() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "isbn",
		Short: "ISBN pool operations",
		Long:  "Import ISBN files, assign identifiers, inspect pool statistics and the audit trail, and list orphaned assignments for a tenant.",
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.schema, "schema", "folio", "schema holding the ISBN pool tables")
	cmd.PersistentFlags().StringVar(&opts.envKey, "env-key", os.Getenv("ENV_KEY"), "environment key used to derive tenant prefixes (defaults to ENV_KEY)")
	cmd.PersistentFlags().StringVar(&opts.tenantID, "tenant-id", "", "tenant UUID the operation runs for")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for service diagnostics")
	_ = cmd.MarkPersistentFlagRequired("tenant-id")

	cmd.AddCommand(importCommand(opts))
	cmd.AddCommand(statsCommand(opts))
	cmd.AddCommand(reconcileCommand(opts))
	cmd.AddCommand(assignCommand(opts))
	cmd.AddCommand(auditCommand(opts))
	cmd.AddCommand(prefixCommand(opts))
	cmd.AddCommand(titleCommand(opts))
	return cmd
}

func importCommand(opts *options) *cobra.Command {
	var (
		file      string
		prefixID  string
		chunkSize int
	)

	c := &cobra.Command{
		Use:   "import",
		Short: "Import ISBNs from a JSON manifest or a newline-separated file",
		Long: "Import ISBNs from a file. Each chunk is imported all-or-nothing; " +
			"when a chunk is rejected, earlier chunks stay imported and the command stops.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			manifest, err := importfile.Parse(data)
			if err != nil {
				return err
			}
			if prefixID != "" {
				parsed, err := uuid.Parse(prefixID)
				if err != nil {
					return fmt.Errorf("invalid prefix-id uuid: %w", err)
				}
				manifest.PrefixID = &parsed
			}

			return opts.run(cmd, "cli-isbn-import", func(ctx context.Context, d deps) error {
				summary, err := runImport(ctx, d.svc, manifest, chunkSize)
				if writeErr := writeJSON(cmd.OutOrStdout(), summary); writeErr != nil {
					return writeErr
				}
				return err
			})
		},
	}

	c.Flags().StringVar(&file, "file", "", "path to the import file")
	c.Flags().StringVar(&prefixID, "prefix-id", "", "registrant prefix UUID; overrides the manifest prefixId")
	c.Flags().IntVar(&chunkSize, "chunk-size", isbnsservice.DefaultConfig().MaxBatchSize, "values per import batch")
	_ = c.MarkFlagRequired("file")

	return c
}

func statsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print pool counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "cli-isbn-stats", func(ctx context.Context, d deps) error {
				stats, err := d.svc.Stats(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func reconcileCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "List assigned ISBNs whose title does not reference them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "cli-isbn-reconcile", func(ctx context.Context, d deps) error {
				orphans, err := d.svc.Reconcile(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"orphans": orphans,
					"count":   len(orphans),
				})
			})
		},
	}
}

// deps is what a subcommand gets once the pool is open.
type deps struct {
	svc      isbnsservice.Service
	stores   isbnsrepo.Stores
	tenantID uuid.UUID
}

// run opens the pool, builds the service and invokes fn with a system caller context for the tenant.
func (o *options) run(cmd *cobra.Command, requestID string, fn func(ctx context.Context, d deps) error) error {
	tenantID, err := uuid.Parse(o.tenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant-id uuid: %w", err)
	}
	if o.envKey == "" {
		return errors.New("env-key is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: o.logLevel, Output: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: o.databaseURL, ApplicationName: "folio-cli"})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	stores, err := isbnsrepo.NewStores(ctx, persistence.NewSchemaDB(persistence.SchemaDBConfig{Pool: pool, Schema: o.schema}))
	if err != nil {
		return fmt.Errorf("init isbn stores: %w", err)
	}

	svc := isbnsservice.New(isbnsrepo.NewPostgresRepository(stores), isbnsservice.WithLogger(logger))
	err = fn(systemContext(ctx, o.envKey, tenantID, requestID), deps{svc: svc, stores: stores, tenantID: tenantID})
	if err != nil {
		logger.Debug("isbn command failed", zap.String("request_id", requestID), zap.Error(err))
	}
	return err
}

// systemContext attaches admin credentials, the derived tenant scope and a system audit record.
func systemContext(ctx context.Context, envKey string, tenantID uuid.UUID, requestID string) context.Context {
	tid := tenantID.String()
	ctx = platformauth.WithUser(ctx, &platformauth.UserCredentials{
		Id:       cliActor,
		IsAdmin:  true,
		TenantID: &tid,
	})
	ctx = tenant.WithScope(ctx, tenant.DeriveScope(envKey, tenantID))
	audit := requesttrace.System(requestID)
	audit.TenantID = &tid
	return requesttrace.IntoContext(ctx, audit)
}

// importSummary aggregates per-chunk results.
type importSummary struct {
	Chunks       int                        `json:"chunks"`
	Completed    int                        `json:"completed"`
	Imported     int                        `json:"imported"`
	FailedChunk  *int                       `json:"failedChunk,omitempty"`
	Failure      string                     `json:"failure,omitempty"`
	ErrorDetails []isbnsservice.ErrorDetail `json:"errorDetails"`
	Reports      []string                   `json:"reports,omitempty"`
}

// runImport feeds manifest values through ImportBatch chunk by chunk and stops at the first rejected chunk.
func runImport(ctx context.Context, svc isbnsservice.Service, manifest importfile.Manifest, chunkSize int) (importSummary, error) {
	chunks := importfile.Chunk(manifest.Values, chunkSize)
	summary := importSummary{Chunks: len(chunks), ErrorDetails: []isbnsservice.ErrorDetail{}}

	for i, values := range chunks {
		result, err := svc.ImportBatch(ctx, isbnsservice.ImportInput{Values: values, PrefixID: manifest.PrefixID})
		if result.ReportLocation != "" {
			summary.Reports = append(summary.Reports, result.ReportLocation)
		}
		if err != nil {
			failed := i + 1
			summary.FailedChunk = &failed
			summary.Failure = err.Error()
			summary.ErrorDetails = append(summary.ErrorDetails, result.ErrorDetails...)
			return summary, fmt.Errorf("chunk %d of %d: %w", failed, len(chunks), err)
		}
		summary.Completed++
		summary.Imported += result.Imported
	}
	return summary, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
