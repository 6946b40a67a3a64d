package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/folio-erp/folio/database"
)

// BootstrapSchema creates the pool schema (if missing) and applies the ISBN
// DDL in a single transaction. The statements are executed with search_path
// set to the schema, in this order:
//  1. isbn/titles.sql
//  2. isbn/isbn_prefixes.sql
//  3. isbn/isbns.sql
//  4. isbn/isbn_audit_log.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for CLI bootstrap and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}
	normalized, err := NormalizeSchemaName(schema)
	if err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.TitlesSQL)...)
	statements = append(statements, splitStatements(sqlassets.PrefixesSQL)...)
	statements = append(statements, splitStatements(sqlassets.IdentifiersSQL)...)
	statements = append(statements, splitStatements(sqlassets.AuditLogSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{normalized}.Sanitize()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, normalized); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements breaks a DDL file on ';'. Line comments are dropped first so
// that a trailing comment never becomes an empty statement.
func splitStatements(sql string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	raw := strings.Split(cleaned.String(), ";")
	statements := make([]string, 0, len(raw))
	for _, part := range raw {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
