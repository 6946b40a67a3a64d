package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txBeginner exposes the minimal pgx pool behaviour needed by SchemaDB.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SchemaDB runs statements inside transactions whose search_path points at the pool schema.
// The ISBN pool is one shared namespace for every tenant, so there is no per-tenant schema or role.
type SchemaDB struct {
	pool   txBeginner
	schema string
}

type SchemaDBConfig struct {
	Pool   *pgxpool.Pool
	Schema string
}

func NewSchemaDB(cfg SchemaDBConfig) *SchemaDB {
	if cfg.Pool == nil {
		panic("SchemaDB requires pool")
	}

	schema, err := NormalizeSchemaName(cfg.Schema)
	if err != nil {
		panic(fmt.Sprintf("SchemaDB: %v", err))
	}
	return &SchemaDB{pool: cfg.Pool, schema: schema}
}

// Schema returns the schema every transaction is scoped to.
func (db *SchemaDB) Schema() string {
	return db.schema
}

// WithTx executes fn inside a read-write transaction.
func (db *SchemaDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{}, fn)
}

// WithReadTx executes fn inside a read-only transaction.
func (db *SchemaDB) WithReadTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (db *SchemaDB) run(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// is_local=true: the setting dies with the transaction and never leaks to the pooled connection.
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
