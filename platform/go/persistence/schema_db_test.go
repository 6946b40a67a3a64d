package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx and records Exec statements invoked.
type fakeTx struct {
	stmts      []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { f.rolledBack = true; return nil }
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool returns a preconstructed transaction.
type fakePool struct {
	tx   *fakeTx
	opts []pgx.TxOptions
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.opts = append(p.opts, txOptions)
	return p.tx, nil
}

func TestSchemaDBWithTxSetsLocalSearchPath(t *testing.T) {
	ftx := &fakeTx{}
	db := &SchemaDB{pool: &fakePool{tx: ftx}, schema: "folio"}

	err := db.WithTx(context.Background(), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, ftx.stmts, 1)
	require.Contains(t, strings.ToLower(ftx.stmts[0]), "set_config('search_path', $1, true)")
	require.Equal(t, []any{"folio"}, ftx.args[0])
	require.True(t, ftx.committed)
}

func TestSchemaDBWithReadTxUsesReadOnlyMode(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &SchemaDB{pool: pool, schema: "folio"}

	require.NoError(t, db.WithReadTx(context.Background(), func(tx pgx.Tx) error { return nil }))
	require.Len(t, pool.opts, 1)
	require.Equal(t, pgx.ReadOnly, pool.opts[0].AccessMode)
}

func TestSchemaDBDoesNotCommitOnError(t *testing.T) {
	ftx := &fakeTx{}
	db := &SchemaDB{pool: &fakePool{tx: ftx}, schema: "folio"}
	boom := errors.New("boom")

	err := db.WithTx(context.Background(), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}

func TestNormalizeSchemaName(t *testing.T) {
	got, err := NormalizeSchemaName("  Folio_Pool ")
	require.NoError(t, err)
	require.Equal(t, "folio_pool", got)

	for _, bad := range []string{"", "1abc", "folio-pool", "folio;drop"} {
		_, err := NormalizeSchemaName(bad)
		require.Error(t, err, bad)
	}
}

func TestSplitStatementsDropsCommentsAndBlanks(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (id INT);

-- trailing
CREATE INDEX a_idx ON a (id);
`
	stmts := splitStatements(sql)
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX a_idx ON a (id)"}, stmts)
}

func TestStatusCountsAdd(t *testing.T) {
	var c StatusCounts
	c.Add(StatusAvailable, 3)
	c.Add(StatusAssigned, 2)
	c.Add(StatusRetired, 1)
	require.Equal(t, StatusCounts{Total: 6, Available: 3, Assigned: 2, Retired: 1}, c)
	require.False(t, IdentifierStatus("bogus").Valid())
}
