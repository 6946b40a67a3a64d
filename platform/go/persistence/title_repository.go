package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TitlesTable is owned by the catalog; the pool only reads it and writes the isbn column.
const TitlesTable = "titles"

var (
	// ErrTitleNotFound indicates the title does not exist for the tenant.
	ErrTitleNotFound = errors.New("title not found")
	// ErrTitleAlreadyAssigned indicates the title already holds an ISBN.
	ErrTitleAlreadyAssigned = errors.New("title already has an isbn")
)

// TitleAssignedError carries the value a title already holds.
type TitleAssignedError struct {
	TitleID uuid.UUID
	Value   string
}

func (e *TitleAssignedError) Error() string {
	return fmt.Sprintf("title %s already has isbn %s", e.TitleID, e.Value)
}

func (e *TitleAssignedError) Unwrap() error { return ErrTitleAlreadyAssigned }

// TitleRecord is the minimal title shape the pool needs.
type TitleRecord struct {
	TitleID   uuid.UUID `db:"title_id" json:"titleId"`
	TenantID  uuid.UUID `db:"tenant_id" json:"tenantId"`
	Name      string    `db:"name" json:"name"`
	ISBN      *string   `db:"isbn" json:"isbn,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// HasISBN reports whether the title already holds an identifier. An empty string counts as none,
// matching the WHERE clause of setTitleIdentifier.
func (t TitleRecord) HasISBN() bool {
	return t.ISBN != nil && *t.ISBN != ""
}

// CreateTitleParams captures the fields required to insert a title.
type CreateTitleParams struct {
	TitleID  uuid.UUID
	TenantID uuid.UUID
	Name     string
}

// TitleStore reads and updates catalog titles.
type TitleStore struct {
	db *SchemaDB
}

// NewTitleStore returns a store backed by the schema transactions.
func NewTitleStore(ctx context.Context, db *SchemaDB) (*TitleStore, error) {
	if db == nil {
		return nil, errors.New("schema db is required")
	}
	return &TitleStore{db: db}, nil
}

// CreateTitle inserts a title without an ISBN. Used by the CLI seeding commands and tests.
func (s *TitleStore) CreateTitle(ctx context.Context, params CreateTitleParams) (TitleRecord, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return TitleRecord{}, errors.New("title name is required")
	}
	if params.TitleID == uuid.Nil {
		params.TitleID = uuid.New()
	}

	var rec TitleRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = scanTitle(tx.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (title_id, tenant_id, name)
            VALUES ($1, $2, $3)
            RETURNING title_id, tenant_id, name, isbn, created_at, updated_at
        `, TitlesTable), params.TitleID, params.TenantID, name))
		return err
	})
	if err != nil {
		return TitleRecord{}, fmt.Errorf("create title: %w", err)
	}
	return rec, nil
}

// GetTitle loads a title scoped to the tenant.
func (s *TitleStore) GetTitle(ctx context.Context, tenantID, titleID uuid.UUID) (TitleRecord, error) {
	var rec TitleRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = selectTitle(ctx, tx, tenantID, titleID, "")
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TitleRecord{}, ErrTitleNotFound
		}
		return TitleRecord{}, fmt.Errorf("get title: %w", err)
	}
	return rec, nil
}

// SetTitleIdentifier writes value on the title only while it holds none.
// Returns false when another writer got there first.
func (s *TitleStore) SetTitleIdentifier(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error) {
	var updated bool
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = setTitleIdentifier(ctx, tx, tenantID, titleID, value)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w (%s)", ErrIdentifierConflict, violatedConstraint(err))
		}
		return false, fmt.Errorf("set title isbn: %w", err)
	}
	return updated, nil
}

func selectTitle(ctx context.Context, q querier, tenantID, titleID uuid.UUID, lockClause string) (TitleRecord, error) {
	return scanTitle(q.QueryRow(ctx, fmt.Sprintf(`
        SELECT title_id, tenant_id, name, isbn, created_at, updated_at
        FROM %s
        WHERE title_id = $1 AND tenant_id = $2
        %s
    `, TitlesTable, lockClause), titleID, tenantID))
}

func setTitleIdentifier(ctx context.Context, q querier, tenantID, titleID uuid.UUID, value string) (bool, error) {
	tag, err := q.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET isbn = $1, updated_at = NOW()
        WHERE title_id = $2 AND tenant_id = $3 AND (isbn IS NULL OR isbn = '')
    `, TitlesTable), value, titleID, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTitle(row pgx.Row) (TitleRecord, error) {
	var rec TitleRecord
	if err := row.Scan(&rec.TitleID, &rec.TenantID, &rec.Name, &rec.ISBN, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return TitleRecord{}, err
	}
	return rec, nil
}
