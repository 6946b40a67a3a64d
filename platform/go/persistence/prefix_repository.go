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

// PrefixesTable stores registrant prefixes that group a tenant's pool into sub-pools.
const PrefixesTable = "isbn_prefixes"

var (
	// ErrPrefixNotFound indicates the prefix does not exist for the tenant.
	ErrPrefixNotFound = errors.New("isbn prefix not found")
)

// PrefixRecord mirrors a row of isbn_prefixes. Counters are bookkeeping only.
type PrefixRecord struct {
	PrefixID       uuid.UUID `db:"prefix_id" json:"prefixId"`
	TenantID       uuid.UUID `db:"tenant_id" json:"tenantId"`
	Prefix         string    `db:"prefix" json:"prefix"`
	Label          *string   `db:"label" json:"label,omitempty"`
	AvailableCount int       `db:"available_count" json:"availableCount"`
	AssignedCount  int       `db:"assigned_count" json:"assignedCount"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// CreatePrefixParams captures the fields required to register a prefix.
type CreatePrefixParams struct {
	PrefixID uuid.UUID
	TenantID uuid.UUID
	Prefix   string
	Label    *string
}

// PrefixStore persists registrant prefixes.
type PrefixStore struct {
	db *SchemaDB
}

// NewPrefixStore returns a store backed by the schema transactions.
func NewPrefixStore(ctx context.Context, db *SchemaDB) (*PrefixStore, error) {
	if db == nil {
		return nil, errors.New("schema db is required")
	}
	return &PrefixStore{db: db}, nil
}

// CreatePrefix registers a prefix for the tenant with zeroed counters.
func (s *PrefixStore) CreatePrefix(ctx context.Context, params CreatePrefixParams) (PrefixRecord, error) {
	prefix := strings.TrimSpace(params.Prefix)
	if prefix == "" {
		return PrefixRecord{}, errors.New("prefix is required")
	}
	if params.PrefixID == uuid.Nil {
		params.PrefixID = uuid.New()
	}

	var rec PrefixRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = scanPrefix(tx.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (prefix_id, tenant_id, prefix, label)
            VALUES ($1, $2, $3, $4)
            RETURNING prefix_id, tenant_id, prefix, label, available_count, assigned_count, created_at, updated_at
        `, PrefixesTable), params.PrefixID, params.TenantID, prefix, params.Label))
		return err
	})
	if err != nil {
		return PrefixRecord{}, fmt.Errorf("create prefix: %w", err)
	}
	return rec, nil
}

// GetPrefix loads a prefix scoped to the tenant.
func (s *PrefixStore) GetPrefix(ctx context.Context, tenantID, prefixID uuid.UUID) (PrefixRecord, error) {
	var rec PrefixRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = scanPrefix(tx.QueryRow(ctx, fmt.Sprintf(`
            SELECT prefix_id, tenant_id, prefix, label, available_count, assigned_count, created_at, updated_at
            FROM %s
            WHERE prefix_id = $1 AND tenant_id = $2
        `, PrefixesTable), prefixID, tenantID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PrefixRecord{}, ErrPrefixNotFound
		}
		return PrefixRecord{}, fmt.Errorf("get prefix: %w", err)
	}
	return rec, nil
}

// AdjustPrefixCounters applies deltas to the cached counters.
func (s *PrefixStore) AdjustPrefixCounters(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return adjustPrefixCounters(ctx, tx, prefixID, availableDelta, assignedDelta)
	})
	if err != nil {
		if errors.Is(err, ErrPrefixNotFound) {
			return err
		}
		return fmt.Errorf("adjust prefix counters: %w", err)
	}
	return nil
}

func adjustPrefixCounters(ctx context.Context, q querier, prefixID uuid.UUID, availableDelta, assignedDelta int) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET available_count = GREATEST(available_count + $1, 0),
            assigned_count = GREATEST(assigned_count + $2, 0),
            updated_at = NOW()
        WHERE prefix_id = $3
    `, PrefixesTable), availableDelta, assignedDelta, prefixID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPrefixNotFound
	}
	return nil
}

func scanPrefix(row pgx.Row) (PrefixRecord, error) {
	var rec PrefixRecord
	if err := row.Scan(&rec.PrefixID, &rec.TenantID, &rec.Prefix, &rec.Label, &rec.AvailableCount, &rec.AssignedCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return PrefixRecord{}, err
	}
	return rec, nil
}
