package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdentifiersTable holds every ISBN-13 of every tenant. Resolved through the transaction search_path.
const IdentifiersTable = "isbns"

// IdentifierStatus is the lifecycle state of a pool record.
type IdentifierStatus string

const (
	StatusAvailable  IdentifierStatus = "available"
	StatusAssigned   IdentifierStatus = "assigned"
	StatusRegistered IdentifierStatus = "registered"
	StatusRetired    IdentifierStatus = "retired"
)

// Valid reports whether s is one of the known statuses.
func (s IdentifierStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusRegistered, StatusRetired:
		return true
	}
	return false
}

var (
	// ErrIdentifierNotFound indicates the requested pool record does not exist for the tenant.
	ErrIdentifierNotFound = errors.New("isbn not found")
	// ErrIdentifierConflict indicates an insert collided with an existing value (any tenant).
	ErrIdentifierConflict = errors.New("isbn value already exists")
	// ErrIdentifierNotAvailable indicates a locked candidate is no longer available.
	ErrIdentifierNotAvailable = errors.New("isbn not available")
	// ErrPoolExhausted indicates no available record matched the selection.
	ErrPoolExhausted = errors.New("isbn pool exhausted")
)

// IdentifierRecord mirrors a row of the isbns table.
type IdentifierRecord struct {
	ISBNID     uuid.UUID        `db:"isbn_id" json:"isbnId"`
	TenantID   uuid.UUID        `db:"tenant_id" json:"tenantId"`
	Value      string           `db:"value" json:"value"`
	Status     IdentifierStatus `db:"status" json:"status"`
	PrefixID   *uuid.UUID       `db:"prefix_id" json:"prefixId,omitempty"`
	AssignedTo *uuid.UUID       `db:"assigned_to" json:"assignedTo,omitempty"`
	AssignedBy *string          `db:"assigned_by" json:"assignedBy,omitempty"`
	AssignedAt *time.Time       `db:"assigned_at" json:"assignedAt,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updatedAt"`
}

// ExistingValue reports a value that is already present in the pool and who owns it.
type ExistingValue struct {
	Value    string
	TenantID uuid.UUID
}

// AssignmentFields are written together with the available -> assigned transition.
type AssignmentFields struct {
	TitleID    uuid.UUID
	AssignedBy string
	AssignedAt time.Time
}

// TransitionParams describes a compare-and-swap on a record's status.
// Assignment must be set when Next is not available and nil when it is.
type TransitionParams struct {
	ISBNID     uuid.UUID
	TenantID   uuid.UUID
	Expected   IdentifierStatus
	Next       IdentifierStatus
	Assignment *AssignmentFields
}

// StatusCounts aggregates a tenant's pool by status.
type StatusCounts struct {
	Total      int
	Available  int
	Assigned   int
	Registered int
	Retired    int
}

// ListIdentifiersParams captures filters and pagination for ListIdentifiers.
type ListIdentifiersParams struct {
	TenantID uuid.UUID
	Status   *IdentifierStatus
	Search   *string
	PrefixID *uuid.UUID
	Page     int
	PageSize int
}

// ListIdentifiersResult includes the rows and the total count for pagination metadata.
type ListIdentifiersResult struct {
	Identifiers []IdentifierRecord
	TotalItems  int
}

// OrphanedAssignment is an assigned record whose title does not hold its value.
type OrphanedAssignment struct {
	ISBNID     uuid.UUID
	Value      string
	TitleID    uuid.UUID
	AssignedAt time.Time
	TitleISBN  *string
	TitleFound bool
}

// querier is satisfied by pgx.Tx and lets statement helpers be shared across stores.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const identifierColumns = `isbn_id, tenant_id, value, status, prefix_id, assigned_to, assigned_by, assigned_at, created_at, updated_at`

// IdentifierStore persists the ISBN pool.
type IdentifierStore struct {
	db *SchemaDB
}

// NewIdentifierStore returns a store; assumes BootstrapSchema already created the tables.
func NewIdentifierStore(ctx context.Context, db *SchemaDB) (*IdentifierStore, error) {
	if db == nil {
		return nil, errors.New("schema db is required")
	}
	return &IdentifierStore{db: db}, nil
}

// InsertBatch copies every record in one transaction. Either all rows are persisted or none.
func (s *IdentifierStore) InsertBatch(ctx context.Context, records []IdentifierRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.ISBNID == uuid.Nil || rec.TenantID == uuid.Nil {
			return 0, errors.New("isbn id and tenant id are required")
		}
		status := rec.Status
		if status == "" {
			status = StatusAvailable
		}
		rows = append(rows, []any{rec.ISBNID, rec.TenantID, rec.Value, string(status), rec.PrefixID, rec.CreatedAt, rec.UpdatedAt})
	}

	var inserted int64
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{IdentifiersTable},
			[]string{"isbn_id", "tenant_id", "value", "status", "prefix_id", "created_at", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w (%s)", ErrIdentifierConflict, violatedConstraint(err))
		}
		return 0, fmt.Errorf("insert isbn batch: %w", err)
	}

	return int(inserted), nil
}

// FindExistingValues returns the subset of values already present in the pool, across all tenants.
func (s *IdentifierStore) FindExistingValues(ctx context.Context, values []string) ([]ExistingValue, error) {
	if len(values) == 0 {
		return nil, nil
	}

	var out []ExistingValue
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT value, tenant_id FROM %s WHERE value = ANY($1) ORDER BY value`, IdentifiersTable), values)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ev ExistingValue
			if err := rows.Scan(&ev.Value, &ev.TenantID); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find existing isbns: %w", err)
	}
	return out, nil
}

// GetIdentifier returns a record scoped to the tenant.
func (s *IdentifierStore) GetIdentifier(ctx context.Context, tenantID, isbnID uuid.UUID) (IdentifierRecord, error) {
	var rec IdentifierRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = scanIdentifier(tx.QueryRow(ctx, fmt.Sprintf(`
            SELECT %s FROM %s WHERE isbn_id = $1 AND tenant_id = $2
        `, identifierColumns, IdentifiersTable), isbnID, tenantID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdentifierRecord{}, ErrIdentifierNotFound
		}
		return IdentifierRecord{}, fmt.Errorf("get isbn: %w", err)
	}
	return rec, nil
}

// OldestAvailable returns the first available record for the tenant in creation order,
// optionally restricted to a prefix. Returns ErrPoolExhausted when none exists.
func (s *IdentifierStore) OldestAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (IdentifierRecord, error) {
	var rec IdentifierRecord
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = selectOldestAvailable(ctx, tx, tenantID, prefixID, "")
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdentifierRecord{}, ErrPoolExhausted
		}
		return IdentifierRecord{}, fmt.Errorf("select oldest available isbn: %w", err)
	}
	return rec, nil
}

// ConditionalTransition updates the record only while its status still equals params.Expected.
// At most one concurrent caller observes true for a given record and expected status.
func (s *IdentifierStore) ConditionalTransition(ctx context.Context, params TransitionParams) (bool, error) {
	var updated bool
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = transitionIdentifier(ctx, tx, params)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("transition isbn: %w", err)
	}
	return updated, nil
}

// CountByStatus aggregates the tenant's records by status.
func (s *IdentifierStore) CountByStatus(ctx context.Context, tenantID uuid.UUID) (StatusCounts, error) {
	var counts StatusCounts
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT status, COUNT(*) FROM %s WHERE tenant_id = $1 GROUP BY status`, IdentifiersTable), tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts.add(IdentifierStatus(status), n)
		}
		return rows.Err()
	})
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count isbns by status: %w", err)
	}
	return counts, nil
}

// CountAvailable counts available records for the tenant, optionally within a prefix.
func (s *IdentifierStore) CountAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND status = 'available'`, IdentifiersTable)
	args := []any{tenantID}
	if prefixID != nil {
		query += " AND prefix_id = $2"
		args = append(args, *prefixID)
	}

	var n int
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count available isbns: %w", err)
	}
	return n, nil
}

// ListIdentifiers returns a page of the tenant's records, newest first.
func (s *IdentifierStore) ListIdentifiers(ctx context.Context, params ListIdentifiersParams) (ListIdentifiersResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"tenant_id = $1"}
	args := []any{params.TenantID}

	if params.Status != nil {
		args = append(args, string(*params.Status))
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		args = append(args, strings.TrimSpace(*params.Search))
		whereParts = append(whereParts, fmt.Sprintf("strpos(value, $%d) > 0", len(args)))
	}
	if params.PrefixID != nil {
		args = append(args, *params.PrefixID)
		whereParts = append(whereParts, fmt.Sprintf("prefix_id = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")
	result := ListIdentifiersResult{Identifiers: []IdentifierRecord{}}

	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", IdentifiersTable, whereSQL)
		if err := tx.QueryRow(ctx, countQuery, args...).Scan(&result.TotalItems); err != nil {
			return fmt.Errorf("count isbns: %w", err)
		}
		if result.TotalItems == 0 {
			return nil
		}

		dataArgs := append([]any{}, args...)
		dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

		query := fmt.Sprintf(`
            SELECT %s
            FROM %s
            WHERE %s
            ORDER BY created_at DESC, seq DESC
            LIMIT $%d OFFSET $%d
        `, identifierColumns, IdentifiersTable, whereSQL, len(dataArgs)-1, len(dataArgs))

		rows, err := tx.Query(ctx, query, dataArgs...)
		if err != nil {
			return fmt.Errorf("list isbns: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanIdentifier(rows)
			if err != nil {
				return fmt.Errorf("scan isbn: %w", err)
			}
			result.Identifiers = append(result.Identifiers, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return ListIdentifiersResult{}, err
	}

	return result, nil
}

// FindOrphanedAssignments lists assigned records whose title is missing or holds a different value.
func (s *IdentifierStore) FindOrphanedAssignments(ctx context.Context, tenantID uuid.UUID) ([]OrphanedAssignment, error) {
	var out []OrphanedAssignment
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`
            SELECT i.isbn_id, i.value, i.assigned_to, i.assigned_at, t.isbn, t.title_id IS NOT NULL
            FROM %s i
            LEFT JOIN %s t ON t.title_id = i.assigned_to AND t.tenant_id = i.tenant_id
            WHERE i.tenant_id = $1
              AND i.status = 'assigned'
              AND (t.title_id IS NULL OR t.isbn IS DISTINCT FROM i.value)
            ORDER BY i.assigned_at
        `, IdentifiersTable, TitlesTable), tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var o OrphanedAssignment
			if err := rows.Scan(&o.ISBNID, &o.Value, &o.TitleID, &o.AssignedAt, &o.TitleISBN, &o.TitleFound); err != nil {
				return err
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find orphaned assignments: %w", err)
	}
	return out, nil
}

func selectOldestAvailable(ctx context.Context, q querier, tenantID uuid.UUID, prefixID *uuid.UUID, lockClause string) (IdentifierRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND status = 'available'`, identifierColumns, IdentifiersTable)
	args := []any{tenantID}
	if prefixID != nil {
		query += " AND prefix_id = $2"
		args = append(args, *prefixID)
	}
	query += " ORDER BY created_at ASC, seq ASC LIMIT 1 " + lockClause

	return scanIdentifier(q.QueryRow(ctx, query, args...))
}

func transitionIdentifier(ctx context.Context, q querier, params TransitionParams) (bool, error) {
	if !params.Expected.Valid() || !params.Next.Valid() {
		return false, fmt.Errorf("invalid transition %q -> %q", params.Expected, params.Next)
	}

	var (
		assignedTo *uuid.UUID
		assignedBy *string
		assignedAt *time.Time
	)
	if params.Assignment != nil {
		titleID := params.Assignment.TitleID
		by := params.Assignment.AssignedBy
		at := params.Assignment.AssignedAt
		assignedTo, assignedBy, assignedAt = &titleID, &by, &at
	}

	tag, err := q.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, assigned_to = $2, assigned_by = $3, assigned_at = $4, updated_at = NOW()
        WHERE isbn_id = $5 AND tenant_id = $6 AND status = $7
    `, IdentifiersTable),
		string(params.Next), assignedTo, assignedBy, assignedAt,
		params.ISBNID, params.TenantID, string(params.Expected),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanIdentifier(row pgx.Row) (IdentifierRecord, error) {
	var rec IdentifierRecord
	var status string
	if err := row.Scan(&rec.ISBNID, &rec.TenantID, &rec.Value, &status, &rec.PrefixID, &rec.AssignedTo, &rec.AssignedBy, &rec.AssignedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return IdentifierRecord{}, err
	}
	rec.Status = IdentifierStatus(status)
	return rec, nil
}

func (c *StatusCounts) add(status IdentifierStatus, n int) {
	c.Total += n
	switch status {
	case StatusAvailable:
		c.Available += n
	case StatusAssigned:
		c.Assigned += n
	case StatusRegistered:
		c.Registered += n
	case StatusRetired:
		c.Retired += n
	}
}

// Add folds n records of the given status into the counts.
func (c *StatusCounts) Add(status IdentifierStatus, n int) {
	c.add(status, n)
}
