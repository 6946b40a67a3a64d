package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditLogTable is the append-only trail of pool mutations.
const AuditLogTable = "isbn_audit_log"

const (
	AuditActionImported = "isbn.imported"
	AuditActionAssigned = "isbn.assigned"
)

// AuditEntry mirrors a row of isbn_audit_log.
type AuditEntry struct {
	AuditID    uuid.UUID      `json:"auditId"`
	TenantID   uuid.UUID      `json:"tenantId"`
	Action     string         `json:"action"`
	ISBNID     *uuid.UUID     `json:"isbnId,omitempty"`
	ISBNValue  *string        `json:"isbnValue,omitempty"`
	TitleID    *uuid.UUID     `json:"titleId,omitempty"`
	ActorID    *string        `json:"actorId,omitempty"`
	RequestID  string         `json:"requestId"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// AuditStore appends audit entries.
type AuditStore struct {
	db *SchemaDB
}

// NewAuditStore returns a store backed by the schema transactions.
func NewAuditStore(ctx context.Context, db *SchemaDB) (*AuditStore, error) {
	if db == nil {
		return nil, errors.New("schema db is required")
	}
	return &AuditStore{db: db}, nil
}

// RecordAudit inserts entry, filling AuditID and OccurredAt when unset.
func (s *AuditStore) RecordAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	entry = withAuditDefaults(entry)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return insertAudit(ctx, tx, entry)
	})
	if err != nil {
		return AuditEntry{}, fmt.Errorf("record audit: %w", err)
	}
	return entry, nil
}

// ListAudit returns the most recent entries for the tenant.
func (s *AuditStore) ListAudit(ctx context.Context, tenantID uuid.UUID, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var out []AuditEntry
	err := s.db.WithReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`
            SELECT audit_id, tenant_id, action, isbn_id, isbn_value, title_id, actor_id, request_id, details, occurred_at
            FROM %s
            WHERE tenant_id = $1
            ORDER BY occurred_at DESC
            LIMIT $2
        `, AuditLogTable), tenantID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e AuditEntry
			var details []byte
			if err := rows.Scan(&e.AuditID, &e.TenantID, &e.Action, &e.ISBNID, &e.ISBNValue, &e.TitleID, &e.ActorID, &e.RequestID, &details, &e.OccurredAt); err != nil {
				return err
			}
			if len(details) > 0 {
				if err := json.Unmarshal(details, &e.Details); err != nil {
					return fmt.Errorf("decode audit details: %w", err)
				}
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return out, nil
}

func withAuditDefaults(entry AuditEntry) AuditEntry {
	if entry.AuditID == uuid.Nil {
		entry.AuditID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	return entry
}

func insertAudit(ctx context.Context, q querier, entry AuditEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	_, err = q.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (audit_id, tenant_id, action, isbn_id, isbn_value, title_id, actor_id, request_id, details, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, AuditLogTable),
		entry.AuditID, entry.TenantID, entry.Action, entry.ISBNID, entry.ISBNValue, entry.TitleID,
		entry.ActorID, entry.RequestID, payload, entry.OccurredAt,
	)
	return err
}
