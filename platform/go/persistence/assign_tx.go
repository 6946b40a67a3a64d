package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AssignInTxParams drives a single-transaction allocation.
// ISBNID selects a specific record; otherwise the oldest available one (optionally within PrefixID) is taken.
type AssignInTxParams struct {
	TenantID   uuid.UUID
	TitleID    uuid.UUID
	PrefixID   *uuid.UUID
	ISBNID     *uuid.UUID
	AssignedBy string
	AssignedAt time.Time
	RequestID  string
}

// AssignInTxResult is the state committed by AssignInTx.
type AssignInTxResult struct {
	Identifier IdentifierRecord
	Title      TitleRecord
	Audit      AuditEntry
}

// AssignInTx locks the title and a candidate record, transitions the record to assigned,
// writes the title, adjusts prefix counters and appends the audit entry, all in one transaction.
// Concurrent auto-mode callers skip rows locked by each other instead of waiting.
func (s *IdentifierStore) AssignInTx(ctx context.Context, params AssignInTxParams) (AssignInTxResult, error) {
	if params.AssignedAt.IsZero() {
		params.AssignedAt = time.Now().UTC()
	}

	var result AssignInTxResult
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		title, err := selectTitle(ctx, tx, params.TenantID, params.TitleID, "FOR UPDATE")
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTitleNotFound
			}
			return fmt.Errorf("lock title: %w", err)
		}
		if title.HasISBN() {
			return &TitleAssignedError{TitleID: title.TitleID, Value: *title.ISBN}
		}

		var candidate IdentifierRecord
		if params.ISBNID != nil {
			candidate, err = scanIdentifier(tx.QueryRow(ctx, fmt.Sprintf(`
                SELECT %s FROM %s WHERE isbn_id = $1 AND tenant_id = $2 FOR UPDATE
            `, identifierColumns, IdentifiersTable), *params.ISBNID, params.TenantID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrIdentifierNotAvailable
				}
				return fmt.Errorf("lock isbn: %w", err)
			}
			if candidate.Status != StatusAvailable {
				return ErrIdentifierNotAvailable
			}
		} else {
			candidate, err = selectOldestAvailable(ctx, tx, params.TenantID, params.PrefixID, "FOR UPDATE SKIP LOCKED")
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrPoolExhausted
				}
				return fmt.Errorf("lock available isbn: %w", err)
			}
		}

		updated, err := transitionIdentifier(ctx, tx, TransitionParams{
			ISBNID:   candidate.ISBNID,
			TenantID: params.TenantID,
			Expected: StatusAvailable,
			Next:     StatusAssigned,
			Assignment: &AssignmentFields{
				TitleID:    params.TitleID,
				AssignedBy: params.AssignedBy,
				AssignedAt: params.AssignedAt,
			},
		})
		if err != nil {
			return fmt.Errorf("transition isbn: %w", err)
		}
		if !updated {
			return ErrIdentifierNotAvailable
		}

		written, err := setTitleIdentifier(ctx, tx, params.TenantID, params.TitleID, candidate.Value)
		if err != nil {
			return fmt.Errorf("set title isbn: %w", err)
		}
		if !written {
			held := ""
			if title.ISBN != nil {
				held = *title.ISBN
			}
			return &TitleAssignedError{TitleID: title.TitleID, Value: held}
		}

		if candidate.PrefixID != nil {
			if err := adjustPrefixCounters(ctx, tx, *candidate.PrefixID, -1, 1); err != nil && !errors.Is(err, ErrPrefixNotFound) {
				return fmt.Errorf("adjust prefix counters: %w", err)
			}
		}

		value := candidate.Value
		isbnID := candidate.ISBNID
		titleID := params.TitleID
		actor := params.AssignedBy
		audit := withAuditDefaults(AuditEntry{
			TenantID:   params.TenantID,
			Action:     AuditActionAssigned,
			ISBNID:     &isbnID,
			ISBNValue:  &value,
			TitleID:    &titleID,
			ActorID:    &actor,
			RequestID:  params.RequestID,
			Details:    map[string]any{"strategy": "transactional", "manual": params.ISBNID != nil},
			OccurredAt: params.AssignedAt,
		})
		if err := insertAudit(ctx, tx, audit); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}

		candidate.Status = StatusAssigned
		candidate.AssignedTo = &titleID
		candidate.AssignedBy = &actor
		assignedAt := params.AssignedAt
		candidate.AssignedAt = &assignedAt
		title.ISBN = &value

		result = AssignInTxResult{Identifier: candidate, Title: title, Audit: audit}
		return nil
	})
	if err != nil {
		var assigned *TitleAssignedError
		switch {
		case errors.As(err, &assigned),
			errors.Is(err, ErrTitleNotFound),
			errors.Is(err, ErrIdentifierNotAvailable),
			errors.Is(err, ErrPoolExhausted):
			return AssignInTxResult{}, err
		case isUniqueViolation(err):
			return AssignInTxResult{}, fmt.Errorf("%w (%s)", ErrIdentifierConflict, violatedConstraint(err))
		}
		return AssignInTxResult{}, fmt.Errorf("assign isbn: %w", err)
	}
	return result, nil
}
