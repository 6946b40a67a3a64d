package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/persistence"
)

// AssignInput selects the title and, optionally, a prefix sub-pool or one specific identifier.
// IdentifierID switches to manual mode; otherwise the oldest available identifier is taken.
type AssignInput struct {
	TitleID      uuid.UUID
	PrefixID     *uuid.UUID
	IdentifierID *uuid.UUID
}

// Assignment is the committed outcome of Assign.
type Assignment struct {
	ID               uuid.UUID `json:"id"`
	Value            string    `json:"value"`
	TitleID          uuid.UUID `json:"titleId"`
	TitleName        string    `json:"titleName"`
	AssignedAt       time.Time `json:"assignedAt"`
	AssignedByUserID string    `json:"assignedByUserId"`
}

const (
	msgTitleNotFound   = "Title not found"
	msgNotAvailable    = "The selected identifier is not available"
	msgPoolExhausted   = "No identifiers available. Import a block first."
	msgContended       = "Identifier allocation is busy, please retry"
	msgAlreadyAssigned = "This title already has an identifier assigned: %s"
)

func (s *service) Assign(ctx context.Context, input AssignInput) (Assignment, error) {
	c, err := s.begin(ctx, platformauth.CapabilityCatalogWrite)
	if err != nil {
		return Assignment{}, err
	}
	if input.TitleID == uuid.Nil {
		return Assignment{}, fail(KindNotFound, msgTitleNotFound)
	}

	if s.cfg.Strategy == StrategyTransactional {
		return s.assignTransactional(ctx, c, input)
	}
	return s.assignOptimistic(ctx, c, input)
}

func (s *service) assignOptimistic(ctx context.Context, c caller, input AssignInput) (Assignment, error) {
	title, err := s.repo.GetTitle(ctx, c.tenantID(), input.TitleID)
	if err != nil {
		if errors.Is(err, persistence.ErrTitleNotFound) {
			return Assignment{}, fail(KindNotFound, msgTitleNotFound)
		}
		return Assignment{}, s.unavailable(ctx, "isbnAssign", err)
	}
	if title.HasISBN() {
		return Assignment{}, fail(KindAlreadyAssigned, msgAlreadyAssigned, *title.ISBN)
	}

	manual := input.IdentifierID != nil
	assignedBy := c.audit.ActorID()

	var (
		claimed  persistence.IdentifierRecord
		attempts int
		won      bool
	)
	for attempts = 1; attempts <= s.cfg.MaxAttempts; attempts++ {
		candidate, err := s.selectCandidate(ctx, c, input)
		if err != nil {
			return Assignment{}, err
		}

		assignedAt := s.now()
		ok, err := s.repo.ConditionalTransition(ctx, persistence.TransitionParams{
			ISBNID:   candidate.ISBNID,
			TenantID: c.tenantID(),
			Expected: persistence.StatusAvailable,
			Next:     persistence.StatusAssigned,
			Assignment: &persistence.AssignmentFields{
				TitleID:    title.TitleID,
				AssignedBy: assignedBy,
				AssignedAt: assignedAt,
			},
		})
		if err != nil {
			return Assignment{}, s.unavailable(ctx, "isbnAssign", err, zap.String("isbn_id", candidate.ISBNID.String()))
		}
		if ok {
			claimed = candidate
			claimed.Status = persistence.StatusAssigned
			claimed.AssignedTo = &title.TitleID
			claimed.AssignedBy = &assignedBy
			claimed.AssignedAt = &assignedAt
			won = true
			break
		}

		// A specific identifier cannot become available again once taken.
		if manual {
			return Assignment{}, fail(KindNotAvailable, msgNotAvailable)
		}

		s.loggerFrom(ctx).Debug("isbn allocation lost a race",
			zap.String("isbn_id", candidate.ISBNID.String()),
			zap.Int("attempt", attempts),
		)
		if attempts < s.cfg.MaxAttempts {
			if err := s.sleep(ctx, s.cfg.Backoff*time.Duration(attempts)); err != nil {
				return Assignment{}, s.unavailable(ctx, "isbnAssign", err)
			}
		}
	}
	if !won {
		s.loggerFrom(ctx).Warn("isbn allocation contended",
			zap.String("tenant_id", c.tenantID().String()),
			zap.Int("attempts", s.cfg.MaxAttempts),
		)
		return Assignment{}, fail(KindAllocationContended, msgContended)
	}

	if err := s.writeTitle(ctx, c, title, claimed); err != nil {
		return Assignment{}, err
	}

	if claimed.PrefixID != nil {
		if err := s.repo.AdjustPrefixCounters(ctx, *claimed.PrefixID, -1, 1); err != nil {
			s.loggerFrom(ctx).Warn("isbn prefix counters not updated",
				zap.String("prefix_id", claimed.PrefixID.String()),
				zap.Error(err),
			)
		}
	}

	isbnID := claimed.ISBNID
	value := claimed.Value
	s.recordAudit(ctx, persistence.AuditEntry{
		TenantID:  c.tenantID(),
		Action:    persistence.AuditActionAssigned,
		ISBNID:    &isbnID,
		ISBNValue: &value,
		TitleID:   &title.TitleID,
		ActorID:   &assignedBy,
		RequestID: c.audit.RequestID,
		Details: map[string]any{
			"strategy": string(StrategyOptimistic),
			"manual":   manual,
			"attempts": attempts,
		},
		OccurredAt: *claimed.AssignedAt,
	})

	s.loggerFrom(ctx).Info("isbn assigned",
		zap.String("tenant_id", c.tenantID().String()),
		zap.String("isbn_id", claimed.ISBNID.String()),
		zap.String("title_id", title.TitleID.String()),
	)

	return toAssignment(claimed, title), nil
}

// selectCandidate resolves the record to claim on this attempt.
func (s *service) selectCandidate(ctx context.Context, c caller, input AssignInput) (persistence.IdentifierRecord, error) {
	if input.IdentifierID != nil {
		record, err := s.repo.GetIdentifier(ctx, c.tenantID(), *input.IdentifierID)
		if err != nil {
			if errors.Is(err, persistence.ErrIdentifierNotFound) {
				return persistence.IdentifierRecord{}, fail(KindNotAvailable, msgNotAvailable)
			}
			return persistence.IdentifierRecord{}, s.unavailable(ctx, "isbnAssign", err)
		}
		if record.Status != persistence.StatusAvailable {
			return persistence.IdentifierRecord{}, fail(KindNotAvailable, msgNotAvailable)
		}
		return record, nil
	}

	record, err := s.repo.OldestAvailable(ctx, c.tenantID(), input.PrefixID)
	if err != nil {
		if errors.Is(err, persistence.ErrPoolExhausted) {
			return persistence.IdentifierRecord{}, fail(KindPoolExhausted, msgPoolExhausted)
		}
		return persistence.IdentifierRecord{}, s.unavailable(ctx, "isbnAssign", err)
	}
	return record, nil
}

// writeTitle stores the claimed value on the title. The pool transition is one-way,
// so a failure here leaves an orphaned assignment that Reconcile reports.
func (s *service) writeTitle(ctx context.Context, c caller, title persistence.TitleRecord, claimed persistence.IdentifierRecord) error {
	fields := []zap.Field{
		zap.String("tenant_id", c.tenantID().String()),
		zap.String("isbn_id", claimed.ISBNID.String()),
		zap.String("isbn_value", claimed.Value),
		zap.String("title_id", title.TitleID.String()),
	}

	ok, err := s.repo.SetTitleIdentifier(ctx, c.tenantID(), title.TitleID, claimed.Value)
	if err != nil {
		s.loggerFrom(ctx).Error("isbn reconciliation required: title write failed after allocation",
			append(fields, zap.Error(err))...,
		)
		return fail(KindUnavailable, msgUnavailable)
	}
	if ok {
		return nil
	}

	s.loggerFrom(ctx).Error("isbn reconciliation required: title was assigned concurrently", fields...)

	held := "another identifier"
	if current, err := s.repo.GetTitle(ctx, c.tenantID(), title.TitleID); err == nil && current.HasISBN() {
		held = *current.ISBN
	}
	return fail(KindAlreadyAssigned, msgAlreadyAssigned, held)
}

func (s *service) assignTransactional(ctx context.Context, c caller, input AssignInput) (Assignment, error) {
	result, err := s.repo.AssignInTx(ctx, persistence.AssignInTxParams{
		TenantID:   c.tenantID(),
		TitleID:    input.TitleID,
		PrefixID:   input.PrefixID,
		ISBNID:     input.IdentifierID,
		AssignedBy: c.audit.ActorID(),
		AssignedAt: s.now(),
		RequestID:  c.audit.RequestID,
	})
	if err != nil {
		var assignedErr *persistence.TitleAssignedError
		switch {
		case errors.As(err, &assignedErr):
			return Assignment{}, fail(KindAlreadyAssigned, msgAlreadyAssigned, assignedErr.Value)
		case errors.Is(err, persistence.ErrTitleNotFound):
			return Assignment{}, fail(KindNotFound, msgTitleNotFound)
		case errors.Is(err, persistence.ErrIdentifierNotAvailable), errors.Is(err, persistence.ErrIdentifierNotFound):
			return Assignment{}, fail(KindNotAvailable, msgNotAvailable)
		case errors.Is(err, persistence.ErrPoolExhausted):
			return Assignment{}, fail(KindPoolExhausted, msgPoolExhausted)
		default:
			return Assignment{}, s.unavailable(ctx, "isbnAssign", err)
		}
	}

	s.publishAudit(ctx, result.Audit)
	s.loggerFrom(ctx).Info("isbn assigned",
		zap.String("tenant_id", c.tenantID().String()),
		zap.String("isbn_id", result.Identifier.ISBNID.String()),
		zap.String("title_id", result.Title.TitleID.String()),
	)

	return toAssignment(result.Identifier, result.Title), nil
}

func toAssignment(record persistence.IdentifierRecord, title persistence.TitleRecord) Assignment {
	out := Assignment{
		ID:        record.ISBNID,
		Value:     record.Value,
		TitleID:   title.TitleID,
		TitleName: title.Name,
	}
	if record.AssignedAt != nil {
		out.AssignedAt = *record.AssignedAt
	}
	if record.AssignedBy != nil {
		out.AssignedByUserID = *record.AssignedBy
	}
	return out
}
