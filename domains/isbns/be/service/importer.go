package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-erp/folio/domains/isbns/be/codec"
	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/persistence"
)

// ImportInput is a batch of raw values, optionally grouped under a registrant prefix.
type ImportInput struct {
	Values   []string
	PrefixID *uuid.UUID
}

// ImportResult is populated on success and on rejection alike.
type ImportResult struct {
	Imported       int           `json:"imported"`
	Duplicates     int           `json:"duplicates"`
	Errors         int           `json:"errors"`
	ErrorDetails   []ErrorDetail `json:"errorDetails"`
	ReportLocation string        `json:"reportLocation,omitempty"`
}

type importReport struct {
	ImportID   uuid.UUID    `json:"importId"`
	TenantID   uuid.UUID    `json:"tenantId"`
	ActorID    string       `json:"actorId"`
	RequestID  string       `json:"requestId,omitempty"`
	PrefixID   *uuid.UUID   `json:"prefixId,omitempty"`
	Submitted  int          `json:"submitted"`
	Outcome    string       `json:"outcome"`
	Result     ImportResult `json:"result"`
	OccurredAt string       `json:"occurredAt"`
}

func (s *service) ImportBatch(ctx context.Context, input ImportInput) (ImportResult, error) {
	result := ImportResult{ErrorDetails: []ErrorDetail{}}

	c, err := s.begin(ctx, platformauth.CapabilitySettingsManage)
	if err != nil {
		return result, err
	}

	if len(input.Values) == 0 {
		return result, fail(KindEmptyBatch, "Provide at least one ISBN")
	}
	if len(input.Values) > s.cfg.MaxBatchSize {
		return result, fail(KindBatchTooLarge, "A batch may contain at most %d ISBNs", s.cfg.MaxBatchSize)
	}

	var prefix *persistence.PrefixRecord
	if input.PrefixID != nil {
		record, err := s.repo.GetPrefix(ctx, c.tenantID(), *input.PrefixID)
		if err != nil {
			if errors.Is(err, persistence.ErrPrefixNotFound) {
				return result, fail(KindNotFound, "Prefix not found")
			}
			return result, s.unavailable(ctx, "isbnImport", err)
		}
		prefix = &record
	}

	// Step 1: validate every value and remember the raw spelling of each accepted one.
	accepted := make([]string, 0, len(input.Values))
	rawByValue := make(map[string]string, len(input.Values))
	for _, raw := range input.Values {
		res := codec.Validate(raw)
		switch {
		case !res.Valid:
			result.add(newErrorDetail(raw, res.Reason))
		case hasValue(rawByValue, res.Normalized):
			result.add(newErrorDetail(raw, ReasonDuplicateInBatch))
		case prefix != nil && !strings.HasPrefix(res.Normalized, prefix.Prefix):
			rawByValue[res.Normalized] = raw
			result.add(newErrorDetail(raw, ReasonPrefixMismatch))
		default:
			rawByValue[res.Normalized] = raw
			accepted = append(accepted, res.Normalized)
		}
	}

	// Step 2: all or nothing.
	if len(result.ErrorDetails) > 0 {
		s.archiveReport(ctx, c, input, &result, "rejected")
		return result, fail(KindImportRejected, "Import rejected: %d of %d values were refused, nothing was imported",
			len(result.ErrorDetails), len(input.Values))
	}

	// Step 3: uniqueness is global, so values held by any tenant are refused.
	existing, err := s.repo.FindExistingValues(ctx, accepted)
	if err != nil {
		return result, s.unavailable(ctx, "isbnImport", err)
	}
	if len(existing) > 0 {
		for _, ev := range existing {
			result.add(newErrorDetail(rawByValue[ev.Value], ReasonAlreadyExists))
		}
		s.archiveReport(ctx, c, input, &result, "rejected")
		return result, fail(KindAlreadyExists, "%d of %d ISBNs already exist in the pool, nothing was imported",
			len(existing), len(input.Values))
	}

	// Step 4: insert.
	now := s.now()
	records := make([]persistence.IdentifierRecord, 0, len(accepted))
	for _, value := range accepted {
		records = append(records, persistence.IdentifierRecord{
			ISBNID:    uuid.New(),
			TenantID:  c.tenantID(),
			Value:     value,
			Status:    persistence.StatusAvailable,
			PrefixID:  input.PrefixID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	inserted, err := s.repo.InsertBatch(ctx, records)
	if err != nil {
		if errors.Is(err, persistence.ErrIdentifierConflict) {
			s.loggerFrom(ctx).Warn("isbn import lost a race on value uniqueness",
				zap.String("tenant_id", c.tenantID().String()),
				zap.Error(err),
			)
			return result, fail(KindImportConflict, "Some of these ISBNs were added by a concurrent import, nothing was imported")
		}
		return result, s.unavailable(ctx, "isbnImport", err)
	}
	result.Imported = inserted

	if prefix != nil {
		if err := s.repo.AdjustPrefixCounters(ctx, prefix.PrefixID, inserted, 0); err != nil {
			s.loggerFrom(ctx).Warn("isbn prefix counters not updated",
				zap.String("prefix_id", prefix.PrefixID.String()),
				zap.Error(err),
			)
		}
	}

	actor := c.audit.ActorID()
	s.recordAudit(ctx, persistence.AuditEntry{
		TenantID:  c.tenantID(),
		Action:    persistence.AuditActionImported,
		ActorID:   &actor,
		RequestID: c.audit.RequestID,
		Details: map[string]any{
			"imported": inserted,
			"prefixId": input.PrefixID,
			"values":   accepted,
		},
		OccurredAt: now,
	})
	s.archiveReport(ctx, c, input, &result, "imported")

	s.loggerFrom(ctx).Info("isbn batch imported",
		zap.String("tenant_id", c.tenantID().String()),
		zap.Int("imported", inserted),
	)

	return result, nil
}

func (r *ImportResult) add(detail ErrorDetail) {
	r.ErrorDetails = append(r.ErrorDetails, detail)
	if isDuplicateReason(detail.Reason) {
		r.Duplicates++
		return
	}
	r.Errors++
}

// archiveReport stores the import outcome when an archiver is configured. Failures are logged only.
func (s *service) archiveReport(ctx context.Context, c caller, input ImportInput, result *ImportResult, outcome string) {
	if s.archiver == nil {
		return
	}

	report := importReport{
		ImportID:   uuid.New(),
		TenantID:   c.tenantID(),
		ActorID:    c.audit.ActorID(),
		RequestID:  c.audit.RequestID,
		PrefixID:   input.PrefixID,
		Submitted:  len(input.Values),
		Outcome:    outcome,
		Result:     *result,
		OccurredAt: s.now().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.loggerFrom(ctx).Warn("isbn import report not encoded", zap.Error(err))
		return
	}

	location, err := s.archiver.ArchiveImportReport(ctx, c.scope, report.ImportID.String(), payload)
	if err != nil {
		s.loggerFrom(ctx).Warn("isbn import report not archived",
			zap.String("import_id", report.ImportID.String()),
			zap.Error(err),
		)
		return
	}
	result.ReportLocation = location
}

func hasValue(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}
