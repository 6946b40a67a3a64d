package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/folio-erp/folio/domains/isbns/be/codec"
	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/persistence"
)

// isbnN returns the n-th valid ISBN-13 under the 978-316 registrant.
func isbnN(t testing.TB, n int) string {
	t.Helper()
	base := fmt.Sprintf("978316%06d", n)
	d, err := codec.CheckDigit(base)
	require.NoError(t, err)
	return fmt.Sprintf("%s%d", base, d)
}

func TestImportBatchPermissionDenied(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	tenantID := uuid.New()

	result, err := svc.ImportBatch(callerContext(tenantID, platformauth.CapabilityCatalogWrite), ImportInput{Values: []string{"9780306406157"}})
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Equal(t, msgPermissionDenied, err.Error())
	require.Zero(t, result.Imported)
}

func TestImportBatchWithoutTenantScope(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	ctx := platformauth.WithUser(context.Background(), &platformauth.UserCredentials{Id: "u", IsAdmin: true})

	_, err := svc.ImportBatch(ctx, ImportInput{Values: []string{"9780306406157"}})
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestImportBatchBounds(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	ctx := callerContext(uuid.New(), platformauth.CapabilitySettingsManage)

	_, err := svc.ImportBatch(ctx, ImportInput{})
	require.ErrorIs(t, err, ErrEmptyBatch)

	values := make([]string, 101)
	for i := range values {
		values[i] = isbnN(t, i)
	}
	_, err = svc.ImportBatch(ctx, ImportInput{Values: values})
	require.ErrorIs(t, err, ErrBatchTooLarge)
	require.Equal(t, "A batch may contain at most 100 ISBNs", err.Error())
}

func TestImportBatchRejectsWholeBatchOnInvalidValues(t *testing.T) {
	t.Parallel()

	// No repository function is configured: a rejected batch must not reach storage.
	svc := New(&mockRepository{})
	ctx := callerContext(uuid.New(), platformauth.CapabilitySettingsManage)

	values := []string{
		"978-0-306-40615-7",
		"9780306406158",
		"978 0306 406157",
		"12345",
		"",
		"9790000000000",
	}

	result, err := svc.ImportBatch(ctx, ImportInput{Values: values})
	require.ErrorIs(t, err, ErrImportRejected)
	require.Zero(t, result.Imported)
	require.Equal(t, 1, result.Duplicates)
	require.Equal(t, 4, result.Errors)

	reasons := map[string]codec.Reason{}
	for _, d := range result.ErrorDetails {
		reasons[d.Value] = d.Reason
		require.NotEmpty(t, d.Message)
	}
	require.Equal(t, codec.ReasonChecksumMismatch, reasons["9780306406158"])
	require.Equal(t, ReasonDuplicateInBatch, reasons["978 0306 406157"])
	require.Equal(t, codec.ReasonWrongLength, reasons["12345"])
	require.Equal(t, codec.ReasonEmptyInput, reasons[""])
	require.Equal(t, codec.ReasonChecksumMismatch, reasons["9790000000000"])
}

func TestImportBatchGlobalUniqueness(t *testing.T) {
	t.Parallel()

	otherTenant := uuid.New()
	taken := isbnN(t, 2)

	repository := &mockRepository{}
	repository.findExistingFn = func(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
		require.Len(t, values, 3)
		return []persistence.ExistingValue{{Value: taken, TenantID: otherTenant}}, nil
	}

	archiver := &recordingArchiver{}
	svc := New(repository, WithReportArchiver(archiver))
	ctx := callerContext(uuid.New(), platformauth.CapabilitySettingsManage)

	hyphenated := taken[:3] + "-" + taken[3:]
	result, err := svc.ImportBatch(ctx, ImportInput{Values: []string{isbnN(t, 1), hyphenated, isbnN(t, 3)}})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Zero(t, result.Imported)
	require.Equal(t, 1, result.Duplicates)
	require.Zero(t, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	require.Equal(t, hyphenated, result.ErrorDetails[0].Value)
	require.Equal(t, ReasonAlreadyExists, result.ErrorDetails[0].Reason)
	require.NotContains(t, result.ErrorDetails[0].Message, otherTenant.String())

	require.Len(t, archiver.payloads, 1)
	var report map[string]any
	require.NoError(t, json.Unmarshal(archiver.payloads[0], &report))
	require.Equal(t, "rejected", report["outcome"])
}

func TestImportBatchRaceOnInsertIsConflict(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.findExistingFn = func(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
		return nil, nil
	}
	repository.insertBatchFn = func(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
		return 0, fmt.Errorf("%w (isbns_value_key)", persistence.ErrIdentifierConflict)
	}

	svc := New(repository)
	ctx := callerContext(uuid.New(), platformauth.CapabilitySettingsManage)

	result, err := svc.ImportBatch(ctx, ImportInput{Values: []string{isbnN(t, 1)}})
	require.ErrorIs(t, err, ErrImportConflict)
	require.Zero(t, result.Imported)

	f, ok := AsFailure(err)
	require.True(t, ok)
	require.True(t, f.Retryable())
}

func TestImportBatchInfrastructureErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.findExistingFn = func(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
		return nil, errors.New("connection reset")
	}

	svc := New(repository)
	_, err := svc.ImportBatch(callerContext(uuid.New(), platformauth.CapabilitySettingsManage), ImportInput{Values: []string{isbnN(t, 1)}})
	require.ErrorIs(t, err, ErrUnavailable)
	require.NotContains(t, err.Error(), "connection reset")
}

func TestImportBatchSuccess(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	prefixID := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var (
		inserted []persistence.IdentifierRecord
		audits   []persistence.AuditEntry
		deltas   [][2]int
	)

	repository := &mockRepository{}
	repository.getPrefixFn = func(ctx context.Context, tid, pid uuid.UUID) (persistence.PrefixRecord, error) {
		require.Equal(t, tenantID, tid)
		return persistence.PrefixRecord{PrefixID: pid, TenantID: tid, Prefix: "978316"}, nil
	}
	repository.findExistingFn = func(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
		return nil, nil
	}
	repository.insertBatchFn = func(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
		inserted = records
		return len(records), nil
	}
	repository.adjustCountersFn = func(ctx context.Context, pid uuid.UUID, availableDelta, assignedDelta int) error {
		require.Equal(t, prefixID, pid)
		deltas = append(deltas, [2]int{availableDelta, assignedDelta})
		return nil
	}
	repository.recordAuditFn = func(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error) {
		entry.AuditID = uuid.New()
		audits = append(audits, entry)
		return entry, nil
	}

	publisher := &recordingPublisher{}
	archiver := &recordingArchiver{}
	svc := New(repository,
		WithClock(fixedClock(now)),
		WithAuditPublisher(publisher),
		WithReportArchiver(archiver),
	)

	ctx := callerContext(tenantID, platformauth.CapabilitySettingsManage)
	result, err := svc.ImportBatch(ctx, ImportInput{
		Values:   []string{isbnN(t, 1), " " + isbnN(t, 2) + " "},
		PrefixID: &prefixID,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)
	require.Zero(t, result.Duplicates)
	require.Zero(t, result.Errors)
	require.Empty(t, result.ErrorDetails)
	require.NotEmpty(t, result.ReportLocation)

	require.Len(t, inserted, 2)
	for _, rec := range inserted {
		require.Equal(t, tenantID, rec.TenantID)
		require.Equal(t, persistence.StatusAvailable, rec.Status)
		require.Equal(t, &prefixID, rec.PrefixID)
		require.Equal(t, now, rec.CreatedAt)
		require.NotEqual(t, uuid.Nil, rec.ISBNID)
	}
	require.Equal(t, isbnN(t, 2), inserted[1].Value)

	require.Equal(t, [][2]int{{2, 0}}, deltas)
	require.Len(t, audits, 1)
	require.Equal(t, persistence.AuditActionImported, audits[0].Action)
	require.Equal(t, testActor, *audits[0].ActorID)
	require.Equal(t, "req-1", audits[0].RequestID)
	require.Len(t, publisher.published(), 1)
	require.Len(t, archiver.names, 1)
}

func TestImportBatchPrefixMismatch(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.getPrefixFn = func(ctx context.Context, tid, pid uuid.UUID) (persistence.PrefixRecord, error) {
		return persistence.PrefixRecord{PrefixID: pid, TenantID: tid, Prefix: "978316"}, nil
	}

	svc := New(repository)
	prefixID := uuid.New()
	result, err := svc.ImportBatch(callerContext(uuid.New(), platformauth.CapabilitySettingsManage), ImportInput{
		Values:   []string{isbnN(t, 1), "9780306406157"},
		PrefixID: &prefixID,
	})
	require.ErrorIs(t, err, ErrImportRejected)
	require.Equal(t, 1, result.Errors)
	require.Equal(t, ReasonPrefixMismatch, result.ErrorDetails[0].Reason)
	require.Equal(t, "9780306406157", result.ErrorDetails[0].Value)
}

func TestImportBatchUnknownPrefix(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.getPrefixFn = func(ctx context.Context, tid, pid uuid.UUID) (persistence.PrefixRecord, error) {
		return persistence.PrefixRecord{}, persistence.ErrPrefixNotFound
	}

	svc := New(repository)
	prefixID := uuid.New()
	_, err := svc.ImportBatch(callerContext(uuid.New(), platformauth.CapabilitySettingsManage), ImportInput{
		Values:   []string{isbnN(t, 1)},
		PrefixID: &prefixID,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestImportBatchBestEffortStepsDoNotFailImport(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.findExistingFn = func(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
		return nil, nil
	}
	repository.insertBatchFn = func(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
		return len(records), nil
	}
	repository.recordAuditFn = func(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error) {
		return persistence.AuditEntry{}, errors.New("audit table locked")
	}

	publisher := &recordingPublisher{}
	svc := New(repository,
		WithAuditPublisher(publisher),
		WithReportArchiver(&recordingArchiver{err: errors.New("bucket missing")}),
	)

	result, err := svc.ImportBatch(callerContext(uuid.New(), platformauth.CapabilitySettingsManage), ImportInput{Values: []string{isbnN(t, 1)}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)
	require.Empty(t, result.ReportLocation)
	require.Empty(t, publisher.published())
}
