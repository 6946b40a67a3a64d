package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/persistence"
	"github.com/folio-erp/folio/platform/go/requesttrace"
	"github.com/folio-erp/folio/platform/go/tenant"
)

type mockRepository struct {
	insertBatchFn        func(ctx context.Context, records []persistence.IdentifierRecord) (int, error)
	findExistingFn       func(ctx context.Context, values []string) ([]persistence.ExistingValue, error)
	getIdentifierFn      func(ctx context.Context, tenantID, isbnID uuid.UUID) (persistence.IdentifierRecord, error)
	oldestAvailableFn    func(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (persistence.IdentifierRecord, error)
	transitionFn         func(ctx context.Context, params persistence.TransitionParams) (bool, error)
	countByStatusFn      func(ctx context.Context, tenantID uuid.UUID) (persistence.StatusCounts, error)
	countAvailableFn     func(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error)
	listFn               func(ctx context.Context, params persistence.ListIdentifiersParams) (persistence.ListIdentifiersResult, error)
	findOrphansFn        func(ctx context.Context, tenantID uuid.UUID) ([]persistence.OrphanedAssignment, error)
	assignInTxFn         func(ctx context.Context, params persistence.AssignInTxParams) (persistence.AssignInTxResult, error)
	getTitleFn           func(ctx context.Context, tenantID, titleID uuid.UUID) (persistence.TitleRecord, error)
	setTitleIdentifierFn func(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error)
	getPrefixFn          func(ctx context.Context, tenantID, prefixID uuid.UUID) (persistence.PrefixRecord, error)
	adjustCountersFn     func(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error
	recordAuditFn        func(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error)
}

func (m *mockRepository) InsertBatch(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
	if m.insertBatchFn == nil {
		panic("insertBatchFn not configured")
	}
	return m.insertBatchFn(ctx, records)
}

func (m *mockRepository) FindExistingValues(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
	if m.findExistingFn == nil {
		panic("findExistingFn not configured")
	}
	return m.findExistingFn(ctx, values)
}

func (m *mockRepository) GetIdentifier(ctx context.Context, tenantID, isbnID uuid.UUID) (persistence.IdentifierRecord, error) {
	if m.getIdentifierFn == nil {
		panic("getIdentifierFn not configured")
	}
	return m.getIdentifierFn(ctx, tenantID, isbnID)
}

func (m *mockRepository) OldestAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (persistence.IdentifierRecord, error) {
	if m.oldestAvailableFn == nil {
		panic("oldestAvailableFn not configured")
	}
	return m.oldestAvailableFn(ctx, tenantID, prefixID)
}

func (m *mockRepository) ConditionalTransition(ctx context.Context, params persistence.TransitionParams) (bool, error) {
	if m.transitionFn == nil {
		panic("transitionFn not configured")
	}
	return m.transitionFn(ctx, params)
}

func (m *mockRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (persistence.StatusCounts, error) {
	if m.countByStatusFn == nil {
		panic("countByStatusFn not configured")
	}
	return m.countByStatusFn(ctx, tenantID)
}

func (m *mockRepository) CountAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error) {
	if m.countAvailableFn == nil {
		panic("countAvailableFn not configured")
	}
	return m.countAvailableFn(ctx, tenantID, prefixID)
}

func (m *mockRepository) List(ctx context.Context, params persistence.ListIdentifiersParams) (persistence.ListIdentifiersResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

func (m *mockRepository) FindOrphanedAssignments(ctx context.Context, tenantID uuid.UUID) ([]persistence.OrphanedAssignment, error) {
	if m.findOrphansFn == nil {
		panic("findOrphansFn not configured")
	}
	return m.findOrphansFn(ctx, tenantID)
}

func (m *mockRepository) AssignInTx(ctx context.Context, params persistence.AssignInTxParams) (persistence.AssignInTxResult, error) {
	if m.assignInTxFn == nil {
		panic("assignInTxFn not configured")
	}
	return m.assignInTxFn(ctx, params)
}

func (m *mockRepository) GetTitle(ctx context.Context, tenantID, titleID uuid.UUID) (persistence.TitleRecord, error) {
	if m.getTitleFn == nil {
		panic("getTitleFn not configured")
	}
	return m.getTitleFn(ctx, tenantID, titleID)
}

func (m *mockRepository) SetTitleIdentifier(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error) {
	if m.setTitleIdentifierFn == nil {
		panic("setTitleIdentifierFn not configured")
	}
	return m.setTitleIdentifierFn(ctx, tenantID, titleID, value)
}

func (m *mockRepository) GetPrefix(ctx context.Context, tenantID, prefixID uuid.UUID) (persistence.PrefixRecord, error) {
	if m.getPrefixFn == nil {
		panic("getPrefixFn not configured")
	}
	return m.getPrefixFn(ctx, tenantID, prefixID)
}

func (m *mockRepository) AdjustPrefixCounters(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error {
	if m.adjustCountersFn == nil {
		panic("adjustCountersFn not configured")
	}
	return m.adjustCountersFn(ctx, prefixID, availableDelta, assignedDelta)
}

func (m *mockRepository) RecordAudit(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error) {
	if m.recordAuditFn == nil {
		panic("recordAuditFn not configured")
	}
	return m.recordAuditFn(ctx, entry)
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []persistence.AuditEntry
	err     error
}

func (p *recordingPublisher) PublishAudit(ctx context.Context, entry persistence.AuditEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return p.err
}

func (p *recordingPublisher) published() []persistence.AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persistence.AuditEntry(nil), p.entries...)
}

type recordingArchiver struct {
	names    []string
	payloads [][]byte
	err      error
}

func (a *recordingArchiver) ArchiveImportReport(ctx context.Context, scope tenant.Scope, name string, payload []byte) (string, error) {
	a.names = append(a.names, name)
	a.payloads = append(a.payloads, payload)
	if a.err != nil {
		return "", a.err
	}
	return "reports/" + scope.BasePrefix + name + ".json", nil
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

const testActor = "user-1"

// callerContext builds a request context for tenantID holding the given capabilities.
func callerContext(tenantID uuid.UUID, caps ...platformauth.Capability) context.Context {
	perms := make([]string, 0, len(caps))
	for _, c := range caps {
		perms = append(perms, string(c))
	}
	tenantStr := tenantID.String()
	actor := testActor

	ctx := platformauth.WithUser(context.Background(), &platformauth.UserCredentials{
		Id:          actor,
		TenantID:    &tenantStr,
		Permissions: perms,
	})
	ctx = tenant.WithScope(ctx, tenant.Scope{
		TenantID:      tenantID,
		ShortTenantID: tenant.ShortID(tenantID),
		BasePrefix:    tenant.BuildBasePrefix("test", tenant.ShortID(tenantID)),
	})
	return requesttrace.IntoContext(ctx, requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &actor,
		TenantID:  &tenantStr,
		RequestID: "req-1",
	})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
