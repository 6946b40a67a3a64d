package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/folio-erp/folio/platform/go/persistence"
)

var errInvalidTransition = errors.New("invalid isbn transition")

// MemoryRepository is an in-memory implementation suitable for tests and local development.
// Every method runs under one mutex, so conditional updates behave like their SQL counterparts.
type MemoryRepository struct {
	mu       sync.RWMutex
	now      func() time.Time
	records  []persistence.IdentifierRecord // insertion order doubles as the seq tie-breaker
	byID     map[uuid.UUID]int
	byValue  map[string]int
	titles   map[uuid.UUID]persistence.TitleRecord
	prefixes map[uuid.UUID]persistence.PrefixRecord
	audit    []persistence.AuditEntry
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:      func() time.Time { return time.Now().UTC() },
		byID:     make(map[uuid.UUID]int),
		byValue:  make(map[string]int),
		titles:   make(map[uuid.UUID]persistence.TitleRecord),
		prefixes: make(map[uuid.UUID]persistence.PrefixRecord),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// PutTitle stores or replaces a title.
func (r *MemoryRepository) PutTitle(title persistence.TitleRecord) persistence.TitleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if title.TitleID == uuid.Nil {
		title.TitleID = uuid.New()
	}
	if title.CreatedAt.IsZero() {
		title.CreatedAt = r.now()
		title.UpdatedAt = title.CreatedAt
	}
	r.titles[title.TitleID] = title
	return title
}

// PutPrefix stores or replaces a prefix.
func (r *MemoryRepository) PutPrefix(prefix persistence.PrefixRecord) persistence.PrefixRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prefix.PrefixID == uuid.Nil {
		prefix.PrefixID = uuid.New()
	}
	r.prefixes[prefix.PrefixID] = prefix
	return prefix
}

// Snapshot returns a copy of every identifier record in insertion order.
func (r *MemoryRepository) Snapshot() []persistence.IdentifierRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]persistence.IdentifierRecord(nil), r.records...)
}

// AuditEntries returns a copy of the recorded audit trail.
func (r *MemoryRepository) AuditEntries() []persistence.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]persistence.AuditEntry(nil), r.audit...)
}

func (r *MemoryRepository) InsertBatch(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, exists := r.byValue[rec.Value]; exists {
			return 0, fmt.Errorf("%w (isbns_value_key)", persistence.ErrIdentifierConflict)
		}
		if _, dup := seen[rec.Value]; dup {
			return 0, fmt.Errorf("%w (isbns_value_key)", persistence.ErrIdentifierConflict)
		}
		seen[rec.Value] = struct{}{}
	}

	for _, rec := range records {
		if rec.Status == "" {
			rec.Status = persistence.StatusAvailable
		}
		r.records = append(r.records, rec)
		idx := len(r.records) - 1
		r.byID[rec.ISBNID] = idx
		r.byValue[rec.Value] = idx
	}
	return len(records), nil
}

func (r *MemoryRepository) FindExistingValues(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []persistence.ExistingValue
	for _, v := range values {
		if idx, ok := r.byValue[v]; ok {
			out = append(out, persistence.ExistingValue{Value: v, TenantID: r.records[idx].TenantID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (r *MemoryRepository) GetIdentifier(ctx context.Context, tenantID, isbnID uuid.UUID) (persistence.IdentifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[isbnID]
	if !ok || r.records[idx].TenantID != tenantID {
		return persistence.IdentifierRecord{}, persistence.ErrIdentifierNotFound
	}
	return r.records[idx], nil
}

func (r *MemoryRepository) OldestAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (persistence.IdentifierRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.oldestAvailableLocked(tenantID, prefixID)
	if idx < 0 {
		return persistence.IdentifierRecord{}, persistence.ErrPoolExhausted
	}
	return r.records[idx], nil
}

func (r *MemoryRepository) ConditionalTransition(ctx context.Context, params persistence.TransitionParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(params)
}

func (r *MemoryRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (persistence.StatusCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts persistence.StatusCounts
	for _, rec := range r.records {
		if rec.TenantID == tenantID {
			counts.Add(rec.Status, 1)
		}
	}
	return counts, nil
}

func (r *MemoryRepository) CountAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.Status == persistence.StatusAvailable && samePrefix(rec.PrefixID, prefixID) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) List(ctx context.Context, params persistence.ListIdentifiersParams) (persistence.ListIdentifiersResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var search string
	if params.Search != nil {
		search = strings.TrimSpace(*params.Search)
	}

	// Newest first: walk insertion order backwards.
	items := make([]persistence.IdentifierRecord, 0)
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.TenantID != params.TenantID {
			continue
		}
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		if search != "" && !strings.Contains(rec.Value, search) {
			continue
		}
		if params.PrefixID != nil && !samePrefix(rec.PrefixID, params.PrefixID) {
			continue
		}
		items = append(items, rec)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return persistence.ListIdentifiersResult{
		Identifiers: append([]persistence.IdentifierRecord{}, items[start:end]...),
		TotalItems:  len(items),
	}, nil
}

func (r *MemoryRepository) FindOrphanedAssignments(ctx context.Context, tenantID uuid.UUID) ([]persistence.OrphanedAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []persistence.OrphanedAssignment
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.Status != persistence.StatusAssigned || rec.AssignedTo == nil {
			continue
		}
		title, found := r.titles[*rec.AssignedTo]
		found = found && title.TenantID == tenantID
		if found && title.ISBN != nil && *title.ISBN == rec.Value {
			continue
		}
		o := persistence.OrphanedAssignment{
			ISBNID:     rec.ISBNID,
			Value:      rec.Value,
			TitleID:    *rec.AssignedTo,
			TitleFound: found,
		}
		if rec.AssignedAt != nil {
			o.AssignedAt = *rec.AssignedAt
		}
		if found {
			o.TitleISBN = title.ISBN
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

// AssignInTx mirrors the Postgres transaction: every check and write happens under the write lock.
func (r *MemoryRepository) AssignInTx(ctx context.Context, params persistence.AssignInTxParams) (persistence.AssignInTxResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if params.AssignedAt.IsZero() {
		params.AssignedAt = r.now()
	}

	title, ok := r.titles[params.TitleID]
	if !ok || title.TenantID != params.TenantID {
		return persistence.AssignInTxResult{}, persistence.ErrTitleNotFound
	}
	if title.HasISBN() {
		return persistence.AssignInTxResult{}, &persistence.TitleAssignedError{TitleID: title.TitleID, Value: *title.ISBN}
	}

	var idx int
	if params.ISBNID != nil {
		i, ok := r.byID[*params.ISBNID]
		if !ok || r.records[i].TenantID != params.TenantID || r.records[i].Status != persistence.StatusAvailable {
			return persistence.AssignInTxResult{}, persistence.ErrIdentifierNotAvailable
		}
		idx = i
	} else {
		idx = r.oldestAvailableLocked(params.TenantID, params.PrefixID)
		if idx < 0 {
			return persistence.AssignInTxResult{}, persistence.ErrPoolExhausted
		}
	}

	candidate := r.records[idx]
	if _, err := r.transitionLocked(persistence.TransitionParams{
		ISBNID:   candidate.ISBNID,
		TenantID: params.TenantID,
		Expected: persistence.StatusAvailable,
		Next:     persistence.StatusAssigned,
		Assignment: &persistence.AssignmentFields{
			TitleID:    params.TitleID,
			AssignedBy: params.AssignedBy,
			AssignedAt: params.AssignedAt,
		},
	}); err != nil {
		return persistence.AssignInTxResult{}, err
	}
	candidate = r.records[idx]

	value := candidate.Value
	title.ISBN = &value
	title.UpdatedAt = params.AssignedAt
	r.titles[title.TitleID] = title

	if candidate.PrefixID != nil {
		r.adjustPrefixLocked(*candidate.PrefixID, -1, 1)
	}

	isbnID := candidate.ISBNID
	titleID := params.TitleID
	actor := params.AssignedBy
	entry := persistence.AuditEntry{
		AuditID:    uuid.New(),
		TenantID:   params.TenantID,
		Action:     persistence.AuditActionAssigned,
		ISBNID:     &isbnID,
		ISBNValue:  &value,
		TitleID:    &titleID,
		ActorID:    &actor,
		RequestID:  params.RequestID,
		Details:    map[string]any{"strategy": "transactional", "manual": params.ISBNID != nil},
		OccurredAt: params.AssignedAt,
	}
	r.audit = append(r.audit, entry)

	return persistence.AssignInTxResult{Identifier: candidate, Title: title, Audit: entry}, nil
}

func (r *MemoryRepository) GetTitle(ctx context.Context, tenantID, titleID uuid.UUID) (persistence.TitleRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	title, ok := r.titles[titleID]
	if !ok || title.TenantID != tenantID {
		return persistence.TitleRecord{}, persistence.ErrTitleNotFound
	}
	return title, nil
}

func (r *MemoryRepository) SetTitleIdentifier(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	title, ok := r.titles[titleID]
	if !ok || title.TenantID != tenantID || title.HasISBN() {
		return false, nil
	}
	title.ISBN = &value
	title.UpdatedAt = r.now()
	r.titles[titleID] = title
	return true, nil
}

func (r *MemoryRepository) GetPrefix(ctx context.Context, tenantID, prefixID uuid.UUID) (persistence.PrefixRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix, ok := r.prefixes[prefixID]
	if !ok || prefix.TenantID != tenantID {
		return persistence.PrefixRecord{}, persistence.ErrPrefixNotFound
	}
	return prefix, nil
}

func (r *MemoryRepository) AdjustPrefixCounters(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.adjustPrefixLocked(prefixID, availableDelta, assignedDelta) {
		return persistence.ErrPrefixNotFound
	}
	return nil
}

func (r *MemoryRepository) RecordAudit(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.AuditID == uuid.Nil {
		entry.AuditID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now()
	}
	r.audit = append(r.audit, entry)
	return entry, nil
}

func (r *MemoryRepository) oldestAvailableLocked(tenantID uuid.UUID, prefixID *uuid.UUID) int {
	best := -1
	for i, rec := range r.records {
		if rec.TenantID != tenantID || rec.Status != persistence.StatusAvailable || !samePrefix(rec.PrefixID, prefixID) {
			continue
		}
		if best < 0 || rec.CreatedAt.Before(r.records[best].CreatedAt) {
			best = i
		}
	}
	return best
}

func (r *MemoryRepository) transitionLocked(params persistence.TransitionParams) (bool, error) {
	if !params.Expected.Valid() || !params.Next.Valid() {
		return false, errInvalidTransition
	}
	// Same rule as the isbns_assignment_consistency check constraint.
	if (params.Next == persistence.StatusAvailable) != (params.Assignment == nil) {
		return false, errInvalidTransition
	}

	idx, ok := r.byID[params.ISBNID]
	if !ok {
		return false, nil
	}
	rec := r.records[idx]
	if rec.TenantID != params.TenantID || rec.Status != params.Expected {
		return false, nil
	}

	rec.Status = params.Next
	if a := params.Assignment; a != nil {
		titleID, by, at := a.TitleID, a.AssignedBy, a.AssignedAt
		rec.AssignedTo, rec.AssignedBy, rec.AssignedAt = &titleID, &by, &at
	} else {
		rec.AssignedTo, rec.AssignedBy, rec.AssignedAt = nil, nil, nil
	}
	rec.UpdatedAt = r.now()
	r.records[idx] = rec
	return true, nil
}

func (r *MemoryRepository) adjustPrefixLocked(prefixID uuid.UUID, availableDelta, assignedDelta int) bool {
	prefix, ok := r.prefixes[prefixID]
	if !ok {
		return false
	}
	prefix.AvailableCount = max(prefix.AvailableCount+availableDelta, 0)
	prefix.AssignedCount = max(prefix.AssignedCount+assignedDelta, 0)
	prefix.UpdatedAt = r.now()
	r.prefixes[prefixID] = prefix
	return true
}

func samePrefix(have, want *uuid.UUID) bool {
	if want == nil {
		return true
	}
	return have != nil && *have == *want
}
