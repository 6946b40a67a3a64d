package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/persistence"
)

// Identifier is the domain view of a pool record.
type Identifier struct {
	ID         uuid.UUID  `json:"id"`
	Value      string     `json:"value"`
	Status     string     `json:"status"`
	PrefixID   *uuid.UUID `json:"prefixId,omitempty"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	AssignedBy *string    `json:"assignedBy,omitempty"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Stats counts a tenant's pool by status.
type Stats struct {
	Total      int `json:"total"`
	Available  int `json:"available"`
	Assigned   int `json:"assigned"`
	Registered int `json:"registered"`
	Retired    int `json:"retired"`
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Status   *string
	Search   *string
	PrefixID *uuid.UUID
	Page     int
	PageSize int
}

// ListResult wraps a page of identifiers with pagination metadata.
type ListResult struct {
	Identifiers []Identifier `json:"items"`
	Page        int          `json:"page"`
	PageSize    int          `json:"pageSize"`
	TotalItems  int          `json:"totalItems"`
	TotalPages  int          `json:"totalPages"`
}

// Preview shows what the next automatic assignment would pick.
// It is stale by construction: a concurrent caller may take Next before this caller assigns.
type Preview struct {
	Next           *Identifier `json:"next,omitempty"`
	AvailableCount int         `json:"availableCount"`
	Stale          bool        `json:"stale"`
	GeneratedAt    time.Time   `json:"generatedAt"`
}

// OrphanedAssignment is an assigned identifier whose title does not hold it.
type OrphanedAssignment struct {
	ISBNID     uuid.UUID `json:"isbnId"`
	Value      string    `json:"value"`
	TitleID    uuid.UUID `json:"titleId"`
	AssignedAt time.Time `json:"assignedAt"`
	TitleISBN  *string   `json:"titleIsbn,omitempty"`
	TitleFound bool      `json:"titleFound"`
}

func (s *service) Stats(ctx context.Context) (Stats, error) {
	c, err := s.begin(ctx, platformauth.CapabilityCatalogRead)
	if err != nil {
		return Stats{}, err
	}

	counts, err := s.repo.CountByStatus(ctx, c.tenantID())
	if err != nil {
		return Stats{}, s.unavailable(ctx, "isbnStats", err)
	}

	return Stats{
		Total:      counts.Total,
		Available:  counts.Available,
		Assigned:   counts.Assigned,
		Registered: counts.Registered,
		Retired:    counts.Retired,
	}, nil
}

func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	c, err := s.begin(ctx, platformauth.CapabilityCatalogRead)
	if err != nil {
		return ListResult{}, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	params := persistence.ListIdentifiersParams{
		TenantID: c.tenantID(),
		PrefixID: opts.PrefixID,
		Page:     page,
		PageSize: pageSize,
	}

	if opts.Status != nil && strings.TrimSpace(*opts.Status) != "" {
		status := persistence.IdentifierStatus(strings.ToLower(strings.TrimSpace(*opts.Status)))
		if !status.Valid() {
			return ListResult{}, fail(KindValidation, "Unknown status filter: %s", *opts.Status)
		}
		params.Status = &status
	}
	if opts.Search != nil && strings.TrimSpace(*opts.Search) != "" {
		search := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(*opts.Search))
		params.Search = &search
	}

	result, err := s.repo.List(ctx, params)
	if err != nil {
		return ListResult{}, s.unavailable(ctx, "isbnList", err)
	}

	items := make([]Identifier, 0, len(result.Identifiers))
	for _, record := range result.Identifiers {
		items = append(items, toIdentifier(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Identifiers: items,
		Page:        page,
		PageSize:    pageSize,
		TotalItems:  result.TotalItems,
		TotalPages:  totalPages,
	}, nil
}

func (s *service) PreviewNext(ctx context.Context, prefixID *uuid.UUID) (Preview, error) {
	c, err := s.begin(ctx, platformauth.CapabilityCatalogRead)
	if err != nil {
		return Preview{}, err
	}

	if prefixID != nil {
		if _, err := s.repo.GetPrefix(ctx, c.tenantID(), *prefixID); err != nil {
			if errors.Is(err, persistence.ErrPrefixNotFound) {
				return Preview{}, fail(KindNotFound, "Prefix not found")
			}
			return Preview{}, s.unavailable(ctx, "isbnPreview", err)
		}
	}

	preview := Preview{Stale: true, GeneratedAt: s.now()}

	next, err := s.repo.OldestAvailable(ctx, c.tenantID(), prefixID)
	switch {
	case err == nil:
		identifier := toIdentifier(next)
		preview.Next = &identifier
	case errors.Is(err, persistence.ErrPoolExhausted):
		return preview, nil
	default:
		return Preview{}, s.unavailable(ctx, "isbnPreview", err)
	}

	count, err := s.repo.CountAvailable(ctx, c.tenantID(), prefixID)
	if err != nil {
		return Preview{}, s.unavailable(ctx, "isbnPreview", err)
	}
	preview.AvailableCount = count

	return preview, nil
}

func (s *service) Reconcile(ctx context.Context) ([]OrphanedAssignment, error) {
	c, err := s.begin(ctx, platformauth.CapabilitySettingsManage)
	if err != nil {
		return nil, err
	}

	orphans, err := s.repo.FindOrphanedAssignments(ctx, c.tenantID())
	if err != nil {
		return nil, s.unavailable(ctx, "isbnReconcile", err)
	}

	out := make([]OrphanedAssignment, 0, len(orphans))
	for _, o := range orphans {
		out = append(out, OrphanedAssignment{
			ISBNID:     o.ISBNID,
			Value:      o.Value,
			TitleID:    o.TitleID,
			AssignedAt: o.AssignedAt,
			TitleISBN:  o.TitleISBN,
			TitleFound: o.TitleFound,
		})
	}
	return out, nil
}

func toIdentifier(record persistence.IdentifierRecord) Identifier {
	return Identifier{
		ID:         record.ISBNID,
		Value:      record.Value,
		Status:     string(record.Status),
		PrefixID:   record.PrefixID,
		AssignedTo: record.AssignedTo,
		AssignedBy: record.AssignedBy,
		AssignedAt: record.AssignedAt,
		CreatedAt:  record.CreatedAt,
	}
}
