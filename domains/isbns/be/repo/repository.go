package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/folio-erp/folio/platform/go/persistence"
)

// Repository defines the persistence operations required by the ISBN service.
// Every read and conditional write is scoped by tenant except FindExistingValues,
// which deliberately looks across all tenants.
type Repository interface {
	InsertBatch(ctx context.Context, records []persistence.IdentifierRecord) (int, error)
	FindExistingValues(ctx context.Context, values []string) ([]persistence.ExistingValue, error)
	GetIdentifier(ctx context.Context, tenantID, isbnID uuid.UUID) (persistence.IdentifierRecord, error)
	OldestAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (persistence.IdentifierRecord, error)
	ConditionalTransition(ctx context.Context, params persistence.TransitionParams) (bool, error)
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (persistence.StatusCounts, error)
	CountAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error)
	List(ctx context.Context, params persistence.ListIdentifiersParams) (persistence.ListIdentifiersResult, error)
	FindOrphanedAssignments(ctx context.Context, tenantID uuid.UUID) ([]persistence.OrphanedAssignment, error)
	AssignInTx(ctx context.Context, params persistence.AssignInTxParams) (persistence.AssignInTxResult, error)

	GetTitle(ctx context.Context, tenantID, titleID uuid.UUID) (persistence.TitleRecord, error)
	SetTitleIdentifier(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error)

	GetPrefix(ctx context.Context, tenantID, prefixID uuid.UUID) (persistence.PrefixRecord, error)
	AdjustPrefixCounters(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error

	RecordAudit(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error)
}

// Stores groups the persistence stores backing the Postgres repository.
type Stores struct {
	Identifiers *persistence.IdentifierStore
	Titles      *persistence.TitleStore
	Prefixes    *persistence.PrefixStore
	Audit       *persistence.AuditStore
}

// NewStores builds every store on top of one SchemaDB.
func NewStores(ctx context.Context, db *persistence.SchemaDB) (Stores, error) {
	identifiers, err := persistence.NewIdentifierStore(ctx, db)
	if err != nil {
		return Stores{}, err
	}
	titles, err := persistence.NewTitleStore(ctx, db)
	if err != nil {
		return Stores{}, err
	}
	prefixes, err := persistence.NewPrefixStore(ctx, db)
	if err != nil {
		return Stores{}, err
	}
	audit, err := persistence.NewAuditStore(ctx, db)
	if err != nil {
		return Stores{}, err
	}
	return Stores{Identifiers: identifiers, Titles: titles, Prefixes: prefixes, Audit: audit}, nil
}

type postgresRepository struct {
	stores Stores
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(stores Stores) Repository {
	if stores.Identifiers == nil || stores.Titles == nil || stores.Prefixes == nil || stores.Audit == nil {
		panic("isbn stores are required")
	}
	return &postgresRepository{stores: stores}
}

func (r *postgresRepository) InsertBatch(ctx context.Context, records []persistence.IdentifierRecord) (int, error) {
	return r.stores.Identifiers.InsertBatch(ctx, records)
}

func (r *postgresRepository) FindExistingValues(ctx context.Context, values []string) ([]persistence.ExistingValue, error) {
	return r.stores.Identifiers.FindExistingValues(ctx, values)
}

func (r *postgresRepository) GetIdentifier(ctx context.Context, tenantID, isbnID uuid.UUID) (persistence.IdentifierRecord, error) {
	return r.stores.Identifiers.GetIdentifier(ctx, tenantID, isbnID)
}

func (r *postgresRepository) OldestAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (persistence.IdentifierRecord, error) {
	return r.stores.Identifiers.OldestAvailable(ctx, tenantID, prefixID)
}

func (r *postgresRepository) ConditionalTransition(ctx context.Context, params persistence.TransitionParams) (bool, error) {
	return r.stores.Identifiers.ConditionalTransition(ctx, params)
}

func (r *postgresRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (persistence.StatusCounts, error) {
	return r.stores.Identifiers.CountByStatus(ctx, tenantID)
}

func (r *postgresRepository) CountAvailable(ctx context.Context, tenantID uuid.UUID, prefixID *uuid.UUID) (int, error) {
	return r.stores.Identifiers.CountAvailable(ctx, tenantID, prefixID)
}

func (r *postgresRepository) List(ctx context.Context, params persistence.ListIdentifiersParams) (persistence.ListIdentifiersResult, error) {
	return r.stores.Identifiers.ListIdentifiers(ctx, params)
}

func (r *postgresRepository) FindOrphanedAssignments(ctx context.Context, tenantID uuid.UUID) ([]persistence.OrphanedAssignment, error) {
	return r.stores.Identifiers.FindOrphanedAssignments(ctx, tenantID)
}

func (r *postgresRepository) AssignInTx(ctx context.Context, params persistence.AssignInTxParams) (persistence.AssignInTxResult, error) {
	return r.stores.Identifiers.AssignInTx(ctx, params)
}

func (r *postgresRepository) GetTitle(ctx context.Context, tenantID, titleID uuid.UUID) (persistence.TitleRecord, error) {
	return r.stores.Titles.GetTitle(ctx, tenantID, titleID)
}

func (r *postgresRepository) SetTitleIdentifier(ctx context.Context, tenantID, titleID uuid.UUID, value string) (bool, error) {
	return r.stores.Titles.SetTitleIdentifier(ctx, tenantID, titleID, value)
}

func (r *postgresRepository) GetPrefix(ctx context.Context, tenantID, prefixID uuid.UUID) (persistence.PrefixRecord, error) {
	return r.stores.Prefixes.GetPrefix(ctx, tenantID, prefixID)
}

func (r *postgresRepository) AdjustPrefixCounters(ctx context.Context, prefixID uuid.UUID, availableDelta, assignedDelta int) error {
	return r.stores.Prefixes.AdjustPrefixCounters(ctx, prefixID, availableDelta, assignedDelta)
}

func (r *postgresRepository) RecordAudit(ctx context.Context, entry persistence.AuditEntry) (persistence.AuditEntry, error) {
	return r.stores.Audit.RecordAudit(ctx, entry)
}
