package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Scope captures the resolved tenant for a request.
// It is attached to the context by middleware once the tenant has been resolved from claims.
type Scope struct {
	TenantID      uuid.UUID
	ShortTenantID string
	BasePrefix    string
}

// ErrScopeMissing is returned when no tenant scope is attached to the context.
var ErrScopeMissing = errors.New("tenant scope missing from context")

type ctxKey string

const scopeKey ctxKey = "FOLIO_TENANT_SCOPE"

// WithScope returns a derived context carrying the tenant Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the tenant Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(scopeKey)
	if v == nil {
		return Scope{}, false
	}

	scope, ok := v.(Scope)
	return scope, ok && scope.TenantID != uuid.Nil
}

// Require returns the tenant Scope or ErrScopeMissing.
func Require(ctx context.Context) (Scope, error) {
	scope, ok := FromContext(ctx)
	if !ok {
		return Scope{}, ErrScopeMissing
	}
	return scope, nil
}
