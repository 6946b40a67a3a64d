package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
	platformmiddleware "github.com/folio-erp/folio/platform/go/middleware"
	"github.com/folio-erp/folio/platform/go/tenant"
)

// Resolver turns a tenant id from the token into a Scope.
type Resolver interface {
	ResolveTenantScope(ctx context.Context, tenantID uuid.UUID) (tenant.Scope, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, tenantID uuid.UUID) (tenant.Scope, error)

func (f ResolverFunc) ResolveTenantScope(ctx context.Context, tenantID uuid.UUID) (tenant.Scope, error) {
	return f(ctx, tenantID)
}

// DerivingResolver builds scopes from the tenant id alone.
func DerivingResolver(envKey string) Resolver {
	return ResolverFunc(func(_ context.Context, tenantID uuid.UUID) (tenant.Scope, error) {
		return tenant.DeriveScope(envKey, tenantID), nil
	})
}

// Config controls middleware behavior.
type Config struct {
	EnvKey string
	// Optional small in-memory TTL cache in front of the resolver; zero disables caching.
	CacheTTL time.Duration
}

// WithTenantScope resolves tenant from JWT claims and attaches tenant.Scope to context.
// It enforces that the tenant claim is present and that the resolved scope matches the current envKey.
func WithTenantScope(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if cfg.EnvKey == "" {
		panic("tenant middleware: envKey is required")
	}

	var cache *scopeCache
	if cfg.CacheTTL > 0 {
		cache = newScopeCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.TenantID == nil || *creds.TenantID == "" {
				platformmiddleware.WriteEnvelopeError(w, http.StatusUnauthorized, platformmiddleware.CodeUnauthenticated, "tenant required")
				return
			}

			// Tenant claim is expected to be the tenant UUID string.
			tid, err := uuid.Parse(*creds.TenantID)
			if err != nil {
				platformmiddleware.WriteEnvelopeError(w, http.StatusUnauthorized, platformmiddleware.CodeUnauthenticated, "invalid tenant id")
				return
			}

			if cached, ok := cache.get(tid); ok {
				next.ServeHTTP(w, r.WithContext(scopedContext(r.Context(), cached)))
				return
			}

			scope, err := resolver.ResolveTenantScope(r.Context(), tid)
			if err != nil {
				platformmiddleware.WriteEnvelopeError(w, http.StatusUnauthorized, platformmiddleware.CodeUnauthenticated, "tenant not found")
				return
			}

			if !strings.HasPrefix(scope.BasePrefix, strings.TrimSuffix(cfg.EnvKey, "/")+"/") {
				platformmiddleware.WriteEnvelopeError(w, http.StatusForbidden, platformmiddleware.CodePermission, "tenant env mismatch")
				return
			}

			cache.put(scope)

			next.ServeHTTP(w, r.WithContext(scopedContext(r.Context(), scope)))
		})
	}
}

// scopedContext attaches the scope and tags the request logger with tenant_id.
func scopedContext(ctx context.Context, scope tenant.Scope) context.Context {
	ctx = tenant.WithScope(ctx, scope)
	return platformlogging.WithFields(ctx, zap.String("tenant_id", scope.TenantID.String()))
}

type scopeCache struct {
	ttl   time.Duration
	mu    sync.Mutex
	items map[uuid.UUID]cacheItem
}

type cacheItem struct {
	scope     tenant.Scope
	expiresAt time.Time
}

func newScopeCache(ttl time.Duration) *scopeCache {
	return &scopeCache{ttl: ttl, items: make(map[uuid.UUID]cacheItem)}
}

func (c *scopeCache) get(id uuid.UUID) (tenant.Scope, bool) {
	if c == nil {
		return tenant.Scope{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok || time.Now().After(item.expiresAt) {
		return tenant.Scope{}, false
	}
	return item.scope, true
}

func (c *scopeCache) put(scope tenant.Scope) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[scope.TenantID] = cacheItem{scope: scope, expiresAt: time.Now().Add(c.ttl)}
}
