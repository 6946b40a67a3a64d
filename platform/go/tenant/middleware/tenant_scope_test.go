package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/tenant"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, tenantClaim *string) (int, tenant.Scope) {
	t.Helper()
	var got tenant.Scope
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tenantClaim != nil {
		req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{Id: "u", TenantID: tenantClaim}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, got
}

func TestWithTenantScopeDerivesScope(t *testing.T) {
	id := uuid.New()
	claim := id.String()

	code, scope := serve(t, WithTenantScope(DerivingResolver("dev"), Config{EnvKey: "dev"}), &claim)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, scope.TenantID)
	require.Equal(t, "dev/tenant-"+tenant.ShortID(id)+"/", scope.BasePrefix)
}

func TestWithTenantScopeRejections(t *testing.T) {
	mw := WithTenantScope(DerivingResolver("dev"), Config{EnvKey: "dev"})

	code, _ := serve(t, mw, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	bad := "not-a-uuid"
	code, _ = serve(t, mw, &bad)
	require.Equal(t, http.StatusUnauthorized, code)

	failing := ResolverFunc(func(context.Context, uuid.UUID) (tenant.Scope, error) {
		return tenant.Scope{}, errors.New("unknown")
	})
	claim := uuid.NewString()
	code, _ = serve(t, WithTenantScope(failing, Config{EnvKey: "dev"}), &claim)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = serve(t, WithTenantScope(DerivingResolver("prod"), Config{EnvKey: "dev"}), &claim)
	require.Equal(t, http.StatusForbidden, code)
}

func TestWithTenantScopeCachesResolutions(t *testing.T) {
	var calls atomic.Int32
	resolver := ResolverFunc(func(_ context.Context, id uuid.UUID) (tenant.Scope, error) {
		calls.Add(1)
		return tenant.DeriveScope("dev", id), nil
	})
	mw := WithTenantScope(resolver, Config{EnvKey: "dev", CacheTTL: time.Minute})

	claim := uuid.NewString()
	for i := 0; i < 3; i++ {
		code, _ := serve(t, mw, &claim)
		require.Equal(t, http.StatusOK, code)
	}
	require.Equal(t, int32(1), calls.Load())
}
