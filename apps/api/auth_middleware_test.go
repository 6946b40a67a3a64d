package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/folio-erp/folio/platform/go/tenant"
)

func TestExtractTenantCredentials(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()

	creds, err := extractTenantCredentials(map[string]interface{}{
		"uid":         "user-1",
		"firebase":    map[string]interface{}{"tenant": strings.ToUpper(tenantID.String())},
		"permissions": []interface{}{"catalog:read"},
	})
	require.NoError(t, err)
	require.Equal(t, "user-1", creds.Id)
	require.Equal(t, tenantID.String(), *creds.TenantID)

	_, err = extractTenantCredentials(map[string]interface{}{"uid": "user-1"})
	require.EqualError(t, err, "tenant claim required")

	_, err = extractTenantCredentials(map[string]interface{}{"uid": "user-1", "tenantId": "acme"})
	require.EqualError(t, err, "tenant claim must be a UUID")
}

func TestTenantKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/isbns/import", nil)
	require.Empty(t, tenantKey(req))

	tenantID := uuid.New()
	req = req.WithContext(tenant.WithScope(req.Context(), tenant.DeriveScope("dev", tenantID)))
	require.Equal(t, tenantID.String(), tenantKey(req))
}

func TestNewTokenVerifier(t *testing.T) {
	t.Parallel()

	verify, err := newTokenVerifier(context.Background(), authProviderDev, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, verify)

	_, err = newTokenVerifier(context.Background(), "saml", zap.NewNop())
	require.ErrorContains(t, err, `unsupported auth provider "saml"`)
}
