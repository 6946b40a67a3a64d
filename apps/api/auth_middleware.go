package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/gcp"
)

const (
	authProviderFirebase = "firebase"
	authProviderDev      = "dev"
)

// newTokenVerifier picks the verifier for AUTH_PROVIDER. Dev tokens are decoded without a signature check.
func newTokenVerifier(ctx context.Context, provider string, logger *zap.Logger) (platformauth.VerifyFunc, error) {
	switch provider {
	case authProviderFirebase:
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		return platformauth.FirebaseTokenVerifier(fbAuth), nil
	case authProviderDev:
		logger.Warn("AUTH_PROVIDER=dev accepts unsigned tokens; never enable it outside local environments")
		return platformauth.UnsignedTokenVerifier(), nil
	}
	return nil, fmt.Errorf("unsupported auth provider %q", provider)
}

func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	verify, err := newTokenVerifier(ctx, cfg.AuthProvider, logger)
	if err != nil {
		return nil, err
	}
	return platformauth.JWT(verify, extractTenantCredentials), nil
}

// extractTenantCredentials requires the tenant claim to be the tenant UUID and stores it in canonical form.
func extractTenantCredentials(claims map[string]interface{}) (*platformauth.UserCredentials, error) {
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	if err != nil {
		return nil, err
	}
	if creds.TenantID == nil || *creds.TenantID == "" {
		return nil, errors.New("tenant claim required")
	}

	parsed, err := uuid.Parse(*creds.TenantID)
	if err != nil {
		return nil, errors.New("tenant claim must be a UUID")
	}
	canonical := parsed.String()
	creds.TenantID = &canonical
	return creds, nil
}
