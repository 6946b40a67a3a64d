package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
)

type ctxKey struct{}

// UserCredentials are the verified token claims the ISBN service authorizes against.
type UserCredentials struct {
	Id            string
	Email         string
	EmailVerified bool
	Name          *string
	IsAdmin       bool
	TenantID      *string
	Permissions   []string
}

// UserFromContext returns the credentials set by JWT or WithUser.
func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	u, ok := ctx.Value(ctxKey{}).(*UserCredentials)
	return u, ok && u != nil
}

// WithUser returns a derived context carrying creds. Used by the CLI and tests, which bypass the JWT middleware.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxKey{}, creds)
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]interface{}) (*UserCredentials, error)

// JWT verifies the bearer token, when one is sent, and stores the credentials on the context.
// Requests without a token pass through anonymous; the contract validator and the service reject them.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := ExtractJWTToken(r)
			if r.Method == http.MethodOptions || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description=%q`, err.Error()))
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// writeAuthError renders the API's {success, error, code} envelope.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	code := "UNAUTHENTICATED"
	if status == http.StatusForbidden {
		code = "PERMISSION_DENIED"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message, "code": code})
}

// DefaultCredentialExtractor maps Firebase-style claims onto UserCredentials.
// A token without uid, user_id or sub is rejected because assignments must record an actor.
func DefaultCredentialExtractor(claims map[string]interface{}) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}
	c := claimSet(claims)

	id := c.first("uid", "user_id", "sub")
	if id == "" {
		return nil, errors.New("missing subject claim")
	}

	return &UserCredentials{
		Id:            id,
		Email:         c.str("email"),
		EmailVerified: c.boolean("email_verified"),
		Name:          c.optional("name"),
		IsAdmin:       c.boolean("isAdmin"),
		TenantID:      extractTenantID(claims),
		Permissions:   c.list("permissions"),
	}, nil
}

type claimSet map[string]interface{}

func (c claimSet) str(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c claimSet) optional(key string) *string {
	if s := c.str(key); s != "" {
		return &s
	}
	return nil
}

func (c claimSet) first(keys ...string) string {
	for _, key := range keys {
		if s := c.str(key); s != "" {
			return s
		}
	}
	return ""
}

func (c claimSet) boolean(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// list accepts []string or a JSON array, dropping non-string and empty items.
func (c claimSet) list(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// extractTenantID prefers a top-level tenantId claim and falls back to firebase.tenant.
func extractTenantID(claims map[string]interface{}) *string {
	if tenant := claimSet(claims).optional("tenantId"); tenant != nil {
		return tenant
	}
	if fb, ok := claims["firebase"].(map[string]interface{}); ok {
		return claimSet(fb).optional("tenant")
	}
	return nil
}

// parseUnsignedJWTClaims decodes the payload segment. Padding is optional.
func parseUnsignedJWTClaims(token string) (map[string]interface{}, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, errors.New("invalid token format")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	claims := make(map[string]interface{})
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return claims, nil
}

// FirebaseTokenVerifier validates ID tokens with Firebase Auth and flattens uid, sub and tenant into the claims.
func FirebaseTokenVerifier(fbAuth *auth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if tenant := t.Firebase.Tenant; tenant != "" {
			fb, _ := claims["firebase"].(map[string]interface{})
			if fb == nil {
				fb = map[string]interface{}{}
			}
			fb["tenant"] = tenant
			claims["firebase"] = fb
		}
		return claims, nil
	}
}

// UnsignedTokenVerifier decodes tokens without checking signatures. Only for AUTH_PROVIDER=dev.
func UnsignedTokenVerifier() VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		return parseUnsignedJWTClaims(token)
	}
}
