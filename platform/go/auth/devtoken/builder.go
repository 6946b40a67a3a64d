// Package devtoken mints unsigned Firebase-shaped ID tokens for AUTH_PROVIDER=dev.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folio-erp/folio/platform/go/auth"
)

const defaultTTL = time.Hour

// Params describes the caller the token stands for. No environment is read.
type Params struct {
	ProjectID   string
	TenantID    string // must parse as a UUID, the API rejects anything else
	UserID      string
	Email       string // defaults to <user-id>@dev.folio.local
	Name        string
	IsAdmin     bool
	Permissions []string
	TTL         time.Duration
}

func (p Params) validate() error {
	var errs []error
	if strings.TrimSpace(p.ProjectID) == "" {
		errs = append(errs, errors.New("project id is required"))
	}
	if _, err := uuid.Parse(p.TenantID); err != nil {
		errs = append(errs, fmt.Errorf("tenant id: %w", err))
	}
	if strings.TrimSpace(p.UserID) == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if p.TTL < 0 {
		errs = append(errs, errors.New("ttl must not be negative"))
	}
	for _, name := range p.Permissions {
		if _, err := auth.ParseCapability(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build returns "<header>.<payload>" with alg none. The payload carries the claims
// DefaultCredentialExtractor reads: uid, firebase.tenant, isAdmin and permissions.
func Build(p Params, now time.Time) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	email := p.Email
	if email == "" {
		email = p.UserID + "@dev.folio.local"
	}

	claims := map[string]any{
		"iss":            "https://securetoken.google.com/" + p.ProjectID,
		"aud":            p.ProjectID,
		"sub":            p.UserID,
		"uid":            p.UserID,
		"iat":            now.Unix(),
		"auth_time":      now.Unix(),
		"exp":            now.Add(ttl).Unix(),
		"email":          email,
		"email_verified": true,
		"isAdmin":        p.IsAdmin,
		"permissions":    dedupe(p.Permissions),
		"firebase": map[string]any{
			"sign_in_provider": "custom",
			"tenant":           p.TenantID,
		},
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}

	var segments [2]string
	for i, part := range []any{map[string]string{"alg": "none", "typ": "JWT"}, claims} {
		raw, err := json.Marshal(part)
		if err != nil {
			return "", fmt.Errorf("encode token: %w", err)
		}
		segments[i] = base64.RawURLEncoding.EncodeToString(raw)
	}
	return segments[0] + "." + segments[1], nil
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
