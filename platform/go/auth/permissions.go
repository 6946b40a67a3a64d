package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// Capability names a permission carried in the token's permissions claim.
type Capability string

const (
	CapabilitySettingsManage Capability = "settings:manage"
	CapabilityCatalogWrite   Capability = "catalog:write"
	CapabilityCatalogRead    Capability = "catalog:read"
)

// Capabilities lists every capability the API checks.
func Capabilities() []Capability {
	return []Capability{CapabilitySettingsManage, CapabilityCatalogWrite, CapabilityCatalogRead}
}

// ParseCapability accepts only the names returned by Capabilities.
func ParseCapability(name string) (Capability, error) {
	for _, c := range Capabilities() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", name)
}

var (
	// ErrUnauthenticated indicates no credentials were attached to the context.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermissionDenied indicates the caller lacks the capability.
	ErrPermissionDenied = errors.New("permission denied")
)

// Has reports whether the credentials grant capability. Admins hold every capability.
func (c *UserCredentials) Has(capability Capability) bool {
	if c == nil {
		return false
	}
	if c.IsAdmin {
		return true
	}
	return slices.Contains(c.Permissions, string(capability))
}

// RequirePermission checks the capability against the credentials on ctx.
func RequirePermission(ctx context.Context, capability Capability) error {
	creds, ok := UserFromContext(ctx)
	if !ok || creds == nil {
		return ErrUnauthenticated
	}
	if !creds.Has(capability) {
		return ErrPermissionDenied
	}
	return nil
}

// RequireCapability gates a route on a capability before the handler runs.
func RequireCapability(capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := RequirePermission(r.Context(), capability); err != nil {
				status := http.StatusForbidden
				if errors.Is(err, ErrUnauthenticated) {
					status = http.StatusUnauthorized
				}
				message := "You do not have permission to perform this action"
				if status == http.StatusUnauthorized {
					message = "Authentication required"
				}
				writeAuthError(w, status, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
