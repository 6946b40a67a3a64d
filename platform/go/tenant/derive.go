package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns the first 8 hexadecimal characters of a UUID (without dashes).
func ShortID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	if len(hex) < 8 {
		return hex
	}
	return hex[:8]
}

// BuildBasePrefix returns `<envKey>/tenant-<shortTenantId>/`, the object storage prefix owned by a tenant.
func BuildBasePrefix(envKey string, shortID string) string {
	envKey = strings.TrimSuffix(envKey, "/")
	return envKey + "/tenant-" + shortID + "/"
}

// DeriveScope builds the Scope for tenantID under envKey.
func DeriveScope(envKey string, tenantID uuid.UUID) Scope {
	short := ShortID(tenantID)
	return Scope{
		TenantID:      tenantID,
		ShortTenantID: short,
		BasePrefix:    BuildBasePrefix(envKey, short),
	}
}
