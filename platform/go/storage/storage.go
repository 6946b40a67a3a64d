package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/folio-erp/folio/platform/go/tenant"
)

// ErrInvalidKey is returned for keys that are empty or would escape the tenant prefix.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectLocation is a tenant-scoped blob address.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// String renders the location as "<bucket>/<path>", the form reported back to importers.
func (l ObjectLocation) String() string {
	return l.Bucket + "/" + l.FullPath
}

// ResolveObjectLocation places logicalKey (e.g. "imports/2026/10/<batch>.json") under the tenant's
// base prefix in bucket. "." and ".." segments are rejected so one tenant can never address another's reports.
func ResolveObjectLocation(scope tenant.Scope, bucket string, logicalKey string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, errors.New("bucket is required")
	}

	prefix := strings.TrimSuffix(scope.BasePrefix, "/")
	if prefix == "" {
		return ObjectLocation{}, errors.New("tenant base prefix is missing")
	}

	key := strings.TrimPrefix(strings.TrimSpace(logicalKey), "/")
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return ObjectLocation{}, fmt.Errorf("%w: %q", ErrInvalidKey, logicalKey)
		}
	}

	return ObjectLocation{Bucket: bucket, FullPath: prefix + "/" + key}, nil
}
