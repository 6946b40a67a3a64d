package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/folio-erp/folio/platform/go/tenant"
)

func TestResolveObjectLocation(t *testing.T) {
	scope := tenant.Scope{
		TenantID:      uuid.New(),
		ShortTenantID: "12345678",
		BasePrefix:    "dev/tenant-12345678/",
	}

	reportID := uuid.New()
	loc, err := ResolveObjectLocation(scope, "folio-dev-reports", "imports/2026/10/"+reportID.String()+".json")
	require.NoError(t, err)
	require.Equal(t, "folio-dev-reports", loc.Bucket)
	require.Equal(t, "dev/tenant-12345678/imports/2026/10/"+reportID.String()+".json", loc.FullPath)
}

func TestResolveObjectLocation_trimsSlashAndValidates(t *testing.T) {
	scope := tenant.Scope{
		TenantID:      uuid.New(),
		ShortTenantID: "12345678",
		BasePrefix:    "dev/tenant-12345678", // no trailing slash
	}

	loc, err := ResolveObjectLocation(scope, "bucket", "/imports/report.json")
	require.NoError(t, err)
	require.Equal(t, "dev/tenant-12345678/imports/report.json", loc.FullPath)

	_, err = ResolveObjectLocation(scope, "", "file")
	require.Error(t, err)

	_, err = ResolveObjectLocation(scope, "bucket", " ")
	require.Error(t, err)

	scope.BasePrefix = ""
	_, err = ResolveObjectLocation(scope, "bucket", "file")
	require.Error(t, err)
}

func TestResolveObjectLocationRejectsEscapingKeys(t *testing.T) {
	scope := tenant.DeriveScope("dev", uuid.New())

	for _, key := range []string{"../other-tenant/imports/r.json", "imports/../../x.json", "imports//r.json", "./r.json"} {
		_, err := ResolveObjectLocation(scope, "bucket", key)
		require.ErrorIs(t, err, ErrInvalidKey, key)
	}

	loc, err := ResolveObjectLocation(scope, "bucket", "imports/2026/10/r.json")
	require.NoError(t, err)
	require.Equal(t, "bucket/"+scope.BasePrefix+"imports/2026/10/r.json", loc.String())
}

func TestReportArchiveWritesLocally(t *testing.T) {
	dir := t.TempDir()
	archive := NewReportArchive(NewLocalWriter(dir), "reports")
	archive.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }

	scope := tenant.DeriveScope("dev", uuid.MustParse("2f1d7c1e-6a4b-4b43-9d55-3c1b2f0a9e11"))
	path, err := archive.ArchiveImportReport(context.Background(), scope, "batch-1", []byte(`{"imported":2}`))
	require.NoError(t, err)
	require.Equal(t, "reports/dev/tenant-2f1d7c1e/imports/2026/03/batch-1.json", path)

	data, err := os.ReadFile(filepath.Join(dir, "reports", "dev", "tenant-2f1d7c1e", "imports", "2026", "03", "batch-1.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"imported":2}`, string(data))
}

func TestLocalWriterCheckCreatesPrefix(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewLocalWriter(dir).Check(context.Background(), "reports/dev"))

	info, err := os.Stat(filepath.Join(dir, "reports", "dev"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
