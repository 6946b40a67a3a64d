package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/folio-erp/folio/platform/go/tenant"
)

// ReportArchive keeps import reports under "<basePrefix>imports/<yyyy>/<mm>/<name>.json".
type ReportArchive struct {
	writer Writer
	bucket string
	now    func() time.Time
}

func NewReportArchive(writer Writer, bucket string) *ReportArchive {
	if writer == nil {
		panic("report archive requires writer")
	}
	if bucket == "" {
		panic("report archive requires bucket")
	}
	return &ReportArchive{writer: writer, bucket: bucket, now: time.Now}
}

// ArchiveImportReport writes a JSON payload and returns the object path.
func (a *ReportArchive) ArchiveImportReport(ctx context.Context, scope tenant.Scope, name string, payload []byte) (string, error) {
	ts := a.now().UTC()
	key := fmt.Sprintf("imports/%04d/%02d/%s.json", ts.Year(), int(ts.Month()), name)

	loc, err := ResolveObjectLocation(scope, a.bucket, key)
	if err != nil {
		return "", err
	}
	if err := a.writer.Write(ctx, loc, "application/json", payload); err != nil {
		return "", err
	}
	return loc.String(), nil
}

// Check verifies the archive bucket is reachable.
func (a *ReportArchive) Check(ctx context.Context) error {
	return a.writer.Check(ctx, a.bucket)
}
