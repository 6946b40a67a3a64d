// Package service implements ISBN pool import, allocation and the read-only query surface.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio-erp/folio/domains/isbns/be/repo"
	platformauth "github.com/folio-erp/folio/platform/go/auth"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
	"github.com/folio-erp/folio/platform/go/persistence"
	"github.com/folio-erp/folio/platform/go/requesttrace"
	"github.com/folio-erp/folio/platform/go/tenant"
)

// Strategy selects how the allocator serializes competing requests.
type Strategy string

const (
	// StrategyOptimistic selects a candidate and claims it with a conditional update, retrying on lost races.
	StrategyOptimistic Strategy = "optimistic"
	// StrategyTransactional locks the title and candidate rows inside one transaction.
	StrategyTransactional Strategy = "transactional"
)

// ParseStrategy maps a configuration value to a Strategy. Empty selects the optimistic strategy.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(value) {
	case "", StrategyOptimistic:
		return StrategyOptimistic, nil
	case StrategyTransactional:
		return StrategyTransactional, nil
	default:
		return "", errors.New("unknown allocation strategy: " + value)
	}
}

// Config tunes allocation and import limits.
type Config struct {
	Strategy     Strategy
	MaxAttempts  int
	Backoff      time.Duration
	MaxBatchSize int
}

// DefaultConfig returns three optimistic attempts with a 100ms linear backoff and batches of up to 100 values.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyOptimistic,
		MaxAttempts:  3,
		Backoff:      100 * time.Millisecond,
		MaxBatchSize: 100,
	}
}

// AuditPublisher fans audit entries out to other systems.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, entry persistence.AuditEntry) error
}

// ReportArchiver stores import reports and returns their location.
type ReportArchiver interface {
	ArchiveImportReport(ctx context.Context, scope tenant.Scope, name string, payload []byte) (string, error)
}

// Service defines the business operations for the ISBN pool.
type Service interface {
	ImportBatch(ctx context.Context, input ImportInput) (ImportResult, error)
	Assign(ctx context.Context, input AssignInput) (Assignment, error)
	Stats(ctx context.Context) (Stats, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	PreviewNext(ctx context.Context, prefixID *uuid.UUID) (Preview, error)
	Reconcile(ctx context.Context) ([]OrphanedAssignment, error)
}

// Option customizes the service.
type Option func(*service)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *service) {
		if cfg.Strategy != "" {
			s.cfg.Strategy = cfg.Strategy
		}
		if cfg.MaxAttempts > 0 {
			s.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Backoff > 0 {
			s.cfg.Backoff = cfg.Backoff
		}
		if cfg.MaxBatchSize > 0 {
			s.cfg.MaxBatchSize = cfg.MaxBatchSize
		}
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditPublisher enables audit event fan-out.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *service) { s.publisher = p }
}

// WithReportArchiver enables archiving of import reports.
func WithReportArchiver(a ReportArchiver) Option {
	return func(s *service) { s.archiver = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithSleep replaces the backoff wait. The function must return ctx.Err() when ctx ends first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *service) { s.sleep = sleep }
}

type service struct {
	repo      repo.Repository
	cfg       Config
	logger    *zap.Logger
	publisher AuditPublisher
	archiver  ReportArchiver
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New constructs an ISBN Service backed by the provided repository.
func New(r repo.Repository, opts ...Option) Service {
	if r == nil {
		panic("isbn repository is required")
	}

	s := &service{
		repo:   r,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// caller is the resolved execution context of one operation.
type caller struct {
	scope tenant.Scope
	audit requesttrace.AuditInfo
}

func (c caller) tenantID() uuid.UUID {
	return c.scope.TenantID
}

// begin checks the capability and resolves tenant and actor from ctx.
func (s *service) begin(ctx context.Context, capability platformauth.Capability) (caller, error) {
	if err := platformauth.RequirePermission(ctx, capability); err != nil {
		s.loggerFrom(ctx).Warn("isbn permission check failed",
			zap.String("capability", string(capability)),
			zap.Error(err),
		)
		return caller{}, fail(KindPermissionDenied, msgPermissionDenied)
	}

	scope, err := tenant.Require(ctx)
	if err != nil {
		s.loggerFrom(ctx).Warn("isbn request without tenant scope", zap.String("capability", string(capability)))
		return caller{}, fail(KindPermissionDenied, msgPermissionDenied)
	}

	return caller{scope: scope, audit: requesttrace.FromContextOrAnonymous(ctx)}, nil
}

// unavailable logs an infrastructure error and hides it behind a retryable failure.
func (s *service) unavailable(ctx context.Context, op string, err error, fields ...zap.Field) error {
	s.loggerFrom(ctx).Error("isbn operation failed",
		append([]zap.Field{zap.String("operation", op), zap.Error(err)}, fields...)...,
	)
	return fail(KindUnavailable, msgUnavailable)
}

func (s *service) recordAudit(ctx context.Context, entry persistence.AuditEntry) {
	stored, err := s.repo.RecordAudit(ctx, entry)
	if err != nil {
		s.loggerFrom(ctx).Error("isbn audit write failed",
			zap.String("action", entry.Action),
			zap.String("tenant_id", entry.TenantID.String()),
			zap.Error(err),
		)
		return
	}
	s.publishAudit(ctx, stored)
}

func (s *service) publishAudit(ctx context.Context, entry persistence.AuditEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAudit(ctx, entry); err != nil {
		s.loggerFrom(ctx).Warn("isbn audit event not published",
			zap.String("action", entry.Action),
			zap.String("audit_id", entry.AuditID.String()),
			zap.Error(err),
		)
	}
}

func (s *service) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return s.logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
