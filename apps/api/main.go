package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	isbnshandler "github.com/folio-erp/folio/domains/isbns/be/handler"
	isbnsrepo "github.com/folio-erp/folio/domains/isbns/be/repo"
	isbnsservice "github.com/folio-erp/folio/domains/isbns/be/service"
	platformauth "github.com/folio-erp/folio/platform/go/auth"
	"github.com/folio-erp/folio/platform/go/events"
	"github.com/folio-erp/folio/platform/go/gcp"
	platformlogging "github.com/folio-erp/folio/platform/go/logging"
	platformmiddleware "github.com/folio-erp/folio/platform/go/middleware"
	"github.com/folio-erp/folio/platform/go/persistence"
	"github.com/folio-erp/folio/platform/go/ratelimit"
	"github.com/folio-erp/folio/platform/go/storage"
	"github.com/folio-erp/folio/platform/go/tenant"
	tenantmiddleware "github.com/folio-erp/folio/platform/go/tenant/middleware"
)

const isbnsContract = "contracts/isbns.yaml"

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBSchema        string        `env:"DB_SCHEMA" envDefault:"folio"`
	BootstrapSchema bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`

	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	DBStatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"10s"`
	DBLockTimeout      time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"2s"`

	AuthProvider string   `env:"AUTH_PROVIDER" envDefault:"firebase"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	EnvKey       string   `env:"ENV_KEY,required"`

	AllocationStrategy    string        `env:"ALLOCATION_STRATEGY" envDefault:"optimistic"`
	AllocationMaxAttempts int           `env:"ALLOCATION_MAX_ATTEMPTS" envDefault:"3"`
	AllocationBackoff     time.Duration `env:"ALLOCATION_BACKOFF" envDefault:"100ms"`

	RedisAddr        string        `env:"REDIS_ADDR"` // empty disables import throttling
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	ImportRateLimit  int           `env:"IMPORT_RATE_LIMIT" envDefault:"30"`
	ImportRateWindow time.Duration `env:"IMPORT_RATE_WINDOW" envDefault:"1m"`

	AMQPURL      string `env:"AMQP_URL"` // empty disables audit events
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"folio.isbn.audit"`

	ReportBackend  string `env:"REPORT_BACKEND" envDefault:"none"`              // gcs | local | none
	ReportBucket   string `env:"REPORT_BUCKET"`                                 // required when REPORT_BACKEND=gcs
	ReportLocalDir string `env:"REPORT_LOCAL_DIR" envDefault:"./.data/reports"` // used when REPORT_BACKEND=local
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:       cfg.DatabaseURL,
		ApplicationName:  "folio-api",
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStatementTimeout,
		LockTimeout:      cfg.DBLockTimeout,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool, cfg.DBSchema); err != nil {
			logger.Fatal("bootstrap schema", zap.String("schema", cfg.DBSchema), zap.Error(err))
		}
		logger.Info("schema bootstrapped", zap.String("schema", cfg.DBSchema))
	}

	schemaDB := persistence.NewSchemaDB(persistence.SchemaDBConfig{Pool: pool, Schema: cfg.DBSchema})
	stores, err := isbnsrepo.NewStores(ctx, schemaDB)
	if err != nil {
		logger.Fatal("init isbn stores", zap.Error(err))
	}

	strategy, err := isbnsservice.ParseStrategy(cfg.AllocationStrategy)
	if err != nil {
		logger.Fatal("invalid ALLOCATION_STRATEGY", zap.Error(err))
	}

	serviceOpts := []isbnsservice.Option{
		isbnsservice.WithLogger(logger),
		isbnsservice.WithConfig(isbnsservice.Config{
			Strategy:    strategy,
			MaxAttempts: cfg.AllocationMaxAttempts,
			Backoff:     cfg.AllocationBackoff,
		}),
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("init audit publisher", zap.Error(err))
		}
		defer publisher.Close()
		serviceOpts = append(serviceOpts, isbnsservice.WithAuditPublisher(publisher))
	}

	switch cfg.ReportBackend {
	case "gcs":
		if cfg.ReportBucket == "" {
			logger.Fatal("report bucket required when REPORT_BACKEND=gcs")
		}
		gcsClient, err := gcp.NewStorageClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		archive := storage.NewReportArchive(storage.NewGCSWriter(gcsClient), cfg.ReportBucket)
		checkArchive(ctx, logger, archive)
		serviceOpts = append(serviceOpts, isbnsservice.WithReportArchiver(archive))
	case "local":
		if strings.TrimSpace(cfg.ReportLocalDir) == "" {
			logger.Fatal("report local dir required when REPORT_BACKEND=local")
		}
		archive := storage.NewReportArchive(storage.NewLocalWriter(cfg.ReportLocalDir), "local")
		checkArchive(ctx, logger, archive)
		serviceOpts = append(serviceOpts, isbnsservice.WithReportArchiver(archive))
	case "none":
	default:
		logger.Fatal("invalid REPORT_BACKEND (use gcs, local or none)", zap.String("backend", cfg.ReportBackend))
	}

	isbnService := isbnsservice.New(isbnsrepo.NewPostgresRepository(stores), serviceOpts...)
	isbnHTTPHandler := isbnshandler.New(isbnService, logger)

	routeOpts := isbnshandler.RouteOptions{
		Reconcile: []func(http.Handler) http.Handler{
			platformauth.RequireCapability(platformauth.CapabilitySettingsManage),
		},
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(ratelimit.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "folio:" + cfg.EnvKey + ":isbn-import",
			Limit:    cfg.ImportRateLimit,
			Window:   cfg.ImportRateWindow,
		})
		if err != nil {
			logger.Fatal("init import rate limiter", zap.Error(err))
		}
		routeOpts.Import = append(routeOpts.Import, ratelimit.Middleware(limiter, tenantKey, logger))
	}

	authMiddleware, err := buildAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init auth", zap.String("provider", cfg.AuthProvider), zap.Error(err))
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(platformmiddleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	isbnsSpec := mustLoadSpec(logger, isbnsContract)
	registerDocsRoutes(rootRouter, isbnsSpec, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(tenantmiddleware.WithTenantScope(tenantmiddleware.DerivingResolver(cfg.EnvKey), tenantmiddleware.Config{
		EnvKey:   cfg.EnvKey,
		CacheTTL: time.Minute,
	}))

	apiRouter.Group(func(r chi.Router) {
		r.Use(newSpecValidator(isbnsSpec))
		isbnHTTPHandler.Routes(r, routeOpts)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("allocation_strategy", string(strategy)),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// checkArchive only warns: reports are best-effort and must not block startup.
func checkArchive(ctx context.Context, logger *zap.Logger, archive *storage.ReportArchive) {
	if err := archive.Check(ctx); err != nil {
		logger.Warn("import report archive not reachable", zap.Error(err))
	}
}

// tenantKey throttles imports per tenant.
func tenantKey(r *http.Request) string {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		return ""
	}
	return scope.TenantID.String()
}

// newSpecValidator validates requests against the OpenAPI document and reports failures in the API envelope.
func newSpecValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: platformmiddleware.ValidationErrorHandler,
	})
}

// mustLoadSpec loads the contract or stops the process.
func mustLoadSpec(logger *zap.Logger, path string) *openapi3.T {
	spec, err := loadSpec(path)
	if err != nil {
		logger.Fatal("load openapi spec", zap.String("path", path), zap.Error(err))
	}
	logger.Info("loaded openapi spec",
		zap.String("path", path),
		zap.String("version", spec.Info.Version),
		zap.Int("paths", spec.Paths.Len()),
	)
	return spec
}

// loadSpec parses and validates the contract. Every operation must be protected by bearerAuth.
func loadSpec(path string) (*openapi3.T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve spec path: %w", err)
	}

	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	if spec.Components == nil || spec.Components.SecuritySchemes["bearerAuth"] == nil {
		return nil, errors.New("bearerAuth security scheme is not declared")
	}
	for route, item := range spec.Paths.Map() {
		for method, op := range item.Operations() {
			if op.Security == nil && len(spec.Security) == 0 {
				return nil, fmt.Errorf("%s %s has no security requirement", method, route)
			}
		}
	}
	return spec, nil
}
