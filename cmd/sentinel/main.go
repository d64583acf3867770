package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sentinel-rbac/sentinel/pkg/audit"
	"github.com/sentinel-rbac/sentinel/pkg/catalog"
	"github.com/sentinel-rbac/sentinel/pkg/config"
	"github.com/sentinel-rbac/sentinel/pkg/httputil"
	"github.com/sentinel-rbac/sentinel/pkg/identity"
	"github.com/sentinel-rbac/sentinel/pkg/menu"
	"github.com/sentinel-rbac/sentinel/pkg/observability"
	"github.com/sentinel-rbac/sentinel/pkg/rbac"
	"github.com/sentinel-rbac/sentinel/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting sentinel")

	ctx := context.Background()

	// Database
	db, err := storage.Connect(ctx, storage.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	// Metrics
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// OpenTelemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize opentelemetry")
		os.Exit(1)
	}

	// Redis-backed resolver cache
	var redisClient *redis.Client
	var cache *rbac.Cache
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Error("failed to parse redis URL")
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup; resolver cache degraded to local only")
		}
		cache = rbac.NewCache(redisClient, cfg.Redis.L1Size, cfg.Redis.CacheTTL, logger)
	}

	// Audit logging
	var auditLogger audit.Logger
	var dbAudit *audit.DBLogger
	if cfg.Audit.Enabled {
		dbAudit, err = audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit logger")
			os.Exit(1)
		}
		auditLogger = dbAudit
	} else {
		auditLogger = audit.NewNopLogger()
	}

	// Stores and domain services
	userStore := identity.NewStore(db)
	permStore := catalog.NewStore(db)
	rbacStore := rbac.NewStore(db)
	menuStore := menu.NewStore(db)
	resolver := rbac.NewResolver(rbacStore, cache, metrics)
	hasher := identity.NewHasher(0)

	userHandlers := identity.NewHandlers(userStore, hasher, auditLogger)
	if cache != nil {
		userHandlers.SetCacheInvalidator(cache.InvalidateUser)
	}
	permHandlers := catalog.NewHandlers(permStore, auditLogger)
	rbacHandlers := rbac.NewHandlers(rbacStore, resolver, cache, auditLogger)
	menuHandlers := menu.NewHandlers(menuStore, resolver, auditLogger, metrics)

	// Router
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(observability.PanicMiddleware(logger))
	router.Use(metrics.HTTPMiddleware(routeTemplate))

	api := router.PathPrefix("/api/v1").Subrouter()
	userHandlers.RegisterRoutes(api)
	permHandlers.RegisterRoutes(api)
	rbacHandlers.RegisterRoutes(api)
	menuHandlers.RegisterRoutes(api)
	if dbAudit != nil {
		audit.NewHandlers(dbAudit).RegisterRoutes(api)
	}

	var rootHandler http.Handler = router
	if cfg.Observability.OTelEnabled {
		rootHandler = otelhttp.NewHandler(router, "sentinel")
	}

	// Health and metrics on a separate port
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", healthChecker.Liveness).Methods("GET")
	healthRouter.HandleFunc("/readyz", healthChecker.Readiness).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	mainServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      rootHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	// Background maintenance
	janitor := newJanitor(cfg, db, dbAudit, metrics, logger)
	janitor.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer(mainServer)
	shutdown.RegisterServer(healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		janitor.Stop()
		return nil
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(otelProviders.Shutdown)
	}
	if dbAudit != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return dbAudit.Close()
		})
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", mainServer.Addr).Info("api server listening")
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}()

	shutdown.WaitForShutdown()
	logger.Info("sentinel stopped")
}

// routeTemplate returns the mux route template for metrics labels
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}
