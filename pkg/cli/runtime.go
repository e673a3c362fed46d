package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/api"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/auth"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/authz"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/config"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/httputil"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/middleware"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/observability"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/rights"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/tags"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestBytes bounds administration request bodies.
const maxRequestBytes = 1 << 20

// runtime holds the connections and services shared by the commands.
type runtime struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *sql.DB
	dialect storage.Dialect
	redis   *redis.Client

	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracing  *sdktrace.TracerProvider

	store   rights.Store
	counter tags.Tally
	tokens  *auth.TokenManager

	policies *authz.SwappablePolicies
	provider *authz.PolicyProvider
}

// openRuntime connects to the configured backends and assembles the rights
// store stack: backend, instrumentation, then the lookup cache.
func openRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	db, dialect, err := storage.OpenSQL(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.db, rt.dialect = db, dialect

	if cfg.Storage.UsesRedis() {
		client, err := storage.OpenRedis(ctx, cfg.Storage)
		if err != nil {
			db.Close()
			return nil, err
		}
		rt.redis = client
	}

	if cfg.Observability.MetricsEnabled {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.metrics = observability.NewMetrics(rt.registry)
	}

	var backing rights.Store
	if cfg.Storage.Type == storage.TypeRedis {
		backing = rights.NewRedisStore(rt.redis, cfg.Storage.RedisPrefix)
	} else {
		backing = rights.NewSQLStore(db, dialect)
	}
	rt.store = rights.NewInstrumentedStore(backing, cfg.Storage.Type, rt.storeObserver())
	if cfg.Storage.CacheEnabled {
		rt.store = rights.NewCachedStore(rt.store, cfg.Storage.CacheSize, cfg.Storage.CacheTTL, rt.cacheObserver())
	}

	var tally tags.Tally
	if cfg.Storage.TagCounter == storage.TypeRedis {
		tally = tags.NewRedisCounter(rt.redis, cfg.Storage.RedisPrefix+":tags")
	} else {
		tally = tags.NewSQLCounter(db, dialect)
	}
	rt.counter = tags.NewObservedCounter(tally, rt.tagObserver())

	rt.tokens = auth.NewTokenManager(auth.NewSQLTokenStore(db, dialect))
	return rt, nil
}

// The observers are nil interfaces, not nil pointers, when metrics are off.
func (rt *runtime) storeObserver() rights.StoreObserver {
	if rt.metrics == nil {
		return nil
	}
	return rt.metrics
}

func (rt *runtime) cacheObserver() rights.CacheObserver {
	if rt.metrics == nil {
		return nil
	}
	return rt.metrics
}

func (rt *runtime) tagObserver() tags.CountObserver {
	if rt.metrics == nil {
		return nil
	}
	return rt.metrics
}

func (rt *runtime) tracerProvider() trace.TracerProvider {
	if rt.tracing == nil {
		return nil
	}
	return rt.tracing
}

// migrate creates the tables of every component living in the SQL database.
func (rt *runtime) migrate(ctx context.Context) error {
	if rt.cfg.Storage.UsesSQL() {
		if err := rights.RunMigrations(ctx, rt.db, rt.dialect, rt.logger); err != nil {
			return err
		}
	}
	if err := auth.RunMigrations(ctx, rt.db, rt.dialect, rt.logger); err != nil {
		return err
	}
	if rt.cfg.Storage.TagCounter != storage.TypeRedis {
		if err := tags.RunMigrations(ctx, rt.db, rt.dialect, rt.logger); err != nil {
			return err
		}
	}
	return nil
}

// bootstrap writes the configured grants. SetRight upserts, so restarts
// reapply them unchanged.
func (rt *runtime) bootstrap(ctx context.Context) error {
	for i, grant := range rt.cfg.Authz.Bootstrap {
		resourceID, rightType, permission, err := grant.Resolve(rt.cfg.Authz.RootID)
		if err != nil {
			return fmt.Errorf("bootstrap grant %d: %w", i, err)
		}
		if _, err := rt.store.SetRight(ctx, grant.UserID, resourceID, rightType, permission); err != nil {
			return fmt.Errorf("bootstrap grant %d: %w", i, err)
		}
		rt.logger.WithFields(logrus.Fields{
			"user_id":     grant.UserID,
			"resource_id": resourceID,
			"right_type":  rightType.String(),
			"rights":      permission.String(),
		}).Info("Bootstrap grant applied")
	}
	return nil
}

// apiHandler builds the administration API with its middleware chain.
func (rt *runtime) apiHandler(ctx context.Context) (http.Handler, error) {
	policies, err := authz.NewStaticPolicies(rt.cfg.Authz.Policies)
	if err != nil {
		return nil, err
	}
	rt.policies = authz.NewSwappablePolicies(policies)
	rt.provider = authz.NewPolicyProvider(rt.policies, rt.logger)

	opts := []authz.HandlerOption{
		authz.WithRootID(rt.cfg.Authz.RootID),
		authz.WithMaxParallel(rt.cfg.Authz.MaxParallel),
		authz.WithTracerProvider(rt.tracerProvider()),
	}
	if rt.metrics != nil {
		opts = append(opts, authz.WithDecisionObserver(rt.metrics))
	}
	handler := authz.NewHandler(rt.store, rt.logger, opts...)
	authorizer := authz.NewAuthorizer(handler, rt.provider, rt.logger)
	audit := auth.NewAuditLogger(rt.logger)

	server := api.NewServer(api.Dependencies{
		Store:      rt.store,
		Counter:    rt.counter,
		Authorizer: authorizer,
		Audit:      audit,
		Logger:     rt.logger,
	})

	router := server.Router()
	router.Use(observability.TracingMiddleware(rt.tracerProvider()))
	router.Use(middleware.RequestID(rt.logger))
	router.Use(observability.RecoveryMiddleware())
	router.Use(httputil.LoggingMiddleware)
	if rt.metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(rt.metrics))
	}
	router.Use(middleware.NewAuthMiddleware(rt.tokens, rt.cfg.Authz.AllowAnonymous, audit).Handler)
	if rt.cfg.Server.RateLimitEnabled {
		router.Use(middleware.RateLimit(rt.limiter(ctx)))
	}
	router.Use(httputil.ContentTypeMiddleware)
	router.Use(httputil.MaxBytesMiddleware(maxRequestBytes))

	return server, nil
}

// watchPolicies swaps in the named policies of the policy file whenever it
// changes. It must run after apiHandler.
func (rt *runtime) watchPolicies(ctx context.Context) error {
	if rt.cfg.Authz.PolicyFile == "" || !rt.cfg.Authz.WatchPolicyFile {
		return nil
	}
	return config.WatchPolicyFile(ctx, rt.cfg.Authz.PolicyFile, rt.logger, func(named map[string][]string) error {
		policies, err := authz.NewStaticPolicies(named)
		if err != nil {
			return err
		}
		rt.policies.Store(policies)
		rt.provider.Reset()
		return nil
	})
}

// limiter shares request counts through Redis when Redis is configured.
func (rt *runtime) limiter(ctx context.Context) middleware.Limiter {
	if rt.redis != nil {
		return middleware.NewRedisRateLimiter(rt.redis, rt.cfg.Server.RateLimit, rt.cfg.Storage.RedisPrefix+":ratelimit")
	}
	limiter := middleware.NewRateLimiter(rt.cfg.Server.RateLimit)
	limiter.StartCleanup(ctx)
	return limiter
}

// healthHandler serves the probes and, when enabled, the metrics.
func (rt *runtime) healthHandler() http.Handler {
	mux := http.NewServeMux()
	redisRequired := rt.cfg.Storage.Type == storage.TypeRedis
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(rt.db, rt.redis, redisRequired, Version))
	if rt.registry != nil {
		observability.RegisterMetricsEndpoint(mux, rt.registry)
	}
	return mux
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	errs = append(errs, rt.db.Close())
	return errors.Join(errs...)
}

// withRuntime loads the configuration, opens the runtime for the duration of
// fn and closes it afterwards.
func (a *App) withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, a.logOutput)

	rt, err := openRuntime(a.ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.migrate(a.ctx); err != nil {
		return err
	}
	return fn(a.ctx, rt)
}
