package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"

	"github.com/2beens/bulletinboard/internal/admin"
	"github.com/2beens/bulletinboard/internal/auth"
	"github.com/2beens/bulletinboard/internal/bulletins"
	"github.com/2beens/bulletinboard/internal/bulletins/registry"
	"github.com/2beens/bulletinboard/internal/config"
	"github.com/2beens/bulletinboard/internal/db"
	"github.com/2beens/bulletinboard/internal/middleware"
	"github.com/2beens/bulletinboard/internal/telemetry/metrics"
	"github.com/2beens/bulletinboard/internal/telemetry/tracing"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config     *config.Config
	dbPool     *pgxpool.Pool
	assetStore *bulletins.AssetStore

	redisClient *redis.Client
	verifier    *auth.Verifier
	sessions    *auth.SessionService

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       0, // use default DB
		})
		if params.HoneycombTracingEnabled {
			rdb.AddHook(redisotel.NewTracingHook())
		}

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	var (
		store          registry.Store
		dbPool         *pgxpool.Pool
		poolCollector  prometheus.Collector
		registryTarget string
	)
	switch cfg.RegistryBackend {
	case config.RegistryBackendRedis:
		if rdb == nil {
			return nil, errors.New("redis registry backend selected, but redis is not configured")
		}
		store = registry.NewRedisStore(rdb, registry.DefaultRedisKey)
		registryTarget = "redis:" + registry.DefaultRedisKey
	case config.RegistryBackendPostgres:
		var err error
		dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         cfg.PostgresUser,
			DBPassword:     cfg.PostgresPassword,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}

		pgStore := registry.NewPostgresStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ensure registry schema: %w", err)
		}
		store = pgStore
		poolCollector = pgxpoolprometheus.NewCollector(
			dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		)
		registryTarget = "postgres:" + cfg.PostgresDBName
	default:
		jsonStore, err := registry.NewJSONFileStore(cfg.DataPath)
		if err != nil {
			return nil, fmt.Errorf("new json registry store: %w", err)
		}
		store = jsonStore
		registryTarget = jsonStore.Path()
	}
	log.Infof("bulletins registry backend: %s [%s]", cfg.RegistryBackend, registryTarget)

	assetStore, err := bulletins.NewAssetStore(cfg.AssetsPath, cfg.PublicURLPrefix, store)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, fmt.Errorf("new asset store: %w", err)
	}

	promRegistry := metrics.SetupPrometheus(poolCollector)
	metricsManager := metrics.NewManager("bulletins", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "bulletins-backend")
	if err != nil {
		return nil, err
	}

	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		log.Errorf("admin credentials not set, use %s and %s; login will fail", config.EnvAdminEmail, config.EnvAdminPasswordHash)
	}
	if cfg.JWTSecret == "" {
		log.Errorf("session secret not set, use %s; login will fail", config.EnvJWTSecret)
	}

	return &Server{
		config:      cfg,
		dbPool:      dbPool,
		assetStore:  assetStore,
		versionInfo: params.VersionInfo,

		redisClient: rdb,
		verifier: auth.NewVerifier(&auth.AdminIdentity{
			Email:        cfg.AdminEmail,
			PasswordHash: cfg.AdminPasswordHash,
		}),
		sessions: auth.NewSessionService(cfg.JWTSecret, auth.DefaultTTL),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	// without redis, login is not rate limited
	var reqRateLimiter middleware.RequestRateLimiter
	if s.redisClient != nil {
		reqRateLimiter = redis_rate.NewLimiter(s.redisClient)
	}

	adminHandler := admin.NewHandler(
		s.verifier,
		s.sessions,
		s.config.SecureCookies,
		s.versionInfo,
		s.metricsManager,
	)
	adminHandler.SetupRoutes(r, reqRateLimiter, s.config.LoginRateLimitAllowedPerMin)

	bulletinsHandler := bulletins.NewHandler(
		s.assetStore,
		s.config.PublicURLPrefix,
		s.config.MaxUploadSizeBytes(),
		s.metricsManager,
	)
	bulletinsHandler.SetupRoutes(r)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(
		auth.NewSessionChecker(s.sessions),
		s.config.PublicURLPrefix+"/",
	)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{Registry: s.promRegistry},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, then release what they use
	var err error
	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Shutdown(ctx))
		log.Warnln("server shut down")
	}
	if s.metricsHttpServer != nil {
		err = multierr.Append(err, s.metricsHttpServer.Shutdown(ctx))
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		err = multierr.Append(err, s.redisClient.Close())
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	for _, e := range multierr.Errors(err) {
		log.Errorf(" >>> graceful shutdown: %s", e)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeOpenConnections.Inc()
	case http.StateClosed:
		s.metricsManager.GaugeOpenConnections.Dec()
	default:
		// do nothing
	}
}
