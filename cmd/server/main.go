package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/handlers"
	"github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/middleware"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/services/oidc"
	"github.com/benvon/compass/internal/store/db"
	"github.com/benvon/compass/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	engineCfg := config.DefaultCompass()
	if err := engineCfg.Validate(); err != nil {
		zapLogger.Fatal("invalid_compass_configuration", zap.Error(err))
	}

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Int("vector_dimension", engineCfg.VectorDimension),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx := context.Background()

	var tracerProvider *sdktrace.TracerProvider
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(ctx, "server", cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracerProvider = tp
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	st, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisClient := connectRedis(ctx, cfg.RedisURL, zapLogger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}
	limiterStore, err := middleware.NewRateLimitStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	rateLimitMW, err := middleware.RateLimit(limiterStore, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_rate_limit", zap.String("rate", cfg.RateLimit), zap.Error(err))
	}

	jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	vectorizer := compass.NewVectorizer(engineCfg.VectorDimension)
	ledger := compass.NewTokenLedger(st)
	intake := compass.NewSwipeIntake(st, ledger, jobQueue, zapLogger)
	profiles := compass.NewProfileService(st, vectorizer, engineCfg, zapLogger)

	oidcConfig := cfg.OIDC()
	oidcProvider := oidc.NewProvider(oidcConfig)
	verifier := oidc.NewVerifier(oidc.NewJWKSManager(time.Hour), oidcConfig)
	if !oidcProvider.Enabled() {
		zapLogger.Warn("oidc_not_configured_login_disabled")
	}

	authHandler := handlers.NewAuthHandler(oidcProvider)
	compassHandler := handlers.NewCompassHandler(intake, profiles, zapLogger)
	healthChecker := handlers.NewHealthChecker(st.Ping, zapLogger)
	healthChecker.AddCheck("rabbitmq", jobQueue.HealthCheck)
	if redisClient != nil {
		healthChecker.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	openAPIHandler, err := handlers.NewOpenAPIHandler(handlers.DefaultOpenAPIPath)
	if err != nil {
		zapLogger.Warn("openapi_document_unavailable", zap.Error(err))
	}

	authMW := middleware.Auth(verifier, st, zapLogger)
	activity := middleware.NewActivityTracker(profiles, middleware.DefaultActivityInterval, zapLogger)

	// Middleware registered first wraps outermost.
	r := mux.NewRouter()
	if tracerProvider != nil {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.JobTimeout))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	if openAPIHandler != nil {
		openAPIHandler.RegisterRoutes(r)
	}

	apiRouter := r.PathPrefix("/api/v1").Subrouter()

	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	loginRouter := authRouter.PathPrefix("/oidc").Subrouter()
	loginRouter.Use(rateLimitMW)
	authHandler.RegisterRoutes(loginRouter)

	meRouter := authRouter.PathPrefix("").Subrouter()
	meRouter.Use(authMW, rateLimitMW)
	authHandler.RegisterProtectedRoutes(meRouter)

	compassRouter := apiRouter.PathPrefix("/compass").Subrouter()
	compassRouter.Use(authMW, rateLimitMW, activity.Middleware)
	compassHandler.RegisterRoutes(compassRouter)

	// Preflight requests need a matching route for the router middleware
	// (and so CORS) to run.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.JobTimeout + 5*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// rate limiter then keeps its counters in process memory.
func connectRedis(ctx context.Context, redisURL string, zapLogger *zap.Logger) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		zapLogger.Warn("invalid_redis_url_using_memory_rate_limit", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		zapLogger.Warn("redis_unreachable_using_memory_rate_limit", zap.Error(err))
		return nil
	}
	zapLogger.Info("connected_to_redis")
	return client
}
