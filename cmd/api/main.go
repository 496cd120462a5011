package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-sdeal/internal/admin"
	"github.com/noah-isme/backend-sdeal/internal/audit"
	"github.com/noah-isme/backend-sdeal/internal/cache"
	"github.com/noah-isme/backend-sdeal/internal/catalog"
	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/config"
	"github.com/noah-isme/backend-sdeal/internal/db"
	"github.com/noah-isme/backend-sdeal/internal/health"
	"github.com/noah-isme/backend-sdeal/internal/lock"
	"github.com/noah-isme/backend-sdeal/internal/media"
	"github.com/noah-isme/backend-sdeal/internal/obs"
	"github.com/noah-isme/backend-sdeal/internal/pricing"
	"github.com/noah-isme/backend-sdeal/internal/queue"
	"github.com/noah-isme/backend-sdeal/internal/quote"
	"github.com/noah-isme/backend-sdeal/internal/ratelimit"
	"github.com/noah-isme/backend-sdeal/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "sdeal")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "sdeal-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Open(startCtx, cfg.DatabaseURL, "sdeal-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	redisClient := newRedis(startCtx, cfg.RedisURL, metricsEnabled, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	locker := lock.Locker{R: redisClient, Prefix: "sdeal:lock:", MaxWait: 2 * time.Minute}
	if cfg.DBAutoMigrate {
		// Several replicas may boot together; only one applies migrations.
		err := locker.WithLock(ctx, "migrate", 5*time.Minute, func(context.Context) error {
			return db.Migrate(cfg.DatabaseURL)
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	pricingStore := pricing.NewStore(pool)
	priceLoader := pricing.NewLoader(pricing.LoaderConfig{
		Source: pricingStore,
		Cache:  cache.New(redisClient, cfg.PricingCacheTTL),
		Logger: logger,
	})
	policy := pricing.DefaultPolicy()
	policy.WindowFixedCharge = cfg.PricingWindowFixedCharge
	pricingHandler := pricing.NewHandler(pricing.HandlerConfig{
		Store:  pricingStore,
		Loader: priceLoader,
		Policy: policy,
		Logger: logger,
	})

	var (
		resolver media.Resolver = media.PublicResolver{BaseURL: cfg.MediaPublicBaseURL}
		deleter  *media.S3Presigner
	)
	if cfg.MediaPresignEnabled() {
		presigner, err := media.NewS3Presigner(startCtx, media.S3Config{
			Bucket:          cfg.MediaS3Bucket,
			Endpoint:        cfg.MediaS3Endpoint,
			Region:          cfg.MediaS3Region,
			AccessKeyID:     cfg.MediaS3AccessKeyID,
			SecretAccessKey: cfg.MediaS3SecretAccessKey,
			PresignTTL:      cfg.MediaPresignTTL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise media presigner")
		}
		resolver, deleter = presigner, presigner
	}

	catalogTTL := cfg.CatalogCacheTTL
	if cfg.MediaPresignEnabled() && catalogTTL >= cfg.MediaPresignTTL {
		// Cached payloads embed presigned URLs and must expire first.
		catalogTTL = cfg.MediaPresignTTL / 2
	}
	catalogCfg := catalog.ServiceConfig{
		Store:    catalog.NewStore(pool),
		Cache:    cache.New(redisClient, catalogTTL),
		Resolver: resolver,
		Logger:   logger,
	}
	if deleter != nil {
		catalogCfg.Deleter = deleter
	}
	catalogService, err := catalog.NewService(catalogCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	enqueuer := queue.Enqueuer{
		R:           redisClient,
		Prefix:      cfg.QueueRedisPrefix,
		MaxAttempts: cfg.QueueMaxAttempts,
	}
	quoteService, err := quote.NewService(quote.ServiceConfig{
		Store:            quote.NewStore(pool),
		Prices:           priceLoader,
		Policy:           policy,
		Queue:            enqueuer,
		EmailMaxAttempts: cfg.QueueMaxAttempts,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}
	quoteHandler := quote.NewHandler(quote.HandlerConfig{
		Service:        quoteService,
		DefaultPerPage: cfg.AdminListDefaultLimit,
		MaxPerPage:     cfg.AdminListMaxLimit,
		Logger:         logger,
	})
	queueAdmin := &queue.AdminHandler{R: redisClient, Prefix: cfg.QueueRedisPrefix, Logger: logger}

	auditService := &audit.Service{Store: audit.NewStore(pool), Enabled: cfg.AuditEnabled}
	auditRecorder := audit.HTTPRecorder{
		Service: auditService,
		OnError: func(err error) { logger.Error().Err(err).Msg("record admin audit entry") },
	}
	auditHandler := audit.Handler{
		Service:        auditService,
		DefaultPerPage: cfg.AdminListDefaultLimit,
		MaxPerPage:     cfg.AdminListMaxLimit,
	}

	var gate *admin.Gate
	if cfg.AdminEnabled() {
		gate, err = newGate(cfg, redisClient, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise admin gate")
		}
	} else {
		logger.Warn().Msg("ADMIN_TOKEN_HASH or ADMIN_SESSION_SECRET missing, admin endpoints disabled")
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	quoteLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "sdeal:rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientIPKey("quotes"),
			Window: cfg.QuoteRateLimitWindow,
			Max:    cfg.QuoteRateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("quote rate limiter unavailable")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, QuietPrefixes: []string{"/health", "/metrics"}}.Middleware)
	r.Use(security.Headers{
		Enable:          true,
		EnableHSTS:      cfg.AppEnv == "production",
		NoStorePrefixes: []string{"/admin", "/api/v1/admin", "/api/v1/quotes"},
	}.Middleware)
	r.Use(security.CORS(strings.Join(cfg.CORSAllowedOrigins, ",")))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probe{DB: pool, Redis: redisClient},
		Logger:       logger,
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	if gate != nil {
		r.Route("/admin", func(a chi.Router) {
			a.Get("/login", gate.Login)
			a.Post("/login", gate.Login)
			a.Post("/logout", gate.Logout)
			a.Get("/session", gate.Session)
		})
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/pricing", pricingHandler.PriceList)
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{slug}", catalogHandler.ProductDetail)

		v.Post("/quotes/estimate", quoteHandler.Estimate)
		v.With(quoteLimit.Middleware, idem.Middleware).Post("/quotes", quoteHandler.Submit)

		if gate == nil {
			return
		}
		v.Route("/admin", func(a chi.Router) {
			a.Use(gate.Require)
			a.Use(security.CSRF{}.Middleware)
			a.Use(auditRecorder.Middleware)

			a.Get("/leads", quoteHandler.ListLeads)
			a.Get("/leads/{quoteId}", quoteHandler.GetLead)

			a.Get("/pricing-rules", pricingHandler.ListRules)
			a.Put("/pricing-rules/{key}", pricingHandler.PutRule)
			a.Delete("/pricing-rules/{key}", pricingHandler.DeleteRule)

			a.Post("/products", catalogHandler.CreateProduct)
			a.Delete("/products/{id}", catalogHandler.DeleteProduct)
			a.Post("/products/{id}/images", catalogHandler.AddImage)
			a.Delete("/images/{id}", catalogHandler.DeleteImage)

			a.Get("/queues/{kind}/dlq", queueAdmin.ListDLQ)
			a.Post("/queues/{kind}/dlq/replay", queueAdmin.ReplayDLQ)

			a.Get("/audit-logs", auditHandler.List)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func newRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func newGate(cfg *config.Config, client *redis.Client, logger zerolog.Logger) (*admin.Gate, error) {
	sessions, err := admin.NewSessions(admin.SessionConfig{
		Secret: cfg.AdminSessionSecret,
		TTL:    cfg.AdminSessionTTL,
	})
	if err != nil {
		return nil, err
	}
	rate, err := limiter.NewRateFromFormatted(cfg.AdminLoginRate)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "sdeal:login"})
	if err != nil {
		return nil, err
	}
	return admin.NewGate(admin.GateConfig{
		TokenHash:    cfg.AdminTokenHash,
		Sessions:     sessions,
		Limiter:      limiter.New(store, rate),
		CookieSecure: cfg.AdminCookieSecure,
		SameSite:     cfg.AdminCookieSameSite,
		Logger:       logger,
	})
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	n := fallback
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			n = parsed
		}
	}
	return time.Duration(n) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
