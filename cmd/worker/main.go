package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-sdeal/internal/config"
	"github.com/noah-isme/backend-sdeal/internal/lock"
	"github.com/noah-isme/backend-sdeal/internal/notify"
	"github.com/noah-isme/backend-sdeal/internal/obs"
	"github.com/noah-isme/backend-sdeal/internal/queue"
	"github.com/noah-isme/backend-sdeal/internal/resilience"
)

// The worker drains the quote e-mail queue. Leads are already stored by the
// API, so the worker only owns delivery to the sales inbox.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(env("OBS_LOG_FORMAT", "json"), env("OBS_LOG_LEVEL", "info")).
		With().Str("component", "worker").Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(env("OBS_METRICS_NAMESPACE", "sdeal"), nil)

	if cfg.SalesInbox == "" {
		logger.Fatal().Msg("SALES_INBOX is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if on, _ := strconv.ParseBool(env("OBS_ENABLE_TRACING", "false")); on {
		ratio, err := strconv.ParseFloat(env("OBS_TRACING_SAMPLING_RATIO", "1"), 64)
		if err != nil {
			ratio = 1
		}
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "sdeal-worker",
			Endpoint:      env("OBS_OTLP_ENDPOINT", ""),
			Exporter:      env("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: ratio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
		}
	}

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() { _ = rdb.Close() }()

	sender, err := notify.NewSender(notify.SenderConfig{
		Provider:     cfg.MailProvider,
		From:         cfg.MailFrom,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUser:     cfg.SMTPUser,
		SMTPPassword: cfg.SMTPPassword,
		ResendAPIKey: cfg.ResendAPIKey,
		ResendURL:    cfg.ResendBaseURL,
		HTTP: resilience.HTTPClient{
			Client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker: resilience.NewBreaker(cfg.BreakerFailures, 0.5, cfg.BreakerCooldown).
				WithTarget(cfg.MailProvider).
				WithLogger(logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.OutboundTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise mail sender")
	}

	mailer := notify.QuoteMailer{
		Sender: sender,
		Inbox:  cfg.SalesInbox,
		Locker: &lock.Locker{
			R:            rdb,
			Prefix:       "sdeal:lock:",
			RetryBackoff: 200 * time.Millisecond,
			MaxWait:      cfg.QueueVisibilityTimeout,
		},
		LockTTL: cfg.QueueVisibilityTimeout,
		Logger:  logger,
	}
	worker := queue.Worker{
		R:                 rdb,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              notify.QuoteEmailTask,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       0.2,
		Logger:            logger,
		Handler:           mailer.Handle,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("kind", worker.Kind).Str("provider", cfg.MailProvider).Int("concurrency", cfg.QueueConcurrency).Msg("worker started")
		return worker.Run(gctx)
	})
	if addr := env("WORKER_METRICS_ADDR", ""); addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
	logger.Info().Msg("worker drained")
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

