package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

var draining atomic.Bool

// SetReady flips the process readiness flag. The API marks itself not ready
// as soon as shutdown begins so load balancers stop routing to it.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks the Postgres pool and Redis client used by the API.
type Probe struct {
	DB    Pinger
	Redis *redis.Client
}

// PingDB pings Postgres within timeout.
func (p Probe) PingDB(ctx context.Context, timeout time.Duration) error {
	if p.DB == nil {
		return errUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.DB.Ping(ctx)
}

// PingRedis pings Redis within timeout.
func (p Probe) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return errUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

type unconfigured struct{}

func (unconfigured) Error() string { return "not configured" }

var errUnconfigured error = unconfigured{}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	Logger       zerolog.Logger
}

// Live answers as long as the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes Postgres and Redis in parallel. A quote cannot be priced or
// saved without both, so either failing reports 503. Probe errors are logged
// rather than echoed, since they can carry connection details.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unconfigured"})
		return
	}

	var dbErr, redisErr error
	var g errgroup.Group
	g.Go(func() error {
		dbErr = h.Checker.PingDB(r.Context(), orDefault(h.DBTimeout, 500*time.Millisecond))
		return nil
	})
	g.Go(func() error {
		redisErr = h.Checker.PingRedis(r.Context(), orDefault(h.RedisTimeout, 300*time.Millisecond))
		return nil
	})
	_ = g.Wait()

	body := map[string]string{"status": "ok", "db": h.probeStatus("db", dbErr), "redis": h.probeStatus("redis", redisErr)}
	code := http.StatusOK
	if dbErr != nil || redisErr != nil {
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, body)
}

func (h Handler) probeStatus(dep string, err error) string {
	if err == nil {
		return "ok"
	}
	h.Logger.Warn().Err(err).Str("dependency", dep).Msg("readiness probe failed")
	return "down"
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
