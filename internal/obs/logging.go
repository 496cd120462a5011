package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// NewLogger returns the process logger. format "console" (or "text") gives
// coloured human output, anything else JSON lines on stdout.
func NewLogger(format, level string) zerolog.Logger {
	return buildLogger(os.Stdout, format, level)
}

func buildLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if f := strings.ToLower(strings.TrimSpace(format)); f == "console" || f == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "sdeal").Logger()
}

// RequestLogger writes one access-log line per request once the router has
// matched it. Server errors log at error level and client errors at warn.
// Paths under QuietPrefixes, such as probes, drop to debug when they succeed.
type RequestLogger struct {
	Logger        zerolog.Logger
	QuietPrefixes []string
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := NewStatusRecorder(w)
		started := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.Status()
		route := MatchedRoute(r)
		if route == "" {
			route = r.URL.Path
		}

		evt := l.event(r.URL.Path, status).
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(started)).
			Int64("bytes", rec.BytesWritten())
		if id := middleware.GetReqID(r.Context()); id != "" {
			evt = evt.Str("request_id", id)
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if subject, ok := common.AdminSubject(r.Context()); ok {
			evt = evt.Str("admin", subject)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := r.UserAgent(); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}

func (l RequestLogger) event(path string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return l.Logger.Error()
	case status >= 400:
		return l.Logger.Warn()
	}
	for _, prefix := range l.QuietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return l.Logger.Debug()
		}
	}
	return l.Logger.Info()
}
