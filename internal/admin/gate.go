package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/security"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "admin"

// Gate protects the admin surface with a shared access token. The token is
// compared against an argon2id hash; a successful login is exchanged for a
// signed session cookie so the token itself is never stored client side.
type Gate struct {
	tokenHash    string
	sessions     *Sessions
	limiter      *limiter.Limiter
	cookieSecure bool
	sameSite     http.SameSite
	redirectTo   string
	logger       zerolog.Logger
}

// GateConfig configures the Gate. Limiter is optional.
type GateConfig struct {
	TokenHash    string
	Sessions     *Sessions
	Limiter      *limiter.Limiter
	CookieSecure bool
	SameSite     http.SameSite
	RedirectTo   string
	Logger       zerolog.Logger
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if strings.TrimSpace(cfg.TokenHash) == "" {
		return nil, errors.New("admin: token hash is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("admin: sessions are required")
	}
	redirect := cfg.RedirectTo
	if redirect == "" {
		redirect = "/admin"
	}
	sameSite := cfg.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	return &Gate{
		tokenHash:    strings.TrimSpace(cfg.TokenHash),
		sessions:     cfg.Sessions,
		limiter:      cfg.Limiter,
		cookieSecure: cfg.CookieSecure,
		sameSite:     sameSite,
		redirectTo:   redirect,
		logger:       cfg.Logger,
	}, nil
}

// HashToken returns an argon2id hash suitable for ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	return argon2id.CreateHash(token, argon2id.DefaultParams)
}

// Login handles GET /admin/login?token=... and POST /admin/login.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if g.limiter != nil {
		lctx, err := g.limiter.Get(ctx, "login:"+common.ClientIP(r))
		if err != nil {
			g.logger.Error().Err(err).Msg("admin login limiter")
		} else {
			w.Header().Set("X-RateLimit-Remaining", itoa(lctx.Remaining))
			if lctx.Reached {
				w.Header().Set("Retry-After", itoa(max64(1, lctx.Reset-time.Now().Unix())))
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many login attempts", nil)
				return
			}
		}
	}

	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" || !g.checkToken(token) {
		g.logger.Warn().Str("ip", common.ClientIP(r)).Msg("admin login rejected")
		common.WriteError(w, common.Unauthorized("Unauthorised"))
		return
	}

	signed, expiresAt, err := g.sessions.Issue()
	if err != nil {
		g.logger.Error().Err(err).Msg("issue admin session")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not start session", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(g.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: g.sameSite,
	})
	security.IssueCSRFCookie(w, g.cookieSecure, g.sessions.TTL())
	g.logger.Info().Str("ip", common.ClientIP(r)).Msg("admin login")
	http.Redirect(w, r, g.redirectTo, http.StatusSeeOther)
}

// Logout handles POST /admin/logout.
func (g *Gate) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: g.sameSite,
	})
	security.ClearCSRFCookie(w, g.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /admin/session and reports whether the caller is signed in.
// It is served outside Require, so the cookie is checked here.
func (g *Gate) Session(w http.ResponseWriter, r *http.Request) {
	subject, ok := g.subject(r)
	common.Data(w, http.StatusOK, map[string]any{"authenticated": ok, "subject": subject})
}

// Require rejects requests without a valid session cookie.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := g.subject(r)
		if !ok {
			common.WriteError(w, common.Unauthorized("Unauthorised"))
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdminSubject(r.Context(), subject)))
	})
}

// subject returns the admin behind a valid session cookie.
func (g *Gate) subject(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	subject, err := g.sessions.Verify(cookie.Value)
	if err != nil {
		return "", false
	}
	return subject, true
}

func (g *Gate) checkToken(token string) bool {
	ok, err := argon2id.ComparePasswordAndHash(token, g.tokenHash)
	if err != nil {
		g.logger.Error().Err(err).Msg("compare admin token")
		return false
	}
	return ok
}
