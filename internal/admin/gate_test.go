package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-sdeal/internal/admin"
	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var fastParams = &argon2id.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newGate(t *testing.T, lim *limiter.Limiter) (*admin.Gate, *admin.Sessions) {
	t.Helper()
	hash, err := argon2id.CreateHash("letmein", fastParams)
	require.NoError(t, err)
	sessions, err := admin.NewSessions(admin.SessionConfig{Secret: testSecret, TTL: time.Hour})
	require.NoError(t, err)
	gate, err := admin.NewGate(admin.GateConfig{
		TokenHash:    hash,
		Sessions:     sessions,
		Limiter:      lim,
		CookieSecure: true,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return gate, sessions
}

func sessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == admin.CookieName {
			return c
		}
	}
	t.Fatalf("cookie %q not set", admin.CookieName)
	return nil
}

func TestLoginWithQueryTokenSetsCookieAndRedirects(t *testing.T) {
	gate, sessions := newGate(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/login?token=letmein", nil)
	rec := httptest.NewRecorder()
	gate.Login(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/admin", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec.Result())
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, 3600, cookie.MaxAge)

	var csrf *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.CSRFCookieName {
			csrf = c
		}
	}
	require.NotNil(t, csrf)
	require.False(t, csrf.HttpOnly)

	subject, err := sessions.Verify(cookie.Value)
	require.NoError(t, err)
	require.Equal(t, "admin", subject)
}

func TestLoginWithFormToken(t *testing.T) {
	gate, _ := newGate(t, nil)

	form := url.Values{"token": {"letmein"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	gate.Login(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestLoginRejectsWrongToken(t *testing.T) {
	gate, _ := newGate(t, nil)

	for _, target := range []string{"/admin/login?token=nope", "/admin/login"} {
		rec := httptest.NewRecorder()
		gate.Login(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code, target)
		require.Empty(t, rec.Result().Cookies())
	}
}

func TestLoginIsThrottled(t *testing.T) {
	lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
	gate, _ := newGate(t, lim)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/login?token=nope", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		rec := httptest.NewRecorder()
		gate.Login(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestRequire(t *testing.T) {
	gate, sessions := newGate(t, nil)
	var seen string
	protected := gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.AdminSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads", nil)
	req.AddCookie(&http.Cookie{Name: admin.CookieName, Value: "forged"})
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := sessions.Issue()
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads", nil)
	req.AddCookie(&http.Cookie{Name: admin.CookieName, Value: token})
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", seen)
}

func TestLogoutClearsCookie(t *testing.T) {
	gate, _ := newGate(t, nil)
	rec := httptest.NewRecorder()
	gate.Logout(rec, httptest.NewRequest(http.MethodPost, "/admin/logout", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := sessionCookie(t, rec.Result())
	require.Empty(t, cookie.Value)
	require.Less(t, cookie.MaxAge, 0)
}

func TestSessionsRejectExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sessions, err := admin.NewSessions(admin.SessionConfig{Secret: testSecret, TTL: time.Minute, Now: clock})
	require.NoError(t, err)

	token, expiresAt, err := sessions.Issue()
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Minute), expiresAt)

	now = now.Add(2 * time.Minute)
	_, err = sessions.Verify(token)
	require.Error(t, err)

	other, err := admin.NewSessions(admin.SessionConfig{Secret: strings.Repeat("x", 32), Now: clock})
	require.NoError(t, err)
	foreign, _, err := other.Issue()
	require.NoError(t, err)
	_, err = sessions.Verify(foreign)
	require.Error(t, err)

	_, err = admin.NewSessions(admin.SessionConfig{Secret: "short"})
	require.Error(t, err)
}

func TestHashToken(t *testing.T) {
	hash, err := admin.HashToken("s3cret")
	require.NoError(t, err)
	ok, err := argon2id.ComparePasswordAndHash("s3cret", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func sessionBody(t *testing.T, gate *admin.Gate, cookie *http.Cookie) map[string]any {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/admin/session", gate.Session)

	req := httptest.NewRequest(http.MethodGet, "/admin/session", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestSessionReportsSignedInAdmin(t *testing.T) {
	gate, sessions := newGate(t, nil)
	token, _, err := sessions.Issue()
	require.NoError(t, err)

	data := sessionBody(t, gate, &http.Cookie{Name: admin.CookieName, Value: token})
	require.Equal(t, true, data["authenticated"])
	require.Equal(t, "admin", data["subject"])
}

func TestSessionReportsAnonymousCaller(t *testing.T) {
	gate, _ := newGate(t, nil)

	data := sessionBody(t, gate, nil)
	require.Equal(t, false, data["authenticated"])
	require.Equal(t, "", data["subject"])

	data = sessionBody(t, gate, &http.Cookie{Name: admin.CookieName, Value: "forged.token.value"})
	require.Equal(t, false, data["authenticated"])
}
