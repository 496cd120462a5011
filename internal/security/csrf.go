package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

const (
	// DefaultCSRFHeader is the header the admin client echoes the token in.
	DefaultCSRFHeader = "X-CSRF-Token"
	// CSRFCookieName holds the token issued at admin login. It is readable by
	// script so the admin client can copy it into DefaultCSRFHeader.
	CSRFCookieName = "sdeal_csrf"
)

// CSRF applies the double-submit check to every state-changing request under
// the admin session cookie.
type CSRF struct {
	Header string
	Cookie string
}

// IssueCSRFCookie sets a fresh token cookie and returns the token.
func IssueCSRFCookie(w http.ResponseWriter, secure bool, ttl time.Duration) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// ClearCSRFCookie expires the token cookie on logout.
func ClearCSRFCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CSRF) Middleware(next http.Handler) http.Handler {
	header := strings.TrimSpace(c.Header)
	if header == "" {
		header = DefaultCSRFHeader
	}
	cookieName := strings.TrimSpace(c.Cookie)
	if cookieName == "" {
		cookieName = CSRFCookieName
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(header))
		if token == "" {
			forbidden(w, "missing csrf token")
			return
		}
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			forbidden(w, "missing csrf cookie")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			forbidden(w, "invalid csrf token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbidden(w http.ResponseWriter, message string) {
	common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", message, nil)
}
