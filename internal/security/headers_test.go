package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveWithHeaders(h Headers, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersSetsHardeningHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://api.sdeal.ie/api/v1/pricing", nil)
	req.TLS = &tls.ConnectionState{}

	got := serveWithHeaders(Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}, req)
	require.Equal(t, "nosniff", got.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", got.Get("X-Frame-Options"))
	require.NotEmpty(t, got.Get("Content-Security-Policy"))
	require.Equal(t, "max-age=31536000; includeSubDomains", got.Get("Strict-Transport-Security"))
	require.Empty(t, got.Get("Cache-Control"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600}

	plain := httptest.NewRequest(http.MethodGet, "http://api.sdeal.ie/health/live", nil)
	require.Empty(t, serveWithHeaders(h, plain).Get("Strict-Transport-Security"))

	proxied := httptest.NewRequest(http.MethodGet, "http://api.sdeal.ie/health/live", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	require.Equal(t, "max-age=600", serveWithHeaders(h, proxied).Get("Strict-Transport-Security"))
}

func TestHeadersNoStoreOnSensitivePaths(t *testing.T) {
	h := Headers{Enable: true, NoStorePrefixes: []string{"/admin", "/api/v1/admin", "/api/v1/quotes"}}

	require.Equal(t, "no-store", serveWithHeaders(h, httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads", nil)).Get("Cache-Control"))
	require.Equal(t, "no-store", serveWithHeaders(h, httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)).Get("Cache-Control"))
	require.Empty(t, serveWithHeaders(h, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)).Get("Cache-Control"))
}

func TestHeadersDisabled(t *testing.T) {
	got := serveWithHeaders(Headers{Enable: false, EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, got.Get("X-Content-Type-Options"))
}
