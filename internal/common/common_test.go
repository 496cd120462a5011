package common_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

func TestIdempotencyReplaysSuccessfulResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		common.Data(w, http.StatusCreated, map[string]any{"call": n})
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "nope", nil)
	}))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)
		req.Header.Set("Idempotency-Key", "k")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, common.NotFound("product not found", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"product not found"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	common.WriteError(rec, errors.New("db down"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Value int `json:"value"`
	}
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"value": 3}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, 3, dst.Value)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"value":`))
	err := common.DecodeJSON(req, &dst)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestInMemoryEmail(t *testing.T) {
	var outbox common.InMemoryEmail
	require.NoError(t, outbox.Send(context.Background(), common.Email{To: "sales@example.com", Subject: "s"}))
	require.Len(t, outbox.Outbox(), 1)
	require.Equal(t, "sales@example.com", outbox.Outbox()[0].To)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))

	spoofed := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofed.Header.Set("X-Forwarded-For", "not-an-ip")
	spoofed.Header.Set("X-Real-IP", "198.51.100.4")
	require.Equal(t, "198.51.100.4", common.ClientIP(spoofed))

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", common.ClientIP(direct))
}
