package audit

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-sdeal/internal/obs"
)

// HTTPRecorder records mutating requests after they have been handled.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// Middleware records every non-safe request passing through next. It must be
// mounted after the admin gate so the session subject is on the context.
func (r HTTPRecorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.Service == nil || !r.Service.Enabled || isSafeMethod(req.Method) {
			next.ServeHTTP(w, req)
			return
		}

		recorder := obs.NewStatusRecorder(w)
		next.ServeHTTP(recorder, req)

		route, resourceID := matchedRoute(req)
		ctx := context.WithoutCancel(req.Context())
		if err := r.Service.Record(ctx, req, route, resourceID, recorder.Status()); err != nil && r.OnError != nil {
			r.OnError(err)
		}
	})
}

// matchedRoute reads the pattern chi resolved for req and the last URL
// parameter, which names the resource being changed.
func matchedRoute(req *http.Request) (string, string) {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		return "", ""
	}
	resourceID := ""
	if n := len(rc.URLParams.Values); n > 0 {
		resourceID = rc.URLParams.Values[n-1]
	}
	return rc.RoutePattern(), resourceID
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
