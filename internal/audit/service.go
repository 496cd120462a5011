package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// AnonymousActor is recorded when no admin session is attached to the request.
const AnonymousActor = "anonymous"

// Entry is one audited admin request.
type Entry struct {
	ID           int64           `json:"id"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   *string         `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Route        *string         `json:"route,omitempty"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	UserAgent    *string         `json:"userAgent,omitempty"`
	RequestID    *string         `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store defines the persistence required for auditing.
type Store interface {
	InsertEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context, limit, offset int) ([]Entry, int64, error)
}

// Service records changes made through the admin API.
type Service struct {
	Store   Store
	Enabled bool
}

// Record persists an audit entry for req when auditing is enabled. route is
// the matched pattern and may be empty.
func (s Service) Record(ctx context.Context, req *http.Request, route, resourceID string, status int) error {
	if !s.Enabled {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	actor, ok := common.AdminSubject(req.Context())
	if !ok || strings.TrimSpace(actor) == "" {
		actor = AnonymousActor
	}
	if status == 0 {
		status = http.StatusOK
	}
	requestID := middleware.GetReqID(req.Context())
	if requestID == "" {
		requestID = req.Header.Get(middleware.RequestIDHeader)
	}

	return s.Store.InsertEntry(ctx, Entry{
		Actor:        actor,
		Action:       buildAction(req.Method, route, req.URL.Path),
		ResourceType: buildResource(route, req.URL.Path),
		ResourceID:   pointerOf(resourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        pointerOf(route),
		Status:       status,
		IP:           pointerOf(common.ClientIP(req)),
		UserAgent:    pointerOf(req.Header.Get("User-Agent")),
		RequestID:    pointerOf(requestID),
		Metadata:     queryMetadata(req.URL.RawQuery),
	})
}

// List returns a page of entries, newest first.
func (s Service) List(ctx context.Context, page, perPage int) ([]Entry, int64, error) {
	if s.Store == nil {
		return nil, 0, errors.New("audit: store not configured")
	}
	return s.Store.ListEntries(ctx, perPage, common.Offset(page, perPage))
}

func buildAction(method, route, path string) string {
	target := route
	if target == "" {
		target = path
	}
	if target == "" {
		target = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + target
}

// buildResource derives a dotted resource name from the route, dropping the
// /api/v1 prefix and path parameters: /api/v1/admin/products/{id}/images
// becomes admin.products.images.
func buildResource(route, path string) string {
	target := strings.TrimSpace(route)
	if target == "" {
		target = strings.TrimSpace(path)
	}
	segments := strings.Split(strings.Trim(target, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}

func pointerOf(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func queryMetadata(query string) json.RawMessage {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
