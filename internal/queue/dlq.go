package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// DeadLetter is a task that exhausted its attempts.
type DeadLetter struct {
	Kind           string          `json:"kind"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"lastError,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
	Payload        json.RawMessage `json:"payload"`
}

// DeadLetters lists up to limit dead-lettered tasks, newest first.
func DeadLetters(ctx context.Context, r *redis.Client, prefix, kind string, limit int) ([]DeadLetter, int64, error) {
	kind = sanitizeKind(kind)
	if kind == "" {
		return nil, 0, errors.New("queue: kind is required")
	}
	if limit <= 0 {
		limit = 50
	}
	keys := keyspace{prefix: prefix, kind: kind}
	total, err := r.LLen(ctx, keys.dlq()).Result()
	if err != nil {
		return nil, 0, err
	}
	raws, err := r.LRange(ctx, keys.dlq(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		out = append(out, deadLetterFrom(msg))
	}
	return out, total, nil
}

// ReplayDeadLetters moves up to limit of the oldest dead-lettered tasks back
// onto the ready queue with a fresh attempt budget.
func ReplayDeadLetters(ctx context.Context, r *redis.Client, prefix, kind string, limit int) (int, error) {
	kind = sanitizeKind(kind)
	if kind == "" {
		return 0, errors.New("queue: kind is required")
	}
	if limit <= 0 {
		limit = 50
	}
	keys := keyspace{prefix: prefix, kind: kind}
	replayed := 0
	for replayed < limit {
		raw, err := r.RPop(ctx, keys.dlq()).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return replayed, err
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		msg.Attempt = 0
		msg.LastError = ""
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := r.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err(); err != nil {
			_ = r.RPush(ctx, keys.dlq(), raw).Err()
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

func deadLetterFrom(msg taskMessage) DeadLetter {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		encoded, _ := json.Marshal(string(msg.Payload))
		payload = encoded
	}
	return DeadLetter{
		Kind:           msg.Kind,
		IdempotencyKey: msg.Key,
		Attempts:       msg.Attempt,
		LastError:      msg.LastError,
		EnqueuedAt:     time.Unix(0, msg.EnqueuedAt).UTC(),
		Payload:        payload,
	}
}

// AdminHandler exposes dead-letter inspection and replay.
type AdminHandler struct {
	R        *redis.Client
	Prefix   string
	PageSize int
	Logger   zerolog.Logger
}

// ListDLQ handles GET /api/v1/admin/queues/{kind}/dlq.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	limit := h.pageSize()
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	items, total, err := DeadLetters(r.Context(), h.R, h.Prefix, kind, limit)
	if err != nil {
		h.Logger.Error().Err(err).Str("kind", kind).Msg("list dead letters")
		common.WriteError(w, common.BadRequest("kind", "unknown queue", err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "total": total, "kind": kind})
}

type replayRequest struct {
	Limit int `json:"limit"`
}

// ReplayDLQ handles POST /api/v1/admin/queues/{kind}/dlq/replay.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	var req replayRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = h.pageSize()
	}
	n, err := ReplayDeadLetters(r.Context(), h.R, h.Prefix, kind, req.Limit)
	if err != nil {
		h.Logger.Error().Err(err).Str("kind", kind).Msg("replay dead letters")
		common.WriteError(w, common.BadRequest("kind", "replay failed", err))
		return
	}
	h.Logger.Info().Str("kind", kind).Int("replayed", n).Msg("dead letters replayed")
	common.Data(w, http.StatusOK, map[string]any{"replayed": n})
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize > 0 {
		return h.PageSize
	}
	return 50
}
