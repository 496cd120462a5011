package pricing

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

type ruleStore interface {
	RuleSource
	UpsertRule(ctx context.Context, rule Rule) error
	DeleteRule(ctx context.Context, key string) error
}

// Handler exposes the price list and its administration endpoints.
type Handler struct {
	store  ruleStore
	loader *Loader
	policy Policy
	logger zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Store  ruleStore
	Loader *Loader
	Policy Policy
	Logger zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{store: cfg.Store, loader: cfg.Loader, policy: cfg.Policy, logger: cfg.Logger}
}

// PriceList handles GET /api/v1/pricing.
func (h *Handler) PriceList(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusOK, map[string]any{
		"prices": h.loader.Load(r.Context()),
		"policy": h.policy,
	})
}

// ListRules handles GET /api/v1/admin/pricing-rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing store not configured", nil)
		return
	}
	stored, err := h.store.ListRules(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list pricing rules")
		common.WriteError(w, err)
		return
	}
	if stored == nil {
		stored = []Rule{}
	}
	common.Data(w, http.StatusOK, map[string]any{
		"stored":    stored,
		"effective": Rules(h.loader.Load(r.Context())),
	})
}

type putRuleRequest struct {
	Value *decimal.Decimal `json:"value"`
}

// PutRule handles PUT /api/v1/admin/pricing-rules/{key}.
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing store not configured", nil)
		return
	}
	key := chi.URLParam(r, "key")
	if !KnownKey(key) {
		common.WriteError(w, common.BadRequest("key", "unknown pricing key", nil))
		return
	}
	var req putRuleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Value == nil {
		common.WriteError(w, common.BadRequest("value", "value is required", nil))
		return
	}
	if req.Value.IsNegative() {
		common.WriteError(w, common.BadRequest("value", "value must not be negative", nil))
		return
	}
	rule := Rule{Key: key, Value: *req.Value}
	if err := h.store.UpsertRule(r.Context(), rule); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("upsert pricing rule")
		common.WriteError(w, err)
		return
	}
	h.loader.Invalidate(r.Context())
	h.logger.Info().Str("key", key).Str("value", rule.Value.String()).Msg("pricing rule updated")
	common.Data(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/admin/pricing-rules/{key}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing store not configured", nil)
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.store.DeleteRule(r.Context(), key); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			common.WriteError(w, common.NotFound("pricing rule not found", err))
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("delete pricing rule")
		common.WriteError(w, err)
		return
	}
	h.loader.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
