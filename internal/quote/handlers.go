package quote

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// Handler exposes the public quote endpoints and the admin lead views.
type Handler struct {
	service        *Service
	defaultPerPage int
	maxPerPage     int
	logger         zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service        *Service
	DefaultPerPage int
	MaxPerPage     int
	Logger         zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	def := cfg.DefaultPerPage
	if def <= 0 {
		def = 20
	}
	max := cfg.MaxPerPage
	if max <= 0 {
		max = 100
	}
	return &Handler{service: cfg.Service, defaultPerPage: def, maxPerPage: max, logger: cfg.Logger}
}

// Estimate handles POST /api/v1/quotes/estimate.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var form EstimateForm
	if err := common.DecodeJSON(r, &form); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.Estimate(r.Context(), form)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, result)
}

// Submit handles POST /api/v1/quotes.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var form LeadForm
	if err := common.DecodeJSON(r, &form); err != nil {
		common.WriteError(w, err)
		return
	}
	submission, err := h.service.Submit(r.Context(), form)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, submission)
}

// ListLeads handles GET /api/v1/admin/leads.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.defaultPerPage, h.maxPerPage)
	leads, total, err := h.service.ListLeads(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error().Err(err).Msg("list leads")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": leads,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// GetLead handles GET /api/v1/admin/leads/{quoteId}.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.service.GetLead(r.Context(), chi.URLParam(r, "quoteId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, lead)
}
