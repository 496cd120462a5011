package audit

import (
	"net/http"

	"github.com/noah-isme/backend-sdeal/internal/common"
)

// Handler exposes the audit log to administrators.
type Handler struct {
	Service        *Service
	DefaultPerPage int
	MaxPerPage     int
}

// List handles GET /api/v1/admin/audit-logs.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil || h.Service.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	defaultPerPage := h.DefaultPerPage
	if defaultPerPage <= 0 {
		defaultPerPage = 50
	}
	page, perPage := common.ParsePagination(r, defaultPerPage, h.MaxPerPage)
	entries, total, err := h.Service.List(r.Context(), page, perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": entries,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}
