package handler

import (
	"net/http"

	"truemarket-api/internal/repository"
	"truemarket-api/pkg/response"
)

// AdminHandler exposes operator-facing introspection endpoints.
type AdminHandler struct {
	store repository.Store
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(store repository.Store) *AdminHandler {
	return &AdminHandler{
		store: store,
	}
}

// StatsResponse summarizes stored record counts.
type StatsResponse struct {
	Skins              int64 `json:"skins"`
	PriceHistories     int64 `json:"price_histories"`
	Tasks              int64 `json:"tasks"`
	PendingConversions int64 `json:"pending_conversions"`
}

// Stats handles GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	skins, err := h.store.Skins().Count(ctx)
	if err != nil {
		response.Error(w, err)
		return
	}
	histories, err := h.store.PriceHistories().Count(ctx)
	if err != nil {
		response.Error(w, err)
		return
	}
	tasks, err := h.store.Tasks().Count(ctx)
	if err != nil {
		response.Error(w, err)
		return
	}
	conversions, err := h.store.Conversions().Count(ctx)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, StatsResponse{
		Skins:              skins,
		PriceHistories:     histories,
		Tasks:              tasks,
		PendingConversions: conversions,
	})
}

// FailedConversions handles GET /api/v1/admin/conversions/failed
//
// Permanently failed conversions are terminal; they are surfaced here so
// an operator can inspect why a listing never priced.
func (h *AdminHandler) FailedConversions(w http.ResponseWriter, r *http.Request) {
	failed, err := h.store.Conversions().FindPermanentlyFailed(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, failed)
}
