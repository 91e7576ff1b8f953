package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"truemarket-api/internal/model"
	"truemarket-api/internal/repository"
	"truemarket-api/internal/service"
	"truemarket-api/pkg/apierror"
	"truemarket-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// SkinHandler handles listing ingestion and skin queries.
type SkinHandler struct {
	ingest     *service.IngestService
	profitable *service.ProfitableService
	skinRepo   repository.SkinRepository
}

// NewSkinHandler creates a new skin handler.
func NewSkinHandler(ingest *service.IngestService, profitable *service.ProfitableService, skinRepo repository.SkinRepository) *SkinHandler {
	return &SkinHandler{
		ingest:     ingest,
		profitable: profitable,
		skinRepo:   skinRepo,
	}
}

// IngestListing handles POST /api/v1/listings
//
// Accepted listings are answered with 202 since refresh work continues
// asynchronously. A listing whose price cannot be converted because the
// rate feed is down is answered with 503; the listing is parked and will
// be retried, so the scraper should not resubmit it.
func (h *SkinHandler) IngestListing(w http.ResponseWriter, r *http.Request) {
	var listing model.Listing
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if listing.ID == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "id", Message: "id is required"}))
		return
	}
	if listing.Name == "" {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "name", Message: "name is required"}))
		return
	}
	if listing.Price != nil && *listing.Price < 0 {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "price", Message: "price must not be negative"}))
		return
	}

	skin, err := h.ingest.Ingest(r.Context(), listing)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRateUnavailable):
			response.Error(w, apierror.ServiceUnavailable("exchange rate unavailable, listing queued for retry"))
		case errors.Is(err, model.ErrNoWearLabel),
			errors.Is(err, model.ErrUnknownWearLabel),
			errors.Is(err, model.ErrFloatOutOfRange),
			errors.Is(err, model.ErrUnknownMarketSource):
			response.Error(w, apierror.BadRequest(err.Error()))
		default:
			response.Error(w, err)
		}
		return
	}

	response.JSON(w, http.StatusAccepted, skin)
}

// ListSkins handles GET /api/v1/skins
func (h *SkinHandler) ListSkins(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	skins, total, err := h.skinRepo.FindPage(r.Context(), page, limit)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, skins, page, limit, total)
}

// GetSkin handles GET /api/v1/skins/{skinID}
func (h *SkinHandler) GetSkin(w http.ResponseWriter, r *http.Request) {
	skinID := chi.URLParam(r, "skinID")
	if skinID == "" {
		response.Error(w, apierror.BadRequest("skinID is required"))
		return
	}

	skin, err := h.skinRepo.FindByID(r.Context(), skinID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if skin == nil {
		response.Error(w, apierror.NotFound("skin not found"))
		return
	}

	response.OK(w, skin)
}

// ListProfitable handles GET /api/v1/skins/profitable
func (h *SkinHandler) ListProfitable(w http.ResponseWriter, r *http.Request) {
	query := service.ProfitableQuery{
		MinProfitBp: int64(queryInt(r, "min_profit_bp", 0)),
		Sort:        r.URL.Query().Get("sort"),
		Limit:       queryInt(r, "limit", 50),
	}

	switch query.Sort {
	case "", service.SortByProfit, service.SortByDiscount, service.SortByGain:
	default:
		response.Error(w, apierror.BadRequest("sort must be profit, discount, or gain"))
		return
	}

	skins, err := h.profitable.List(r.Context(), query)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, skins)
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
