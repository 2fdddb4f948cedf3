package replenish

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires the replenishment compute endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the replenishment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type itemRequest struct {
	SKU                string `json:"sku" validate:"required"`
	CurrentStock       int64  `json:"current_stock" validate:"gte=0"`
	WeightedVelocity   string `json:"weighted_velocity" validate:"required"`
	DynamicSafetyStock string `json:"dynamic_safety_stock" validate:"required"`
	StatusOverride     string `json:"status_override"`
}

type computeRequest struct {
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

// MountRoutes registers routes. The compute endpoint gets its own tighter
// rate limit since each call may walk the whole catalogue.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(30, time.Minute)).Post("/compute", h.handleCompute)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	items := make([]Item, 0, len(req.Items))
	for _, in := range req.Items {
		velocity, err := decimal.NewFromString(in.WeightedVelocity)
		if err != nil || velocity.IsNegative() {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "weighted_velocity must be a non-negative decimal string")
			return
		}
		safety, err := decimal.NewFromString(in.DynamicSafetyStock)
		if err != nil || safety.IsNegative() {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "dynamic_safety_stock must be a non-negative decimal string")
			return
		}
		items = append(items, Item{
			SKU:                in.SKU,
			CurrentStock:       in.CurrentStock,
			WeightedVelocity:   velocity,
			DynamicSafetyStock: safety,
			StatusOverride:     in.StatusOverride,
		})
	}

	suggestions, err := h.service.Compute(r.Context(), items)
	if err != nil {
		h.logger.Error("replenishment compute failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}
