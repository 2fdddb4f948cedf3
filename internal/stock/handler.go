package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for products and reservations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountReservationRoutes registers reservation lifecycle routes.
func (h *Handler) MountReservationRoutes(r chi.Router) {
	r.Post("/", h.handleReserve)
	r.Get("/{id}", h.handleGetReservation)
	r.Post("/{id}/commit", h.handleCommit)
	r.Post("/{id}/cancel", h.handleCancel)
}

// MountProductRoutes registers product master data routes.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/", h.handleListProducts)
	r.Post("/", h.handleCreateProduct)
	r.Get("/{id}", h.handleGetProduct)
	r.Put("/{id}", h.handleUpdateProduct)
	r.Post("/{id}/adjust", h.handleAdjustStock)
}

type reserveRequest struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type productRequest struct {
	SKU          string `json:"sku" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Category     string `json:"category"`
	Brand        string `json:"brand"`
	InitialStock int64  `json:"initial_stock" validate:"gte=0"`
	CostPrice    string `json:"cost_price" validate:"required"`
	SellingPrice string `json:"selling_price" validate:"required"`
	TargetMargin string `json:"target_margin"`
	ActorID      int64  `json:"actor_id" validate:"required"`
}

type adjustRequest struct {
	Delta   int64 `json:"delta" validate:"required"`
	ActorID int64 `json:"actor_id" validate:"required"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	reservation, err := h.service.Reserve(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"reservation_id": reservation.ID, "reservation": reservation})
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reservation id")
		return
	}
	reservation, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reservation id")
		return
	}
	if err := h.service.Commit(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid reservation id")
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	products, err := h.service.ListProducts(r.Context(), includeInactive)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.AdjustStock(r.Context(), id, req.Delta, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) decodeProductInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return ProductInput{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return ProductInput{}, false
	}
	costPrice, err := decimal.NewFromString(req.CostPrice)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "cost_price must be a decimal string")
		return ProductInput{}, false
	}
	sellingPrice, err := decimal.NewFromString(req.SellingPrice)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "selling_price must be a decimal string")
		return ProductInput{}, false
	}
	targetMargin := decimal.Zero
	if req.TargetMargin != "" {
		targetMargin, err = decimal.NewFromString(req.TargetMargin)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "target_margin must be a decimal string")
			return ProductInput{}, false
		}
	}
	return ProductInput{
		SKU:          req.SKU,
		Name:         req.Name,
		Category:     req.Category,
		Brand:        req.Brand,
		InitialStock: req.InitialStock,
		CostPrice:    costPrice,
		SellingPrice: sellingPrice,
		TargetMargin: targetMargin,
		ActorID:      req.ActorID,
	}, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrReservationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrReservationFinal):
		httpx.Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, ErrSKUTaken), errors.Is(err, ErrStockBelowReserved):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
