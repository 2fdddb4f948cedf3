package posting

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/stock"
)

// Handler wires HTTP endpoints for sale and restock posting.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the posting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type saleItemRequest struct {
	ProductID     int64   `json:"product_id" validate:"required"`
	Qty           int64   `json:"qty" validate:"required,gt=0"`
	UnitPrice     string  `json:"unit_price"`
	ReservationID *string `json:"reservation_id"`
}

type saleRequest struct {
	SaleID           string            `json:"sale_id"`
	Items            []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentAccountID int64             `json:"payment_account_id" validate:"required"`
	PaymentMethod    string            `json:"payment_method"`
	Description      string            `json:"description"`
	ActorID          int64             `json:"actor_id" validate:"required"`
}

type restockItemRequest struct {
	ProductID      int64  `json:"product_id" validate:"required"`
	Qty            int64  `json:"qty" validate:"required,gt=0"`
	ListCost       string `json:"list_cost" validate:"required"`
	NegotiatedCost string `json:"negotiated_cost"`
}

type restockRequest struct {
	RestockID        string               `json:"restock_id"`
	Items            []restockItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentAccountID int64                `json:"payment_account_id" validate:"required"`
	PaymentMethod    string               `json:"payment_method"`
	Description      string               `json:"description"`
	ActorID          int64                `json:"actor_id" validate:"required"`
}

// MountSaleRoutes registers the sale posting endpoint.
func (h *Handler) MountSaleRoutes(r chi.Router) {
	r.Post("/", h.handlePostSale)
}

// MountRestockRoutes registers the restock posting endpoint.
func (h *Handler) MountRestockRoutes(r chi.Router) {
	r.Post("/", h.handlePostRestock)
}

func (h *Handler) handlePostSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input := SaleInput{
		Items:            make([]SaleItem, 0, len(req.Items)),
		PaymentAccountID: req.PaymentAccountID,
		PaymentMethod:    req.PaymentMethod,
		Description:      req.Description,
		ActorID:          req.ActorID,
	}
	if req.SaleID != "" {
		id, err := uuid.Parse(req.SaleID)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "sale_id must be a uuid")
			return
		}
		input.SaleID = id
	}
	for _, item := range req.Items {
		converted := SaleItem{ProductID: item.ProductID, Qty: item.Qty}
		if item.UnitPrice != "" {
			price, err := decimal.NewFromString(item.UnitPrice)
			if err != nil {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unit_price must be a decimal string")
				return
			}
			converted.UnitPrice = price
		}
		if item.ReservationID != nil {
			resID, err := uuid.Parse(*item.ReservationID)
			if err != nil {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "reservation_id must be a uuid")
				return
			}
			converted.ReservationID = &resID
		}
		input.Items = append(input.Items, converted)
	}
	result, err := h.service.PostSale(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handlePostRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input := RestockInput{
		Items:            make([]RestockItem, 0, len(req.Items)),
		PaymentAccountID: req.PaymentAccountID,
		PaymentMethod:    req.PaymentMethod,
		Description:      req.Description,
		ActorID:          req.ActorID,
	}
	if req.RestockID != "" {
		id, err := uuid.Parse(req.RestockID)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "restock_id must be a uuid")
			return
		}
		input.RestockID = id
	}
	for _, item := range req.Items {
		listCost, err := decimal.NewFromString(item.ListCost)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "list_cost must be a decimal string")
			return
		}
		converted := RestockItem{ProductID: item.ProductID, Qty: item.Qty, ListCost: listCost}
		if item.NegotiatedCost != "" {
			negotiated, err := decimal.NewFromString(item.NegotiatedCost)
			if err != nil {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "negotiated_cost must be a decimal string")
				return
			}
			converted.NegotiatedCost = negotiated
		}
		input.Items = append(input.Items, converted)
	}
	result, err := h.service.PostRestock(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoItems),
		errors.Is(err, ErrPaymentAccountRequired),
		errors.Is(err, ErrProductRequired),
		errors.Is(err, ErrQuantityNotPositive),
		errors.Is(err, ErrNegativePrice),
		errors.Is(err, ErrCostNotPositive),
		errors.Is(err, ErrNegotiatedAboveList):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrProductNotFound),
		errors.Is(err, stock.ErrReservationNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, stock.ErrReservationFinal),
		errors.Is(err, ErrReservationMismatch),
		errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, accounts.ErrAccountInactive):
		httpx.Problem(w, http.StatusConflict, "Account Inactive", err.Error())
	case errors.Is(err, ledger.ErrUnbalanced):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invariant Violation", err.Error())
	default:
		h.logger.Error("posting request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
