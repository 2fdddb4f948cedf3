package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

type legRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type postGroupRequest struct {
	Type          string       `json:"type" validate:"required,oneof=INCOME EXPENSE TRANSFER SALE RESTOCK"`
	PaymentMethod string       `json:"payment_method"`
	Description   string       `json:"description"`
	Notes         string       `json:"notes"`
	Reference     string       `json:"reference"`
	ActorID       int64        `json:"actor_id" validate:"required"`
	Legs          []legRequest `json:"legs" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	ActorID int64  `json:"actor_id" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
}

type transferRequest struct {
	SourceID      int64  `json:"source_id" validate:"required"`
	DestinationID int64  `json:"destination_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description"`
	PaymentMethod string `json:"payment_method"`
	ActorID       int64  `json:"actor_id" validate:"required"`
}

type metadataRequest struct {
	Description *string `json:"description"`
	Notes       *string `json:"notes"`
	Reference   *string `json:"reference"`
	ActorID     int64   `json:"actor_id" validate:"required"`
}

func (h *Handler) handlePostGroup(w http.ResponseWriter, r *http.Request) {
	var req postGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input := PostingInput{
		Type:          GroupType(req.Type),
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		Notes:         req.Notes,
		Reference:     req.Reference,
		ActorID:       req.ActorID,
	}
	for _, leg := range req.Legs {
		amount, err := decimal.NewFromString(leg.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "leg amount must be a decimal string")
			return
		}
		input.Legs = append(input.Legs, LegInput{AccountID: leg.AccountID, Amount: amount})
	}
	group, err := h.service.PostGroup(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.GroupPosted(string(group.Type))
	httpx.JSON(w, http.StatusCreated, map[string]any{"group_id": group.ID, "group": group})
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	groups, err := h.service.ListGroups(r.Context(), limit)
	if err != nil {
		h.logger.Error("list groups", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid group id")
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{
		TransactionID: txID,
		ActorID:       req.ActorID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.GroupPosted(string(GroupTypeReversal))
	httpx.JSON(w, http.StatusCreated, map[string]any{"reversal_group_id": reversal.ID, "group": reversal})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "amount must be a decimal string")
		return
	}
	group, err := h.service.Transfer(r.Context(), TransferInput{
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Amount:        amount,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.GroupPosted(string(GroupTypeTransfer))
	httpx.JSON(w, http.StatusCreated, map[string]any{"group_id": group.ID, "success": true})
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}
	var req metadataRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	leg, err := h.service.UpdateMetadata(r.Context(), MetadataInput{
		TransactionID: txID,
		Description:   req.Description,
		Notes:         req.Notes,
		Reference:     req.Reference,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, leg)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrTooFewLegs),
		errors.Is(err, ErrZeroAmountLeg),
		errors.Is(err, ErrAmountNotPositive):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invariant Violation", err.Error())
	case errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrSameAccount):
		httpx.Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		httpx.Problem(w, http.StatusConflict, "Insufficient Funds", err.Error())
	case errors.Is(err, accounts.ErrAccountInactive):
		httpx.Problem(w, http.StatusConflict, "Account Inactive", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
