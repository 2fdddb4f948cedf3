package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for account master data.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Post("/{id}/deactivate", h.handleDeactivate)
	r.Get("/verify", h.handleVerify)
}

type createRequest struct {
	Code          string `json:"code" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=CASH BANK EWALLET NOMINAL"`
	Currency      string `json:"currency" validate:"omitempty,len=3"`
	IsNominal     bool   `json:"is_nominal"`
	AllowNegative bool   `json:"allow_negative"`
	ActorID       int64  `json:"actor_id" validate:"required"`
}

type updateRequest struct {
	Name          string `json:"name" validate:"required"`
	AllowNegative bool   `json:"allow_negative"`
	ActorID       int64  `json:"actor_id" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	accounts, err := h.service.List(r.Context(), includeInactive)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		Code:          req.Code,
		Name:          req.Name,
		Type:          AccountType(req.Type),
		Currency:      req.Currency,
		IsNominal:     req.IsNominal,
		AllowNegative: req.AllowNegative,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Update(r.Context(), id, req.Name, req.AllowNegative, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err := h.service.Deactivate(r.Context(), id, actorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.VerifyBalances(r.Context())
	if err != nil {
		h.logger.Error("verify balances", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drifts": drifts, "clean": len(drifts) == 0})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCodeTaken):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
