package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"caisse/internal/account"
	"caisse/internal/domain"
	"caisse/pkg/errors"
	"caisse/pkg/validator"
)

type AccountHandler struct {
	service   *account.Service
	validator *validator.Validator
	logger    Logger
}

func NewAccountHandler(service *account.Service, val *validator.Validator, log Logger) *AccountHandler {
	return &AccountHandler{service: service, validator: val, logger: log}
}

type statusChangeRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
	Actor  string `json:"actor" validate:"required,max=64"`
}

// Open handles account creation.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req account.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	acc, err := h.service.Open(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrAccountAlreadyExists) {
			h.respondError(w, http.StatusConflict, "Account already exists")
			return
		}
		h.logger.Error("Failed to open account", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to open account")
		return
	}

	h.respondJSON(w, http.StatusCreated, acc)
}

// Get returns one account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	number, ok := h.accountNumber(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Get(r.Context(), number)
	if err != nil {
		if errors.Is(err, errors.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error("Failed to fetch account", map[string]interface{}{"account": number, "error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch account")
		return
	}

	h.respondJSON(w, http.StatusOK, acc)
}

// Suspend moves an account to SUSPENDED.
func (h *AccountHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Suspend)
}

// Block hard-blocks an account.
func (h *AccountHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Block)
}

// Reactivate returns a suspended or blocked account to ACTIVE.
func (h *AccountHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Reactivate)
}

// History returns the status audit trail of one account.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	number, ok := h.accountNumber(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), number)
	if err != nil {
		h.logger.Error("Failed to fetch status history", map[string]interface{}{"account": number, "error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch status history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (h *AccountHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, number int64, reason, actor string) (*domain.Account, error),
) {
	number, ok := h.accountNumber(w, r)
	if !ok {
		return
	}

	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}
	req.Reason = validator.Sanitize(req.Reason)

	acc, err := op(r.Context(), number, req.Reason, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrAccountNotFound):
			h.respondError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, errors.ErrIllegalStatusTransition):
			h.respondError(w, http.StatusConflict, "Status transition not allowed")
		default:
			h.logger.Error("Failed to change account status", map[string]interface{}{
				"account": number,
				"error":   err.Error(),
			})
			h.respondError(w, http.StatusInternalServerError, "Failed to change account status")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, acc)
}

func (h *AccountHandler) accountNumber(w http.ResponseWriter, r *http.Request) (int64, bool) {
	number, err := strconv.ParseInt(mux.Vars(r)["number"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account number")
		return 0, false
	}
	return number, true
}

func (h *AccountHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AccountHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
