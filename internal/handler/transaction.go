package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"caisse/internal/transaction"
	"caisse/pkg/errors"
	"caisse/pkg/validator"
)

// Logger is the logging surface handlers need.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// statusForCode maps the stable business codes to HTTP statuses. Unknown
// codes default to 422: the request was well-formed but the operation was
// refused.
func statusForCode(code string) int {
	switch code {
	case errors.CodeCompteIntrouvable:
		return http.StatusNotFound
	case errors.CodeErreurTechnique, errors.CodeExecutionFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

type TransactionHandler struct {
	service   *transaction.Service
	validator *validator.Validator
	logger    Logger
}

func NewTransactionHandler(service *transaction.Service, val *validator.Validator, log Logger) *TransactionHandler {
	return &TransactionHandler{service: service, validator: val, logger: log}
}

// Process handles transaction submission.
func (h *TransactionHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req transaction.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := h.validator.ValidateStructured(&req); errs != nil {
		h.respondValidationErrors(w, errs)
		return
	}

	result := h.service.ProcessTransaction(r.Context(), &req)
	if !result.Success {
		h.respondJSON(w, statusForCode(result.ErrorCode), result)
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

// Get returns one transaction by id.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, errors.ErrTransactionNotFound) {
			h.respondError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.logger.Error("Failed to fetch transaction", map[string]interface{}{"id": id, "error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch transaction")
		return
	}

	h.respondJSON(w, http.StatusOK, tx)
}

// ListByAccount returns the paginated audit trail of one account.
func (h *TransactionHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(mux.Vars(r)["number"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account number")
		return
	}

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	txs, total, err := h.service.GetAccountTransactions(r.Context(), number, limit, offset)
	if err != nil {
		h.logger.Error("Failed to fetch account transactions", map[string]interface{}{
			"account": number,
			"error":   err.Error(),
		})
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *TransactionHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *TransactionHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *TransactionHandler) respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
}
