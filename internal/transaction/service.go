package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
	"caisse/pkg/validator"
)

// Result is the structured outcome of ProcessTransaction. TransactionID is
// populated on every path once the audit record exists.
type Result struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Message       string          `json:"message"`
}

// Service is the engine's sole entry point: it sequences validation, fee
// computation and atomic execution, and shapes every outcome into a Result.
type Service struct {
	validator *Validator
	executor  *Executor
	txRepo    TransactionRepository
	logger    logger.Logger
}

func NewService(v *Validator, e *Executor, txRepo TransactionRepository, log logger.Logger) *Service {
	return &Service{
		validator: v,
		executor:  e,
		txRepo:    txRepo,
		logger:    log,
	}
}

// ProcessTransaction validates and executes one monetary operation.
// Business failures come back as a Result with a stable error code, never
// as an error; unexpected failures surface the generic technical code
// without leaking internals.
func (s *Service) ProcessTransaction(ctx context.Context, req *Request) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic during transaction processing", map[string]interface{}{
				"panic":  fmt.Sprintf("%v", r),
				"source": req.SourceAccount,
			})
			result = &Result{
				Success:   false,
				Amount:    req.Amount,
				ErrorCode: errors.CodeErreurTechnique,
				Message:   "une erreur technique est survenue",
			}
		}
	}()

	req.Description = validator.Sanitize(req.Description)

	if req.ExternalReference != nil && *req.ExternalReference != "" {
		if existing, err := s.txRepo.FindByExternalReference(ctx, *req.ExternalReference); err == nil {
			return s.replayed(existing)
		}
	}

	vt, err := s.validator.Validate(ctx, req)
	if err != nil {
		return s.rejected(req, err)
	}

	id := s.generateID()

	s.logger.Info("Executing transaction", map[string]interface{}{
		"transaction_id": id,
		"type":           string(req.Type),
		"amount":         req.Amount.String(),
		"fee":            vt.Fee.String(),
		"source":         req.SourceAccount,
	})

	tx, err := s.executor.Execute(ctx, vt, id)
	if err != nil {
		return s.failed(req, tx, vt.Fee, err)
	}

	return &Result{
		Success:       true,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
		Message:       "transaction effectuee avec succes",
	}
}

// replayed shapes the idempotent answer to a duplicate external reference:
// the recorded outcome is returned and nothing executes a second time.
func (s *Service) replayed(tx *domain.Transaction) *Result {
	s.logger.Info("Duplicate external reference, replaying recorded outcome", map[string]interface{}{
		"transaction_id": tx.ID,
		"reference":      *tx.ExternalReference,
		"status":         string(tx.Status),
	})

	result := &Result{
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
	}
	switch tx.Status {
	case domain.TransactionStatusCompleted:
		result.Success = true
		result.Message = "transaction effectuee avec succes"
	case domain.TransactionStatusFailed:
		result.ErrorCode = errors.CodeExecutionFailed
		result.Message = "l'execution de la transaction a echoue"
		if tx.ErrorCode != nil {
			result.ErrorCode = *tx.ErrorCode
		}
		if tx.StatusReason != nil {
			result.Message = *tx.StatusReason
		}
	default:
		// Still in flight: the caller retried before the first attempt
		// reached a terminal state.
		result.ErrorCode = errors.CodeReferenceDupliquee
		result.Message = "une transaction avec cette reference est deja en cours"
	}
	return result
}

// rejected shapes a pre-execution validation failure: nothing was persisted,
// so no transaction id exists yet.
func (s *Service) rejected(req *Request, err error) *Result {
	code := errors.CodeOf(err)
	message := err.Error()
	if code == "" {
		s.logger.Error("Validation failed unexpectedly", map[string]interface{}{
			"source": req.SourceAccount,
			"error":  err.Error(),
		})
		code = errors.CodeErreurTechnique
		message = "une erreur technique est survenue"
	} else {
		s.logger.Warn("Transaction rejected", map[string]interface{}{
			"source": req.SourceAccount,
			"type":   string(req.Type),
			"amount": req.Amount.String(),
			"code":   code,
		})
		var coded *errors.CodedError
		if errors.As(err, &coded) {
			message = coded.Message
		}
	}

	return &Result{
		Success:   false,
		Amount:    req.Amount,
		ErrorCode: code,
		Message:   message,
	}
}

// failed shapes an execution failure: the record exists, so the id is
// carried even though the operation did not apply.
func (s *Service) failed(req *Request, tx *domain.Transaction, fee decimal.Decimal, err error) *Result {
	result := &Result{
		Success:   false,
		Amount:    req.Amount,
		Fee:       fee,
		ErrorCode: errors.CodeExecutionFailed,
		Message:   "l'execution de la transaction a echoue",
	}
	if tx != nil {
		result.TransactionID = tx.ID
		if tx.ErrorCode != nil {
			result.ErrorCode = *tx.ErrorCode
		}
		if tx.StatusReason != nil {
			result.Message = *tx.StatusReason
		}
	}

	s.logger.Error("Transaction execution failed", map[string]interface{}{
		"transaction_id": result.TransactionID,
		"type":           string(req.Type),
		"amount":         req.Amount.String(),
		"code":           result.ErrorCode,
		"error":          err.Error(),
	})

	return result
}

// generateID builds a time-ordered identifier with a random suffix, so ids
// sort chronologically while staying collision-free.
func (s *Service) generateID() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("TRX-%s-%s", time.Now().UTC().Format("20060102150405"), suffix)
}

// GetTransaction returns one audit record.
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.txRepo.GetByID(ctx, id)
}

// GetAccountTransactions pages through an account's audit trail.
func (s *Service) GetAccountTransactions(ctx context.Context, account int64, limit, offset int) ([]*domain.Transaction, int, error) {
	txs, err := s.txRepo.ListByAccount(ctx, account, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.txRepo.CountByAccount(ctx, account)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
