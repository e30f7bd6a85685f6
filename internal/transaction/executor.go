package transaction

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/internal/ledger"
	"caisse/internal/limits"
	"caisse/internal/notification"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
)

// TransactionRepository persists the audit record at every state transition,
// so a crash mid-execution leaves a diagnosable PROCESSING record.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, account int64, limit, offset int) ([]*domain.Transaction, error)
	CountByAccount(ctx context.Context, account int64) (int, error)
}

// Ledger is the only path that mutates balances.
type Ledger interface {
	Debit(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error)
	Credit(ctx context.Context, account int64, amount decimal.Decimal) (*ledger.Entry, error)
	Reverse(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error)
	Transfer(ctx context.Context, posting *ledger.Posting) (*ledger.TransferResult, error)
}

// ExternalGateway credits a destination account owned by another subsystem.
// The engine compensates the source debit when the gateway fails.
type ExternalGateway interface {
	Credit(ctx context.Context, tx *domain.Transaction) error
}

// Executor applies a validated operation atomically, writes the audit
// record at each transition, and emits the terminal event.
type Executor struct {
	txRepo   TransactionRepository
	ledger   Ledger
	gateway  ExternalGateway
	notifier notification.Service
	logger   logger.Logger
}

func NewExecutor(
	txRepo TransactionRepository,
	ldg Ledger,
	gateway ExternalGateway,
	notifier notification.Service,
	log logger.Logger,
) *Executor {
	return &Executor{
		txRepo:   txRepo,
		ledger:   ldg,
		gateway:  gateway,
		notifier: notifier,
		logger:   log,
	}
}

// Execute runs the commit protocol:
//
//	CREATED -> PROCESSING -> COMPLETED | FAILED
//
// The record is persisted before any mutation. On failure after the
// PROCESSING record exists, the record is marked FAILED and no account is
// left half-mutated: internal transfers ride one atomic unit, external
// transfers compensate the source debit.
func (e *Executor) Execute(ctx context.Context, vt *ValidatedTransaction, id string) (*domain.Transaction, error) {
	now := time.Now()
	tx := &domain.Transaction{
		ID:                 id,
		Type:               vt.Request.Type,
		Amount:             vt.Request.Amount,
		Fee:                vt.Fee,
		NetAmount:          vt.Request.Amount.Add(vt.Fee),
		SourceAccount:      vt.Request.SourceAccount,
		DestinationAccount: vt.Request.DestinationAccount,
		Description:        vt.Request.Description,
		ExternalReference:  vt.Request.ExternalReference,
		Status:             domain.TransactionStatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := e.txRepo.Create(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "failed to persist transaction record")
	}

	if err := e.transition(ctx, tx, domain.TransactionStatusProcessing); err != nil {
		return tx, err
	}

	if err := e.mutate(ctx, tx, vt); err != nil {
		e.fail(ctx, tx, err)
		return tx, err
	}

	tx.Status = domain.TransactionStatusCompleted
	completed := time.Now()
	tx.CompletedAt = &completed
	if err := e.txRepo.Update(ctx, tx); err != nil {
		// The balances are committed; the record must not stay PROCESSING.
		e.logger.Error("Failed to mark transaction completed", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return tx, errors.Wrap(err, "failed to mark transaction completed")
	}

	e.emit(tx)

	return tx, nil
}

// mutate performs the balance change for the validated type and records the
// before/after snapshots on the transaction.
func (e *Executor) mutate(ctx context.Context, tx *domain.Transaction, vt *ValidatedTransaction) error {
	switch tx.Type {
	case domain.TransactionTypeDeposit:
		entry, err := e.ledger.Credit(ctx, tx.SourceAccount, tx.Amount)
		if err != nil {
			return err
		}
		tx.SourceBalanceBefore = &entry.Before
		tx.SourceBalanceAfter = &entry.After
		return nil

	case domain.TransactionTypeInternalTransfer:
		result, err := e.ledger.Transfer(ctx, &ledger.Posting{
			TransactionID:      tx.ID,
			SourceAccount:      tx.SourceAccount,
			DestinationAccount: *tx.DestinationAccount,
			DebitAmount:        tx.Amount.Add(tx.Fee),
			CreditAmount:       tx.Amount,
			Usage:              vt.Usage,
		})
		if err != nil {
			return err
		}
		tx.SourceBalanceBefore = &result.Source.Before
		tx.SourceBalanceAfter = &result.Source.After
		tx.DestinationBalanceBefore = &result.Destination.Before
		tx.DestinationBalanceAfter = &result.Destination.After
		return nil

	case domain.TransactionTypeExternalTransfer:
		debit := tx.Amount.Add(tx.Fee)
		entry, err := e.ledger.Debit(ctx, tx.SourceAccount, debit, vt.Usage)
		if err != nil {
			return err
		}
		tx.SourceBalanceBefore = &entry.Before
		tx.SourceBalanceAfter = &entry.After

		if err := e.gateway.Credit(ctx, tx); err != nil {
			// Compensation: the destination credit never happened, so the
			// source debit and its usage delta must be reversed before
			// reporting failure.
			if _, compErr := e.ledger.Reverse(ctx, tx.SourceAccount, debit, vt.Usage); compErr != nil {
				e.logger.Error("Compensation failed, source debit not reversed", map[string]interface{}{
					"transaction_id": tx.ID,
					"account":        tx.SourceAccount,
					"amount":         debit.String(),
					"error":          compErr.Error(),
				})
				return errors.Wrap(compErr, "external credit and compensation both failed")
			}
			tx.SourceBalanceAfter = tx.SourceBalanceBefore
			return errors.Wrap(err, "external destination credit failed")
		}
		return nil

	default:
		// Withdrawals and account fees: debit amount plus fee, fee retained.
		entry, err := e.ledger.Debit(ctx, tx.SourceAccount, tx.Amount.Add(tx.Fee), vt.Usage)
		if err != nil {
			return err
		}
		tx.SourceBalanceBefore = &entry.Before
		tx.SourceBalanceAfter = &entry.After
		return nil
	}
}

func (e *Executor) transition(ctx context.Context, tx *domain.Transaction, next domain.TransactionStatus) error {
	if !tx.Status.CanTransitionTo(next) {
		return errors.ErrIllegalStatusTransition
	}
	tx.Status = next
	return errors.Wrap(e.txRepo.Update(ctx, tx), "failed to persist status transition")
}

// fail marks the record FAILED with a stable code; the record is returned to
// the caller even on failure so the transaction id is always populated.
func (e *Executor) fail(ctx context.Context, tx *domain.Transaction, cause error) {
	code := classify(cause)
	reason := cause.Error()

	tx.Status = domain.TransactionStatusFailed
	tx.ErrorCode = &code
	tx.StatusReason = &reason

	if err := e.txRepo.Update(ctx, tx); err != nil {
		e.logger.Error("Failed to mark transaction failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
	}

	e.emit(tx)
}

func (e *Executor) emit(tx *domain.Transaction) {
	event := notification.FromTransaction(tx)
	go func() {
		_ = e.notifier.Emit(context.Background(), event)
	}()
}

// classify maps ledger failures raced under the row lock to the stable
// business codes callers already handle.
func classify(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, errors.ErrInsufficientBalance):
		return errors.CodeSoldeInsuffisant
	case errors.Is(err, errors.ErrWithdrawalLimitExceeded):
		return errors.CodeLimiteRetraitDepassee
	case errors.Is(err, errors.ErrTransferLimitExceeded):
		return errors.CodeLimiteTransfertDepassee
	case errors.Is(err, errors.ErrMonthlyLimitExceeded):
		return errors.CodeLimiteMensuelleDepassee
	case errors.Is(err, errors.ErrAccountNotFound):
		return errors.CodeCompteIntrouvable
	default:
		return errors.CodeExecutionFailed
	}
}
