package ledger

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"caisse/internal/limits"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
)

// pq error code for a lock_timeout expiry.
const lockNotAvailable = "55P03"

// Entry is the point-in-time snapshot of a single account mutation.
type Entry struct {
	Account int64
	Before  decimal.Decimal
	After   decimal.Decimal
}

// Posting describes a two-account transfer applied as one atomic unit.
// The fee stays on the source side: DebitAmount = amount + fee,
// CreditAmount = amount.
type Posting struct {
	TransactionID      string
	SourceAccount      int64
	DestinationAccount int64
	DebitAmount        decimal.Decimal
	CreditAmount       decimal.Decimal
	Usage              limits.Delta
}

// TransferResult carries both legs' snapshots.
type TransferResult struct {
	Source      Entry
	Destination Entry
}

// Service owns every balance mutation in the engine. Each primitive
// serializes read-then-write per account with SELECT ... FOR UPDATE under a
// bounded lock wait; callers holding no lock see either the full effect or
// none of it.
type Service struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewService(db *sqlx.DB, log logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

type lockedRow struct {
	Balance               decimal.Decimal `db:"balance"`
	DailyWithdrawalLimit  decimal.Decimal `db:"daily_withdrawal_limit"`
	DailyTransferLimit    decimal.Decimal `db:"daily_transfer_limit"`
	MonthlyOperationLimit decimal.Decimal `db:"monthly_operation_limit"`
	DailyWithdrawalUsed   decimal.Decimal `db:"daily_withdrawal_used"`
	DailyTransferUsed     decimal.Decimal `db:"daily_transfer_used"`
	MonthlyOperationUsed  decimal.Decimal `db:"monthly_operation_used"`
}

// Debit atomically removes amount from one account and applies the usage
// delta to its rolling counters. Balance and limit guards are re-evaluated
// under the row lock, so concurrent transactions cannot overdraw.
func (s *Service) Debit(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*Entry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin debit")
	}
	defer tx.Rollback()

	row, err := lockAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	if row.Balance.LessThan(amount) {
		return nil, errors.ErrInsufficientBalance
	}
	if err := checkUsage(row, usage); err != nil {
		return nil, err
	}

	after := row.Balance.Sub(amount)
	if err := applyMutation(ctx, tx, account, after, usage); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit debit")
	}
	return &Entry{Account: account, Before: row.Balance, After: after}, nil
}

// Credit atomically adds amount to one account. Credits consume no limits.
func (s *Service) Credit(ctx context.Context, account int64, amount decimal.Decimal) (*Entry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin credit")
	}
	defer tx.Rollback()

	row, err := lockAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	after := row.Balance.Add(amount)
	if err := applyMutation(ctx, tx, account, after, limits.Delta{}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit credit")
	}
	return &Entry{Account: account, Before: row.Balance, After: after}, nil
}

// Reverse undoes an applied debit on the compensation path: the balance is
// credited back and the usage delta the debit consumed is returned to the
// rolling counters. Counters are floored at zero in case a sweep reset them
// between the debit and the reversal.
func (s *Service) Reverse(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*Entry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin reversal")
	}
	defer tx.Rollback()

	row, err := lockAccount(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	after := row.Balance.Add(amount)
	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET
			balance = $1,
			daily_withdrawal_used = GREATEST(daily_withdrawal_used - $2, 0),
			daily_transfer_used = GREATEST(daily_transfer_used - $3, 0),
			monthly_operation_used = GREATEST(monthly_operation_used - $4, 0),
			updated_at = NOW()
		WHERE number = $5
	`, after, usage.Withdrawal, usage.Transfer, usage.Monthly, account)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply reversal")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit reversal")
	}
	return &Entry{Account: account, Before: row.Balance, After: after}, nil
}

// Transfer applies both legs of an internal transfer in one database
// transaction. Rows are locked in ascending account-number order so two
// transfers over the same pair in opposite directions cannot deadlock.
func (s *Service) Transfer(ctx context.Context, posting *Posting) (*TransferResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transfer")
	}
	defer tx.Rollback()

	first, second := posting.SourceAccount, posting.DestinationAccount
	if second < first {
		first, second = second, first
	}

	rows := make(map[int64]*lockedRow, 2)
	for _, number := range []int64{first, second} {
		row, err := lockAccount(ctx, tx, number)
		if err != nil {
			return nil, err
		}
		rows[number] = row
	}

	source := rows[posting.SourceAccount]
	destination := rows[posting.DestinationAccount]

	if source.Balance.LessThan(posting.DebitAmount) {
		return nil, errors.ErrInsufficientBalance
	}
	if err := checkUsage(source, posting.Usage); err != nil {
		return nil, err
	}

	sourceAfter := source.Balance.Sub(posting.DebitAmount)
	destinationAfter := destination.Balance.Add(posting.CreditAmount)

	if err := applyMutation(ctx, tx, posting.SourceAccount, sourceAfter, posting.Usage); err != nil {
		return nil, err
	}
	if err := applyMutation(ctx, tx, posting.DestinationAccount, destinationAfter, limits.Delta{}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transfer")
	}

	return &TransferResult{
		Source:      Entry{Account: posting.SourceAccount, Before: source.Balance, After: sourceAfter},
		Destination: Entry{Account: posting.DestinationAccount, Before: destination.Balance, After: destinationAfter},
	}, nil
}

func lockAccount(ctx context.Context, tx *sqlx.Tx, account int64) (*lockedRow, error) {
	// Bounded wait: surface a retryable error instead of queueing forever.
	if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		return nil, errors.Wrap(err, "failed to set lock timeout")
	}

	row := &lockedRow{}
	err := tx.GetContext(ctx, row, `
		SELECT balance,
		       daily_withdrawal_limit, daily_transfer_limit, monthly_operation_limit,
		       daily_withdrawal_used, daily_transfer_used, monthly_operation_used
		FROM accounts
		WHERE number = $1
		FOR UPDATE
	`, account)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == lockNotAvailable {
			return nil, errors.ErrLockTimeout
		}
		return nil, errors.Wrap(err, "failed to lock account")
	}
	return row, nil
}

func checkUsage(row *lockedRow, usage limits.Delta) error {
	if usage.Withdrawal.IsPositive() &&
		row.DailyWithdrawalUsed.Add(usage.Withdrawal).GreaterThan(row.DailyWithdrawalLimit) {
		return errors.ErrWithdrawalLimitExceeded
	}
	if usage.Transfer.IsPositive() &&
		row.DailyTransferUsed.Add(usage.Transfer).GreaterThan(row.DailyTransferLimit) {
		return errors.ErrTransferLimitExceeded
	}
	if usage.Monthly.IsPositive() &&
		row.MonthlyOperationUsed.Add(usage.Monthly).GreaterThan(row.MonthlyOperationLimit) {
		return errors.ErrMonthlyLimitExceeded
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sqlx.Tx, account int64, newBalance decimal.Decimal, usage limits.Delta) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts SET
			balance = $1,
			daily_withdrawal_used = daily_withdrawal_used + $2,
			daily_transfer_used = daily_transfer_used + $3,
			monthly_operation_used = monthly_operation_used + $4,
			updated_at = NOW()
		WHERE number = $5
	`, newBalance, usage.Withdrawal, usage.Transfer, usage.Monthly, account)
	return errors.Wrap(err, "failed to apply account mutation")
}
