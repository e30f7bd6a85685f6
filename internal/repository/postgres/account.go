package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"caisse/internal/domain"
	"caisse/pkg/errors"
)

const uniqueViolation = "23505"

type AccountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			number, client_id, agency_id, balance, status,
			blocked, blocked_reason, blocked_by, blocked_at,
			daily_withdrawal_limit, daily_transfer_limit, monthly_operation_limit,
			daily_withdrawal_used, daily_transfer_used, monthly_operation_used,
			counters_reset_at, created_at, updated_at
		) VALUES (
			:number, :client_id, :agency_id, :balance, :status,
			:blocked, :blocked_reason, :blocked_by, :blocked_at,
			:daily_withdrawal_limit, :daily_transfer_limit, :monthly_operation_limit,
			:daily_withdrawal_used, :daily_transfer_used, :monthly_operation_used,
			:counters_reset_at, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return errors.ErrAccountAlreadyExists
		}
		return errors.Wrap(err, "failed to create account")
	}
	return nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number int64) (*domain.Account, error) {
	account := &domain.Account{}
	query := `SELECT * FROM accounts WHERE number = $1`
	err := r.db.GetContext(ctx, account, query, number)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to find account")
	}
	return account, nil
}

// UpdateStatus transitions an account and appends the audit trail entry in
// one transaction; the history is append-only.
func (r *AccountRepository) UpdateStatus(ctx context.Context, account *domain.Account, change *domain.AccountStatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin status update")
	}
	defer tx.Rollback()

	account.UpdatedAt = time.Now()
	_, err = tx.NamedExecContext(ctx, `
		UPDATE accounts SET
			status = :status,
			blocked = :blocked,
			blocked_reason = :blocked_reason,
			blocked_by = :blocked_by,
			blocked_at = :blocked_at,
			updated_at = :updated_at
		WHERE number = :number
	`, account)
	if err != nil {
		return errors.Wrap(err, "failed to update account status")
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO account_status_history (
			id, account_number, from_status, to_status, reason, actor, created_at
		) VALUES (
			:id, :account_number, :from_status, :to_status, :reason, :actor, :created_at
		)
	`, change)
	if err != nil {
		return errors.Wrap(err, "failed to append status history")
	}

	return errors.Wrap(tx.Commit(), "failed to commit status update")
}

func (r *AccountRepository) StatusHistory(ctx context.Context, number int64) ([]*domain.AccountStatusChange, error) {
	var history []*domain.AccountStatusChange
	query := `SELECT * FROM account_status_history WHERE account_number = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &history, query, number)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load status history")
	}
	return history, nil
}

// ListActiveNumbers pages through ACTIVE account numbers for scheduler
// sweeps.
func (r *AccountRepository) ListActiveNumbers(ctx context.Context, limit int, afterNumber int64) ([]int64, error) {
	var numbers []int64
	query := `
		SELECT number FROM accounts
		WHERE status = $1 AND number > $2
		ORDER BY number
		LIMIT $3
	`
	err := r.db.SelectContext(ctx, &numbers, query, domain.AccountStatusActive, afterNumber, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active accounts")
	}
	return numbers, nil
}

// ResetDailyCounters zeroes the daily counters for every ACTIVE account and,
// when monthly is set, the monthly counter too. The counters_reset_at guard
// makes the sweep idempotent per calendar day: a process restart cannot wipe
// usage already consumed since the morning reset. Returns the number of
// accounts swept.
func (r *AccountRepository) ResetDailyCounters(ctx context.Context, now time.Time, monthly bool) (int64, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	query := `
		UPDATE accounts SET
			daily_withdrawal_used = 0,
			daily_transfer_used = 0,
			monthly_operation_used = CASE WHEN $1 THEN 0 ELSE monthly_operation_used END,
			counters_reset_at = $2,
			updated_at = $2
		WHERE status = $3 AND counters_reset_at < $4
	`
	result, err := r.db.ExecContext(ctx, query, monthly, now, domain.AccountStatusActive, dayStart)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reset daily counters")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count reset accounts")
	}
	return affected, nil
}

// NextNumber draws a fresh account number from the sequence.
func (r *AccountRepository) NextNumber(ctx context.Context) (int64, error) {
	var number int64
	err := r.db.GetContext(ctx, &number, `SELECT nextval('account_number_seq')`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate account number")
	}
	return number, nil
}
