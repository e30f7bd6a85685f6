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

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, type, amount, fee, net_amount,
			source_account, destination_account, description, external_reference,
			source_balance_before, source_balance_after,
			destination_balance_before, destination_balance_after,
			status, error_code, status_reason,
			created_at, updated_at, completed_at
		) VALUES (
			:id, :type, :amount, :fee, :net_amount,
			:source_account, :destination_account, :description, :external_reference,
			:source_balance_before, :source_balance_after,
			:destination_balance_before, :destination_balance_after,
			:status, :error_code, :status_reason,
			:created_at, :updated_at, :completed_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, tx)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return errors.ErrTransactionAlreadyExists
		}
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// Update persists a state transition. Terminal records are immutable; the
// guard lives in SQL so no caller can bypass it.
func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	tx.UpdatedAt = time.Now()
	query := `
		UPDATE transactions SET
			status = :status,
			error_code = :error_code,
			status_reason = :status_reason,
			source_balance_before = :source_balance_before,
			source_balance_after = :source_balance_after,
			destination_balance_before = :destination_balance_before,
			destination_balance_after = :destination_balance_after,
			completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id AND status NOT IN ('COMPLETED', 'FAILED')
	`
	result, err := r.db.NamedExecContext(ctx, query, tx)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read update result")
	}
	if rows == 0 {
		return errors.ErrTransactionImmutable
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	query := `SELECT * FROM transactions WHERE id = $1`
	err := r.db.GetContext(ctx, tx, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	return tx, nil
}

func (r *TransactionRepository) FindByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	query := `SELECT * FROM transactions WHERE external_reference = $1`
	err := r.db.GetContext(ctx, tx, query, ref)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction by reference")
	}
	return tx, nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, account int64, limit, offset int) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	query := `
		SELECT * FROM transactions
		WHERE source_account = $1 OR destination_account = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &txs, query, account, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	return txs, nil
}

func (r *TransactionRepository) CountByAccount(ctx context.Context, account int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transactions WHERE source_account = $1 OR destination_account = $1`
	err := r.db.GetContext(ctx, &count, query, account)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count transactions")
	}
	return count, nil
}
