package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/pkg/config"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
)

// Repository is the persistence surface the account lifecycle needs.
type Repository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByNumber(ctx context.Context, number int64) (*domain.Account, error)
	UpdateStatus(ctx context.Context, account *domain.Account, change *domain.AccountStatusChange) error
	StatusHistory(ctx context.Context, number int64) ([]*domain.AccountStatusChange, error)
	NextNumber(ctx context.Context) (int64, error)
}

// OpenRequest carries what a new account needs at creation time.
type OpenRequest struct {
	ClientID uuid.UUID `json:"client_id" validate:"required"`
	AgencyID string    `json:"agency_id" validate:"required,max=16"`
}

// Service manages the account lifecycle: opening, suspension, blocking and
// reactivation. Balance changes never happen here.
type Service struct {
	repo   Repository
	limits config.LimitDefaults
	logger logger.Logger
}

func NewService(repo Repository, limits config.LimitDefaults, log logger.Logger) *Service {
	return &Service{repo: repo, limits: limits, logger: log}
}

// Open creates an ACTIVE account with a zero balance and the system default
// usage limits.
func (s *Service) Open(ctx context.Context, req *OpenRequest) (*domain.Account, error) {
	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate account number")
	}

	now := time.Now()
	account := &domain.Account{
		Number:                number,
		ClientID:              req.ClientID,
		AgencyID:              req.AgencyID,
		Balance:               decimal.Zero,
		Status:                domain.AccountStatusActive,
		DailyWithdrawalLimit:  s.limits.DailyWithdrawal,
		DailyTransferLimit:    s.limits.DailyTransfer,
		MonthlyOperationLimit: s.limits.MonthlyOperation,
		DailyWithdrawalUsed:   decimal.Zero,
		DailyTransferUsed:     decimal.Zero,
		MonthlyOperationUsed:  decimal.Zero,
		CountersResetAt:       now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account opened", map[string]interface{}{
		"account":   account.Number,
		"client_id": account.ClientID.String(),
		"agency_id": account.AgencyID,
	})

	return account, nil
}

// Get returns one account by number.
func (s *Service) Get(ctx context.Context, number int64) (*domain.Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

// Suspend moves an active account to SUSPENDED. Suspended accounts keep
// their balance but reject every operation until reactivated.
func (s *Service) Suspend(ctx context.Context, number int64, reason, actor string) (*domain.Account, error) {
	return s.changeStatus(ctx, number, domain.AccountStatusSuspended, reason, actor,
		func(a *domain.Account) error {
			if a.Status != domain.AccountStatusActive {
				return errors.ErrIllegalStatusTransition
			}
			a.Status = domain.AccountStatusSuspended
			return nil
		})
}

// Block hard-blocks an account regardless of its current status and records
// who blocked it and why.
func (s *Service) Block(ctx context.Context, number int64, reason, actor string) (*domain.Account, error) {
	return s.changeStatus(ctx, number, domain.AccountStatusBlocked, reason, actor,
		func(a *domain.Account) error {
			now := time.Now()
			a.Status = domain.AccountStatusBlocked
			a.Blocked = true
			a.BlockedReason = &reason
			a.BlockedBy = &actor
			a.BlockedAt = &now
			return nil
		})
}

// Reactivate returns a suspended or blocked account to ACTIVE and clears the
// block markers.
func (s *Service) Reactivate(ctx context.Context, number int64, reason, actor string) (*domain.Account, error) {
	return s.changeStatus(ctx, number, domain.AccountStatusActive, reason, actor,
		func(a *domain.Account) error {
			if a.Status != domain.AccountStatusSuspended && a.Status != domain.AccountStatusBlocked {
				return errors.ErrIllegalStatusTransition
			}
			a.Status = domain.AccountStatusActive
			a.Blocked = false
			a.BlockedReason = nil
			a.BlockedBy = nil
			a.BlockedAt = nil
			return nil
		})
}

// History returns the append-only status audit trail of one account.
func (s *Service) History(ctx context.Context, number int64) ([]*domain.AccountStatusChange, error) {
	return s.repo.StatusHistory(ctx, number)
}

func (s *Service) changeStatus(
	ctx context.Context,
	number int64,
	to domain.AccountStatus,
	reason, actor string,
	apply func(*domain.Account) error,
) (*domain.Account, error) {
	account, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	from := account.Status
	if err := apply(account); err != nil {
		return nil, err
	}
	account.UpdatedAt = time.Now()

	change := &domain.AccountStatusChange{
		ID:            uuid.New(),
		AccountNumber: number,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        reason,
		Actor:         actor,
		CreatedAt:     account.UpdatedAt,
	}

	if err := s.repo.UpdateStatus(ctx, account, change); err != nil {
		return nil, errors.Wrap(err, "failed to persist status change")
	}

	s.logger.Info("Account status changed", map[string]interface{}{
		"account": number,
		"from":    string(from),
		"to":      string(to),
		"actor":   actor,
	})

	return account, nil
}
