package limits

import (
	"github.com/shopspring/decimal"

	"caisse/internal/domain"
)

// Delta is the counter increment one operation produces. It is applied to
// the source account inside the same atomic unit as the balance mutation.
type Delta struct {
	Withdrawal decimal.Decimal
	Transfer   decimal.Decimal
	Monthly    decimal.Decimal
}

// IsZero reports whether the delta changes no counter.
func (d Delta) IsZero() bool {
	return d.Withdrawal.IsZero() && d.Transfer.IsZero() && d.Monthly.IsZero()
}

// Tracker evaluates rolling usage limits against account counters.
// Deposits are exempt from every limit check.
type Tracker struct{}

func NewTracker() *Tracker {
	return &Tracker{}
}

// CanWithdraw reports whether amount fits in the remaining daily withdrawal
// allowance.
func (t *Tracker) CanWithdraw(account *domain.Account, amount decimal.Decimal) bool {
	return account.DailyWithdrawalUsed.Add(amount).LessThanOrEqual(account.DailyWithdrawalLimit)
}

// CanTransfer reports whether amount fits in the remaining daily transfer
// allowance.
func (t *Tracker) CanTransfer(account *domain.Account, amount decimal.Decimal) bool {
	return account.DailyTransferUsed.Add(amount).LessThanOrEqual(account.DailyTransferLimit)
}

// CanOperate reports whether amount fits in the remaining monthly operation
// allowance.
func (t *Tracker) CanOperate(account *domain.Account, amount decimal.Decimal) bool {
	return account.MonthlyOperationUsed.Add(amount).LessThanOrEqual(account.MonthlyOperationLimit)
}

// DeltaFor returns the counter increments a transaction type consumes.
func (t *Tracker) DeltaFor(txType domain.TransactionType, amount decimal.Decimal) Delta {
	delta := Delta{
		Withdrawal: decimal.Zero,
		Transfer:   decimal.Zero,
		Monthly:    decimal.Zero,
	}
	// Deposits and system-charged fees consume no client allowance.
	switch {
	case txType.IsWithdrawal():
		delta.Withdrawal = amount
		delta.Monthly = amount
	case txType.IsTransfer():
		delta.Transfer = amount
		delta.Monthly = amount
	}
	return delta
}
