package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus represents the lifecycle state of a customer account.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "PENDING"
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusBlocked   AccountStatus = "BLOCKED"
	AccountStatusExpired   AccountStatus = "EXPIRED"
)

// Account is a customer account. Its balance is only ever mutated through
// the ledger debit/credit primitives; every other component reads it.
type Account struct {
	Number   int64     `json:"number" db:"number"`
	ClientID uuid.UUID `json:"client_id" db:"client_id"`
	AgencyID string    `json:"agency_id" db:"agency_id"`

	Balance decimal.Decimal `json:"balance" db:"balance"`
	Status  AccountStatus   `json:"status" db:"status"`

	Blocked       bool       `json:"blocked" db:"blocked"`
	BlockedReason *string    `json:"blocked_reason,omitempty" db:"blocked_reason"`
	BlockedBy     *string    `json:"blocked_by,omitempty" db:"blocked_by"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty" db:"blocked_at"`

	DailyWithdrawalLimit  decimal.Decimal `json:"daily_withdrawal_limit" db:"daily_withdrawal_limit"`
	DailyTransferLimit    decimal.Decimal `json:"daily_transfer_limit" db:"daily_transfer_limit"`
	MonthlyOperationLimit decimal.Decimal `json:"monthly_operation_limit" db:"monthly_operation_limit"`

	DailyWithdrawalUsed  decimal.Decimal `json:"daily_withdrawal_used" db:"daily_withdrawal_used"`
	DailyTransferUsed    decimal.Decimal `json:"daily_transfer_used" db:"daily_transfer_used"`
	MonthlyOperationUsed decimal.Decimal `json:"monthly_operation_used" db:"monthly_operation_used"`

	CountersResetAt time.Time `json:"counters_reset_at" db:"counters_reset_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IsOperational reports whether the account may take part in a transaction.
func (a *Account) IsOperational() bool {
	return a.Status == AccountStatusActive && !a.Blocked
}

// AccountStatusChange is one entry in the append-only status audit trail.
type AccountStatusChange struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	AccountNumber int64         `json:"account_number" db:"account_number"`
	FromStatus    AccountStatus `json:"from_status" db:"from_status"`
	ToStatus      AccountStatus `json:"to_status" db:"to_status"`
	Reason        string        `json:"reason" db:"reason"`
	Actor         string        `json:"actor" db:"actor"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// TransactionType represents categories of monetary operations.
type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "DEPOT"
	TransactionTypeWithdrawal       TransactionType = "RETRAIT_PHYSIQUE"
	TransactionTypeMobileWithdrawal TransactionType = "RETRAIT_MOBILE_MONEY"
	TransactionTypeInternalTransfer TransactionType = "TRANSFERT_INTERNE"
	TransactionTypeExternalTransfer TransactionType = "TRANSFERT_EXTERNE"
	TransactionTypeAccountFee       TransactionType = "FRAIS_COMPTE"
)

// RequiresDestination reports whether the type must carry a destination
// account.
func (t TransactionType) RequiresDestination() bool {
	return t == TransactionTypeInternalTransfer || t == TransactionTypeExternalTransfer
}

// IsWithdrawal reports whether the type counts against the daily withdrawal
// limit.
func (t TransactionType) IsWithdrawal() bool {
	return t == TransactionTypeWithdrawal || t == TransactionTypeMobileWithdrawal
}

// IsTransfer reports whether the type counts against the daily transfer
// limit.
func (t TransactionType) IsTransfer() bool {
	return t == TransactionTypeInternalTransfer || t == TransactionTypeExternalTransfer
}

// Valid reports whether the type is one this engine processes.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeMobileWithdrawal,
		TransactionTypeInternalTransfer, TransactionTypeExternalTransfer, TransactionTypeAccountFee:
		return true
	}
	return false
}

// TransactionStatus represents transaction lifecycle states.
//
// Legal transitions: CREATED -> PROCESSING -> COMPLETED | FAILED.
// A transaction is immutable once COMPLETED or FAILED.
type TransactionStatus string

const (
	TransactionStatusCreated    TransactionStatus = "CREATED"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
)

// Terminal reports whether the status admits no further transition.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// CanTransitionTo reports whether the transition from s to next is legal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionStatusCreated:
		return next == TransactionStatusProcessing
	case TransactionStatusProcessing:
		return next == TransactionStatusCompleted || next == TransactionStatusFailed
	}
	return false
}

// Transaction is the audit record of one monetary operation. Balance
// snapshots capture the source/destination state immediately before and
// after this transaction's own mutation, not a global snapshot.
type Transaction struct {
	ID                 string          `json:"id" db:"id"`
	Type               TransactionType `json:"type" db:"type"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Fee                decimal.Decimal `json:"fee" db:"fee"`
	NetAmount          decimal.Decimal `json:"net_amount" db:"net_amount"`
	SourceAccount      int64           `json:"source_account" db:"source_account"`
	DestinationAccount *int64          `json:"destination_account,omitempty" db:"destination_account"`
	Description        string          `json:"description" db:"description"`
	ExternalReference  *string         `json:"external_reference,omitempty" db:"external_reference"`

	SourceBalanceBefore      *decimal.Decimal `json:"source_balance_before,omitempty" db:"source_balance_before"`
	SourceBalanceAfter       *decimal.Decimal `json:"source_balance_after,omitempty" db:"source_balance_after"`
	DestinationBalanceBefore *decimal.Decimal `json:"destination_balance_before,omitempty" db:"destination_balance_before"`
	DestinationBalanceAfter  *decimal.Decimal `json:"destination_balance_after,omitempty" db:"destination_balance_after"`

	Status       TransactionStatus `json:"status" db:"status"`
	ErrorCode    *string           `json:"error_code,omitempty" db:"error_code"`
	StatusReason *string           `json:"status_reason,omitempty" db:"status_reason"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// DiscountTier is one volume-discount step keyed by an amount threshold.
type DiscountTier struct {
	Threshold decimal.Decimal `json:"threshold"`
	Discount  decimal.Decimal `json:"discount"` // fraction, e.g. 0.10
}

// FeeConfiguration is the fee schedule in force for one agency. It is
// read-only at transaction time; changes never retroactively affect
// completed transactions.
type FeeConfiguration struct {
	AgencyID      string                              `json:"agency_id"`
	Rates         map[TransactionType]decimal.Decimal `json:"rates"`        // percent
	MinimumFees   map[TransactionType]decimal.Decimal `json:"minimum_fees"` // currency units
	DiscountTiers []DiscountTier                      `json:"discount_tiers"`
	VATRate       decimal.Decimal                     `json:"vat_rate"` // fraction, e.g. 0.175
}
