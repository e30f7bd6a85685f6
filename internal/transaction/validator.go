package transaction

import (
	"context"

	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/internal/limits"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
)

// Request is the single inbound contract of the engine.
type Request struct {
	Type               domain.TransactionType `json:"type" validate:"required"`
	Amount             decimal.Decimal        `json:"amount" validate:"required"`
	SourceAccount      int64                  `json:"source_account" validate:"required"`
	DestinationAccount *int64                 `json:"destination_account,omitempty"`
	Description        string                 `json:"description" validate:"max=255"`
	ExternalReference  *string                `json:"external_reference,omitempty"`
}

// ValidatedTransaction is the immutable hand-off between validation and
// execution. It carries the fee, the account snapshots taken at validation
// time, and the usage delta the execution must record.
type ValidatedTransaction struct {
	Request     Request
	Fee         decimal.Decimal
	Source      *domain.Account
	Destination *domain.Account
	Usage       limits.Delta
}

// FeeCalculator computes the fee for one operation.
type FeeCalculator interface {
	Calculate(txType domain.TransactionType, amount decimal.Decimal, agencyCfg *domain.FeeConfiguration) decimal.Decimal
}

// FeeConfigProvider resolves the agency override schedule; nil means system
// defaults apply.
type FeeConfigProvider interface {
	GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error)
}

// AccountReader is the read-only account lookup validation needs.
type AccountReader interface {
	GetByNumber(ctx context.Context, number int64) (*domain.Account, error)
}

// Validator runs the ordered business rule checks. The first failing check
// wins; no check mutates anything.
type Validator struct {
	accounts   AccountReader
	calculator FeeCalculator
	feeConfigs FeeConfigProvider
	tracker    *limits.Tracker
	ceiling    decimal.Decimal
	logger     logger.Logger
}

func NewValidator(
	accounts AccountReader,
	calculator FeeCalculator,
	feeConfigs FeeConfigProvider,
	tracker *limits.Tracker,
	ceiling decimal.Decimal,
	log logger.Logger,
) *Validator {
	return &Validator{
		accounts:   accounts,
		calculator: calculator,
		feeConfigs: feeConfigs,
		tracker:    tracker,
		ceiling:    ceiling,
		logger:     log,
	}
}

// Validate checks one request and, when every rule passes, returns the
// validated hand-off for the executor. Failures come back as *errors.CodedError.
func (v *Validator) Validate(ctx context.Context, req *Request) (*ValidatedTransaction, error) {
	if !req.Type.Valid() {
		return nil, errors.NewCodedf(errors.CodeTypeTransactionInvalide,
			"type de transaction inconnu: %s", req.Type)
	}

	// 1. Amount bounds.
	if !req.Amount.IsPositive() {
		return nil, errors.NewCoded(errors.CodeMontantInvalide,
			"le montant doit etre strictement positif")
	}
	if req.Amount.GreaterThan(v.ceiling) {
		return nil, errors.NewCodedf(errors.CodeMontantTropEleve,
			"le montant depasse le plafond autorise de %s", v.ceiling)
	}

	// 2. Destination required for transfer types.
	if req.Type.RequiresDestination() && req.DestinationAccount == nil {
		return nil, errors.NewCoded(errors.CodeCompteDestinationRequis,
			"un compte destination est requis pour ce type de transaction")
	}

	// 3. Source account exists.
	source, err := v.accounts.GetByNumber(ctx, req.SourceAccount)
	if err != nil {
		if err == errors.ErrAccountNotFound {
			return nil, errors.NewCodedf(errors.CodeCompteIntrouvable,
				"compte %d introuvable", req.SourceAccount)
		}
		return nil, errors.Wrap(err, "failed to load source account")
	}

	// 4. Source account operational.
	if !source.IsOperational() {
		return nil, errors.NewCodedf(errors.CodeCompteInactif,
			"compte %d inactif ou bloque", source.Number)
	}

	// 5. Fee and balance sufficiency (deposits are exempt).
	fee := decimal.Zero
	if req.Type != domain.TransactionTypeDeposit {
		agencyCfg, cfgErr := v.feeConfigs.GetAgencyFeeConfig(ctx, source.AgencyID)
		if cfgErr != nil {
			// Degraded mode: calculate against system defaults only.
			v.logger.Warn("Fee configuration unavailable, using defaults", map[string]interface{}{
				"event":     "fee_config_fallback",
				"agency_id": source.AgencyID,
				"error":     cfgErr.Error(),
			})
			agencyCfg = nil
		}
		fee = v.calculator.Calculate(req.Type, req.Amount, agencyCfg)

		required := req.Amount.Add(fee)
		if source.Balance.LessThan(required) {
			return nil, errors.NewCodedf(errors.CodeSoldeInsuffisant,
				"solde insuffisant: requis %s, disponible %s", required, source.Balance)
		}
	}

	// 6. Rolling usage limits (deposits and account fees are exempt).
	switch {
	case req.Type.IsWithdrawal():
		if !v.tracker.CanWithdraw(source, req.Amount) {
			return nil, errors.NewCodedf(errors.CodeLimiteRetraitDepassee,
				"limite de retrait journaliere depassee: utilise %s, limite %s",
				source.DailyWithdrawalUsed, source.DailyWithdrawalLimit)
		}
	case req.Type.IsTransfer():
		if !v.tracker.CanTransfer(source, req.Amount) {
			return nil, errors.NewCodedf(errors.CodeLimiteTransfertDepassee,
				"limite de transfert journaliere depassee: utilise %s, limite %s",
				source.DailyTransferUsed, source.DailyTransferLimit)
		}
	}
	if req.Type.IsWithdrawal() || req.Type.IsTransfer() {
		if !v.tracker.CanOperate(source, req.Amount) {
			return nil, errors.NewCodedf(errors.CodeLimiteMensuelleDepassee,
				"limite mensuelle d'operations depassee: utilise %s, limite %s",
				source.MonthlyOperationUsed, source.MonthlyOperationLimit)
		}
	}

	// 7. Destination checks. External transfers settle in another subsystem,
	// so only internal destinations are resolvable here.
	var destination *domain.Account
	if req.DestinationAccount != nil {
		if *req.DestinationAccount == req.SourceAccount {
			return nil, errors.NewCoded(errors.CodeAutoTransfertInterdit,
				"transfert vers le meme compte interdit")
		}
		if req.Type == domain.TransactionTypeInternalTransfer {
			destination, err = v.accounts.GetByNumber(ctx, *req.DestinationAccount)
			if err != nil {
				if err == errors.ErrAccountNotFound {
					return nil, errors.NewCodedf(errors.CodeCompteDestinationInactif,
						"compte destination %d introuvable", *req.DestinationAccount)
				}
				return nil, errors.Wrap(err, "failed to load destination account")
			}
			if !destination.IsOperational() {
				return nil, errors.NewCodedf(errors.CodeCompteDestinationInactif,
					"compte destination %d inactif", destination.Number)
			}
		}
	}

	return &ValidatedTransaction{
		Request:     *req,
		Fee:         fee,
		Source:      source,
		Destination: destination,
		Usage:       v.tracker.DeltaFor(req.Type, req.Amount),
	}, nil
}
