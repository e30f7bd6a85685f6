package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/pkg/errors"
)

type FeeConfigRepository struct {
	db *sqlx.DB
}

func NewFeeConfigRepository(db *sqlx.DB) *FeeConfigRepository {
	return &FeeConfigRepository{db: db}
}

type feeOverrideRow struct {
	TxType     domain.TransactionType `db:"tx_type"`
	Rate       decimal.Decimal        `db:"rate"`
	MinimumFee decimal.Decimal        `db:"minimum_fee"`
}

type discountRow struct {
	Threshold decimal.Decimal `db:"threshold"`
	Discount  decimal.Decimal `db:"discount"`
}

// GetAgencyFeeConfig assembles the override schedule for one agency.
// Returns ErrFeeConfigNotFound when the agency carries no override at all,
// in which case callers use the system defaults.
func (r *FeeConfigRepository) GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error) {
	var overrides []feeOverrideRow
	err := r.db.SelectContext(ctx, &overrides, `
		SELECT tx_type, rate, minimum_fee
		FROM agency_fee_overrides
		WHERE agency_id = $1
	`, agencyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load fee overrides")
	}

	var discounts []discountRow
	err = r.db.SelectContext(ctx, &discounts, `
		SELECT threshold, discount
		FROM agency_fee_discounts
		WHERE agency_id = $1
		ORDER BY threshold
	`, agencyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load fee discounts")
	}

	if len(overrides) == 0 && len(discounts) == 0 {
		return nil, errors.ErrFeeConfigNotFound
	}

	cfg := &domain.FeeConfiguration{
		AgencyID:    agencyID,
		Rates:       make(map[domain.TransactionType]decimal.Decimal, len(overrides)),
		MinimumFees: make(map[domain.TransactionType]decimal.Decimal, len(overrides)),
	}
	for _, row := range overrides {
		cfg.Rates[row.TxType] = row.Rate
		cfg.MinimumFees[row.TxType] = row.MinimumFee
	}
	for _, row := range discounts {
		cfg.DiscountTiers = append(cfg.DiscountTiers, domain.DiscountTier{
			Threshold: row.Threshold,
			Discount:  row.Discount,
		})
	}
	return cfg, nil
}
