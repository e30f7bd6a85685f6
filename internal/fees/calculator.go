package fees

import (
	"sort"

	"github.com/shopspring/decimal"

	"caisse/internal/domain"
	"caisse/pkg/logger"
)

var oneHundred = decimal.NewFromInt(100)

// Calculator computes transaction fees from an injected schedule. It is
// stateless: identical inputs always produce identical fees.
type Calculator struct {
	defaults *domain.FeeConfiguration
	logger   logger.Logger
}

func NewCalculator(defaults *domain.FeeConfiguration, log logger.Logger) *Calculator {
	return &Calculator{defaults: defaults, logger: log}
}

// Calculate resolves the fee for one operation:
//
//  1. agency rate override, else system default rate
//  2. base fee = amount * rate / 100, rounded half-up to 2 places
//  3. floor at the type minimum
//  4. volume discount from the highest matched threshold
//  5. VAT
//  6. final half-up rounding to a whole currency unit
//
// A schedule that cannot yield a usable rate degrades to the type minimum
// instead of failing the operation; the degradation is logged.
func (c *Calculator) Calculate(txType domain.TransactionType, amount decimal.Decimal, agencyCfg *domain.FeeConfiguration) decimal.Decimal {
	if txType == domain.TransactionTypeDeposit || txType == domain.TransactionTypeAccountFee {
		return decimal.Zero
	}

	minimum := c.minimumFor(txType, agencyCfg)

	rate, ok := c.rateFor(txType, agencyCfg)
	if !ok || rate.IsNegative() || amount.IsNegative() {
		c.logger.Warn("Fee computation degraded, falling back to type minimum", map[string]interface{}{
			"event":  "fee_fallback",
			"type":   string(txType),
			"amount": amount.String(),
		})
		return minimum
	}

	fee := amount.Mul(rate).Div(oneHundred).Round(2)

	if fee.LessThan(minimum) {
		fee = minimum
	}

	if discount := c.discountFor(amount, agencyCfg); discount.IsPositive() {
		fee = fee.Mul(decimal.NewFromInt(1).Sub(discount))
	}

	vat := c.vatFor(agencyCfg)
	fee = fee.Mul(decimal.NewFromInt(1).Add(vat))

	return fee.Round(0)
}

func (c *Calculator) rateFor(txType domain.TransactionType, agencyCfg *domain.FeeConfiguration) (decimal.Decimal, bool) {
	if agencyCfg != nil {
		if r, ok := agencyCfg.Rates[txType]; ok {
			return r, true
		}
	}
	if c.defaults != nil {
		if r, ok := c.defaults.Rates[txType]; ok {
			return r, true
		}
	}
	return decimal.Zero, false
}

func (c *Calculator) minimumFor(txType domain.TransactionType, agencyCfg *domain.FeeConfiguration) decimal.Decimal {
	if agencyCfg != nil {
		if m, ok := agencyCfg.MinimumFees[txType]; ok {
			return m
		}
	}
	if c.defaults != nil {
		if m, ok := c.defaults.MinimumFees[txType]; ok {
			return m
		}
	}
	return decimal.Zero
}

// discountFor returns the discount of the highest threshold <= amount.
func (c *Calculator) discountFor(amount decimal.Decimal, agencyCfg *domain.FeeConfiguration) decimal.Decimal {
	tiers := c.tiersFor(agencyCfg)
	if len(tiers) == 0 {
		return decimal.Zero
	}

	sorted := make([]domain.DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})

	discount := decimal.Zero
	for _, tier := range sorted {
		if amount.GreaterThanOrEqual(tier.Threshold) {
			discount = tier.Discount
		}
	}
	return discount
}

func (c *Calculator) tiersFor(agencyCfg *domain.FeeConfiguration) []domain.DiscountTier {
	if agencyCfg != nil && len(agencyCfg.DiscountTiers) > 0 {
		return agencyCfg.DiscountTiers
	}
	if c.defaults != nil {
		return c.defaults.DiscountTiers
	}
	return nil
}

func (c *Calculator) vatFor(agencyCfg *domain.FeeConfiguration) decimal.Decimal {
	if agencyCfg != nil && agencyCfg.VATRate.IsPositive() {
		return agencyCfg.VATRate
	}
	if c.defaults != nil {
		return c.defaults.VATRate
	}
	return decimal.Zero
}
