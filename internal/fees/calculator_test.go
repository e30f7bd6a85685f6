package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"caisse/internal/domain"
	"caisse/pkg/logger"
)

func testDefaults() *domain.FeeConfiguration {
	return &domain.FeeConfiguration{
		Rates: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeDeposit:          decimal.Zero,
			domain.TransactionTypeWithdrawal:       decimal.NewFromFloat(1.5),
			domain.TransactionTypeMobileWithdrawal: decimal.NewFromFloat(2.0),
			domain.TransactionTypeInternalTransfer: decimal.NewFromFloat(0.5),
			domain.TransactionTypeExternalTransfer: decimal.NewFromFloat(1.0),
		},
		MinimumFees: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeDeposit:          decimal.Zero,
			domain.TransactionTypeWithdrawal:       decimal.NewFromInt(100),
			domain.TransactionTypeMobileWithdrawal: decimal.NewFromInt(150),
			domain.TransactionTypeInternalTransfer: decimal.NewFromInt(200),
			domain.TransactionTypeExternalTransfer: decimal.NewFromInt(500),
		},
		DiscountTiers: []domain.DiscountTier{
			{Threshold: decimal.NewFromInt(1_000_000), Discount: decimal.NewFromFloat(0.10)},
			{Threshold: decimal.NewFromInt(5_000_000), Discount: decimal.NewFromFloat(0.20)},
			{Threshold: decimal.NewFromInt(10_000_000), Discount: decimal.NewFromFloat(0.30)},
		},
		VATRate: decimal.NewFromFloat(0.175),
	}
}

func TestCalculate_WithdrawalMinimumFeeWithVAT(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	// 1000 * 1.5% = 15, floored at 100, VAT 17.5% => 117.5, rounded => 118
	fee := calc.Calculate(domain.TransactionTypeWithdrawal, decimal.NewFromInt(1000), nil)
	assert.True(t, fee.Equal(decimal.NewFromInt(118)), "got %s", fee)
}

func TestCalculate_DepositIsFree(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	fee := calc.Calculate(domain.TransactionTypeDeposit, decimal.NewFromInt(2_000_000), nil)
	assert.True(t, fee.IsZero())
}

func TestCalculate_RateAboveMinimum(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	// 100000 * 1.5% = 1500 > min 100; VAT => 1762.5 => 1763 (half-up)
	fee := calc.Calculate(domain.TransactionTypeWithdrawal, decimal.NewFromInt(100_000), nil)
	assert.True(t, fee.Equal(decimal.NewFromInt(1763)), "got %s", fee)
}

func TestCalculate_VolumeDiscountTiers(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	cases := []struct {
		name   string
		amount int64
		want   int64
	}{
		// 1M * 1.5% = 15000; 10% off => 13500; VAT => 15862.5 => 1586[3]
		{"first tier", 1_000_000, 15863},
		// 5M * 1.5% = 75000; 20% off => 60000; VAT => 70500
		{"second tier", 5_000_000, 70500},
		// 10M * 1.5% = 150000; 30% off => 105000; VAT => 123375
		{"third tier", 10_000_000, 123375},
		// below every threshold: no discount. 900000*1.5%=13500; VAT => 15862.5 => 15863
		{"no tier", 900_000, 15863},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee := calc.Calculate(domain.TransactionTypeWithdrawal, decimal.NewFromInt(tc.amount), nil)
			assert.True(t, fee.Equal(decimal.NewFromInt(tc.want)), "amount %d: got %s want %d", tc.amount, fee, tc.want)
		})
	}
}

func TestCalculate_AgencyOverrideWins(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	agency := &domain.FeeConfiguration{
		AgencyID: "AG002",
		Rates: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeWithdrawal: decimal.NewFromFloat(3.0),
		},
	}

	// 100000 * 3% = 3000; min falls back to default 100; VAT => 3525
	fee := calc.Calculate(domain.TransactionTypeWithdrawal, decimal.NewFromInt(100_000), agency)
	assert.True(t, fee.Equal(decimal.NewFromInt(3525)), "got %s", fee)
}

func TestCalculate_Deterministic(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	amount := decimal.NewFromInt(742_319)
	first := calc.Calculate(domain.TransactionTypeInternalTransfer, amount, nil)
	for i := 0; i < 50; i++ {
		again := calc.Calculate(domain.TransactionTypeInternalTransfer, amount, nil)
		assert.True(t, first.Equal(again))
	}
}

func TestCalculate_UnknownRateFallsBackToMinimum(t *testing.T) {
	// Empty defaults: no rate resolvable for withdrawals, but a minimum is.
	defaults := &domain.FeeConfiguration{
		MinimumFees: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeWithdrawal: decimal.NewFromInt(100),
		},
	}
	calc := NewCalculator(defaults, logger.NewNop())

	fee := calc.Calculate(domain.TransactionTypeWithdrawal, decimal.NewFromInt(1000), nil)
	assert.True(t, fee.Equal(decimal.NewFromInt(100)), "got %s", fee)
}

func TestCalculate_AccountFeeTypeCarriesNoFee(t *testing.T) {
	calc := NewCalculator(testDefaults(), logger.NewNop())

	fee := calc.Calculate(domain.TransactionTypeAccountFee, decimal.NewFromInt(500), nil)
	assert.True(t, fee.IsZero())
}
