package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/domain"
	"caisse/internal/fees"
	"caisse/internal/gateway"
	"caisse/internal/ledger"
	"caisse/internal/limits"
	"caisse/internal/notification"
	"caisse/internal/transaction"
	"caisse/pkg/config"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
	"caisse/pkg/validator"
)

// In-memory fakes backing a full service stack for handler tests.

type stubAccounts struct {
	accounts map[int64]*domain.Account
}

func (s *stubAccounts) GetByNumber(ctx context.Context, number int64) (*domain.Account, error) {
	if a, ok := s.accounts[number]; ok {
		return a, nil
	}
	return nil, errors.ErrAccountNotFound
}

type stubConfigs struct{}

func (stubConfigs) GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error) {
	return nil, errors.ErrFeeConfigNotFound
}

type stubTxRepo struct {
	byID map[string]*domain.Transaction
}

func (s *stubTxRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	s.byID[tx.ID] = tx
	return nil
}

func (s *stubTxRepo) Update(ctx context.Context, tx *domain.Transaction) error {
	s.byID[tx.ID] = tx
	return nil
}

func (s *stubTxRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	if tx, ok := s.byID[id]; ok {
		return tx, nil
	}
	return nil, errors.ErrTransactionNotFound
}

func (s *stubTxRepo) ListByAccount(ctx context.Context, account int64, limit, offset int) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	for _, tx := range s.byID {
		if tx.SourceAccount == account {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (s *stubTxRepo) CountByAccount(ctx context.Context, account int64) (int, error) {
	txs, _ := s.ListByAccount(ctx, account, 0, 0)
	return len(txs), nil
}

func (s *stubTxRepo) FindByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	for _, tx := range s.byID {
		if tx.ExternalReference != nil && *tx.ExternalReference == ref {
			return tx, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

// memoryLedger applies mutations directly to the shared account map.
type memoryLedger struct {
	accounts map[int64]*domain.Account
}

func (m memoryLedger) Debit(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error) {
	a, ok := m.accounts[account]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	if a.Balance.LessThan(amount) {
		return nil, errors.ErrInsufficientBalance
	}
	before := a.Balance
	a.Balance = a.Balance.Sub(amount)
	return &ledger.Entry{Account: account, Before: before, After: a.Balance}, nil
}

func (m memoryLedger) Credit(ctx context.Context, account int64, amount decimal.Decimal) (*ledger.Entry, error) {
	a, ok := m.accounts[account]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	before := a.Balance
	a.Balance = a.Balance.Add(amount)
	return &ledger.Entry{Account: account, Before: before, After: a.Balance}, nil
}

func (m memoryLedger) Reverse(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error) {
	return m.Credit(ctx, account, amount)
}

func (m memoryLedger) Transfer(ctx context.Context, posting *ledger.Posting) (*ledger.TransferResult, error) {
	source, err := m.Debit(ctx, posting.SourceAccount, posting.DebitAmount, posting.Usage)
	if err != nil {
		return nil, err
	}
	destination, err := m.Credit(ctx, posting.DestinationAccount, posting.CreditAmount)
	if err != nil {
		return nil, err
	}
	return &ledger.TransferResult{Source: *source, Destination: *destination}, nil
}

func newHandlerFixture(accounts map[int64]*domain.Account) (*TransactionHandler, *stubTxRepo) {
	log := logger.NewNop()
	reader := &stubAccounts{accounts: accounts}
	txRepo := &stubTxRepo{byID: map[string]*domain.Transaction{}}

	calc := fees.NewCalculator(config.DefaultFees().Defaults(), log)
	v := transaction.NewValidator(reader, calc, stubConfigs{}, limits.NewTracker(),
		decimal.NewFromInt(50_000_000), log)
	e := transaction.NewExecutor(txRepo, memoryLedger{accounts: accounts},
		gateway.NewLogging(log), notification.NewDefaultService(log), log)
	svc := transaction.NewService(v, e, txRepo, log)

	return NewTransactionHandler(svc, validator.New(), log), txRepo
}

func TestProcess_DepositEndToEnd(t *testing.T) {
	accounts := map[int64]*domain.Account{
		10000001: {
			Number:                10000001,
			AgencyID:              "AG001",
			Balance:               decimal.Zero,
			Status:                domain.AccountStatusActive,
			DailyWithdrawalLimit:  decimal.NewFromInt(1_000_000),
			DailyTransferLimit:    decimal.NewFromInt(2_000_000),
			MonthlyOperationLimit: decimal.NewFromInt(20_000_000),
		},
	}
	h, _ := newHandlerFixture(accounts)

	body := `{"type":"DEPOT","amount":"25000","source_account":10000001}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result transaction.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.TransactionID)
	assert.True(t, accounts[10000001].Balance.Equal(decimal.NewFromInt(25000)))
}

func TestProcess_BusinessRejectionReturns422(t *testing.T) {
	accounts := map[int64]*domain.Account{
		10000001: {
			Number:                10000001,
			AgencyID:              "AG001",
			Balance:               decimal.NewFromInt(100),
			Status:                domain.AccountStatusActive,
			DailyWithdrawalLimit:  decimal.NewFromInt(1_000_000),
			DailyTransferLimit:    decimal.NewFromInt(2_000_000),
			MonthlyOperationLimit: decimal.NewFromInt(20_000_000),
		},
	}
	h, _ := newHandlerFixture(accounts)

	body := `{"type":"RETRAIT_PHYSIQUE","amount":"1000","source_account":10000001}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var result transaction.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, errors.CodeSoldeInsuffisant, result.ErrorCode)
}

func TestProcess_UnknownAccountReturns404(t *testing.T) {
	h, _ := newHandlerFixture(map[int64]*domain.Account{})

	body := `{"type":"DEPOT","amount":"1000","source_account":99999999}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcess_MalformedBodyReturns400(t *testing.T) {
	h, _ := newHandlerFixture(map[int64]*domain.Account{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader("{"))
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_NotFoundReturns404(t *testing.T) {
	h, _ := newHandlerFixture(map[int64]*domain.Account{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/TRX-X", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "TRX-X"})
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
