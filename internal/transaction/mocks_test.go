package transaction

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"caisse/internal/domain"
	"caisse/internal/ledger"
	"caisse/internal/limits"
	"caisse/internal/notification"
)

// --- Mocks ---

type MockAccountReader struct {
	mock.Mock
}

func (m *MockAccountReader) GetByNumber(ctx context.Context, number int64) (*domain.Account, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByAccount(ctx context.Context, account int64, limit, offset int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, account, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) CountByAccount(ctx context.Context, account int64) (int, error) {
	args := m.Called(ctx, account)
	return args.Int(0), args.Error(1)
}

func (m *MockTransactionRepository) FindByExternalReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error) {
	args := m.Called(ctx, account, amount, usage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedger) Credit(ctx context.Context, account int64, amount decimal.Decimal) (*ledger.Entry, error) {
	args := m.Called(ctx, account, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedger) Reverse(ctx context.Context, account int64, amount decimal.Decimal, usage limits.Delta) (*ledger.Entry, error) {
	args := m.Called(ctx, account, amount, usage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedger) Transfer(ctx context.Context, posting *ledger.Posting) (*ledger.TransferResult, error) {
	args := m.Called(ctx, posting)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TransferResult), args.Error(1)
}

type MockFeeConfigProvider struct {
	mock.Mock
}

func (m *MockFeeConfigProvider) GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error) {
	args := m.Called(ctx, agencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeeConfiguration), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Credit(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// recordingNotifier captures emitted events safely across the executor's
// fire-and-forget goroutines.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
	signal chan notification.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{signal: make(chan notification.Event, 8)}
}

func (n *recordingNotifier) Emit(ctx context.Context, event notification.Event) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	n.signal <- event
	return nil
}
