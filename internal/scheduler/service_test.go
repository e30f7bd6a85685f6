package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"caisse/internal/domain"
	"caisse/internal/transaction"
	"caisse/pkg/config"
	"caisse/pkg/logger"
)

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) ResetDailyCounters(ctx context.Context, now time.Time, monthly bool) (int64, error) {
	args := m.Called(ctx, now, monthly)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccountStore) ListActiveNumbers(ctx context.Context, limit int, afterNumber int64) ([]int64, error) {
	args := m.Called(ctx, limit, afterNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessTransaction(ctx context.Context, req *transaction.Request) *transaction.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(*transaction.Result)
}

func newTestScheduler(store *MockAccountStore, processor *MockProcessor) *Scheduler {
	cfg := config.SchedulerConfig{ResetHour: 0, SweepInterval: time.Minute}
	return New(store, processor, cfg, config.DefaultFees(), logger.NewNop())
}

func TestRunDailySweep_MidMonthKeepsMonthlyCounters(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	now := time.Date(2026, 8, 15, 0, 5, 0, 0, time.UTC)
	store.On("ResetDailyCounters", mock.Anything, now, false).Return(int64(120), nil)

	err := s.RunDailySweep(context.Background(), now)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRunDailySweep_FirstOfMonthResetsMonthlyCounters(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	now := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	store.On("ResetDailyCounters", mock.Anything, now, true).Return(int64(120), nil)

	err := s.RunDailySweep(context.Background(), now)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestTick_RunsOncePerDay(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	now := time.Date(2026, 8, 15, 3, 0, 0, 0, time.UTC)
	store.On("ResetDailyCounters", mock.Anything, mock.Anything, false).Return(int64(120), nil)

	s.tick(context.Background(), now)
	s.tick(context.Background(), now.Add(time.Minute))
	s.tick(context.Background(), now.Add(2*time.Minute))

	store.AssertNumberOfCalls(t, "ResetDailyCounters", 1)

	// The next day triggers a fresh sweep.
	s.tick(context.Background(), now.Add(24*time.Hour))
	store.AssertNumberOfCalls(t, "ResetDailyCounters", 2)
}

func TestTick_HonorsResetHour(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	cfg := config.SchedulerConfig{ResetHour: 4, SweepInterval: time.Minute}
	s := New(store, processor, cfg, config.DefaultFees(), logger.NewNop())

	s.tick(context.Background(), time.Date(2026, 8, 15, 3, 59, 0, 0, time.UTC))
	store.AssertNotCalled(t, "ResetDailyCounters")

	store.On("ResetDailyCounters", mock.Anything, mock.Anything, false).Return(int64(1), nil)
	s.tick(context.Background(), time.Date(2026, 8, 15, 4, 0, 0, 0, time.UTC))
	store.AssertNumberOfCalls(t, "ResetDailyCounters", 1)
}

func TestRunMonthlyFeeSweep_ChargesEveryActiveAccount(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	store.On("ListActiveNumbers", mock.Anything, sweepPageSize, int64(0)).
		Return([]int64{10000001, 10000002}, nil)
	store.On("ListActiveNumbers", mock.Anything, sweepPageSize, int64(10000002)).
		Return([]int64{}, nil)

	var charged []int64
	processor.On("ProcessTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(*transaction.Request)
			assert.Equal(t, domain.TransactionTypeAccountFee, req.Type)
			assert.True(t, req.Amount.Equal(config.DefaultFees().MonthlyFee))
			charged = append(charged, req.SourceAccount)
		}).
		Return(&transaction.Result{Success: true})

	s.RunMonthlyFeeSweep(context.Background())

	assert.Equal(t, []int64{10000001, 10000002}, charged)
}

func TestRunMonthlyFeeSweep_ContinuesPastFailedCharge(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	store.On("ListActiveNumbers", mock.Anything, sweepPageSize, int64(0)).
		Return([]int64{10000001, 10000002}, nil)
	store.On("ListActiveNumbers", mock.Anything, sweepPageSize, int64(10000002)).
		Return([]int64{}, nil)

	processor.On("ProcessTransaction", mock.Anything, mock.MatchedBy(func(req *transaction.Request) bool {
		return req.SourceAccount == 10000001
	})).Return(&transaction.Result{Success: false, ErrorCode: "SOLDE_INSUFFISANT"})
	processor.On("ProcessTransaction", mock.Anything, mock.MatchedBy(func(req *transaction.Request) bool {
		return req.SourceAccount == 10000002
	})).Return(&transaction.Result{Success: true})

	s.RunMonthlyFeeSweep(context.Background())

	processor.AssertNumberOfCalls(t, "ProcessTransaction", 2)
}

func TestRunMonthlyFeeSweep_AbortsOnListingFailure(t *testing.T) {
	store := new(MockAccountStore)
	processor := new(MockProcessor)
	s := newTestScheduler(store, processor)

	store.On("ListActiveNumbers", mock.Anything, sweepPageSize, int64(0)).
		Return(nil, fmt.Errorf("connection reset"))

	s.RunMonthlyFeeSweep(context.Background())

	processor.AssertNotCalled(t, "ProcessTransaction")
}
