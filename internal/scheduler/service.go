package scheduler

import (
	"context"
	"sync"
	"time"

	"caisse/internal/domain"
	"caisse/internal/transaction"
	"caisse/pkg/config"
	"caisse/pkg/logger"
)

const sweepPageSize = 500

// AccountStore is the account surface the sweeps need.
type AccountStore interface {
	ResetDailyCounters(ctx context.Context, now time.Time, monthly bool) (int64, error)
	ListActiveNumbers(ctx context.Context, limit int, afterNumber int64) ([]int64, error)
}

// Processor submits one operation through the normal validation and
// execution path. Scheduled fees get no shortcut around the engine.
type Processor interface {
	ProcessTransaction(ctx context.Context, req *transaction.Request) *transaction.Result
}

// Scheduler runs the periodic sweeps: the daily usage counter reset and the
// monthly account fee charge on the first day of each month.
type Scheduler struct {
	accounts  AccountStore
	processor Processor
	cfg       config.SchedulerConfig
	fee       config.FeeDefaults
	logger    logger.Logger

	mu           sync.Mutex
	lastSweepDay time.Time // midnight of the last day swept
	lastFeeMonth time.Time // first of the last month charged
	stop         chan struct{}
}

func New(accounts AccountStore, processor Processor, cfg config.SchedulerConfig, fee config.FeeDefaults, log logger.Logger) *Scheduler {
	return &Scheduler{
		accounts:  accounts,
		processor: processor,
		cfg:       cfg,
		fee:       fee,
		logger:    log,
		stop:      make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.tick(context.Background(), time.Now())
			case <-s.stop:
				ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("Scheduler started", map[string]interface{}{
		"reset_hour":     s.cfg.ResetHour,
		"sweep_interval": s.cfg.SweepInterval.String(),
	})
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

// tick runs at most one daily sweep per calendar day, once the configured
// reset hour has passed, and one fee sweep per calendar month.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Hour() < s.cfg.ResetHour {
		return
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	s.mu.Lock()
	dueDaily := !day.Equal(s.lastSweepDay)
	if dueDaily {
		s.lastSweepDay = day
	}
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	dueMonthly := now.Day() == 1 && !month.Equal(s.lastFeeMonth)
	if dueMonthly {
		s.lastFeeMonth = month
	}
	s.mu.Unlock()

	if dueDaily {
		if err := s.RunDailySweep(ctx, now); err != nil {
			s.logger.Error("Daily sweep failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if dueMonthly {
		s.RunMonthlyFeeSweep(ctx)
	}
}

// RunDailySweep zeroes the daily usage counters of every account, and the
// monthly counters too when the sweep runs on the first of the month.
func (s *Scheduler) RunDailySweep(ctx context.Context, now time.Time) error {
	monthly := now.Day() == 1
	affected, err := s.accounts.ResetDailyCounters(ctx, now, monthly)
	if err != nil {
		return err
	}
	s.logger.Info("Usage counters reset", map[string]interface{}{
		"accounts":      affected,
		"monthly_cycle": monthly,
	})
	return nil
}

// RunMonthlyFeeSweep charges the flat account fee to every active account.
// Each charge goes through the full transaction path, so an account that
// cannot cover the fee fails cleanly with an audit record and the sweep
// moves on.
func (s *Scheduler) RunMonthlyFeeSweep(ctx context.Context) {
	var charged, failed int
	var after int64

	for {
		numbers, err := s.accounts.ListActiveNumbers(ctx, sweepPageSize, after)
		if err != nil {
			s.logger.Error("Fee sweep aborted, account listing failed", map[string]interface{}{
				"after": after,
				"error": err.Error(),
			})
			return
		}
		if len(numbers) == 0 {
			break
		}

		for _, number := range numbers {
			result := s.processor.ProcessTransaction(ctx, &transaction.Request{
				Type:          domain.TransactionTypeAccountFee,
				Amount:        s.fee.MonthlyFee,
				SourceAccount: number,
				Description:   "frais mensuels de tenue de compte",
			})
			if result.Success {
				charged++
			} else {
				failed++
				s.logger.Warn("Monthly fee charge failed", map[string]interface{}{
					"account": number,
					"code":    result.ErrorCode,
				})
			}
		}
		after = numbers[len(numbers)-1]
	}

	s.logger.Info("Monthly fee sweep finished", map[string]interface{}{
		"charged": charged,
		"failed":  failed,
	})
}
