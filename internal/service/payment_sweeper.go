package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/pkg/jobs"
)

// SweeperConfig controls the stale-payment reconciliation loop.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type staleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PaymentSweeper periodically pushes reconciliation jobs onto a worker
// queue. Payments the gateway acknowledged but never reported back on
// are verified in batches so a lost webhook cannot strand money state.
type PaymentSweeper struct {
	payments staleReconciler
	queue    *jobs.Queue
	config   SweeperConfig
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPaymentSweeper constructs the sweeper and its backing queue.
func NewPaymentSweeper(payments staleReconciler, config SweeperConfig, logger *zap.Logger) *PaymentSweeper {
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PaymentSweeper{payments: payments, config: config, logger: logger}
	s.queue = jobs.NewQueue("payment-reconciliation", s.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 4,
		MaxRetries: 2,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the enqueue ticker.
func (s *PaymentSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "reconcile-stale"}); err != nil {
					s.logger.Warn("failed to enqueue reconciliation job", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("payment sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("stale_after", s.config.StaleAfter),
	)
}

// Stop halts the ticker and drains the queue workers.
func (s *PaymentSweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.queue.Stop()
}

func (s *PaymentSweeper) handle(ctx context.Context, job jobs.Job) error {
	settled, err := s.payments.ReconcileStale(ctx, s.config.StaleAfter, s.config.BatchSize)
	if err != nil {
		return err
	}
	if settled > 0 {
		s.logger.Info("reconciliation sweep settled payments", zap.Int("count", settled), zap.String("job_id", job.ID))
	}
	return nil
}
