// internal/worker/status_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/task"
	"payment-engine/internal/usecase"

	"go.uber.org/zap"
)

// PendingPoller lists pending transactions due for another status check.
type PendingPoller interface {
	ListPendingForPoll(ctx context.Context, checkedBefore time.Time, limit int) ([]*domain.Transaction, error)
}

// StatusWorker periodically re-discovers pending transactions that are
// still inside their reconciliation window and schedules status checks
// for them. It is the safety net under webhooks: a lost callback only
// delays reconciliation until the next sweep.
type StatusWorker struct {
	trxs      PendingPoller
	scheduler task.Scheduler

	interval time.Duration
	cadence  time.Duration
	batch    int

	logger *zap.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewStatusWorker(
	trxs PendingPoller,
	scheduler task.Scheduler,
	interval, cadence time.Duration,
	batch int,
	logger *zap.Logger,
) *StatusWorker {
	return &StatusWorker{
		trxs:      trxs,
		scheduler: scheduler,
		interval:  interval,
		cadence:   cadence,
		batch:     batch,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

func (w *StatusWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("status worker started", zap.Duration("interval", w.interval))
		for {
			select {
			case <-ticker.C:
				w.sweep()
			case <-w.stop:
				return
			}
		}
	}()
}

func (w *StatusWorker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("status worker stopped")
}

func (w *StatusWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	cutoff := time.Now().Add(-w.cadence)
	pending, err := w.trxs.ListPendingForPoll(ctx, cutoff, w.batch)
	if err != nil {
		w.logger.Error("status sweep failed", zap.Error(err))
		return
	}

	for _, trx := range pending {
		if err := w.scheduler.Schedule(ctx, usecase.TaskCheckStatus, []byte(trx.Ref), time.Now()); err != nil {
			w.logger.Warn("failed to schedule status check",
				zap.String("ref", trx.Ref), zap.Error(err))
		}
	}

	if len(pending) > 0 {
		w.logger.Info("status sweep scheduled checks", zap.Int("count", len(pending)))
	}
}
