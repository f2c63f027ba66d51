// internal/worker/timeout_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"payment-engine/internal/domain"

	"go.uber.org/zap"
)

// StatusSyncer is the slice of the controller the timeout sweep needs.
type StatusSyncer interface {
	SyncRemoteStatus(ctx context.Context, ref string, remote *domain.RemoteStatus) error
}

// ExpiredLister lists pending transactions past their polling window.
type ExpiredLister interface {
	ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error)
}

// TimeoutWorker handles pending transactions that outlived their
// reconciliation window. The two directions are deliberately treated
// differently: a deposit that never materialized is safe to fail, but a
// withdrawal may have paid out money we cannot see, so it is escalated
// to a human and never auto-failed.
type TimeoutWorker struct {
	trxs   ExpiredLister
	syncer StatusSyncer

	interval time.Duration
	batch    int

	logger *zap.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewTimeoutWorker(
	trxs ExpiredLister,
	syncer StatusSyncer,
	interval time.Duration,
	batch int,
	logger *zap.Logger,
) *TimeoutWorker {
	return &TimeoutWorker{
		trxs:     trxs,
		syncer:   syncer,
		interval: interval,
		batch:    batch,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (w *TimeoutWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("timeout worker started", zap.Duration("interval", w.interval))
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

func (w *TimeoutWorker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("timeout worker stopped")
}

func (w *TimeoutWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	expired, err := w.trxs.ListPendingExpired(ctx, time.Now(), w.batch)
	if err != nil {
		w.logger.Error("timeout sweep failed", zap.Error(err))
		return
	}

	for _, trx := range expired {
		switch trx.Type {
		case domain.TypeDeposit:
			w.failDeposit(ctx, trx)
		case domain.TypeWithdrawal:
			w.logger.Error("withdrawal stuck past its reconciliation window, manual review required",
				zap.String("marker", "manual_review"),
				zap.String("ref", trx.Ref),
				zap.String("amount", trx.Amount.String()),
				zap.String("provider", trx.Provider),
				zap.Time("check_status_until", trx.CheckStatusUntil))
		}
	}
}

func (w *TimeoutWorker) failDeposit(ctx context.Context, trx *domain.Transaction) {
	code := domain.DeclineTimeout
	reason := domain.DeclineReasonTimeout

	err := w.syncer.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status:        domain.RemoteFailed,
		DeclineCode:   &code,
		DeclineReason: &reason,
	})
	if err != nil {
		w.logger.Error("failed to time out deposit",
			zap.String("ref", trx.Ref), zap.Error(err))
		return
	}

	w.logger.Info("deposit timed out",
		zap.String("ref", trx.Ref),
		zap.String("provider", trx.Provider))
}
