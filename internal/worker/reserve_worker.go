// internal/worker/reserve_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReserveReleaser is the slice of the reserve service this sweep needs.
type ReserveReleaser interface {
	ReleaseMatured(ctx context.Context, now time.Time, limit int) (int, error)
}

// ReserveWorker releases rolling reserve holds once their window ends.
type ReserveWorker struct {
	releaser ReserveReleaser

	interval time.Duration
	batch    int

	logger *zap.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewReserveWorker(releaser ReserveReleaser, interval time.Duration, batch int, logger *zap.Logger) *ReserveWorker {
	return &ReserveWorker{
		releaser: releaser,
		interval: interval,
		batch:    batch,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (w *ReserveWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("reserve worker started", zap.Duration("interval", w.interval))
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

func (w *ReserveWorker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("reserve worker stopped")
}

func (w *ReserveWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	released, err := w.releaser.ReleaseMatured(ctx, time.Now(), w.batch)
	if err != nil {
		w.logger.Error("reserve sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		w.logger.Info("released matured reserve holds", zap.Int("count", released))
	}
}
