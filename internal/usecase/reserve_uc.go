// internal/usecase/reserve_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/repository"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReserveService manages rolling reserves: amounts withheld from a
// wallet for a fixed number of days as chargeback cover. Holds release
// on schedule and a release is never reversed.
type ReserveService struct {
	wallets  repository.WalletStore
	reserves repository.ReserveStore
	ledger   *LedgerService
	txm      repository.TxManager
	logger   *zap.Logger
}

func NewReserveService(
	wallets repository.WalletStore,
	reserves repository.ReserveStore,
	ledger *LedgerService,
	txm repository.TxManager,
	logger *zap.Logger,
) *ReserveService {
	return &ReserveService{
		wallets:  wallets,
		reserves: reserves,
		ledger:   ledger,
		txm:      txm,
		logger:   logger,
	}
}

// Hold freezes amount on the wallet until holdUntil. The ledger entry
// and the hold row commit together.
func (s *ReserveService) Hold(ctx context.Context, walletID int64, amount decimal.Decimal, holdUntil time.Time) (*domain.ReserveHold, error) {
	var hold *domain.ReserveHold

	err := s.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		w, err := s.wallets.GetForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}

		entry, err := s.ledger.Apply(ctx, tx, w,
			domain.EventRollingReserveHold, amount, domain.InitiatorService, nil)
		if err != nil {
			return err
		}

		hold = &domain.ReserveHold{
			WalletID:    walletID,
			Amount:      amount,
			HoldEntryID: entry.ID,
			HoldUntil:   holdUntil,
		}
		return s.reserves.Create(ctx, tx, hold)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reserve hold placed",
		zap.Int64("wallet_id", walletID),
		zap.String("amount", amount.String()),
		zap.Time("hold_until", holdUntil))
	return hold, nil
}

// Release unfreezes one matured hold. The guarded status flip makes a
// concurrent double release a no-op.
func (s *ReserveService) Release(ctx context.Context, hold *domain.ReserveHold) error {
	err := s.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		w, err := s.wallets.GetForUpdate(ctx, tx, hold.WalletID)
		if err != nil {
			return err
		}

		entry, err := s.ledger.Apply(ctx, tx, w,
			domain.EventRollingReserveRelease, hold.Amount, domain.InitiatorSystem, nil)
		if err != nil {
			return err
		}

		return s.reserves.MarkReleased(ctx, tx, hold.ID, entry.ID)
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Info("reserve hold already released", zap.Int64("hold_id", hold.ID))
		return nil
	}
	return err
}

// ReleaseMatured releases every hold whose window has passed. Returns
// the number of holds released.
func (s *ReserveService) ReleaseMatured(ctx context.Context, now time.Time, limit int) (int, error) {
	holds, err := s.reserves.ListMatured(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, hold := range holds {
		if err := s.Release(ctx, hold); err != nil {
			s.logger.Error("failed to release reserve hold",
				zap.Int64("hold_id", hold.ID), zap.Error(err))
			continue
		}
		released++
	}
	return released, nil
}
