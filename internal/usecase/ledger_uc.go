// internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"fmt"

	"payment-engine/internal/domain"
	"payment-engine/internal/repository"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// balanceDelta is the signed effect of one event on the three balances,
// expressed as multipliers of the (always positive) event amount.
type balanceDelta struct {
	operational int
	frozen      int
	pending     int
}

// eventDeltas is the single source of truth for how each business event
// moves money between the balance buckets. An event missing from this
// table is rejected, never defaulted.
var eventDeltas = map[domain.BalanceEvent]balanceDelta{
	domain.EventOperationConfirmed:     {operational: +1, pending: +1},
	domain.EventSettlementFromProvider: {pending: -1},
	domain.EventSettlementRequest:      {frozen: +1},
	domain.EventSettlementConfirmed:    {operational: -1, frozen: -1},
	domain.EventSettlementCancel:       {frozen: -1},
	domain.EventSettlementReversal:     {operational: +1},
	domain.EventRollingReserveHold:     {frozen: +1},
	domain.EventRollingReserveRelease:  {frozen: -1},
	domain.EventManualFreeze:           {frozen: +1},
	domain.EventManualUnfreeze:         {frozen: -1},
	domain.EventManualAdjustment:       {operational: +1},
	domain.EventFee:                    {operational: -1},
	domain.EventChargeBack:             {operational: -1},
}

// LedgerService is the only writer of wallet balances. Every mutation
// is one event applied under the wallet row lock, paired with an
// append-only audit entry in the same scoped transaction.
type LedgerService struct {
	wallets repository.WalletStore
	entries repository.EntryStore
	txm     repository.TxManager
	logger  *zap.Logger
}

func NewLedgerService(
	wallets repository.WalletStore,
	entries repository.EntryStore,
	txm repository.TxManager,
	logger *zap.Logger,
) *LedgerService {
	return &LedgerService{wallets: wallets, entries: entries, txm: txm, logger: logger}
}

// Apply mutates an already-locked wallet. The caller owns the scoped
// transaction and the row lock taken via GetForUpdate; Apply writes the
// audit entry and the new balances into that same transaction so the
// pair commits or rolls back atomically.
//
// amount must be positive; direction comes from the event, not the sign.
func (s *LedgerService) Apply(
	ctx context.Context,
	tx pgx.Tx,
	w *domain.Wallet,
	event domain.BalanceEvent,
	amount decimal.Decimal,
	initiator domain.Initiator,
	trxID *int64,
) (*domain.BalanceEntry, error) {
	if tx == nil {
		return nil, xerrors.ErrWalletLockRequired
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: ledger amount must be positive, got %s",
			xerrors.ErrInvalidRequest, amount.String())
	}

	delta, ok := eventDeltas[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnknownBalanceEvent, event)
	}

	entry := &domain.BalanceEntry{
		WalletID:      w.ID,
		Event:         event,
		Amount:        amount.Mul(signOf(delta)),
		TransactionID: trxID,
		Initiator:     initiator,

		OperationalBefore: w.OperationalBalance,
		FrozenBefore:      w.FrozenBalance,
		PendingBefore:     w.PendingBalance,
	}

	w.OperationalBalance = shift(w.OperationalBalance, amount, delta.operational)
	w.FrozenBalance = shift(w.FrozenBalance, amount, delta.frozen)
	w.PendingBalance = shift(w.PendingBalance, amount, delta.pending)

	entry.OperationalAfter = w.OperationalBalance
	entry.FrozenAfter = w.FrozenBalance
	entry.PendingAfter = w.PendingBalance

	// A negative balance is an invariant violation worth waking someone
	// up for, but refusing the write would desynchronize us from money
	// that already moved at the provider. Record it and scream.
	if w.OperationalBalance.IsNegative() || w.FrozenBalance.IsNegative() || w.PendingBalance.IsNegative() {
		s.logger.Error("wallet balance went negative",
			zap.String("marker", "invariant_violation"),
			zap.Int64("wallet_id", w.ID),
			zap.String("event", string(event)),
			zap.String("amount", amount.String()),
			zap.String("operational", w.OperationalBalance.String()),
			zap.String("frozen", w.FrozenBalance.String()),
			zap.String("pending", w.PendingBalance.String()))
	}

	if err := s.entries.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.wallets.UpdateBalances(ctx, tx, w); err != nil {
		return nil, err
	}

	return entry, nil
}

// ApplyStandalone opens its own scoped transaction and row lock around a
// single event. Used for mutations that are not part of a larger flow,
// like manual adjustments.
func (s *LedgerService) ApplyStandalone(
	ctx context.Context,
	walletID int64,
	event domain.BalanceEvent,
	amount decimal.Decimal,
	initiator domain.Initiator,
	trxID *int64,
) (*domain.BalanceEntry, error) {
	var entry *domain.BalanceEntry

	err := s.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		w, err := s.wallets.GetForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		entry, err = s.Apply(ctx, tx, w, event, amount, initiator, trxID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ConfirmDeposit is the two-event composition for a settled deposit:
// the customer's money is credited and the provider settlement clears
// the pending leg, both under the one lock the caller already holds.
func (s *LedgerService) ConfirmDeposit(
	ctx context.Context,
	tx pgx.Tx,
	w *domain.Wallet,
	amount decimal.Decimal,
	initiator domain.Initiator,
	trxID *int64,
) error {
	if _, err := s.Apply(ctx, tx, w, domain.EventOperationConfirmed, amount, initiator, trxID); err != nil {
		return err
	}
	if _, err := s.Apply(ctx, tx, w, domain.EventSettlementFromProvider, amount, initiator, trxID); err != nil {
		return err
	}
	return nil
}

// Rebuild replays an entry history from zero balances. The result must
// match the stored wallet row; a mismatch means an out-of-band write.
func Rebuild(entries []*domain.BalanceEntry) (operational, frozen, pending decimal.Decimal, err error) {
	operational = decimal.Zero
	frozen = decimal.Zero
	pending = decimal.Zero

	for _, e := range entries {
		delta, ok := eventDeltas[e.Event]
		if !ok {
			err = fmt.Errorf("%w: %s", xerrors.ErrUnknownBalanceEvent, e.Event)
			return
		}
		amount := e.Amount.Abs()
		operational = shift(operational, amount, delta.operational)
		frozen = shift(frozen, amount, delta.frozen)
		pending = shift(pending, amount, delta.pending)
	}
	return
}

func shift(balance, amount decimal.Decimal, mult int) decimal.Decimal {
	switch {
	case mult > 0:
		return balance.Add(amount)
	case mult < 0:
		return balance.Sub(amount)
	default:
		return balance
	}
}

// signOf picks the sign recorded on the audit row: the operational
// direction when the event touches operational funds, otherwise the
// frozen/pending direction.
func signOf(d balanceDelta) decimal.Decimal {
	mult := d.operational
	if mult == 0 {
		mult = d.frozen
	}
	if mult == 0 {
		mult = d.pending
	}
	if mult < 0 {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}
