// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceEvent is the business reason for a single atomic balance
// mutation. The delta each event applies lives in the ledger service;
// the event type on the audit row is what makes replay possible.
type BalanceEvent string

const (
	EventOperationConfirmed     BalanceEvent = "operation_confirmed"
	EventSettlementFromProvider BalanceEvent = "settlement_from_provider"
	EventSettlementRequest      BalanceEvent = "settlement_request"
	EventSettlementConfirmed    BalanceEvent = "settlement_confirmed"
	EventSettlementCancel       BalanceEvent = "settlement_cancel"
	EventSettlementReversal     BalanceEvent = "settlement_reversal"
	EventRollingReserveHold     BalanceEvent = "rolling_reserve_hold"
	EventRollingReserveRelease  BalanceEvent = "rolling_reserve_release"
	EventManualFreeze           BalanceEvent = "manual_freeze"
	EventManualUnfreeze         BalanceEvent = "manual_unfreeze"
	EventManualAdjustment       BalanceEvent = "manual_adjustment"
	EventFee                    BalanceEvent = "fee"
	EventChargeBack             BalanceEvent = "charge_back"
)

// Wallet is the balance-bearing account, scoped to one currency.
// Mutated only through the ledger service, never directly.
type Wallet struct {
	ID         int64  `json:"id" db:"id"`
	MerchantID int64  `json:"merchant_id" db:"merchant_id"`
	Currency   string `json:"currency" db:"currency"`

	OperationalBalance decimal.Decimal `json:"operational_balance" db:"operational_balance"`
	FrozenBalance      decimal.Decimal `json:"frozen_balance" db:"frozen_balance"`
	PendingBalance     decimal.Decimal `json:"pending_balance" db:"pending_balance"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available is derived, never stored: operational - frozen - pending.
func (w *Wallet) Available() decimal.Decimal {
	return w.OperationalBalance.Sub(w.FrozenBalance).Sub(w.PendingBalance)
}

// BalanceEntry is the immutable audit row written once per ledger call.
// Amount is signed: positive credits, negative debits. The before/after
// snapshots reflect the serialization order chosen by the row lock.
type BalanceEntry struct {
	ID            int64        `json:"id" db:"id"`
	WalletID      int64        `json:"wallet_id" db:"wallet_id"`
	Event         BalanceEvent `json:"event" db:"event"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	TransactionID *int64       `json:"transaction_id,omitempty" db:"transaction_id"`
	Initiator     Initiator    `json:"initiator" db:"initiator"`

	OperationalBefore decimal.Decimal `json:"operational_before" db:"operational_before"`
	OperationalAfter  decimal.Decimal `json:"operational_after" db:"operational_after"`
	FrozenBefore      decimal.Decimal `json:"frozen_before" db:"frozen_before"`
	FrozenAfter       decimal.Decimal `json:"frozen_after" db:"frozen_after"`
	PendingBefore     decimal.Decimal `json:"pending_before" db:"pending_before"`
	PendingAfter      decimal.Decimal `json:"pending_after" db:"pending_after"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ReserveStatus string

const (
	ReserveActive   ReserveStatus = "active"
	ReserveReleased ReserveStatus = "released"
)

// ReserveHold is an amount withheld from a wallet for a number of days
// as risk mitigation. Release is time-driven and never reversible.
type ReserveHold struct {
	ID              int64           `json:"id" db:"id"`
	WalletID        int64           `json:"wallet_id" db:"wallet_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Status          ReserveStatus   `json:"status" db:"status"`
	HoldEntryID     int64           `json:"hold_entry_id" db:"hold_entry_id"`
	ReleaseEntryID  *int64          `json:"release_entry_id,omitempty" db:"release_entry_id"`
	HoldUntil       time.Time       `json:"hold_until" db:"hold_until"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	ReleasedAt      *time.Time      `json:"released_at,omitempty" db:"released_at"`
}
