// internal/domain/transaction.go
package domain

import (
	"fmt"
	"time"
)

type TransactionType string
type TransactionStatus string
type Initiator string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
)

const (
	StatusPending     TransactionStatus = "pending"
	StatusSuccess     TransactionStatus = "success"
	StatusFailed      TransactionStatus = "failed"
	StatusRefunded    TransactionStatus = "refunded"
	StatusChargedBack TransactionStatus = "charged_back"
)

const (
	InitiatorSystem  Initiator = "system"
	InitiatorUser    Initiator = "user"
	InitiatorService Initiator = "service"
)

// Well-known decline codes. Providers map their own codes onto these
// where possible; everything else passes through verbatim.
const (
	DeclineInternalError = "INTERNAL_ERROR"
	DeclineRiskRejected  = "RISK_REJECTED"
	DeclineTimeout       = "TIMEOUT"

	DeclineReasonTimeout = "deposit not processed in time"
)

// IsTerminal reports whether no further automatic transition is allowed,
// except the documented success -> charged_back case.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRefunded, StatusChargedBack:
		return true
	}
	return false
}

// CanTransition is the single source of truth for the status machine:
// pending may move to any terminal status, success may move to
// charged_back, nothing else moves.
func CanTransition(from, to TransactionStatus) bool {
	if from == StatusPending {
		return to.IsTerminal()
	}
	if from == StatusSuccess && to == StatusChargedBack {
		return true
	}
	return false
}

// Extra is the provider continuation-state bag (3DS references, session
// tokens). Keys are namespaced per provider so adapters cannot trample
// each other.
type Extra map[string]string

func (e Extra) Get(provider, key string) (string, bool) {
	v, ok := e[provider+"."+key]
	return v, ok
}

func (e Extra) Set(provider, key, value string) {
	e[provider+"."+key] = value
}

// Merge copies all entries of other into e, overwriting on conflict.
func (e Extra) Merge(other Extra) {
	for k, v := range other {
		e[k] = v
	}
}

// Transaction is a single money-movement operation against a provider.
// It is the unit of reconciliation and is never deleted.
type Transaction struct {
	ID            int64             `json:"id" db:"id"`
	Ref           string            `json:"ref" db:"ref"` // external ULID
	WalletID      int64             `json:"wallet_id" db:"wallet_id"`
	CustomerID    *int64            `json:"customer_id,omitempty" db:"customer_id"`
	InstrumentID  *int64            `json:"instrument_id,omitempty" db:"instrument_id"`
	Provider      string            `json:"provider" db:"provider"`
	ProviderTxID  *string           `json:"provider_tx_id,omitempty" db:"provider_tx_id"`
	Type          TransactionType   `json:"type" db:"type"`
	Status        TransactionStatus `json:"status" db:"status"`
	Amount        Money             `json:"amount"`
	DeclineCode   *string           `json:"decline_code,omitempty" db:"decline_code"`
	DeclineReason *string           `json:"decline_reason,omitempty" db:"decline_reason"`
	RedirectForm  *string           `json:"redirect_form,omitempty" db:"redirect_form"`
	Extra         Extra             `json:"extra" db:"extra"`

	// CheckStatusUntil bounds the polling window; past it a pending
	// deposit is force-failed and a pending withdrawal escalated.
	CheckStatusUntil time.Time  `json:"check_status_until" db:"check_status_until"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// RemoteOperationStatus is the provider's view of an operation, collapsed
// into the canonical lifecycle.
type RemoteOperationStatus string

const (
	RemotePending     RemoteOperationStatus = "pending"
	RemoteSuccess     RemoteOperationStatus = "success"
	RemoteFailed      RemoteOperationStatus = "failed"
	RemoteRefunded    RemoteOperationStatus = "refunded"
	RemoteChargedBack RemoteOperationStatus = "charged_back"
)

func (s RemoteOperationStatus) IsTerminal() bool {
	return s != RemotePending
}

// LocalStatus maps a remote status onto the transaction status machine.
func (s RemoteOperationStatus) LocalStatus() (TransactionStatus, error) {
	switch s {
	case RemoteSuccess:
		return StatusSuccess, nil
	case RemoteFailed:
		return StatusFailed, nil
	case RemoteRefunded:
		return StatusRefunded, nil
	case RemoteChargedBack:
		return StatusChargedBack, nil
	case RemotePending:
		return StatusPending, nil
	}
	return "", fmt.Errorf("unknown remote status %q", string(s))
}

// RemoteStatus is what a status query or a trusted webhook reports.
type RemoteStatus struct {
	Status        RemoteOperationStatus `json:"status"`
	ProviderTxID  *string               `json:"provider_tx_id,omitempty"`
	DeclineCode   *string               `json:"decline_code,omitempty"`
	DeclineReason *string               `json:"decline_reason,omitempty"`
	RemoteAmount  *Money                `json:"remote_amount,omitempty"`
}
