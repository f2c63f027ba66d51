package xerrors

import "errors"

// Generic
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Ledger / balances
var (
	ErrUnknownBalanceEvent = errors.New("unknown balance event type")
	ErrInsufficientFunds   = errors.New("insufficient available funds")
	ErrWalletLockRequired  = errors.New("wallet must be locked before balance mutation")
)

// Reconciliation invariants. These indicate a correctness bug or a
// provider inconsistency and abort the attempt for manual review.
var (
	ErrStatusConflict  = errors.New("remote status conflicts with terminal local status")
	ErrDeclineMismatch = errors.New("decline code/reason differ from previously recorded values")
	ErrAmountMismatch  = errors.New("remote amount differs from transaction amount")
)

// Webhooks
var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrWebhookUnmatched = errors.New("webhook cannot be matched to a transaction")
	ErrDuplicateWebhook = errors.New("duplicate webhook delivery")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)
