// internal/provider/provider.go
package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"payment-engine/internal/domain"
	"payment-engine/internal/xerrors"
)

// Result classifies the provider's inline answer to a deposit/withdraw
// request. Declines are values here, not errors: errors are reserved
// for transport failures where the remote state is unknown.
type Result string

const (
	ResultAccepted Result = "accepted"
	ResultPending  Result = "pending"
	ResultDeclined Result = "declined"
)

// Response is the provider's answer to deposit/withdraw/finalize.
type Response struct {
	Result        Result
	ProviderTxID  *string
	DeclineCode   *string
	DeclineReason *string

	// RedirectForm carries HTML/URL the customer must be sent to for
	// flows with a user-interaction leg (3-D Secure and friends).
	RedirectForm *string

	// Extra holds continuation state the adapter needs on later calls,
	// keyed in the adapter's namespace.
	Extra domain.Extra
}

// WebhookKind tells the controller how much to trust a parsed callback.
type WebhookKind string

const (
	// WebhookIgnored is informational; store and move on.
	WebhookIgnored WebhookKind = "ignored"

	// WebhookNeedsCheck means the callback is only a trigger: schedule
	// an authoritative status query instead of trusting the payload.
	WebhookNeedsCheck WebhookKind = "needs_check"

	// WebhookFinal means the payload itself is authoritative (signature
	// covers the status) and can be fed straight to the sync gate.
	WebhookFinal WebhookKind = "final"
)

// Webhook is the provider-independent result of parsing a callback.
type Webhook struct {
	Kind      WebhookKind
	EventType string

	// One of these identifies the owning transaction.
	ProviderTxID *string
	Ref          *string

	// Remote is set when Kind is WebhookFinal.
	Remote *domain.RemoteStatus
}

// Client is the narrow capability contract every gateway adapter
// implements. The core depends on providers only through this.
type Client interface {
	Name() string

	Deposit(ctx context.Context, trx *domain.Transaction) (*Response, error)
	Withdraw(ctx context.Context, trx *domain.Transaction) (*Response, error)

	// DepositFinalize completes flows that need a second leg after
	// customer interaction.
	DepositFinalize(ctx context.Context, trx *domain.Transaction) (*Response, error)

	// GetStatus queries the authoritative remote status.
	GetStatus(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error)

	// VerifySignature must pass before any state mutation driven by a
	// webhook. Failure means the payload is untrusted.
	VerifySignature(headers http.Header, body []byte) error

	ParseWebhook(body []byte) (*Webhook, error)
}

// WithdrawalSupport is an optional capability. Adapters that cannot
// send money out implement it returning false; the controller rejects
// withdrawal requests against them before anything is persisted.
type WithdrawalSupport interface {
	SupportsWithdrawals() bool
}

// SupportsWithdrawals reports whether the client can execute payouts.
// Clients that do not declare the capability are assumed to support
// both directions.
func SupportsWithdrawals(c Client) bool {
	if ws, ok := c.(WithdrawalSupport); ok {
		return ws.SupportsWithdrawals()
	}
	return true
}

// Registry dispatches to adapters by provider identifier. Adapters are
// registered once at startup; lookups are concurrent-safe.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.clients[name] = c
	return nil
}

func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrUnknownProvider, name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
