// internal/usecase/fakes_test.go
package usecase

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/provider"
	"payment-engine/internal/risk"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
)

// fakeTx satisfies pgx.Tx for code that only passes it around.
type fakeTx struct{ pgx.Tx }

type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(fakeTx{})
}

type fakeWalletStore struct {
	mu      sync.Mutex
	wallets map[int64]*domain.Wallet
}

func newFakeWalletStore(wallets ...*domain.Wallet) *fakeWalletStore {
	s := &fakeWalletStore{wallets: map[int64]*domain.Wallet{}}
	for _, w := range wallets {
		cp := *w
		s.wallets[w.ID] = &cp
	}
	return s
}

func (s *fakeWalletStore) get(id int64) (*domain.Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *fakeWalletStore) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *fakeWalletStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *fakeWalletStore) UpdateBalances(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[w.ID]; !ok {
		return xerrors.ErrNotFound
	}
	cp := *w
	s.wallets[w.ID] = &cp
	return nil
}

type fakeEntryStore struct {
	mu      sync.Mutex
	entries []*domain.BalanceEntry
	nextID  int64
}

func (s *fakeEntryStore) Insert(ctx context.Context, tx pgx.Tx, e *domain.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeEntryStore) ListByWallet(ctx context.Context, walletID int64) ([]*domain.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.BalanceEntry
	for _, e := range s.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEntryStore) ListByTransaction(ctx context.Context, transactionID int64) ([]*domain.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.BalanceEntry
	for _, e := range s.entries {
		if e.TransactionID != nil && *e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeTrxStore struct {
	mu     sync.Mutex
	byID   map[int64]*domain.Transaction
	nextID int64
}

func newFakeTrxStore() *fakeTrxStore {
	return &fakeTrxStore{byID: map[int64]*domain.Transaction{}}
}

func (s *fakeTrxStore) Create(ctx context.Context, trx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	trx.ID = s.nextID
	trx.CreatedAt = time.Now()
	trx.UpdatedAt = trx.CreatedAt
	cp := *trx
	s.byID[trx.ID] = &cp
	return nil
}

func (s *fakeTrxStore) GetByRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, trx := range s.byID {
		if trx.Ref == ref {
			cp := *trx
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeTrxStore) GetByProviderTxID(ctx context.Context, providerName, providerTxID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, trx := range s.byID {
		if trx.Provider == providerName && trx.ProviderTxID != nil && *trx.ProviderTxID == providerTxID {
			cp := *trx
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeTrxStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trx, ok := s.byID[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *trx
	return &cp, nil
}

func (s *fakeTrxStore) UpdateDispatch(ctx context.Context, tx pgx.Tx, trx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[trx.ID]
	if !ok {
		return xerrors.ErrNotFound
	}
	stored.ProviderTxID = trx.ProviderTxID
	stored.Extra = trx.Extra
	stored.RedirectForm = trx.RedirectForm
	stored.UpdatedAt = time.Now()
	return nil
}

func (s *fakeTrxStore) UpdateStatus(ctx context.Context, tx pgx.Tx, trx *domain.Transaction, expected domain.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[trx.ID]
	if !ok {
		return xerrors.ErrNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("status guard failed: %w", xerrors.ErrStatusConflict)
	}
	cp := *trx
	cp.UpdatedAt = time.Now()
	s.byID[trx.ID] = &cp
	return nil
}

func (s *fakeTrxStore) TouchChecked(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trx, ok := s.byID[id]; ok {
		trx.LastCheckedAt = &at
	}
	return nil
}

func (s *fakeTrxStore) ListPendingForPoll(ctx context.Context, checkedBefore time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (s *fakeTrxStore) ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

type fakeWebhookStore struct {
	mu     sync.Mutex
	rows   []*domain.InboundWebhook
	nextID int64
}

func (s *fakeWebhookStore) Insert(ctx context.Context, wh *domain.InboundWebhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	wh.ID = s.nextID
	wh.ReceivedAt = time.Now()
	cp := *wh
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *fakeWebhookStore) SetResult(ctx context.Context, id int64, eventType string, classification domain.WebhookClassification, transactionID *int64, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			row.EventType = eventType
			row.Classification = classification
			row.TransactionID = transactionID
			row.Error = errMsg
			return nil
		}
	}
	return xerrors.ErrNotFound
}

func (s *fakeWebhookStore) CountByHash(ctx context.Context, providerName, eventType, bodyHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.Provider == providerName && row.EventType == eventType && row.BodyHash == bodyHash {
			n++
		}
	}
	return n, nil
}

type scheduled struct {
	name string
	ref  string
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
}

func (s *fakeScheduler) Schedule(ctx context.Context, name string, payload []byte, eta time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{name: name, ref: string(payload)})
	return nil
}

func (s *fakeScheduler) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.name == name {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*domain.Transaction
}

func (p *fakePublisher) PublishTerminal(ctx context.Context, trx *domain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *trx
	p.published = append(p.published, &cp)
	return nil
}

// fakeReplayGuard mirrors the redis SETNX: the first call for a key
// wins, every repeat loses. Setting duplicate forces the losing answer.
type fakeReplayGuard struct {
	mu        sync.Mutex
	seen      map[string]bool
	duplicate bool
}

func (g *fakeReplayGuard) FirstSeen(ctx context.Context, providerName, eventType, bodyHash string) (bool, error) {
	if g.duplicate {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	key := providerName + ":" + eventType + ":" + bodyHash
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

type fakeRisk struct {
	code   string
	reason string
}

func (r *fakeRisk) Check(ctx context.Context, trx *domain.Transaction) (*risk.Decision, error) {
	if r.code != "" {
		return &risk.Decision{DeclineCode: r.code, DeclineReason: r.reason}, nil
	}
	return &risk.Decision{Allowed: true}, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	changed []int64
}

func (n *fakeNotifier) BalanceChanged(walletID int64, w *domain.Wallet) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, walletID)
}

// fakeClient is a function-field gateway adapter.
type fakeClient struct {
	name            string
	depositFn       func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error)
	withdrawFn      func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error)
	finalizeFn      func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error)
	getStatusFn     func(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error)
	verifySigFn     func(headers http.Header, body []byte) error
	parseWebhookFn  func(body []byte) (*provider.Webhook, error)
	supportsPayouts bool
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) Deposit(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	if c.depositFn == nil {
		ptx := "ptx-" + trx.Ref
		return &provider.Response{Result: provider.ResultAccepted, ProviderTxID: &ptx, Extra: domain.Extra{}}, nil
	}
	return c.depositFn(ctx, trx)
}

func (c *fakeClient) Withdraw(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	if c.withdrawFn == nil {
		ptx := "ptx-" + trx.Ref
		return &provider.Response{Result: provider.ResultAccepted, ProviderTxID: &ptx, Extra: domain.Extra{}}, nil
	}
	return c.withdrawFn(ctx, trx)
}

func (c *fakeClient) DepositFinalize(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	if c.finalizeFn == nil {
		return &provider.Response{Result: provider.ResultAccepted, Extra: domain.Extra{}}, nil
	}
	return c.finalizeFn(ctx, trx)
}

func (c *fakeClient) GetStatus(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error) {
	if c.getStatusFn == nil {
		return &domain.RemoteStatus{Status: domain.RemotePending}, nil
	}
	return c.getStatusFn(ctx, trx)
}

func (c *fakeClient) VerifySignature(headers http.Header, body []byte) error {
	if c.verifySigFn == nil {
		return nil
	}
	return c.verifySigFn(headers, body)
}

func (c *fakeClient) ParseWebhook(body []byte) (*provider.Webhook, error) {
	if c.parseWebhookFn == nil {
		return &provider.Webhook{Kind: provider.WebhookIgnored}, nil
	}
	return c.parseWebhookFn(body)
}

func (c *fakeClient) SupportsWithdrawals() bool { return c.supportsPayouts }
