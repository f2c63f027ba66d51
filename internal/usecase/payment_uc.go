// internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"payment-engine/internal/cache"
	"payment-engine/internal/domain"
	"payment-engine/internal/provider"
	"payment-engine/internal/pub"
	"payment-engine/internal/repository"
	"payment-engine/internal/risk"
	"payment-engine/internal/task"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Task names handled by the controller. Payload is the transaction ref.
const (
	TaskRunDeposit  = "payment.run_deposit"
	TaskRunWithdraw = "payment.run_withdraw"
	TaskCheckStatus = "payment.check_status"
)

const (
	DeclineInsufficientFunds   = "INSUFFICIENT_FUNDS"
	DeclineUnsupportedProvider = "UNSUPPORTED_PROVIDER"
)

// BalanceNotifier pushes updated wallet balances to connected clients
// after a balance-affecting transition commits.
type BalanceNotifier interface {
	BalanceChanged(walletID int64, w *domain.Wallet)
}

// NoopNotifier satisfies BalanceNotifier where no push channel exists.
type NoopNotifier struct{}

func (NoopNotifier) BalanceChanged(walletID int64, w *domain.Wallet) {}

// ControllerConfig bounds the reconciliation windows. Deposits get a
// longer window because an expired deposit is force-failed, while an
// expired withdrawal only escalates to a human.
type ControllerConfig struct {
	DepositTTL    time.Duration
	WithdrawalTTL time.Duration
	CheckDelay    time.Duration
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		DepositTTL:    48 * time.Hour,
		WithdrawalTTL: 24 * time.Hour,
		CheckDelay:    30 * time.Second,
	}
}

type ControllerDeps struct {
	Transactions repository.TransactionStore
	Wallets      repository.WalletStore
	Webhooks     repository.WebhookStore
	TxManager    repository.TxManager
	Ledger       *LedgerService
	Providers    *provider.Registry
	Scheduler    task.Scheduler
	Risk         risk.Checker
	Publisher    pub.Publisher
	Replay       cache.ReplayGuard
	Notifier     BalanceNotifier
	Logger       *zap.Logger
}

// Controller owns the transaction lifecycle: creation, provider
// dispatch, and the single idempotency gate every status report funnels
// through, whether it arrived by webhook, poll, or manual retry.
type Controller struct {
	trxs      repository.TransactionStore
	wallets   repository.WalletStore
	webhooks  repository.WebhookStore
	txm       repository.TxManager
	ledger    *LedgerService
	providers *provider.Registry
	scheduler task.Scheduler
	risk      risk.Checker
	publisher pub.Publisher
	replay    cache.ReplayGuard
	notifier  BalanceNotifier
	cfg       ControllerConfig
	logger    *zap.Logger
}

func NewController(deps ControllerDeps, cfg ControllerConfig) *Controller {
	return &Controller{
		trxs:      deps.Transactions,
		wallets:   deps.Wallets,
		webhooks:  deps.Webhooks,
		txm:       deps.TxManager,
		ledger:    deps.Ledger,
		providers: deps.Providers,
		scheduler: deps.Scheduler,
		risk:      deps.Risk,
		publisher: deps.Publisher,
		replay:    deps.Replay,
		notifier:  deps.Notifier,
		cfg:       cfg,
		logger:    deps.Logger,
	}
}

// RegisterTasks binds the controller's async entry points to the pool.
func (c *Controller) RegisterTasks(p *task.Pool) error {
	if err := p.Register(TaskRunDeposit, func(ctx context.Context, payload []byte) error {
		return c.RunDeposit(ctx, string(payload))
	}); err != nil {
		return err
	}
	if err := p.Register(TaskRunWithdraw, func(ctx context.Context, payload []byte) error {
		return c.RunWithdraw(ctx, string(payload))
	}); err != nil {
		return err
	}
	return p.Register(TaskCheckStatus, func(ctx context.Context, payload []byte) error {
		return c.CheckStatus(ctx, string(payload))
	})
}

// CreateParams describes a new money movement request.
type CreateParams struct {
	WalletID     int64
	CustomerID   *int64
	InstrumentID *int64
	Provider     string
	Amount       domain.Money
}

func (c *Controller) CreateDeposit(ctx context.Context, p CreateParams) (*domain.Transaction, error) {
	return c.create(ctx, domain.TypeDeposit, p)
}

func (c *Controller) CreateWithdrawal(ctx context.Context, p CreateParams) (*domain.Transaction, error) {
	return c.create(ctx, domain.TypeWithdrawal, p)
}

func (c *Controller) create(ctx context.Context, typ domain.TransactionType, p CreateParams) (*domain.Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", xerrors.ErrInvalidRequest)
	}

	client, err := c.providers.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	wallet, err := c.wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet.Currency != p.Amount.Currency {
		return nil, fmt.Errorf("%w: wallet holds %s, request is %s",
			xerrors.ErrInvalidRequest, wallet.Currency, p.Amount.Currency)
	}

	ttl := c.cfg.DepositTTL
	taskName := TaskRunDeposit
	if typ == domain.TypeWithdrawal {
		ttl = c.cfg.WithdrawalTTL
		taskName = TaskRunWithdraw
	}

	trx := &domain.Transaction{
		Ref:              ulid.Make().String(),
		WalletID:         p.WalletID,
		CustomerID:       p.CustomerID,
		InstrumentID:     p.InstrumentID,
		Provider:         p.Provider,
		Type:             typ,
		Status:           domain.StatusPending,
		Amount:           p.Amount,
		Extra:            domain.Extra{},
		CheckStatusUntil: time.Now().Add(ttl),
	}

	// Declined before anything moves: persisted as a failed transaction
	// so the attempt is auditable, never an error.
	if typ == domain.TypeWithdrawal && !provider.SupportsWithdrawals(client) {
		return c.createDeclined(ctx, trx, DeclineUnsupportedProvider,
			fmt.Sprintf("provider %s does not support withdrawals", p.Provider))
	}

	decision, err := c.risk.Check(ctx, trx)
	if err != nil {
		return nil, fmt.Errorf("risk check failed: %w", err)
	}
	if !decision.Allowed {
		return c.createDeclined(ctx, trx, decision.DeclineCode, decision.DeclineReason)
	}

	if err := c.trxs.Create(ctx, trx); err != nil {
		return nil, err
	}

	if typ == domain.TypeWithdrawal {
		if err := c.freezeForWithdrawal(ctx, trx); err != nil {
			return nil, err
		}
		if trx.Status == domain.StatusFailed {
			return trx, nil
		}
	}

	if err := c.scheduler.Schedule(ctx, taskName, []byte(trx.Ref), time.Now()); err != nil {
		c.logger.Error("failed to schedule dispatch task",
			zap.String("ref", trx.Ref), zap.Error(err))
	}

	return trx, nil
}

func (c *Controller) createDeclined(ctx context.Context, trx *domain.Transaction, code, reason string) (*domain.Transaction, error) {
	trx.Status = domain.StatusFailed
	trx.DeclineCode = &code
	trx.DeclineReason = &reason

	if err := c.trxs.Create(ctx, trx); err != nil {
		return nil, err
	}

	c.logger.Info("transaction declined at creation",
		zap.String("ref", trx.Ref),
		zap.String("decline_code", code))
	return trx, nil
}

// freezeForWithdrawal re-checks available funds under the wallet lock
// and moves the amount to frozen. Insufficient funds at this point is a
// decline, not an error: the transaction flips to failed.
func (c *Controller) freezeForWithdrawal(ctx context.Context, trx *domain.Transaction) error {
	return c.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		w, err := c.wallets.GetForUpdate(ctx, tx, trx.WalletID)
		if err != nil {
			return err
		}

		if w.Available().LessThan(trx.Amount.Amount) {
			code := DeclineInsufficientFunds
			reason := fmt.Sprintf("available %s, requested %s",
				w.Available().String(), trx.Amount.Amount.String())
			trx.Status = domain.StatusFailed
			trx.DeclineCode = &code
			trx.DeclineReason = &reason
			return c.trxs.UpdateStatus(ctx, tx, trx, domain.StatusPending)
		}

		_, err = c.ledger.Apply(ctx, tx, w,
			domain.EventSettlementRequest, trx.Amount.Amount, domain.InitiatorUser, &trx.ID)
		return err
	})
}

// GetTransaction looks a transaction up by its external ref.
func (c *Controller) GetTransaction(ctx context.Context, ref string) (*domain.Transaction, error) {
	return c.trxs.GetByRef(ctx, ref)
}

// RunDeposit sends a pending deposit to its provider. Any error that
// escapes here fails the deposit: a deposit in limbo blocks nothing at
// the customer, so falling to failed is safe, and the decline says why.
func (c *Controller) RunDeposit(ctx context.Context, ref string) error {
	trx, err := c.trxs.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if !trx.IsPending() || trx.Type != domain.TypeDeposit {
		c.logger.Info("run_deposit skipped",
			zap.String("ref", ref),
			zap.String("status", string(trx.Status)),
			zap.String("type", string(trx.Type)))
		return nil
	}

	client, err := c.providers.Get(trx.Provider)
	if err != nil {
		return c.forceFail(ctx, trx, err)
	}

	resp, err := client.Deposit(ctx, trx)
	if err != nil {
		return c.forceFail(ctx, trx, err)
	}

	if err := c.applyDepositResponse(ctx, trx, resp); err != nil {
		return c.forceFail(ctx, trx, err)
	}
	return nil
}

// FinalizeDeposit runs the second leg of a redirect flow once the
// customer returns. Same rules as the first leg.
func (c *Controller) FinalizeDeposit(ctx context.Context, ref string) error {
	trx, err := c.trxs.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if !trx.IsPending() || trx.Type != domain.TypeDeposit {
		c.logger.Info("finalize_deposit skipped",
			zap.String("ref", ref), zap.String("status", string(trx.Status)))
		return nil
	}

	client, err := c.providers.Get(trx.Provider)
	if err != nil {
		return c.forceFail(ctx, trx, err)
	}

	resp, err := client.DepositFinalize(ctx, trx)
	if err != nil {
		return c.forceFail(ctx, trx, err)
	}

	if err := c.applyDepositResponse(ctx, trx, resp); err != nil {
		return c.forceFail(ctx, trx, err)
	}
	return nil
}

func (c *Controller) applyDepositResponse(ctx context.Context, trx *domain.Transaction, resp *provider.Response) error {
	if resp.Result == provider.ResultDeclined {
		return c.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
			Status:        domain.RemoteFailed,
			ProviderTxID:  resp.ProviderTxID,
			DeclineCode:   resp.DeclineCode,
			DeclineReason: resp.DeclineReason,
		})
	}

	if err := c.persistDispatch(ctx, trx, resp); err != nil {
		return err
	}
	return c.scheduleCheck(ctx, trx.Ref)
}

// RunWithdraw sends a pending withdrawal to its provider. Unlike
// deposits, nothing here may fail the transaction: once the request has
// left the building the provider might have executed it, and only an
// authoritative status query is allowed to settle the question.
func (c *Controller) RunWithdraw(ctx context.Context, ref string) error {
	trx, err := c.trxs.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if !trx.IsPending() || trx.Type != domain.TypeWithdrawal {
		c.logger.Info("run_withdraw skipped",
			zap.String("ref", ref),
			zap.String("status", string(trx.Status)),
			zap.String("type", string(trx.Type)))
		return nil
	}

	client, err := c.providers.Get(trx.Provider)
	if err != nil {
		return err
	}

	resp, err := client.Withdraw(ctx, trx)
	if err != nil {
		c.logger.Warn("withdrawal dispatch ambiguous, leaving pending",
			zap.String("ref", ref), zap.Error(err))
		return c.scheduleCheck(ctx, ref)
	}

	if resp.Result == provider.ResultDeclined {
		c.logger.Info("withdrawal declined inline, awaiting authoritative status",
			zap.String("ref", ref),
			zap.Stringp("decline_code", resp.DeclineCode))
	}

	if err := c.persistDispatch(ctx, trx, resp); err != nil {
		return err
	}
	return c.scheduleCheck(ctx, ref)
}

func (c *Controller) persistDispatch(ctx context.Context, trx *domain.Transaction, resp *provider.Response) error {
	return c.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		locked, err := c.trxs.GetForUpdate(ctx, tx, trx.ID)
		if err != nil {
			return err
		}
		if !locked.IsPending() {
			c.logger.Info("dispatch persistence skipped, transaction already settled",
				zap.String("ref", locked.Ref),
				zap.String("status", string(locked.Status)))
			return nil
		}

		if resp.ProviderTxID != nil {
			locked.ProviderTxID = resp.ProviderTxID
		}
		if resp.RedirectForm != nil {
			locked.RedirectForm = resp.RedirectForm
		}
		locked.Extra.Merge(resp.Extra)

		if err := c.trxs.UpdateDispatch(ctx, tx, locked); err != nil {
			return err
		}
		*trx = *locked
		return nil
	})
}

func (c *Controller) scheduleCheck(ctx context.Context, ref string) error {
	err := c.scheduler.Schedule(ctx, TaskCheckStatus, []byte(ref), time.Now().Add(c.cfg.CheckDelay))
	if err != nil {
		// The status sweep re-discovers pending transactions, so a lost
		// check task delays reconciliation instead of losing it.
		c.logger.Warn("failed to schedule status check",
			zap.String("ref", ref), zap.Error(err))
	}
	return nil
}

func (c *Controller) forceFail(ctx context.Context, trx *domain.Transaction, cause error) error {
	c.logger.Error("forcing deposit to failed",
		zap.String("ref", trx.Ref), zap.Error(cause))

	code := domain.DeclineInternalError
	reason := cause.Error()
	err := c.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status:        domain.RemoteFailed,
		DeclineCode:   &code,
		DeclineReason: &reason,
	})
	if err != nil && !errors.Is(err, xerrors.ErrStatusConflict) && !errors.Is(err, xerrors.ErrDeclineMismatch) {
		return err
	}
	return nil
}

// CheckStatus queries the provider and feeds the answer to the gate.
func (c *Controller) CheckStatus(ctx context.Context, ref string) error {
	trx, err := c.trxs.GetByRef(ctx, ref)
	if err != nil {
		return err
	}
	if !trx.IsPending() {
		return nil
	}

	client, err := c.providers.Get(trx.Provider)
	if err != nil {
		return err
	}

	remote, err := client.GetStatus(ctx, trx)
	if err != nil {
		if touchErr := c.trxs.TouchChecked(ctx, trx.ID, time.Now()); touchErr != nil {
			c.logger.Warn("failed to record status check attempt",
				zap.String("ref", ref), zap.Error(touchErr))
		}
		return fmt.Errorf("status query for %s failed: %w", ref, err)
	}

	return c.SyncRemoteStatus(ctx, ref, remote)
}

// SyncRemoteStatus is the single idempotency gate. Every status report,
// whatever its origin, is applied here under the transaction row lock:
// repeats are no-ops, regressions are conflicts, and balance effects
// happen exactly once, atomically with the status flip.
func (c *Controller) SyncRemoteStatus(ctx context.Context, ref string, remote *domain.RemoteStatus) error {
	existing, err := c.trxs.GetByRef(ctx, ref)
	if err != nil {
		return err
	}

	target, err := remote.Status.LocalStatus()
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInvalidRequest, err)
	}

	var (
		becameTerminal bool
		stillPending   bool
		trx            *domain.Transaction
		wallet         *domain.Wallet
	)

	err = c.txm.WithinTx(ctx, func(tx pgx.Tx) error {
		trx, err = c.trxs.GetForUpdate(ctx, tx, existing.ID)
		if err != nil {
			return err
		}

		if remote.RemoteAmount != nil && !remote.RemoteAmount.Equal(trx.Amount) {
			return fmt.Errorf("%w: local %s, remote %s",
				xerrors.ErrAmountMismatch, trx.Amount.String(), remote.RemoteAmount.String())
		}

		switch {
		case target == domain.StatusPending:
			stillPending = trx.IsPending()
			return nil

		case trx.Status == target:
			// Terminal repeat. Harmless only if the provider tells the
			// same story it told the first time.
			if !ptrEq(trx.DeclineCode, remote.DeclineCode) || !ptrEq(trx.DeclineReason, remote.DeclineReason) {
				return fmt.Errorf("%w: transaction %s already %s with different decline data",
					xerrors.ErrDeclineMismatch, trx.Ref, trx.Status)
			}
			return nil

		case trx.Status == domain.StatusSuccess && target == domain.StatusChargedBack:
			wallet, err = c.wallets.GetForUpdate(ctx, tx, trx.WalletID)
			if err != nil {
				return err
			}
			if _, err = c.ledger.Apply(ctx, tx, wallet,
				domain.EventChargeBack, trx.Amount.Amount, domain.InitiatorService, &trx.ID); err != nil {
				return err
			}
			trx.Status = domain.StatusChargedBack
			becameTerminal = true
			return c.trxs.UpdateStatus(ctx, tx, trx, domain.StatusSuccess)

		case trx.Status.IsTerminal():
			return fmt.Errorf("%w: transaction %s is %s, provider reports %s",
				xerrors.ErrStatusConflict, trx.Ref, trx.Status, target)
		}

		// Pending -> terminal: the one place balances move.
		if err := c.applyTerminalBalances(ctx, tx, trx, target, &wallet); err != nil {
			return err
		}

		trx.Status = target
		if target == domain.StatusFailed {
			trx.DeclineCode = remote.DeclineCode
			trx.DeclineReason = remote.DeclineReason
		}
		if remote.ProviderTxID != nil && trx.ProviderTxID == nil {
			trx.ProviderTxID = remote.ProviderTxID
		}
		becameTerminal = true

		return c.trxs.UpdateStatus(ctx, tx, trx, domain.StatusPending)
	})
	if err != nil {
		return err
	}

	if stillPending {
		if err := c.trxs.TouchChecked(ctx, trx.ID, time.Now()); err != nil {
			c.logger.Warn("failed to touch transaction", zap.String("ref", ref), zap.Error(err))
		}
		return nil
	}

	if becameTerminal {
		c.afterTerminal(ctx, trx, wallet)
	}
	return nil
}

// applyTerminalBalances moves money for a pending -> terminal flip.
// Deposits credit on success and touch nothing on failure; withdrawals
// consume their frozen leg on success and release it otherwise.
// Refunds of a pending transaction behave like failures: no credit was
// ever applied, so there is nothing to take back.
func (c *Controller) applyTerminalBalances(
	ctx context.Context,
	tx pgx.Tx,
	trx *domain.Transaction,
	target domain.TransactionStatus,
	wallet **domain.Wallet,
) error {
	var event domain.BalanceEvent
	confirmDeposit := false

	switch {
	case target == domain.StatusSuccess && trx.Type == domain.TypeDeposit:
		confirmDeposit = true
	case target == domain.StatusSuccess && trx.Type == domain.TypeWithdrawal:
		event = domain.EventSettlementConfirmed
	case trx.Type == domain.TypeWithdrawal:
		// Any non-success terminal releases the frozen leg: the payout
		// never happened, whatever the provider calls the outcome.
		event = domain.EventSettlementCancel
	default:
		// Failed/refunded/charged-back deposit from pending: no credit
		// was applied, no balance to move.
		return nil
	}

	w, err := c.wallets.GetForUpdate(ctx, tx, trx.WalletID)
	if err != nil {
		return err
	}
	*wallet = w

	if confirmDeposit {
		return c.ledger.ConfirmDeposit(ctx, tx, w, trx.Amount.Amount, domain.InitiatorService, &trx.ID)
	}
	_, err = c.ledger.Apply(ctx, tx, w, event, trx.Amount.Amount, domain.InitiatorService, &trx.ID)
	return err
}

func (c *Controller) afterTerminal(ctx context.Context, trx *domain.Transaction, wallet *domain.Wallet) {
	if err := c.publisher.PublishTerminal(ctx, trx); err != nil {
		c.logger.Error("failed to publish terminal event",
			zap.String("ref", trx.Ref), zap.Error(err))
	}
	if wallet != nil {
		c.notifier.BalanceChanged(wallet.ID, wallet)
	}
}

// HandleWebhook ingests one provider callback. Order is load-bearing:
// persist verbatim, verify the signature, parse, then dedupe. A rejected
// payload must not consume the dedup key, or a forged delivery could
// shadow the genuine one that follows with the same bytes.
func (c *Controller) HandleWebhook(ctx context.Context, providerName string, headers http.Header, body []byte) (*domain.InboundWebhook, error) {
	wh := &domain.InboundWebhook{
		Provider:       providerName,
		Headers:        headers,
		Body:           body,
		BodyHash:       domain.HashBody(body),
		Classification: domain.WebhookReceived,
	}
	if err := c.webhooks.Insert(ctx, wh); err != nil {
		return nil, err
	}

	client, err := c.providers.Get(providerName)
	if err != nil {
		c.setWebhookResult(ctx, wh, domain.WebhookUnmatched, nil, err)
		return wh, err
	}

	if err := client.VerifySignature(headers, body); err != nil {
		c.setWebhookResult(ctx, wh, domain.WebhookInvalidSignature, nil, err)
		return wh, err
	}

	parsed, err := client.ParseWebhook(body)
	if err != nil {
		err = fmt.Errorf("%w: %v", xerrors.ErrWebhookUnmatched, err)
		c.setWebhookResult(ctx, wh, domain.WebhookUnmatched, nil, err)
		return wh, err
	}
	wh.EventType = parsed.EventType

	first, err := c.replay.FirstSeen(ctx, providerName, wh.EventType, wh.BodyHash)
	if err != nil {
		c.logger.Warn("replay guard error", zap.Error(err))
	}
	if !first {
		c.setWebhookResult(ctx, wh, domain.WebhookDuplicate, nil, xerrors.ErrDuplicateWebhook)
		return wh, nil
	}

	// Second line of replay defense, backed by the webhook table itself.
	// Rows are counted by the event type recorded at processing time, so
	// the row inserted above does not count itself.
	if n, err := c.webhooks.CountByHash(ctx, providerName, wh.EventType, wh.BodyHash); err == nil && n > 0 {
		c.setWebhookResult(ctx, wh, domain.WebhookDuplicate, nil, xerrors.ErrDuplicateWebhook)
		return wh, nil
	}

	trx, err := c.resolveWebhookTransaction(ctx, providerName, parsed)
	if err != nil {
		c.setWebhookResult(ctx, wh, domain.WebhookUnmatched, nil, err)
		return wh, err
	}

	switch parsed.Kind {
	case provider.WebhookIgnored:
		c.setWebhookResult(ctx, wh, domain.WebhookIgnored, &trx.ID, nil)
		return wh, nil

	case provider.WebhookNeedsCheck:
		if err := c.scheduleCheck(ctx, trx.Ref); err != nil {
			c.setWebhookResult(ctx, wh, domain.WebhookProcessed, &trx.ID, err)
			return wh, err
		}
		c.setWebhookResult(ctx, wh, domain.WebhookProcessed, &trx.ID, nil)
		return wh, nil

	case provider.WebhookFinal:
		err := c.SyncRemoteStatus(ctx, trx.Ref, parsed.Remote)
		c.setWebhookResult(ctx, wh, domain.WebhookProcessed, &trx.ID, err)
		return wh, err
	}

	err = fmt.Errorf("%w: adapter returned unknown webhook kind %q", xerrors.ErrWebhookUnmatched, parsed.Kind)
	c.setWebhookResult(ctx, wh, domain.WebhookUnmatched, &trx.ID, err)
	return wh, err
}

func (c *Controller) resolveWebhookTransaction(ctx context.Context, providerName string, parsed *provider.Webhook) (*domain.Transaction, error) {
	if parsed.ProviderTxID != nil {
		trx, err := c.trxs.GetByProviderTxID(ctx, providerName, *parsed.ProviderTxID)
		if err == nil {
			return trx, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	if parsed.Ref != nil {
		trx, err := c.trxs.GetByRef(ctx, *parsed.Ref)
		if err == nil {
			return trx, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no transaction for webhook (provider %s)",
		xerrors.ErrWebhookUnmatched, providerName)
}

func (c *Controller) setWebhookResult(ctx context.Context, wh *domain.InboundWebhook, classification domain.WebhookClassification, trxID *int64, cause error) {
	wh.Classification = classification
	wh.TransactionID = trxID

	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
		wh.Error = errMsg
	}

	if err := c.webhooks.SetResult(ctx, wh.ID, wh.EventType, classification, trxID, errMsg); err != nil {
		c.logger.Error("failed to record webhook result",
			zap.Int64("webhook_id", wh.ID), zap.Error(err))
	}
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
