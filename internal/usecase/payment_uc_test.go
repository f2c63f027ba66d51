// internal/usecase/payment_uc_test.go
package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"payment-engine/internal/domain"
	"payment-engine/internal/provider"
	"payment-engine/internal/xerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	trxs       *fakeTrxStore
	wallets    *fakeWalletStore
	entries    *fakeEntryStore
	webhooks   *fakeWebhookStore
	sched      *fakeScheduler
	publisher  *fakePublisher
	guard      *fakeReplayGuard
	risk       *fakeRisk
	notifier   *fakeNotifier
	client     *fakeClient
	controller *Controller
}

func newTestEnv(t *testing.T, wallet *domain.Wallet, client *fakeClient) *testEnv {
	t.Helper()

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(client))

	env := &testEnv{
		trxs:      newFakeTrxStore(),
		wallets:   newFakeWalletStore(wallet),
		entries:   &fakeEntryStore{},
		webhooks:  &fakeWebhookStore{},
		sched:     &fakeScheduler{},
		publisher: &fakePublisher{},
		guard:     &fakeReplayGuard{},
		risk:      &fakeRisk{},
		notifier:  &fakeNotifier{},
		client:    client,
	}

	logger := zap.NewNop()
	ledger := NewLedgerService(env.wallets, env.entries, fakeTxManager{}, logger)

	env.controller = NewController(ControllerDeps{
		Transactions: env.trxs,
		Wallets:      env.wallets,
		Webhooks:     env.webhooks,
		TxManager:    fakeTxManager{},
		Ledger:       ledger,
		Providers:    registry,
		Scheduler:    env.sched,
		Risk:         env.risk,
		Publisher:    env.publisher,
		Replay:       env.guard,
		Notifier:     env.notifier,
		Logger:       logger,
	}, DefaultControllerConfig())

	return env
}

func testWallet(currency, operational string) *domain.Wallet {
	return &domain.Wallet{
		ID:                 1,
		MerchantID:         1,
		Currency:           currency,
		OperationalBalance: decimal.RequireFromString(operational),
		FrozenBalance:      decimal.Zero,
		PendingBalance:     decimal.Zero,
	}
}

func strp(s string) *string { return &s }

func (e *testEnv) mustGet(t *testing.T, ref string) *domain.Transaction {
	t.Helper()
	trx, err := e.trxs.GetByRef(context.Background(), ref)
	require.NoError(t, err)
	return trx
}

func TestDepositLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("MXN", "0"), &fakeClient{name: "test", supportsPayouts: true})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1,
		Provider: "test",
		Amount:   domain.MustMoney("30.01", "MXN"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, trx.Status)
	assert.Equal(t, 1, env.sched.count(TaskRunDeposit))

	require.NoError(t, env.controller.RunDeposit(ctx, trx.Ref))

	stored := env.mustGet(t, trx.Ref)
	require.NotNil(t, stored.ProviderTxID)
	assert.Equal(t, "ptx-"+trx.Ref, *stored.ProviderTxID)
	assert.Equal(t, 1, env.sched.count(TaskCheckStatus))

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status: domain.RemoteSuccess,
	}))

	stored = env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusSuccess, stored.Status)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "30.01", wallet.OperationalBalance.String())
	assert.True(t, wallet.PendingBalance.IsZero())
	assert.Len(t, env.entries.entries, 2)
	assert.Len(t, env.publisher.published, 1)
	assert.Equal(t, []int64{1}, env.notifier.changed)
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("MXN", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("30.01", "MXN"),
	})
	require.NoError(t, err)

	success := &domain.RemoteStatus{Status: domain.RemoteSuccess}
	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, success))

	// Same terminal status again, from any source: must change nothing.
	for i := 0; i < 3; i++ {
		require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, success))
	}

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "30.01", wallet.OperationalBalance.String())
	assert.Len(t, env.entries.entries, 2, "balance applied exactly once")
	assert.Len(t, env.publisher.published, 1, "published exactly once")
}

func TestDepositInlineDecline(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name: "test",
		depositFn: func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
			return &provider.Response{
				Result:        provider.ResultDeclined,
				DeclineCode:   strp("CARD_DECLINED"),
				DeclineReason: strp("issuer said no"),
			}, nil
		},
	}
	env := newTestEnv(t, testWallet("USD", "0"), client)

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)
	require.NoError(t, env.controller.RunDeposit(ctx, trx.Ref))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.DeclineCode)
	assert.Equal(t, "CARD_DECLINED", *stored.DeclineCode)
	assert.Empty(t, env.entries.entries, "failed deposit moves no money")
	assert.Len(t, env.publisher.published, 1)
}

func TestDepositProviderErrorForcesFailed(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name: "test",
		depositFn: func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
			return nil, errors.New("connection reset")
		},
	}
	env := newTestEnv(t, testWallet("USD", "0"), client)

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)
	require.NoError(t, env.controller.RunDeposit(ctx, trx.Ref))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.DeclineCode)
	assert.Equal(t, domain.DeclineInternalError, *stored.DeclineCode)
}

func TestWithdrawalSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "1000"), &fakeClient{name: "test", supportsPayouts: true})

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100.00", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, trx.Status)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", wallet.FrozenBalance.String(), "funds frozen at creation")
	assert.Equal(t, "1000", wallet.OperationalBalance.String())
	assert.Equal(t, "900", wallet.Available().String())

	require.NoError(t, env.controller.RunWithdraw(ctx, trx.Ref))
	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status: domain.RemoteSuccess,
	}))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusSuccess, stored.Status)

	wallet, err = env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "900", wallet.OperationalBalance.String())
	assert.True(t, wallet.FrozenBalance.IsZero())
}

func TestWithdrawalFailureReleasesFrozen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "1000"), &fakeClient{name: "test", supportsPayouts: true})

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100.00", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status:        domain.RemoteFailed,
		DeclineCode:   strp("PAYOUT_REJECTED"),
		DeclineReason: strp("beneficiary account closed"),
	}))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.DeclineCode)
	assert.Equal(t, "PAYOUT_REJECTED", *stored.DeclineCode)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1000", wallet.OperationalBalance.String(), "nothing left the wallet")
	assert.True(t, wallet.FrozenBalance.IsZero(), "frozen leg released")
}

func TestWithdrawalChargebackReleasesFrozen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "1000"), &fakeClient{name: "test", supportsPayouts: true})

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100.00", "USD"),
	})
	require.NoError(t, err)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "100", wallet.FrozenBalance.String())

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status: domain.RemoteChargedBack,
	}))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusChargedBack, stored.Status)

	wallet, err = env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1000", wallet.OperationalBalance.String(), "nothing left the wallet")
	assert.True(t, wallet.FrozenBalance.IsZero(), "frozen leg released, not stranded")
}

func TestWithdrawalInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "50"), &fakeClient{name: "test", supportsPayouts: true})

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100", "USD"),
	})
	require.NoError(t, err, "insufficient funds is a decline, not an error")
	assert.Equal(t, domain.StatusFailed, trx.Status)
	require.NotNil(t, trx.DeclineCode)
	assert.Equal(t, DeclineInsufficientFunds, *trx.DeclineCode)

	assert.Equal(t, 0, env.sched.count(TaskRunWithdraw), "declined withdrawal never dispatched")

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, wallet.FrozenBalance.IsZero())
}

func TestWithdrawalUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "1000"), &fakeClient{name: "test", supportsPayouts: false})

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, trx.Status)
	require.NotNil(t, trx.DeclineCode)
	assert.Equal(t, DeclineUnsupportedProvider, *trx.DeclineCode)
}

func TestWithdrawalAmbiguityLeavesPending(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name:            "test",
		supportsPayouts: true,
		withdrawFn: func(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	env := newTestEnv(t, testWallet("USD", "1000"), client)

	trx, err := env.controller.CreateWithdrawal(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.RunWithdraw(ctx, trx.Ref))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusPending, stored.Status,
		"the provider may have executed the payout; only a status query settles it")
	assert.Equal(t, 1, env.sched.count(TaskCheckStatus))

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", wallet.FrozenBalance.String(), "funds stay frozen while ambiguous")
}

func TestRiskDeclineAtCreation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})
	env.risk.code = domain.DeclineRiskRejected
	env.risk.reason = "daily cap exceeded"

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, trx.Status)
	require.NotNil(t, trx.DeclineCode)
	assert.Equal(t, domain.DeclineRiskRejected, *trx.DeclineCode)
	assert.Equal(t, 0, env.sched.count(TaskRunDeposit))
}

func TestSyncDeclineMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status: domain.RemoteFailed, DeclineCode: strp("A"), DeclineReason: strp("first story"),
	}))

	err = env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status: domain.RemoteFailed, DeclineCode: strp("B"), DeclineReason: strp("second story"),
	})
	assert.ErrorIs(t, err, xerrors.ErrDeclineMismatch)

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, "A", *stored.DeclineCode, "first decline wins")
}

func TestSyncTerminalConflict(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemoteSuccess}))

	err = env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemoteFailed, DeclineCode: strp("X"), DeclineReason: strp("y")})
	assert.ErrorIs(t, err, xerrors.ErrStatusConflict)

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusSuccess, stored.Status, "row unchanged on conflict")
}

func TestChargebackAfterSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("25", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemoteSuccess}))
	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemoteChargedBack}))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusChargedBack, stored.Status)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, wallet.OperationalBalance.IsZero(), "chargeback claws the credit back")
	assert.Len(t, env.publisher.published, 2)
}

func TestSyncAmountMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("100", "USD"),
	})
	require.NoError(t, err)

	remoteAmt := domain.MustMoney("90", "USD")
	err = env.controller.SyncRemoteStatus(ctx, trx.Ref, &domain.RemoteStatus{
		Status:       domain.RemoteSuccess,
		RemoteAmount: &remoteAmt,
	})
	assert.ErrorIs(t, err, xerrors.ErrAmountMismatch)

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, env.entries.entries)
}

func TestSyncPendingTouches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemotePending}))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.NotNil(t, stored.LastCheckedAt)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name: "test",
		verifySigFn: func(headers http.Header, body []byte) error {
			return xerrors.ErrInvalidSignature
		},
	}
	env := newTestEnv(t, testWallet("USD", "0"), client)

	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, []byte(`{"x":1}`))
	assert.ErrorIs(t, err, xerrors.ErrInvalidSignature)
	assert.Equal(t, domain.WebhookInvalidSignature, wh.Classification)
	assert.Len(t, env.webhooks.rows, 1, "payload stored before rejection")
}

func TestHandleWebhookDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})
	env.guard.duplicate = true

	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookDuplicate, wh.Classification)
	require.NotNil(t, wh.Error)
	assert.Equal(t, xerrors.ErrDuplicateWebhook.Error(), *wh.Error)
}

func TestHandleWebhookRejectedDeliveryKeepsDedupFresh(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{name: "test"}
	env := newTestEnv(t, testWallet("MXN", "0"), client)

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("30.01", "MXN"),
	})
	require.NoError(t, err)

	client.parseWebhookFn = func(body []byte) (*provider.Webhook, error) {
		return &provider.Webhook{
			Kind:      provider.WebhookFinal,
			EventType: "payment.updated",
			Ref:       &trx.Ref,
			Remote:    &domain.RemoteStatus{Status: domain.RemoteSuccess},
		}, nil
	}
	client.verifySigFn = func(headers http.Header, body []byte) error {
		return xerrors.ErrInvalidSignature
	}

	body := []byte(`{"event":"payment.updated"}`)

	// A forged delivery fails verification and must leave no trace in
	// the dedup state.
	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, body)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSignature)
	assert.Equal(t, domain.WebhookInvalidSignature, wh.Classification)
	assert.Equal(t, domain.StatusPending, env.mustGet(t, trx.Ref).Status)

	// The genuine delivery carries the exact same bytes and must still
	// be processed, not classified a duplicate.
	client.verifySigFn = nil
	wh, err = env.controller.HandleWebhook(ctx, "test", http.Header{}, body)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, wh.Classification)
	assert.Equal(t, domain.StatusSuccess, env.mustGet(t, trx.Ref).Status)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "30.01", wallet.OperationalBalance.String())

	// Replaying the processed delivery is still caught.
	wh, err = env.controller.HandleWebhook(ctx, "test", http.Header{}, body)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookDuplicate, wh.Classification)
}

func TestHandleWebhookUnmatched(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		name: "test",
		parseWebhookFn: func(body []byte) (*provider.Webhook, error) {
			ref := "no-such-ref"
			return &provider.Webhook{
				Kind:      provider.WebhookFinal,
				EventType: "payment.updated",
				Ref:       &ref,
				Remote:    &domain.RemoteStatus{Status: domain.RemoteSuccess},
			}, nil
		},
	}
	env := newTestEnv(t, testWallet("USD", "0"), client)

	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, []byte(`{"x":1}`))
	assert.ErrorIs(t, err, xerrors.ErrWebhookUnmatched)
	assert.Equal(t, domain.WebhookUnmatched, wh.Classification)
}

func TestHandleWebhookNeedsCheck(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{name: "test"}
	env := newTestEnv(t, testWallet("USD", "0"), client)

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)

	client.parseWebhookFn = func(body []byte) (*provider.Webhook, error) {
		return &provider.Webhook{
			Kind:      provider.WebhookNeedsCheck,
			EventType: "settlement",
			Ref:       &trx.Ref,
		}, nil
	}

	checksBefore := env.sched.count(TaskCheckStatus)
	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, wh.Classification)
	assert.Equal(t, checksBefore+1, env.sched.count(TaskCheckStatus))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusPending, stored.Status, "untrusted payload changes nothing")
}

func TestHandleWebhookFinalSyncs(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{name: "test"}
	env := newTestEnv(t, testWallet("MXN", "0"), client)

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("30.01", "MXN"),
	})
	require.NoError(t, err)

	client.parseWebhookFn = func(body []byte) (*provider.Webhook, error) {
		return &provider.Webhook{
			Kind:      provider.WebhookFinal,
			EventType: "payment.updated",
			Ref:       &trx.Ref,
			Remote:    &domain.RemoteStatus{Status: domain.RemoteSuccess},
		}, nil
	}

	wh, err := env.controller.HandleWebhook(ctx, "test", http.Header{}, []byte(`{"event":"payment.updated"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, wh.Classification)
	require.NotNil(t, wh.TransactionID)

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusSuccess, stored.Status)

	wallet, err := env.wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "30.01", wallet.OperationalBalance.String())
}

func TestRunSkipsNonPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testWallet("USD", "0"), &fakeClient{name: "test"})

	trx, err := env.controller.CreateDeposit(ctx, CreateParams{
		WalletID: 1, Provider: "test", Amount: domain.MustMoney("10", "USD"),
	})
	require.NoError(t, err)

	require.NoError(t, env.controller.SyncRemoteStatus(ctx, trx.Ref,
		&domain.RemoteStatus{Status: domain.RemoteSuccess}))

	// A stale run task arriving after settlement must be a no-op.
	require.NoError(t, env.controller.RunDeposit(ctx, trx.Ref))

	stored := env.mustGet(t, trx.Ref)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	assert.Len(t, env.entries.entries, 2)
}
