// internal/usecase/reserve_uc_test.go
package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReserveStore struct {
	mu     sync.Mutex
	holds  map[int64]*domain.ReserveHold
	nextID int64
}

func newFakeReserveStore() *fakeReserveStore {
	return &fakeReserveStore{holds: map[int64]*domain.ReserveHold{}}
}

func (s *fakeReserveStore) Create(ctx context.Context, tx pgx.Tx, h *domain.ReserveHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	h.ID = s.nextID
	h.Status = domain.ReserveActive
	h.CreatedAt = time.Now()
	cp := *h
	s.holds[h.ID] = &cp
	return nil
}

func (s *fakeReserveStore) ListMatured(ctx context.Context, now time.Time, limit int) ([]*domain.ReserveHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ReserveHold
	for _, h := range s.holds {
		if h.Status == domain.ReserveActive && !h.HoldUntil.After(now) {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeReserveStore) MarkReleased(ctx context.Context, tx pgx.Tx, id int64, releaseEntryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok || h.Status != domain.ReserveActive {
		return xerrors.ErrNotFound
	}
	h.Status = domain.ReserveReleased
	h.ReleaseEntryID = &releaseEntryID
	return nil
}

func newReserveFixture(t *testing.T, operational string) (*ReserveService, *fakeWalletStore, *fakeReserveStore, *fakeEntryStore) {
	t.Helper()
	wallets := newFakeWalletStore(&domain.Wallet{
		ID:                 1,
		Currency:           "USD",
		OperationalBalance: decimal.RequireFromString(operational),
		FrozenBalance:      decimal.Zero,
		PendingBalance:     decimal.Zero,
	})
	reserves := newFakeReserveStore()
	entries := &fakeEntryStore{}
	ledger := NewLedgerService(wallets, entries, fakeTxManager{}, zap.NewNop())
	svc := NewReserveService(wallets, reserves, ledger, fakeTxManager{}, zap.NewNop())
	return svc, wallets, reserves, entries
}

func TestReserveHoldAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, entries := newReserveFixture(t, "1000")

	hold, err := svc.Hold(ctx, 1, decimal.NewFromInt(100), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.ReserveActive, hold.Status)
	assert.NotZero(t, hold.HoldEntryID)

	wallet, err := wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", wallet.FrozenBalance.String())
	assert.Equal(t, "900", wallet.Available().String())

	released, err := svc.ReleaseMatured(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	wallet, err = wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, wallet.FrozenBalance.IsZero())
	assert.Len(t, entries.entries, 2)
}

func TestReserveReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, reserves, _ := newReserveFixture(t, "1000")

	hold, err := svc.Hold(ctx, 1, decimal.NewFromInt(50), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, hold))
	// Second release hits the guarded status flip and is a no-op.
	require.NoError(t, svc.Release(ctx, hold))

	assert.Equal(t, domain.ReserveReleased, reserves.holds[hold.ID].Status)
	require.NotNil(t, reserves.holds[hold.ID].ReleaseEntryID)
}

func TestReserveNotMaturedNotReleased(t *testing.T) {
	ctx := context.Background()
	svc, wallets, _, _ := newReserveFixture(t, "1000")

	_, err := svc.Hold(ctx, 1, decimal.NewFromInt(100), time.Now().Add(time.Hour))
	require.NoError(t, err)

	released, err := svc.ReleaseMatured(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	wallet, err := wallets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "100", wallet.FrozenBalance.String())
}
