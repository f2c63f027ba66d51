// internal/repository/wallet_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type WalletStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Wallet, error)

	// GetForUpdate takes the wallet row lock. It must be held before
	// computing new balances and is released when the scoped transaction
	// commits or rolls back.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error)

	// UpdateBalances persists the three balances in the same scoped
	// transaction that holds the lock.
	UpdateBalances(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletStore(db *pgxpool.Pool) WalletStore {
	return &walletRepo{db: db}
}

const walletColumns = `
	id, merchant_id, currency,
	operational_balance::text, frozen_balance::text, pending_balance::text,
	updated_at
`

func (r *walletRepo) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, id))
}

func (r *walletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil for locked query")
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, id))
}

func (r *walletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	query := `
		UPDATE wallets
		SET operational_balance = $1,
			frozen_balance = $2,
			pending_balance = $3,
			updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := tx.Exec(ctx, query,
		w.OperationalBalance.String(),
		w.FrozenBalance.String(),
		w.PendingBalance.String(),
		time.Now(),
		w.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var operational, frozen, pending string

	err := row.Scan(
		&w.ID,
		&w.MerchantID,
		&w.Currency,
		&operational,
		&frozen,
		&pending,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}

	if w.OperationalBalance, err = decimal.NewFromString(operational); err != nil {
		return nil, fmt.Errorf("invalid operational balance: %w", err)
	}
	if w.FrozenBalance, err = decimal.NewFromString(frozen); err != nil {
		return nil, fmt.Errorf("invalid frozen balance: %w", err)
	}
	if w.PendingBalance, err = decimal.NewFromString(pending); err != nil {
		return nil, fmt.Errorf("invalid pending balance: %w", err)
	}

	return &w, nil
}
