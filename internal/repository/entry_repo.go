// internal/repository/entry_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"payment-engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// EntryStore is append-only. Balance entries are never updated or
// deleted; they are the sole source of truth for balance auditing.
type EntryStore interface {
	Insert(ctx context.Context, tx pgx.Tx, e *domain.BalanceEntry) error
	ListByWallet(ctx context.Context, walletID int64) ([]*domain.BalanceEntry, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]*domain.BalanceEntry, error)
}

type entryRepo struct {
	db *pgxpool.Pool
}

func NewEntryStore(db *pgxpool.Pool) EntryStore {
	return &entryRepo{db: db}
}

func (r *entryRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.BalanceEntry) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	query := `
		INSERT INTO balance_entries (
			wallet_id, event, amount, transaction_id, initiator,
			operational_before, operational_after,
			frozen_before, frozen_after,
			pending_before, pending_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		e.WalletID,
		e.Event,
		e.Amount.String(),
		e.TransactionID,
		e.Initiator,
		e.OperationalBefore.String(),
		e.OperationalAfter.String(),
		e.FrozenBefore.String(),
		e.FrozenAfter.String(),
		e.PendingBefore.String(),
		e.PendingAfter.String(),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert balance entry: %w", err)
	}

	return nil
}

const entryColumns = `
	id, wallet_id, event, amount::text, transaction_id, initiator,
	operational_before::text, operational_after::text,
	frozen_before::text, frozen_after::text,
	pending_before::text, pending_after::text,
	created_at
`

func (r *entryRepo) ListByWallet(ctx context.Context, walletID int64) ([]*domain.BalanceEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM balance_entries WHERE wallet_id = $1 ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *entryRepo) ListByTransaction(ctx context.Context, transactionID int64) ([]*domain.BalanceEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM balance_entries WHERE transaction_id = $1 ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*domain.BalanceEntry, error) {
	var out []*domain.BalanceEntry
	for rows.Next() {
		var e domain.BalanceEntry
		raw := make([]string, 7)

		err := rows.Scan(
			&e.ID,
			&e.WalletID,
			&e.Event,
			&raw[0],
			&e.TransactionID,
			&e.Initiator,
			&raw[1], &raw[2],
			&raw[3], &raw[4],
			&raw[5], &raw[6],
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}

		fields := []*decimal.Decimal{
			&e.Amount,
			&e.OperationalBefore, &e.OperationalAfter,
			&e.FrozenBefore, &e.FrozenAfter,
			&e.PendingBefore, &e.PendingAfter,
		}
		for i, f := range fields {
			d, err := decimal.NewFromString(raw[i])
			if err != nil {
				return nil, fmt.Errorf("invalid stored decimal %q: %w", raw[i], err)
			}
			*f = d
		}

		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance entry rows: %w", err)
	}
	return out, nil
}
