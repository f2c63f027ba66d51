// internal/repository/reserve_repo.go
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

type ReserveStore interface {
	Create(ctx context.Context, tx pgx.Tx, h *domain.ReserveHold) error
	ListMatured(ctx context.Context, now time.Time, limit int) ([]*domain.ReserveHold, error)

	// MarkReleased transitions active -> released, guarded so a hold can
	// never be released twice even under concurrent sweeps.
	MarkReleased(ctx context.Context, tx pgx.Tx, id int64, releaseEntryID int64) error
}

type reserveRepo struct {
	db *pgxpool.Pool
}

func NewReserveStore(db *pgxpool.Pool) ReserveStore {
	return &reserveRepo{db: db}
}

func (r *reserveRepo) Create(ctx context.Context, tx pgx.Tx, h *domain.ReserveHold) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	query := `
		INSERT INTO reserve_holds (wallet_id, amount, status, hold_entry_id, hold_until)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		h.WalletID,
		h.Amount.String(),
		domain.ReserveActive,
		h.HoldEntryID,
		h.HoldUntil,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reserve hold: %w", err)
	}
	h.Status = domain.ReserveActive

	return nil
}

func (r *reserveRepo) ListMatured(ctx context.Context, now time.Time, limit int) ([]*domain.ReserveHold, error) {
	query := `
		SELECT id, wallet_id, amount::text, status, hold_entry_id, release_entry_id,
			hold_until, created_at, released_at
		FROM reserve_holds
		WHERE status = $1 AND hold_until <= $2
		ORDER BY hold_until ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, domain.ReserveActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matured holds: %w", err)
	}
	defer rows.Close()

	var out []*domain.ReserveHold
	for rows.Next() {
		var h domain.ReserveHold
		var amount string
		err := rows.Scan(
			&h.ID,
			&h.WalletID,
			&amount,
			&h.Status,
			&h.HoldEntryID,
			&h.ReleaseEntryID,
			&h.HoldUntil,
			&h.CreatedAt,
			&h.ReleasedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reserve hold: %w", err)
		}
		if h.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reserve holds: %w", err)
	}

	return out, nil
}

func (r *reserveRepo) MarkReleased(ctx context.Context, tx pgx.Tx, id int64, releaseEntryID int64) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	query := `
		UPDATE reserve_holds
		SET status = $1, release_entry_id = $2, released_at = $3
		WHERE id = $4 AND status = $5
	`

	cmdTag, err := tx.Exec(ctx, query,
		domain.ReserveReleased, releaseEntryID, time.Now(), id, domain.ReserveActive)
	if err != nil {
		return fmt.Errorf("failed to release reserve hold: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
