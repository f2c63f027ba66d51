// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionStore interface {
	Create(ctx context.Context, trx *domain.Transaction) error
	GetByRef(ctx context.Context, ref string) (*domain.Transaction, error)
	GetByProviderTxID(ctx context.Context, provider, providerTxID string) (*domain.Transaction, error)

	// GetForUpdate takes the per-row exclusive lock that serializes all
	// concurrent attempts to transition a single transaction.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Transaction, error)

	// UpdateDispatch persists the provider's accept response
	// (provider tx id, extra bag, redirect instructions).
	UpdateDispatch(ctx context.Context, tx pgx.Tx, trx *domain.Transaction) error

	// UpdateStatus transitions status with an optimistic guard on the
	// expected current status. Zero rows affected means a concurrent
	// writer won the race.
	UpdateStatus(ctx context.Context, tx pgx.Tx, trx *domain.Transaction, expected domain.TransactionStatus) error

	TouchChecked(ctx context.Context, id int64, at time.Time) error
	ListPendingForPoll(ctx context.Context, checkedBefore time.Time, limit int) ([]*domain.Transaction, error)
	ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionStore(db *pgxpool.Pool) TransactionStore {
	return &transactionRepo{db: db}
}

const transactionColumns = `
	id, ref, wallet_id, customer_id, instrument_id, provider, provider_tx_id,
	type, status, amount::text, currency, decline_code, decline_reason,
	redirect_form, extra, check_status_until, last_checked_at,
	created_at, updated_at
`

func (r *transactionRepo) Create(ctx context.Context, trx *domain.Transaction) error {
	extraJSON, err := json.Marshal(trx.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	query := `
		INSERT INTO transactions (
			ref, wallet_id, customer_id, instrument_id, provider, type, status,
			amount, currency, extra, check_status_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		trx.Ref,
		trx.WalletID,
		trx.CustomerID,
		trx.InstrumentID,
		trx.Provider,
		trx.Type,
		trx.Status,
		trx.Amount.Amount.String(),
		trx.Amount.Currency,
		extraJSON,
		trx.CheckStatusUntil,
	).Scan(&trx.ID, &trx.CreatedAt, &trx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

func (r *transactionRepo) GetByRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ref = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, ref))
}

func (r *transactionRepo) GetByProviderTxID(ctx context.Context, provider, providerTxID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider = $1 AND provider_tx_id = $2`
	return scanTransaction(r.db.QueryRow(ctx, query, provider, providerTxID))
}

func (r *transactionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil for locked query")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, id))
}

func (r *transactionRepo) UpdateDispatch(ctx context.Context, tx pgx.Tx, trx *domain.Transaction) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	extraJSON, err := json.Marshal(trx.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	query := `
		UPDATE transactions
		SET provider_tx_id = $1,
			extra = $2,
			redirect_form = $3,
			updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := tx.Exec(ctx, query,
		trx.ProviderTxID,
		extraJSON,
		trx.RedirectForm,
		time.Now(),
		trx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction dispatch state: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, trx *domain.Transaction, expected domain.TransactionStatus) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	extraJSON, err := json.Marshal(trx.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	query := `
		UPDATE transactions
		SET status = $1,
			provider_tx_id = $2,
			decline_code = $3,
			decline_reason = $4,
			extra = $5,
			updated_at = $6
		WHERE id = $7 AND status = $8
	`

	cmdTag, err := tx.Exec(ctx, query,
		trx.Status,
		trx.ProviderTxID,
		trx.DeclineCode,
		trx.DeclineReason,
		extraJSON,
		time.Now(),
		trx.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("status guard failed for transaction %d (expected %s): %w",
			trx.ID, expected, xerrors.ErrStatusConflict)
	}

	return nil
}

func (r *transactionRepo) TouchChecked(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE transactions SET last_checked_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) ListPendingForPoll(ctx context.Context, checkedBefore time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		AND check_status_until > now()
		AND (last_checked_at IS NULL OR last_checked_at < $2)
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, domain.StatusPending, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *transactionRepo) ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		AND check_status_until <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, domain.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var trx domain.Transaction
	var amount, currency string
	var extraJSON []byte

	err := row.Scan(
		&trx.ID,
		&trx.Ref,
		&trx.WalletID,
		&trx.CustomerID,
		&trx.InstrumentID,
		&trx.Provider,
		&trx.ProviderTxID,
		&trx.Type,
		&trx.Status,
		&amount,
		&currency,
		&trx.DeclineCode,
		&trx.DeclineReason,
		&trx.RedirectForm,
		&extraJSON,
		&trx.CheckStatusUntil,
		&trx.LastCheckedAt,
		&trx.CreatedAt,
		&trx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	trx.Amount = domain.NewMoney(amt, currency)

	trx.Extra = domain.Extra{}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &trx.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
		}
	}

	return &trx, nil
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for rows.Next() {
		trx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return out, nil
}
