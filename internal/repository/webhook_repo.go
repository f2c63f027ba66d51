// internal/repository/webhook_repo.go
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"payment-engine/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookStore persists every inbound callback verbatim before any
// processing happens, then records the processing outcome.
type WebhookStore interface {
	Insert(ctx context.Context, wh *domain.InboundWebhook) error

	// SetResult records the processing outcome, including the event type
	// that only became known once the payload was parsed.
	SetResult(ctx context.Context, id int64, eventType string, classification domain.WebhookClassification, transactionID *int64, errMsg *string) error
	CountByHash(ctx context.Context, provider, eventType, bodyHash string) (int, error)
}

type webhookRepo struct {
	db *pgxpool.Pool
}

func NewWebhookStore(db *pgxpool.Pool) WebhookStore {
	return &webhookRepo{db: db}
}

func (r *webhookRepo) Insert(ctx context.Context, wh *domain.InboundWebhook) error {
	headersJSON, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	query := `
		INSERT INTO inbound_webhooks (provider, headers, body, body_hash, event_type, classification)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, received_at
	`

	err = r.db.QueryRow(ctx, query,
		wh.Provider,
		headersJSON,
		wh.Body,
		wh.BodyHash,
		wh.EventType,
		wh.Classification,
	).Scan(&wh.ID, &wh.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert inbound webhook: %w", err)
	}

	return nil
}

func (r *webhookRepo) SetResult(ctx context.Context, id int64, eventType string, classification domain.WebhookClassification, transactionID *int64, errMsg *string) error {
	query := `
		UPDATE inbound_webhooks
		SET event_type = $1, classification = $2, transaction_id = $3, error = $4
		WHERE id = $5
	`

	_, err := r.db.Exec(ctx, query, eventType, classification, transactionID, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to set webhook result: %w", err)
	}

	return nil
}

func (r *webhookRepo) CountByHash(ctx context.Context, provider, eventType, bodyHash string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM inbound_webhooks WHERE provider = $1 AND event_type = $2 AND body_hash = $3`,
		provider, eventType, bodyHash,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhooks by hash: %w", err)
	}
	return n, nil
}
