// internal/pub/pub.go
package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-engine/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher announces terminal transaction transitions. Delivery is
// at-least-once; downstream consumers handle merchant notification and
// must dedupe on ref.
type Publisher interface {
	PublishTerminal(ctx context.Context, trx *domain.Transaction) error
}

// TerminalEvent is the wire shape of a terminal-transition message.
type TerminalEvent struct {
	Ref           string  `json:"ref"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Provider      string  `json:"provider"`
	DeclineCode   *string `json:"decline_code,omitempty"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) PublishTerminal(ctx context.Context, trx *domain.Transaction) error {
	event := TerminalEvent{
		Ref:           trx.Ref,
		Type:          string(trx.Type),
		Status:        string(trx.Status),
		Amount:        trx.Amount.Amount.String(),
		Currency:      trx.Amount.Currency,
		Provider:      trx.Provider,
		DeclineCode:   trx.DeclineCode,
		DeclineReason: trx.DeclineReason,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal terminal event: %w", err)
	}

	// Keyed by ref so all events of one transaction land on the same
	// partition in order.
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(trx.Ref),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish terminal event: %w", err)
	}

	p.logger.Info("published terminal event",
		zap.String("ref", trx.Ref),
		zap.String("status", string(trx.Status)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
