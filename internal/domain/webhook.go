// internal/domain/webhook.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type WebhookClassification string

const (
	WebhookReceived         WebhookClassification = "received"
	WebhookProcessed        WebhookClassification = "processed"
	WebhookIgnored          WebhookClassification = "ignored"
	WebhookUnmatched        WebhookClassification = "unmatched"
	WebhookInvalidSignature WebhookClassification = "invalid_signature"
	WebhookDuplicate        WebhookClassification = "duplicate"
)

// InboundWebhook stores every received callback verbatim before any
// processing. It is the forensic record and the replay-detection key.
type InboundWebhook struct {
	ID             int64                 `json:"id" db:"id"`
	Provider       string                `json:"provider" db:"provider"`
	Headers        map[string][]string   `json:"headers" db:"headers"`
	Body           []byte                `json:"body" db:"body"`
	BodyHash       string                `json:"body_hash" db:"body_hash"`
	EventType      string                `json:"event_type" db:"event_type"`
	TransactionID  *int64                `json:"transaction_id,omitempty" db:"transaction_id"`
	Classification WebhookClassification `json:"classification" db:"classification"`
	Error          *string               `json:"error,omitempty" db:"error"`
	ReceivedAt     time.Time             `json:"received_at" db:"received_at"`
}

// HashBody computes the replay-detection hash of a raw payload.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
