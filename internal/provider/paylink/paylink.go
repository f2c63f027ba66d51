// internal/provider/paylink/paylink.go
package paylink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payment-engine/internal/domain"
	"payment-engine/internal/provider"
	"payment-engine/internal/xerrors"
	"payment-engine/pkg/transport"

	"go.uber.org/zap"
)

const Name = "paylink"

// Config holds the merchant credentials for the Paylink gateway.
type Config struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	WebhookSecret string
	CallbackURL   string
}

// Paylink is a JSON-over-HTTP gateway with HMAC-SHA256 request signing.
// Its webhooks sign the full payload, so a verified callback is
// authoritative and parses to a final remote status.
type Paylink struct {
	cfg    Config
	client *transport.Client
	logger *zap.Logger
}

func New(cfg Config, client *transport.Client, logger *zap.Logger) *Paylink {
	return &Paylink{cfg: cfg, client: client, logger: logger}
}

func (p *Paylink) Name() string { return Name }

type paymentRequest struct {
	Reference   string `json:"reference"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url"`
	SessionID   string `json:"session_id,omitempty"`
}

type paymentResponse struct {
	Status        string  `json:"status"`
	PaymentID     string  `json:"payment_id"`
	DeclineCode   *string `json:"decline_code,omitempty"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	RedirectURL   *string `json:"redirect_url,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
}

func (p *Paylink) Deposit(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	return p.submit(ctx, "/v1/payments", trx, "")
}

func (p *Paylink) Withdraw(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	return p.submit(ctx, "/v1/payouts", trx, "")
}

func (p *Paylink) DepositFinalize(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	session, ok := trx.Extra.Get(Name, "session_id")
	if !ok {
		code := "MISSING_SESSION"
		reason := "no paylink session recorded for finalize"
		return &provider.Response{Result: provider.ResultDeclined, DeclineCode: &code, DeclineReason: &reason}, nil
	}
	return p.submit(ctx, "/v1/payments/finalize", trx, session)
}

func (p *Paylink) submit(ctx context.Context, path string, trx *domain.Transaction, session string) (*provider.Response, error) {
	req := paymentRequest{
		Reference:   trx.Ref,
		Amount:      trx.Amount.Amount.String(),
		Currency:    trx.Amount.Currency,
		CallbackURL: p.cfg.CallbackURL,
		SessionID:   session,
	}

	var resp paymentResponse
	status, err := p.client.PostJSON(ctx, p.cfg.BaseURL+path, p.authHeaders(), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("paylink %s failed: %w", path, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("paylink %s returned %d", path, status)
	}

	out := &provider.Response{Extra: domain.Extra{}}
	if resp.PaymentID != "" {
		out.ProviderTxID = &resp.PaymentID
	}
	if resp.SessionID != "" {
		out.Extra.Set(Name, "session_id", resp.SessionID)
	}
	if resp.RedirectURL != nil {
		out.RedirectForm = resp.RedirectURL
	}

	switch resp.Status {
	case "accepted", "processing":
		out.Result = provider.ResultAccepted
	case "pending_user_action":
		out.Result = provider.ResultPending
	case "declined":
		out.Result = provider.ResultDeclined
		out.DeclineCode = resp.DeclineCode
		out.DeclineReason = resp.DeclineReason
	default:
		return nil, fmt.Errorf("paylink returned unknown status %q", resp.Status)
	}

	return out, nil
}

type statusResponse struct {
	Status        string  `json:"status"`
	PaymentID     string  `json:"payment_id"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	DeclineCode   *string `json:"decline_code,omitempty"`
	DeclineReason *string `json:"decline_reason,omitempty"`
}

func (p *Paylink) GetStatus(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error) {
	if trx.ProviderTxID == nil {
		return nil, fmt.Errorf("transaction %s has no paylink payment id", trx.Ref)
	}

	var resp statusResponse
	url := fmt.Sprintf("%s/v1/payments/%s", p.cfg.BaseURL, *trx.ProviderTxID)
	status, err := p.client.GetJSON(ctx, url, p.authHeaders(), &resp)
	if err != nil {
		return nil, fmt.Errorf("paylink status query failed: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("paylink status query returned %d", status)
	}

	return p.toRemote(&resp)
}

func (p *Paylink) toRemote(resp *statusResponse) (*domain.RemoteStatus, error) {
	remote := &domain.RemoteStatus{
		DeclineCode:   resp.DeclineCode,
		DeclineReason: resp.DeclineReason,
	}
	if resp.PaymentID != "" {
		remote.ProviderTxID = &resp.PaymentID
	}
	if resp.Amount != "" {
		m, err := domain.ParseMoney(resp.Amount, resp.Currency)
		if err != nil {
			return nil, fmt.Errorf("paylink reported invalid amount: %w", err)
		}
		remote.RemoteAmount = &m
	}

	switch resp.Status {
	case "paid":
		remote.Status = domain.RemoteSuccess
	case "failed", "expired":
		remote.Status = domain.RemoteFailed
		// Paylink omits decline codes on expiry; normalize here so the
		// controller never sees a failed status without a code.
		if remote.DeclineCode == nil {
			code := "PAYLINK_" + resp.Status
			remote.DeclineCode = &code
		}
		if remote.DeclineReason == nil {
			reason := "paylink reported " + resp.Status
			remote.DeclineReason = &reason
		}
	case "refunded":
		remote.Status = domain.RemoteRefunded
	case "chargeback":
		remote.Status = domain.RemoteChargedBack
	case "pending", "processing", "pending_user_action":
		remote.Status = domain.RemotePending
	default:
		return nil, fmt.Errorf("paylink returned unknown status %q", resp.Status)
	}

	return remote, nil
}

// authHeaders signs the api key together with a unix timestamp so a
// captured request cannot be replayed outside the gateway's window.
func (p *Paylink) authHeaders() map[string]string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(p.cfg.APISecret))
	mac.Write([]byte(p.cfg.APIKey + ts))

	return map[string]string{
		"X-Paylink-Key":       p.cfg.APIKey,
		"X-Paylink-Timestamp": ts,
		"X-Paylink-Sign":      hex.EncodeToString(mac.Sum(nil)),
	}
}

// VerifySignature checks the X-Paylink-Signature header: hex-encoded
// HMAC-SHA256 of the raw body under the webhook secret.
func (p *Paylink) VerifySignature(headers http.Header, body []byte) error {
	got := headers.Get("X-Paylink-Signature")
	if got == "" {
		return fmt.Errorf("%w: missing X-Paylink-Signature", xerrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(got), []byte(want)) {
		return xerrors.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	Event     string         `json:"event"`
	Reference string         `json:"reference"`
	Payment   statusResponse `json:"payment"`
}

func (p *Paylink) ParseWebhook(body []byte) (*provider.Webhook, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse paylink webhook: %w", err)
	}

	wh := &provider.Webhook{EventType: payload.Event}
	if payload.Payment.PaymentID != "" {
		wh.ProviderTxID = &payload.Payment.PaymentID
	}
	if payload.Reference != "" {
		wh.Ref = &payload.Reference
	}

	switch payload.Event {
	case "payment.updated", "payout.updated":
		remote, err := p.toRemote(&payload.Payment)
		if err != nil {
			return nil, err
		}
		wh.Kind = provider.WebhookFinal
		wh.Remote = remote
	case "payment.created", "payout.created":
		wh.Kind = provider.WebhookIgnored
	default:
		wh.Kind = provider.WebhookIgnored
	}

	return wh, nil
}

var _ provider.Client = (*Paylink)(nil)
