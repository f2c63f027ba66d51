// internal/provider/midtranspay/midtranspay.go
package midtranspay

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"payment-engine/internal/domain"
	"payment-engine/internal/provider"
	"payment-engine/internal/xerrors"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"go.uber.org/zap"
)

const Name = "midtrans"

type Config struct {
	ServerKey  string
	Production bool
}

// Midtrans adapts the Midtrans Core API to the gateway contract.
// Deposits only: payouts go through a separate Midtrans product that
// this merchant account does not use. Webhook payloads are treated as
// triggers; the authoritative status always comes from a follow-up
// CheckTransaction call.
type Midtrans struct {
	cfg    Config
	core   coreapi.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	m := &Midtrans{cfg: cfg, logger: logger}
	m.core.New(cfg.ServerKey, env)
	return m
}

func (m *Midtrans) Name() string { return Name }

// SupportsWithdrawals reports that this adapter handles deposits only.
func (m *Midtrans) SupportsWithdrawals() bool { return false }

func (m *Midtrans) Deposit(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	gross, ok := wholeAmount(trx.Amount)
	if !ok {
		code := "INVALID_AMOUNT"
		reason := "midtrans requires whole-unit amounts"
		return &provider.Response{Result: provider.ResultDeclined, DeclineCode: &code, DeclineReason: &reason}, nil
	}

	req := &coreapi.ChargeReq{
		PaymentType: coreapi.PaymentTypeBankTransfer,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  trx.Ref,
			GrossAmt: gross,
		},
		BankTransfer: &coreapi.BankTransferDetails{
			Bank: midtrans.BankBca,
		},
	}

	resp, err := m.core.ChargeTransaction(req)
	if err != nil {
		return nil, fmt.Errorf("midtrans charge failed: %w", err)
	}

	out := &provider.Response{Extra: domain.Extra{}}
	if resp.TransactionID != "" {
		out.ProviderTxID = &resp.TransactionID
	}

	switch resp.TransactionStatus {
	case "pending", "capture", "settlement", "authorize":
		out.Result = provider.ResultAccepted
		if len(resp.VaNumbers) > 0 {
			out.Extra.Set(Name, "va_bank", resp.VaNumbers[0].Bank)
			out.Extra.Set(Name, "va_number", resp.VaNumbers[0].VANumber)
			form := fmt.Sprintf("transfer to %s virtual account %s",
				resp.VaNumbers[0].Bank, resp.VaNumbers[0].VANumber)
			out.RedirectForm = &form
		}
	case "deny", "cancel", "expire":
		out.Result = provider.ResultDeclined
		out.DeclineCode = &resp.StatusCode
		out.DeclineReason = &resp.StatusMessage
	default:
		return nil, fmt.Errorf("midtrans returned unknown transaction_status %q", resp.TransactionStatus)
	}

	return out, nil
}

func (m *Midtrans) Withdraw(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	return nil, fmt.Errorf("midtrans adapter does not support withdrawals")
}

// DepositFinalize captures a previously authorized card transaction
// (the second leg after 3-D Secure).
func (m *Midtrans) DepositFinalize(ctx context.Context, trx *domain.Transaction) (*provider.Response, error) {
	if trx.ProviderTxID == nil {
		code := "MISSING_PROVIDER_ID"
		reason := "no midtrans transaction id recorded for capture"
		return &provider.Response{Result: provider.ResultDeclined, DeclineCode: &code, DeclineReason: &reason}, nil
	}

	gross, _ := trx.Amount.Amount.Float64()
	resp, err := m.core.CaptureTransaction(&coreapi.CaptureReq{
		TransactionID: *trx.ProviderTxID,
		GrossAmt:      gross,
	})
	if err != nil {
		return nil, fmt.Errorf("midtrans capture failed: %w", err)
	}

	out := &provider.Response{Extra: domain.Extra{}}
	switch resp.TransactionStatus {
	case "capture", "settlement":
		out.Result = provider.ResultAccepted
	default:
		out.Result = provider.ResultDeclined
		out.DeclineCode = &resp.StatusCode
		out.DeclineReason = &resp.StatusMessage
	}

	return out, nil
}

func (m *Midtrans) GetStatus(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error) {
	resp, err := m.core.CheckTransaction(trx.Ref)
	if err != nil {
		return nil, fmt.Errorf("midtrans status check failed: %w", err)
	}

	remote := &domain.RemoteStatus{}
	if resp.TransactionID != "" {
		remote.ProviderTxID = &resp.TransactionID
	}
	if resp.GrossAmount != "" {
		amt, perr := domain.ParseMoney(resp.GrossAmount, resp.Currency)
		if perr == nil {
			remote.RemoteAmount = &amt
		}
	}

	switch resp.TransactionStatus {
	case "settlement":
		remote.Status = domain.RemoteSuccess
	case "capture":
		// Card transactions are settled once fraud review accepts.
		if resp.FraudStatus == "accept" {
			remote.Status = domain.RemoteSuccess
		} else {
			remote.Status = domain.RemotePending
		}
	case "pending", "authorize":
		remote.Status = domain.RemotePending
	case "deny", "cancel", "expire", "failure":
		remote.Status = domain.RemoteFailed
		remote.DeclineCode = &resp.StatusCode
		remote.DeclineReason = &resp.StatusMessage
	case "refund", "partial_refund":
		remote.Status = domain.RemoteRefunded
	case "chargeback", "partial_chargeback":
		remote.Status = domain.RemoteChargedBack
	default:
		return nil, fmt.Errorf("midtrans returned unknown transaction_status %q", resp.TransactionStatus)
	}

	return remote, nil
}

type notification struct {
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	SignatureKey      string `json:"signature_key"`
}

// VerifySignature checks the notification signature_key:
// sha512(order_id + status_code + gross_amount + server_key).
func (m *Midtrans) VerifySignature(headers http.Header, body []byte) error {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("%w: unparseable payload", xerrors.ErrInvalidSignature)
	}
	if n.SignatureKey == "" {
		return fmt.Errorf("%w: missing signature_key", xerrors.ErrInvalidSignature)
	}

	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + m.cfg.ServerKey))
	want := hex.EncodeToString(sum[:])
	if n.SignatureKey != want {
		return xerrors.ErrInvalidSignature
	}
	return nil
}

// ParseWebhook never trusts the notification payload for the status
// value itself: once the signature is verified the payload identifies
// the transaction, and a status-check task fetches the truth.
func (m *Midtrans) ParseWebhook(body []byte) (*provider.Webhook, error) {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to parse midtrans notification: %w", err)
	}

	wh := &provider.Webhook{EventType: n.TransactionStatus}
	if n.OrderID != "" {
		wh.Ref = &n.OrderID
	}
	if n.TransactionID != "" {
		wh.ProviderTxID = &n.TransactionID
	}

	switch n.TransactionStatus {
	case "settlement", "capture", "deny", "cancel", "expire", "failure",
		"refund", "partial_refund", "chargeback", "partial_chargeback":
		wh.Kind = provider.WebhookNeedsCheck
	case "pending", "authorize":
		wh.Kind = provider.WebhookIgnored
	default:
		wh.Kind = provider.WebhookIgnored
	}

	return wh, nil
}

// wholeAmount converts to midtrans' integer gross amount, refusing
// fractional units rather than rounding money.
func wholeAmount(m domain.Money) (int64, bool) {
	if !m.Amount.Equal(m.Amount.Truncate(0)) {
		return 0, false
	}
	return m.Amount.IntPart(), true
}

var _ provider.Client = (*Midtrans)(nil)
