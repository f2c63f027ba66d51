// internal/provider/sandbox.go
package provider

import (
	"context"
	"net/http"

	"payment-engine/internal/domain"

	"go.uber.org/zap"
)

// Sandbox wraps a real adapter for non-production environments. It is a
// decorator, not a subclass: the wrapped client does all the work, the
// sandbox only logs traffic and caps amounts so a misconfigured test
// run cannot move real money.
type Sandbox struct {
	inner  Client
	maxAmt domain.Money
	logger *zap.Logger
}

func NewSandbox(inner Client, maxAmt domain.Money, logger *zap.Logger) *Sandbox {
	return &Sandbox{inner: inner, maxAmt: maxAmt, logger: logger}
}

func (s *Sandbox) Name() string { return s.inner.Name() }

func (s *Sandbox) SupportsWithdrawals() bool { return SupportsWithdrawals(s.inner) }

func (s *Sandbox) Deposit(ctx context.Context, trx *domain.Transaction) (*Response, error) {
	if resp := s.capExceeded(trx); resp != nil {
		return resp, nil
	}
	s.logger.Info("sandbox deposit",
		zap.String("provider", s.inner.Name()),
		zap.String("ref", trx.Ref),
		zap.String("amount", trx.Amount.String()))
	return s.inner.Deposit(ctx, trx)
}

func (s *Sandbox) Withdraw(ctx context.Context, trx *domain.Transaction) (*Response, error) {
	if resp := s.capExceeded(trx); resp != nil {
		return resp, nil
	}
	s.logger.Info("sandbox withdraw",
		zap.String("provider", s.inner.Name()),
		zap.String("ref", trx.Ref),
		zap.String("amount", trx.Amount.String()))
	return s.inner.Withdraw(ctx, trx)
}

func (s *Sandbox) DepositFinalize(ctx context.Context, trx *domain.Transaction) (*Response, error) {
	return s.inner.DepositFinalize(ctx, trx)
}

func (s *Sandbox) GetStatus(ctx context.Context, trx *domain.Transaction) (*domain.RemoteStatus, error) {
	return s.inner.GetStatus(ctx, trx)
}

func (s *Sandbox) VerifySignature(headers http.Header, body []byte) error {
	return s.inner.VerifySignature(headers, body)
}

func (s *Sandbox) ParseWebhook(body []byte) (*Webhook, error) {
	return s.inner.ParseWebhook(body)
}

func (s *Sandbox) capExceeded(trx *domain.Transaction) *Response {
	if trx.Amount.Currency != s.maxAmt.Currency {
		return nil
	}
	if trx.Amount.Amount.LessThanOrEqual(s.maxAmt.Amount) {
		return nil
	}

	s.logger.Warn("sandbox amount cap exceeded, declining",
		zap.String("provider", s.inner.Name()),
		zap.String("ref", trx.Ref),
		zap.String("amount", trx.Amount.String()),
		zap.String("cap", s.maxAmt.String()))

	code := "SANDBOX_CAP"
	reason := "amount exceeds sandbox cap"
	return &Response{Result: ResultDeclined, DeclineCode: &code, DeclineReason: &reason}
}

var _ Client = (*Sandbox)(nil)
