// internal/risk/risk.go
package risk

import (
	"context"
	"fmt"
	"time"

	"payment-engine/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Decision is a pre-flight verdict. A decline here is handled exactly
// like a gateway decline: it is a value, never an error.
type Decision struct {
	Allowed       bool
	DeclineCode   string
	DeclineReason string
}

var allow = &Decision{Allowed: true}

type Checker interface {
	Check(ctx context.Context, trx *domain.Transaction) (*Decision, error)
}

// AllowAll is the no-op checker for environments without risk rules.
type AllowAll struct{}

func (AllowAll) Check(ctx context.Context, trx *domain.Transaction) (*Decision, error) {
	return allow, nil
}

// Counters is the slice of redis the velocity checker needs.
// *redis.Client satisfies it.
type Counters interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// velocityScale fixes the minor-unit exponent for the amount counter.
// Amounts accumulate as integers scaled by 10^velocityScale, matching
// the NUMERIC(24,8) precision of the ledger; no floats touch money.
const velocityScale = 8

// VelocityChecker enforces per-customer daily caps on operation count
// and total amount, tracked in redis counters that expire with the day.
// Redis being down fails open: availability of payments beats a soft
// risk rule, and the outage is logged loudly.
type VelocityChecker struct {
	rdb       Counters
	maxCount  int64
	maxAmount decimal.Decimal
	logger    *zap.Logger
}

func NewVelocityChecker(rdb Counters, maxCount int64, maxAmount decimal.Decimal, logger *zap.Logger) *VelocityChecker {
	return &VelocityChecker{rdb: rdb, maxCount: maxCount, maxAmount: maxAmount, logger: logger}
}

func (c *VelocityChecker) Check(ctx context.Context, trx *domain.Transaction) (*Decision, error) {
	if trx.CustomerID == nil {
		return allow, nil
	}

	day := time.Now().UTC().Format("2006-01-02")
	countKey := fmt.Sprintf("risk:velocity:count:%d:%s", *trx.CustomerID, day)
	amountKey := fmt.Sprintf("risk:velocity:amount:%d:%s", *trx.CustomerID, day)

	count, err := c.rdb.Incr(ctx, countKey).Result()
	if err != nil {
		c.logger.Error("velocity check unavailable, failing open", zap.Error(err))
		return allow, nil
	}
	if count == 1 {
		c.rdb.Expire(ctx, countKey, 24*time.Hour)
	}

	amt := minorUnits(trx.Amount.Amount)
	total, err := c.rdb.IncrBy(ctx, amountKey, amt).Result()
	if err != nil {
		c.logger.Error("velocity check unavailable, failing open", zap.Error(err))
		return allow, nil
	}
	if total == amt {
		c.rdb.Expire(ctx, amountKey, 24*time.Hour)
	}

	if count > c.maxCount {
		return &Decision{
			DeclineCode:   domain.DeclineRiskRejected,
			DeclineReason: fmt.Sprintf("daily operation count %d exceeds limit %d", count, c.maxCount),
		}, nil
	}

	if total > minorUnits(c.maxAmount) {
		return &Decision{
			DeclineCode:   domain.DeclineRiskRejected,
			DeclineReason: fmt.Sprintf("daily amount %s exceeds limit %s",
				decimal.New(total, -velocityScale).String(), c.maxAmount.String()),
		}, nil
	}

	return allow, nil
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(velocityScale).IntPart()
}

var _ Checker = (*VelocityChecker)(nil)
var _ Checker = AllowAll{}
