package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/config"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWalletDebit = "wallet:debit:user:%s"

var ErrRateLimited = errors.New("rate_limited")

type WalletLimiterParams struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Bucket     *TokenBucket        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// WalletLimiter throttles wallet debits per buyer.
type WalletLimiter struct {
	enabled bool

	log        *zap.Logger
	bucket     *TokenBucket
	obsMetrics *obsmetrics.Metrics
	rate       float64
	burst      int
}

func NewWalletLimiter(p WalletLimiterParams) (*WalletLimiter, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return &WalletLimiter{}, nil
	}
	if p.Bucket == nil {
		return nil, errors.New("rate limit requires a redis address")
	}
	if limitCfg.WalletRate <= 0 || limitCfg.WalletBurst <= 0 {
		return nil, errors.New("wallet rate limit must be positive")
	}
	return &WalletLimiter{
		enabled:    true,
		log:        p.Log.Named("ratelimit.wallet"),
		bucket:     p.Bucket,
		obsMetrics: p.ObsMetrics,
		rate:       limitCfg.WalletRate,
		burst:      limitCfg.WalletBurst,
	}, nil
}

func (l *WalletLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowDebit fails open when Redis is unreachable.
func (l *WalletLimiter) AllowDebit(ctx context.Context, userID snowflake.ID, purpose string) error {
	if !l.Enabled() {
		return nil
	}
	endpoint := "wallet." + strings.TrimSpace(purpose)
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWalletDebit, userID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("wallet rate limit unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		l.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "user_bucket")
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, res.RetryAfter)
	}
	l.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
	return nil
}
