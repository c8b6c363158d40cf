package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/coupon/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("coupon.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ApplyCoupon(ctx context.Context, code string, userID snowflake.ID) (*domain.Applied, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrCouponNotFound
	}
	coupon, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.ErrCouponNotFound
	}
	if coupon.ExpiredAt != nil && !coupon.ExpiredAt.After(s.clock.Now()) {
		return nil, domain.ErrCouponExpired
	}
	if coupon.NumberOfUseLimit > 0 && coupon.UsedCount >= coupon.NumberOfUseLimit {
		return nil, domain.ErrCouponUsageExceeded
	}

	s.log.Debug("coupon applied", zap.String("code", coupon.Code), zap.String("user_id", userID.String()))
	return &domain.Applied{ID: coupon.ID, Code: coupon.Code, Value: coupon.Value}, nil
}

// Redeem consumes one use of the coupon. Running out of uses after the order
// was placed is logged, not failed: the buyer already paid the discounted price.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, applied domain.Applied) error {
	ok, err := s.repo.IncrementUsage(ctx, tx, applied.ID)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("coupon usage limit reached at redemption", zap.String("code", applied.Code))
	}
	return nil
}
