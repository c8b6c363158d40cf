package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound      = errors.New("coupon_not_found")
	ErrCouponExpired       = errors.New("coupon_expired")
	ErrCouponUsageExceeded = errors.New("coupon_usage_exceeded")
)

type Coupon struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code             string          `gorm:"column:code" json:"code"`
	Value            decimal.Decimal `gorm:"type:decimal(5,4)" json:"value"`
	ExpiredAt        *time.Time      `gorm:"column:expired_at" json:"expired_at,omitempty"`
	NumberOfUseLimit int64           `gorm:"column:number_of_use_limit" json:"number_of_use_limit"`
	UsedCount        int64           `gorm:"column:used_count" json:"used_count"`
	IsActive         bool            `gorm:"column:is_active" json:"is_active"`
}

// Applied is the coupon snapshot copied onto orders.
type Applied struct {
	ID    snowflake.ID    `json:"id"`
	Code  string          `json:"code"`
	Value decimal.Decimal `json:"value"`
}

// Discount returns price reduced by the coupon percentage, rounded to cents.
func (a Applied) Discount(price decimal.Decimal) decimal.Decimal {
	discounted := price.Sub(price.Mul(a.Value)).Round(2)
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

type Service interface {
	ApplyCoupon(ctx context.Context, code string, userID snowflake.ID) (*Applied, error)
	Redeem(ctx context.Context, tx *gorm.DB, applied Applied) error
}
