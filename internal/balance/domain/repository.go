package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrAccountNotFound     = errors.New("account_not_found")
)

// Repository mutates scalar balances with single-statement increments so
// concurrent credits and debits never lose updates.
type Repository interface {
	DebitUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal) error
	CreditUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal) error
	CreditPerformer(ctx context.Context, db *gorm.DB, performerID snowflake.ID, amount decimal.Decimal) error
	AdjustSubscribers(ctx context.Context, db *gorm.DB, performerID snowflake.ID, delta int64) error
}
