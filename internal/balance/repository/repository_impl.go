package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/balance/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"gorm.io/gorm"
)

type repo struct {
	clock clock.Clock
}

func Provide(clk clock.Clock) domain.Repository {
	return &repo{clock: clk}
}

func (r *repo) DebitUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET balance = balance - ?, updated_at = ?
		 WHERE id = ? AND balance >= ?`,
		amount, r.clock.Now().UTC(), userID, amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var exists int64
	if err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrAccountNotFound
	}
	return domain.ErrInsufficientBalance
}

func (r *repo) CreditUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal) error {
	return r.increment(ctx, db, "users", userID, amount)
}

func (r *repo) CreditPerformer(ctx context.Context, db *gorm.DB, performerID snowflake.ID, amount decimal.Decimal) error {
	return r.increment(ctx, db, "performers", performerID, amount)
}

func (r *repo) increment(ctx context.Context, db *gorm.DB, table string, id snowflake.ID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}
	result := db.WithContext(ctx).Exec(
		"UPDATE "+table+" SET balance = balance + ?, updated_at = ? WHERE id = ?",
		amount, r.clock.Now().UTC(), id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// AdjustSubscribers moves the subscriber counter by delta, never below zero.
func (r *repo) AdjustSubscribers(ctx context.Context, db *gorm.DB, performerID snowflake.ID, delta int64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE performers
		 SET stats_subscribers = CASE WHEN stats_subscribers + ? < 0 THEN 0 ELSE stats_subscribers + ? END,
		     updated_at = ?
		 WHERE id = ?`,
		delta, delta, r.clock.Now().UTC(), performerID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
