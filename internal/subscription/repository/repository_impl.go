package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, performer_id, user_id, subscription_type, subscription_ref, status,
	payment_gateway, transaction_id, start_recurring_date, next_recurring_date, expired_at, meta,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, sub *domain.Subscription) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.PerformerID,
		sub.UserID,
		sub.SubscriptionType,
		sub.SubscriptionRef,
		sub.Status,
		sub.PaymentGateway,
		sub.TransactionID,
		sub.StartRecurringDate,
		sub.NextRecurringDate,
		sub.ExpiredAt,
		sub.Meta,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, sub *domain.Subscription) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET subscription_type = ?, subscription_ref = ?, status = ?, payment_gateway = ?,
		     transaction_id = ?, start_recurring_date = ?, next_recurring_date = ?, expired_at = ?,
		     meta = ?, updated_at = ?
		 WHERE id = ?`,
		sub.SubscriptionType,
		sub.SubscriptionRef,
		sub.Status,
		sub.PaymentGateway,
		sub.TransactionID,
		sub.StartRecurringDate,
		sub.NextRecurringDate,
		sub.ExpiredAt,
		sub.Meta,
		sub.UpdatedAt,
		sub.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, conn, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByPairForUpdate(ctx context.Context, conn *gorm.DB, performerID, userID snowflake.ID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE performer_id = ? AND user_id = ?`
	if db.SupportsSkipLocked(conn) {
		query += " FOR UPDATE"
	}
	return r.findOne(ctx, conn, query, performerID, userID)
}

func (r *repo) FindByRef(ctx context.Context, conn *gorm.DB, gateway, ref string) (*domain.Subscription, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, conn,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE payment_gateway = ? AND subscription_ref = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		gateway, ref,
	)
}

func (r *repo) Deactivate(ctx context.Context, conn *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusDeactivated, now, id, domain.StatusActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&sub).Error; err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}
