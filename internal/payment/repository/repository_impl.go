package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const transactionColumns = `id, order_id, payment_gateway, buyer_id, buyer_source, type, total_price,
	status, payment_token, subscription_ref, payment_response_info, succeeded_at,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.OrderID,
		txn.PaymentGateway,
		txn.BuyerID,
		txn.BuyerSource,
		txn.Type,
		txn.TotalPrice,
		txn.Status,
		txn.PaymentToken,
		txn.SubscriptionRef,
		txn.PaymentResponseInfo,
		txn.SucceededAt,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
}

func (r *repo) FindByPaymentToken(ctx context.Context, db *gorm.DB, gateway, token string) (*domain.Transaction, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE payment_gateway = ? AND payment_token = ?
		 ORDER BY id DESC LIMIT 1`,
		gateway, token,
	)
}

func (r *repo) FindBySubscriptionRef(ctx context.Context, db *gorm.DB, gateway, ref string) (*domain.Transaction, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE payment_gateway = ? AND subscription_ref = ? AND status = ?
		 ORDER BY id ASC LIMIT 1`,
		gateway, ref, domain.TransactionStatusSuccess,
	)
}

func (r *repo) FindOpenByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE order_id = ? AND status <> ?
		 ORDER BY id DESC LIMIT 1`,
		orderID, domain.TransactionStatusCancelled,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&txn).Error; err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) SetPaymentToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET payment_token = ?, updated_at = ? WHERE id = ?`,
		token, now, id,
	).Error
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionRef string, payload datatypes.JSON, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?,
		     subscription_ref = CASE WHEN ? <> '' THEN ? ELSE subscription_ref END,
		     payment_response_info = COALESCE(?, payment_response_info),
		     succeeded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.TransactionStatusSuccess,
		subscriptionRef, subscriptionRef,
		payload,
		now, now,
		id, domain.TransactionStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.TransactionStatusCancelled, now, id, domain.TransactionStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AddAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET total_price = total_price + ?, updated_at = ? WHERE id = ?`,
		amount, now, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, gateway string, from, to time.Time, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE payment_gateway = ? AND status = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		gateway, domain.TransactionStatusPending, from, to, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPendingBefore(ctx context.Context, db *gorm.DB, gateway string, before time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM transactions
		 WHERE payment_gateway = ? AND status = ? AND created_at < ?`,
		gateway, domain.TransactionStatusPending, before,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, transaction_id,
			payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, transaction_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.TransactionID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID *snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, transaction_id = COALESCE(?, transaction_id)
		 WHERE id = ?`,
		processedAt,
		transactionID,
		id,
	).Error
}
