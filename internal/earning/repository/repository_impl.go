package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/earning/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, earning *domain.Earning) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO earnings (
			id, transaction_id, order_id, order_detail_id, performer_id, user_id,
			source_type, gross_price, commission, net_price, is_paid, payout_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id, order_detail_id) DO NOTHING`,
		earning.ID,
		earning.TransactionID,
		earning.OrderID,
		earning.OrderDetailID,
		earning.PerformerID,
		earning.UserID,
		earning.SourceType,
		earning.GrossPrice,
		earning.Commission,
		earning.NetPrice,
		earning.IsPaid,
		earning.PayoutStatus,
		earning.CreatedAt,
		earning.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.Earning, error) {
	var items []domain.Earning
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, order_id, order_detail_id, performer_id, user_id,
			source_type, gross_price, commission, net_price, is_paid, payout_status,
			created_at, updated_at
		 FROM earnings
		 WHERE transaction_id = ?
		 ORDER BY created_at ASC, id ASC`,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
