package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, email, balance, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindPerformer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Performer, error) {
	var performer domain.Performer
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, email, balance, monthly_price, yearly_price, stats_subscribers
		 FROM performers WHERE id = ?`,
		id,
	).Scan(&performer).Error
	if err != nil {
		return nil, err
	}
	if performer.ID == 0 {
		return nil, nil
	}
	return &performer, nil
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, kind domain.ItemKind, id snowflake.ID) (*domain.Item, error) {
	var query string
	switch kind {
	case domain.ItemKindVideo:
		query = `SELECT id, performer_id, title, price, is_sale FROM videos WHERE id = ?`
	case domain.ItemKindPhoto:
		query = `SELECT id, performer_id, title, price, is_sale FROM photos WHERE id = ?`
	case domain.ItemKindFeed:
		query = `SELECT id, performer_id, text AS title, price, is_sale FROM feeds WHERE id = ?`
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}

	var item domain.Item
	if err := db.WithContext(ctx).Raw(query, id).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindProducts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, performer_id, name, description, product_type, price, stock
		 FROM products WHERE id IN ? ORDER BY id`,
		ids,
	).Scan(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) FindWalletPackage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WalletPackage, error) {
	var pkg domain.WalletPackage
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price, token_amount, is_active FROM wallet_packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) FindCommissionOverride(ctx context.Context, db *gorm.DB, performerID snowflake.ID, sourceType string) (*decimal.Decimal, error) {
	var rows []struct {
		Commission decimal.Decimal `gorm:"column:commission"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT commission FROM performer_commissions WHERE performer_id = ? AND source_type = ?`,
		performerID,
		sourceType,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rate := rows[0].Commission
	return &rate, nil
}
