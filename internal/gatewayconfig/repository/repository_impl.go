package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, gateway string, performerID snowflake.ID) (*domain.GatewayConfig, error) {
	var item domain.GatewayConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway, performer_id, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE gateway = ? AND performer_id = ?
		 LIMIT 1`,
		gateway,
		performerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, gateway string) ([]domain.GatewayConfig, error) {
	var items []domain.GatewayConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, gateway, performer_id, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE gateway = ? AND is_active = ?
		 ORDER BY performer_id`,
		gateway,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *domain.GatewayConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO gateway_configs (
			id, gateway, performer_id, config, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gateway, performer_id)
		DO UPDATE SET config = EXCLUDED.config,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		cfg.ID,
		cfg.Gateway,
		cfg.PerformerID,
		cfg.Config,
		cfg.IsActive,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, gateway string, performerID snowflake.ID, isActive bool, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE gateway_configs
		 SET is_active = ?, updated_at = ?
		 WHERE gateway = ? AND performer_id = ?`,
		isActive,
		updatedAt,
		gateway,
		performerID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
