package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, gateway string, performerID snowflake.ID) (*GatewayConfig, error)
	ListActive(ctx context.Context, db *gorm.DB, gateway string) ([]GatewayConfig, error)
	Upsert(ctx context.Context, db *gorm.DB, cfg *GatewayConfig) error
	UpdateStatus(ctx context.Context, db *gorm.DB, gateway string, performerID snowflake.ID, isActive bool, updatedAt time.Time) (bool, error)
}

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Summary, error)
	SetActive(ctx context.Context, gateway string, performerID snowflake.ID, isActive bool) (*Summary, error)
	// Resolve returns the performer override when one is active, else the
	// site-wide credentials.
	Resolve(ctx context.Context, gateway string, performerID snowflake.ID) (*Resolved, error)
	ListActive(ctx context.Context, gateway string) ([]Resolved, error)
}

type UpsertRequest struct {
	Gateway     string         `json:"gateway"`
	PerformerID snowflake.ID   `json:"performer_id"`
	Config      map[string]any `json:"config"`
}

type Summary struct {
	Gateway     string       `json:"gateway"`
	PerformerID snowflake.ID `json:"performer_id"`
	IsActive    bool         `json:"is_active"`
	Configured  bool         `json:"configured"`
}

type Resolved struct {
	Gateway     string
	PerformerID snowflake.ID
	Config      map[string]any
}

var (
	ErrInvalidGateway       = errors.New("invalid_gateway")
	ErrInvalidConfig        = errors.New("invalid_gateway_config")
	ErrNotFound             = errors.New("gateway_config_not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
	ErrGatewayNotConfigured = errors.New("gateway_not_configured")
)
