package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// GatewayConfig holds encrypted gateway credentials. PerformerID 0 is the
// site-wide row; a performer row overrides it for that seller.
type GatewayConfig struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	Gateway     string         `json:"gateway" gorm:"type:text;not null"`
	PerformerID snowflake.ID   `json:"performer_id" gorm:"not null;default:0"`
	Config      datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (GatewayConfig) TableName() string { return "gateway_configs" }
