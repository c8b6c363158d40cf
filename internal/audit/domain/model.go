package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is an append-only record of an operator or system action.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	Cursor     *AuditCursor
	Limit      int
}

const (
	ActionSettingUpdate       = "settings.update"
	ActionGatewayConfigUpsert = "gateway_config.upsert"
	ActionGatewayConfigToggle = "gateway_config.set_active"
	ActionSubscriptionCancel  = "subscription.cancel"
	ActionOrderDelivery       = "order.delivery_update"
	TargetTypeSetting         = "setting"
	TargetTypeGatewayConfig   = "gateway_config"
	TargetTypeSubscription    = "subscription"
	TargetTypeOrder           = "order"
)
