// Package domain contains the fan subscription model kept per (performer, user).
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
)

type Type string

const (
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
	// TypeSystem marks subscriptions granted without a payment.
	TypeSystem Type = "system"
)

// PeriodDays is the access granted by one paid period.
func (t Type) PeriodDays() int {
	if t == TypeYearly {
		return 365
	}
	return 30
}

// Subscription is the single row a user holds for a performer. Renewals and
// re-subscriptions overwrite it in place.
type Subscription struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	PerformerID        snowflake.ID   `gorm:"column:performer_id" json:"performer_id"`
	UserID             snowflake.ID   `gorm:"column:user_id" json:"user_id"`
	SubscriptionType   Type           `gorm:"column:subscription_type" json:"subscription_type"`
	SubscriptionRef    string         `gorm:"column:subscription_ref" json:"-"`
	Status             Status         `gorm:"column:status" json:"status"`
	PaymentGateway     string         `gorm:"column:payment_gateway" json:"payment_gateway"`
	TransactionID      snowflake.ID   `gorm:"column:transaction_id" json:"transaction_id"`
	StartRecurringDate *time.Time     `gorm:"column:start_recurring_date" json:"start_recurring_date,omitempty"`
	NextRecurringDate  *time.Time     `gorm:"column:next_recurring_date" json:"next_recurring_date,omitempty"`
	ExpiredAt          time.Time      `gorm:"column:expired_at" json:"expired_at"`
	Meta               datatypes.JSON `gorm:"column:meta" json:"meta,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == StatusActive
}
