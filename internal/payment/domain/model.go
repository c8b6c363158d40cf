package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSuccess   TransactionStatus = "success"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is one attempt to collect money for an order through a gateway.
type Transaction struct {
	ID                  snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderID             snowflake.ID      `json:"order_id" gorm:"not null;index"`
	PaymentGateway      string            `json:"payment_gateway" gorm:"type:text;not null"`
	BuyerID             snowflake.ID      `json:"buyer_id" gorm:"not null"`
	BuyerSource         string            `json:"buyer_source" gorm:"type:text;not null"`
	Type                string            `json:"type" gorm:"type:text;not null"`
	TotalPrice          decimal.Decimal   `json:"total_price" gorm:"type:decimal(20,2);not null"`
	Status              TransactionStatus `json:"status" gorm:"type:text;not null"`
	PaymentToken        string            `json:"-" gorm:"type:text"`
	SubscriptionRef     string            `json:"subscription_ref,omitempty" gorm:"type:text"`
	PaymentResponseInfo datatypes.JSON    `json:"-" gorm:"type:jsonb"`
	SucceededAt         *time.Time        `json:"succeeded_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// EventRecord is a received gateway notification, unique per provider event id.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	TransactionID   *snowflake.ID  `json:"transaction_id,omitempty"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeSale    = "sale"
	EventTypeRenewal = "renewal"
)

// WebhookEvent is the canonical notification parsed by an adapter.
type WebhookEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	// TransactionID is set when the gateway echoes our id back; otherwise
	// the transaction is resolved through PaymentToken.
	TransactionID   snowflake.ID
	PaymentToken    string
	SubscriptionRef string
	BilledAmount    decimal.Decimal
	OccurredAt      time.Time
	RawPayload      []byte
}

// RemoteStatus is a gateway's view of a transaction during reconciliation.
type RemoteStatus string

const (
	RemoteStatusApproved RemoteStatus = "approved"
	RemoteStatusPending  RemoteStatus = "pending"
	RemoteStatusDeclined RemoteStatus = "declined"
)
