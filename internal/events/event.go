package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ChannelTransactionSucceeded    = "transaction.succeeded"
	ChannelOrderPaid               = "order.paid"
	ChannelSubscriptionActivated   = "subscription.activated"
	ChannelSubscriptionDeactivated = "subscription.deactivated"
	ChannelSettingsUpdated         = "settings.updated"
)

var (
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrMissingDedupeKey = errors.New("missing_dedupe_key")
)

// Event is one fact published on the bus. Payload is any JSON-encodable value on
// publish and a json.RawMessage once read back from the outbox.
type Event struct {
	ID         snowflake.ID
	Type       string
	Payload    any
	DedupeKey  string
	OccurredAt time.Time
}

// Decode unmarshals the payload into out.
func (e Event) Decode(out any) error {
	switch raw := e.Payload.(type) {
	case json.RawMessage:
		return json.Unmarshal(raw, out)
	case []byte:
		return json.Unmarshal(raw, out)
	case string:
		return json.Unmarshal([]byte(raw), out)
	case nil:
		return ErrInvalidEvent
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return json.Unmarshal(encoded, out)
	}
}

// TransactionSucceeded is published whenever a payment transaction reaches SUCCESS,
// and again for each metered charge appended to an open private-chat transaction.
type TransactionSucceeded struct {
	TransactionID snowflake.ID `json:"transaction_id"`
	OrderID       snowflake.ID `json:"order_id"`
	Gateway       string       `json:"gateway"`
	Type          string       `json:"type"`
	TotalPrice    string       `json:"total_price"`
	Source        string       `json:"source"`
	OccurredAt    time.Time    `json:"occurred_at"`
	// OrderDetailID names the appended line for metered charges.
	OrderDetailID snowflake.ID `json:"order_detail_id,omitempty"`
}

// OrderPaid is published by the order status updater once an order is PAID.
// PaidAt carries the receipt time of the originating payment event.
type OrderPaid struct {
	OrderID       snowflake.ID `json:"order_id"`
	TransactionID snowflake.ID `json:"transaction_id"`
	Gateway       string       `json:"gateway"`
	OrderType     string       `json:"order_type"`
	BuyerID       snowflake.ID `json:"buyer_id"`
	SellerID      snowflake.ID `json:"seller_id"`
	PaidAt        time.Time    `json:"paid_at"`
	// OrderDetailID limits the fan-out to one appended line.
	OrderDetailID snowflake.ID `json:"order_detail_id,omitempty"`
}

type SubscriptionChanged struct {
	SubscriptionID   snowflake.ID `json:"subscription_id"`
	PerformerID      snowflake.ID `json:"performer_id"`
	UserID           snowflake.ID `json:"user_id"`
	SubscriptionType string       `json:"subscription_type"`
	Gateway          string       `json:"gateway"`
	ExpiredAt        time.Time    `json:"expired_at"`
}

type SettingsUpdated struct {
	Keys []string `json:"keys"`
}
