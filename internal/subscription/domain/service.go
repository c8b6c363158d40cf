package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
)

// PaymentApplied is a settled subscription payment.
type PaymentApplied struct {
	PerformerID     snowflake.ID
	UserID          snowflake.ID
	Type            Type
	Gateway         string
	SubscriptionRef string
	TransactionID   snowflake.ID
	// PaidAt anchors the new expiry.
	PaidAt time.Time
	// Meta is the raw gateway payload of the settling transaction.
	Meta datatypes.JSON
}

type CancelRequest struct {
	SubscriptionID snowflake.ID
	// ActorID is the subscriber or the performer; zero means an operator.
	ActorID snowflake.ID
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Subscription, error)
	// ApplyPaymentTx inserts or extends the (performer, user) row inside tx and
	// reports whether the row became active.
	ApplyPaymentTx(ctx context.Context, tx *gorm.DB, in PaymentApplied) (*Subscription, bool, error)
	Cancel(ctx context.Context, req CancelRequest) (*Subscription, error)
}
