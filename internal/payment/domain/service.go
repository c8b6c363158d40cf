package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sources recorded on transaction.succeeded events.
const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
	SourceRecurring = "recurring"
	SourceWallet    = "wallet"
)

type Repository interface {
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByPaymentToken(ctx context.Context, db *gorm.DB, gateway, token string) (*Transaction, error)
	FindBySubscriptionRef(ctx context.Context, db *gorm.DB, gateway, ref string) (*Transaction, error)
	FindOpenByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Transaction, error)
	SetPaymentToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, now time.Time) error
	// MarkSucceeded is the PENDING to SUCCESS compare-and-set.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionRef string, payload datatypes.JSON, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	AddAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, now time.Time) error
	ListPending(ctx context.Context, db *gorm.DB, gateway string, from, to time.Time, limit int) ([]Transaction, error)
	CountPendingBefore(ctx context.Context, db *gorm.DB, gateway string, before time.Time) (int64, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID *snowflake.ID, processedAt time.Time) error
}

type CheckoutInput struct {
	OrderID   snowflake.ID
	BuyerID   snowflake.ID
	Gateway   string
	ReturnURL string
}

type CheckoutResponse struct {
	TransactionID snowflake.ID      `json:"transaction_id"`
	PaymentURL    string            `json:"payment_url,omitempty"`
	Status        TransactionStatus `json:"status"`
}

type SuccessInput struct {
	SubscriptionRef string
	Payload         []byte
	Source          string
	// OccurredAt anchors downstream expiry math; zero means now.
	OccurredAt time.Time
}

type RenewalInput struct {
	PerformerID     snowflake.ID
	UserID          snowflake.ID
	Period          string
	Gateway         string
	Amount          decimal.Decimal
	SubscriptionRef string
	// PaymentToken lets a redelivered renewal find the transaction it opened.
	PaymentToken string
}

type ReconcileResult struct {
	Checked   int
	Succeeded int
	Cancelled int
	Failed    int
}

type Service interface {
	Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResponse, error)
	Get(ctx context.Context, id, buyerID snowflake.ID) (*Transaction, error)
	Cancel(ctx context.Context, id, buyerID snowflake.ID) error
	MarkSucceeded(ctx context.Context, id snowflake.ID, in SuccessInput) (bool, error)
	MarkSucceededTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, in SuccessInput) (bool, error)

	// RecordWalletPaymentTx stores a SUCCESS transaction for an order already
	// paid from the wallet and publishes transaction.succeeded.
	RecordWalletPaymentTx(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*Transaction, error)
	// AppendWalletChargeTx grows an open wallet transaction by one metered line.
	AppendWalletChargeTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, detail *orderdomain.OrderDetail) (*Transaction, error)

	CreateRenewal(ctx context.Context, in RenewalInput) (*Transaction, error)
	// ChargeRenewal bills a stored subscription reference directly through
	// gateways that accept merchant-initiated recurring sales.
	ChargeRenewal(ctx context.Context, in RenewalInput) (*Transaction, error)
	CancelSubscription(ctx context.Context, gateway string, performerID snowflake.ID, subscriptionRef string) error
	ReconcilePending(ctx context.Context, gateway string, from, to time.Time) (ReconcileResult, error)
	CountStuck(ctx context.Context, gateway string, before time.Time) (int64, error)
}

type Ack struct {
	ContentType string
	Body        []byte
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, gateway string, req InboundRequest) (*Ack, error)
}
