package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidBuyer         = errors.New("invalid_buyer")
	ErrInvalidItem          = errors.New("invalid_item")
	ErrItemNotForSale       = errors.New("item_not_for_sale")
	ErrDifferentSeller      = errors.New("different_seller")
	ErrEmptyCart            = errors.New("empty_cart")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrOutOfStock           = errors.New("out_of_stock")
	ErrInvalidPeriod        = errors.New("invalid_subscription_period")
	ErrPriceOutOfBounds     = errors.New("price_out_of_bounds")
	ErrInvalidGateway       = errors.New("invalid_payment_gateway")
	ErrInvalidOrderStatus   = errors.New("invalid_order_status")
	ErrOrderNumberExhausted = errors.New("order_number_exhausted")
	ErrNotShippable         = errors.New("order_not_shippable")
)

const (
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

type CreateSubscriptionOrderRequest struct {
	UserID      snowflake.ID
	PerformerID snowflake.ID
	Period      string
	CouponCode  string
	Gateway     string
}

// CreateItemOrderRequest buys a single video, photo or feed post.
type CreateItemOrderRequest struct {
	UserID     snowflake.ID
	ItemID     snowflake.ID
	CouponCode string
	Gateway    string
}

type CartItem struct {
	ProductID snowflake.ID
	Quantity  int64
}

type CreateProductOrderRequest struct {
	UserID     snowflake.ID
	Items      []CartItem
	CouponCode string
	Gateway    string
}

// RenewalOrderRequest bills a subscription period the gateway already charged.
// A zero Amount falls back to the performer's current price.
type RenewalOrderRequest struct {
	UserID      snowflake.ID
	PerformerID snowflake.ID
	Period      string
	Amount      decimal.Decimal
	Gateway     string
}

type CreateWalletPackageOrderRequest struct {
	UserID    snowflake.ID
	PackageID snowflake.ID
	Gateway   string
}

type CreateWalletTopupOrderRequest struct {
	UserID  snowflake.ID
	Amount  decimal.Decimal
	Gateway string
}

// PaidOrderInput describes an order funded from the wallet balance. It is
// written already PAID inside the caller's transaction.
type PaidOrderInput struct {
	BuyerID     snowflake.ID
	SellerID    snowflake.ID
	Type        OrderType
	ProductType ProductType
	ProductID   snowflake.ID
	Name        string
	Description string
	Amount      decimal.Decimal
}

// UpdateDeliveryRequest advances the physical lines of a paid order.
// Only the seller may move it, one step at a time.
type UpdateDeliveryRequest struct {
	OrderID  snowflake.ID
	SellerID snowflake.ID
	Status   DeliveryStatus
}

type Service interface {
	CreateSubscriptionOrder(ctx context.Context, req CreateSubscriptionOrderRequest) (*Order, error)
	CreateVideoOrder(ctx context.Context, req CreateItemOrderRequest) (*Order, error)
	CreatePhotoOrder(ctx context.Context, req CreateItemOrderRequest) (*Order, error)
	CreateFeedOrder(ctx context.Context, req CreateItemOrderRequest) (*Order, error)
	CreateProductOrder(ctx context.Context, req CreateProductOrderRequest) (*Order, error)
	CreateWalletPackageOrder(ctx context.Context, req CreateWalletPackageOrderRequest) (*Order, error)
	CreateWalletTopupOrder(ctx context.Context, req CreateWalletTopupOrderRequest) (*Order, error)
	CreateRenewalOrder(ctx context.Context, req RenewalOrderRequest) (*Order, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	UpdateDeliveryStatus(ctx context.Context, req UpdateDeliveryRequest) (*Order, error)

	// CreatePaidOrderTx and AppendChargeTx back the wallet path.
	CreatePaidOrderTx(ctx context.Context, tx *gorm.DB, in PaidOrderInput) (*Order, *OrderDetail, error)
	AppendChargeTx(ctx context.Context, tx *gorm.DB, order *Order, in PaidOrderInput) (*OrderDetail, error)
	// MarkPaidTx is the settlement status update; it reports whether the order moved.
	MarkPaidTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, paidAt time.Time) (*Order, bool, error)
}
