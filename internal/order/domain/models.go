package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipping   OrderStatus = "shipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type OrderType string

const (
	OrderTypeMonthlySubscription OrderType = "monthly_subscription"
	OrderTypeYearlySubscription  OrderType = "yearly_subscription"
	OrderTypeSaleVideo           OrderType = "sale_video"
	OrderTypeSalePhoto           OrderType = "sale_photo"
	OrderTypeSaleProduct         OrderType = "sale_product"
	OrderTypeFeed                OrderType = "feed"
	OrderTypeWallet              OrderType = "wallet"
	OrderTypeTip                 OrderType = "tip"
	OrderTypePrivateChat         OrderType = "private_chat"
)

// IsSubscription reports whether paying the order extends a subscription.
func (t OrderType) IsSubscription() bool {
	return t == OrderTypeMonthlySubscription || t == OrderTypeYearlySubscription
}

type ProductType string

const (
	ProductTypeMonthlySubscription ProductType = "monthly_subscription"
	ProductTypeYearlySubscription  ProductType = "yearly_subscription"
	ProductTypeVideo               ProductType = "video"
	ProductTypePhoto               ProductType = "photo"
	ProductTypeDigitalProduct      ProductType = "digital_product"
	ProductTypePhysicalProduct     ProductType = "physical_product"
	ProductTypeFeed                ProductType = "feed"
	ProductTypeWalletPackage       ProductType = "wallet_package"
	ProductTypeWalletTopup         ProductType = "wallet_topup"
	ProductTypeTip                 ProductType = "tip"
	ProductTypeFeedTip             ProductType = "feed_tip"
	ProductTypePrivateChat         ProductType = "private_chat"
)

type DeliveryStatus string

const (
	DeliveryStatusCreated    DeliveryStatus = "created"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusShipping   DeliveryStatus = "shipping"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
)

type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
)

const (
	SourceUser      = "user"
	SourcePerformer = "performer"
	SourceSystem    = "system"
)

type Order struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderNumber    string          `gorm:"column:order_number" json:"order_number"`
	BuyerID        snowflake.ID    `gorm:"column:buyer_id" json:"buyer_id"`
	BuyerSource    string          `gorm:"column:buyer_source" json:"buyer_source"`
	SellerID       snowflake.ID    `gorm:"column:seller_id" json:"seller_id"`
	SellerSource   string          `gorm:"column:seller_source" json:"seller_source"`
	Type           OrderType       `gorm:"column:type" json:"type"`
	Quantity       int64           `gorm:"column:quantity" json:"quantity"`
	OriginalPrice  decimal.Decimal `gorm:"type:decimal(20,2)" json:"original_price"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_price"`
	CouponInfo     datatypes.JSON  `gorm:"column:coupon_info" json:"coupon_info,omitempty"`
	Status         OrderStatus     `gorm:"column:status" json:"status"`
	PaymentGateway string          `gorm:"column:payment_gateway" json:"payment_gateway"`
	PaidAt         *time.Time      `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Details []OrderDetail `gorm:"-" json:"details,omitempty"`
}

// OrderDetail is one line item. Buyer and seller fields are copied at sale
// time and never refreshed.
type OrderDetail struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID        `gorm:"column:order_id" json:"order_id"`
	OrderNumber    string              `gorm:"column:order_number" json:"order_number"`
	BuyerID        snowflake.ID        `gorm:"column:buyer_id" json:"buyer_id"`
	BuyerSource    string              `gorm:"column:buyer_source" json:"buyer_source"`
	BuyerUsername  string              `gorm:"column:buyer_username" json:"buyer_username"`
	BuyerEmail     string              `gorm:"column:buyer_email" json:"-"`
	SellerID       snowflake.ID        `gorm:"column:seller_id" json:"seller_id"`
	SellerSource   string              `gorm:"column:seller_source" json:"seller_source"`
	SellerUsername string              `gorm:"column:seller_username" json:"seller_username"`
	ProductType    ProductType         `gorm:"column:product_type" json:"product_type"`
	ProductID      snowflake.ID        `gorm:"column:product_id" json:"product_id"`
	Name           string              `gorm:"column:name" json:"name"`
	Description    string              `gorm:"column:description" json:"description"`
	Quantity       int64               `gorm:"column:quantity" json:"quantity"`
	UnitPrice      decimal.Decimal     `gorm:"type:decimal(20,2)" json:"unit_price"`
	OriginalPrice  decimal.Decimal     `gorm:"type:decimal(20,2)" json:"original_price"`
	TotalPrice     decimal.Decimal     `gorm:"type:decimal(20,2)" json:"total_price"`
	TokenAmount    decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"token_amount,omitempty"`
	CouponInfo     datatypes.JSON      `gorm:"column:coupon_info" json:"coupon_info,omitempty"`
	Status         OrderStatus         `gorm:"column:status" json:"status"`
	DeliveryStatus DeliveryStatus      `gorm:"column:delivery_status" json:"delivery_status"`
	PaymentStatus  PaymentStatus       `gorm:"column:payment_status" json:"payment_status"`
	PaymentGateway string              `gorm:"column:payment_gateway" json:"payment_gateway"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// IsPhysical reports whether the line needs shipping after payment.
func (d OrderDetail) IsPhysical() bool {
	return d.ProductType == ProductTypePhysicalProduct
}
