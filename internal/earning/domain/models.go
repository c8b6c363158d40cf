package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusDone    PayoutStatus = "done"
)

// Source types double as commission setting keys.
const (
	SourcePerformerSubscription = "performer_subscription"
	SourceVideo                 = "video"
	SourcePhoto                 = "photo"
	SourceProduct               = "product"
	SourceFeed                  = "feed"
	SourceTip                   = "tip"
	SourcePrivateChat           = "private_chat"
)

var (
	ErrInvalidTransaction = errors.New("invalid_transaction")
	ErrInvalidLineItem    = errors.New("invalid_line_item")
	ErrInvalidCommission  = errors.New("invalid_commission")
)

// Earning is a performer's share of one sold line item.
type Earning struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TransactionID snowflake.ID    `gorm:"column:transaction_id" json:"transaction_id"`
	OrderID       snowflake.ID    `gorm:"column:order_id" json:"order_id"`
	OrderDetailID snowflake.ID    `gorm:"column:order_detail_id" json:"order_detail_id"`
	PerformerID   snowflake.ID    `gorm:"column:performer_id" json:"performer_id"`
	UserID        snowflake.ID    `gorm:"column:user_id" json:"user_id"`
	SourceType    string          `gorm:"column:source_type" json:"source_type"`
	GrossPrice    decimal.Decimal `gorm:"type:decimal(20,2)" json:"gross_price"`
	Commission    decimal.Decimal `gorm:"type:decimal(5,4)" json:"commission"`
	NetPrice      decimal.Decimal `gorm:"type:decimal(20,2)" json:"net_price"`
	IsPaid        bool            `gorm:"column:is_paid" json:"is_paid"`
	PayoutStatus  PayoutStatus    `gorm:"column:payout_status" json:"payout_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SourceTypeFor maps a sold product type to its earning source. Wallet
// packages and top-ups are sold by the platform and earn nothing.
func SourceTypeFor(pt orderdomain.ProductType) (string, bool) {
	switch pt {
	case orderdomain.ProductTypeMonthlySubscription, orderdomain.ProductTypeYearlySubscription:
		return SourcePerformerSubscription, true
	case orderdomain.ProductTypeVideo:
		return SourceVideo, true
	case orderdomain.ProductTypePhoto:
		return SourcePhoto, true
	case orderdomain.ProductTypeDigitalProduct, orderdomain.ProductTypePhysicalProduct:
		return SourceProduct, true
	case orderdomain.ProductTypeFeed:
		return SourceFeed, true
	case orderdomain.ProductTypeTip, orderdomain.ProductTypeFeedTip:
		return SourceTip, true
	case orderdomain.ProductTypePrivateChat:
		return SourcePrivateChat, true
	default:
		return "", false
	}
}

// NetPrice is gross reduced by the commission rate, rounded to cents.
func NetPrice(gross, commission decimal.Decimal) decimal.Decimal {
	return gross.Mul(decimal.NewFromInt(1).Sub(commission)).Round(2)
}

type Repository interface {
	// Insert skips the row when the (transaction, line item) pair already
	// has an earning and reports whether it wrote one.
	Insert(ctx context.Context, db *gorm.DB, earning *Earning) (bool, error)
	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]Earning, error)
}

type RecordInput struct {
	TransactionID snowflake.ID
	OrderID       snowflake.ID
	Detail        orderdomain.OrderDetail
}

type Service interface {
	// CommissionRate resolves the performer override, then the site default
	// for sourceType, then the fallback rate.
	CommissionRate(ctx context.Context, db *gorm.DB, performerID snowflake.ID, sourceType string) (decimal.Decimal, error)
	// RecordTx writes the earning for one line item and credits the
	// performer. A replay returns the existing state with created false.
	RecordTx(ctx context.Context, tx *gorm.DB, in RecordInput) (*Earning, bool, error)
	ListByTransaction(ctx context.Context, transactionID snowflake.ID) ([]Earning, error)
}
