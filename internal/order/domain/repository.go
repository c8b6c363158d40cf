package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertDetail(ctx context.Context, db *gorm.DB, detail *OrderDetail) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindDetails(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderDetail, error)
	OrderNumberExists(ctx context.Context, db *gorm.DB, orderNumber string) (bool, error)
	// MarkPaid moves a CREATED order to PAID and reports whether it did.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
	MarkDetailsPaid(ctx context.Context, db *gorm.DB, orderID snowflake.ID, now time.Time) error
	// UpdateStatus moves an order whose status is one of from to to.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []OrderStatus, to OrderStatus, now time.Time) (bool, error)
	// AdvanceDelivery moves the physical lines still at from to the given delivery and line status.
	AdvanceDelivery(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to DeliveryStatus, status OrderStatus, now time.Time) (int64, error)
	// AddCharge grows an order's totals by one appended line item.
	AddCharge(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, now time.Time) error
}
