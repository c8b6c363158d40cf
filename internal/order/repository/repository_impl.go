package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, order_number, buyer_id, buyer_source, seller_id, seller_source, type,
			quantity, original_price, total_price, coupon_info, status, payment_gateway,
			paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.BuyerSource,
		order.SellerID,
		order.SellerSource,
		order.Type,
		order.Quantity,
		order.OriginalPrice,
		order.TotalPrice,
		order.CouponInfo,
		order.Status,
		order.PaymentGateway,
		order.PaidAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertDetail(ctx context.Context, db *gorm.DB, d *domain.OrderDetail) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_details (
			id, order_id, order_number, buyer_id, buyer_source, buyer_username, buyer_email,
			seller_id, seller_source, seller_username, product_type, product_id, name,
			description, quantity, unit_price, original_price, total_price, token_amount,
			coupon_info, status, delivery_status, payment_status, payment_gateway,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.OrderID,
		d.OrderNumber,
		d.BuyerID,
		d.BuyerSource,
		d.BuyerUsername,
		d.BuyerEmail,
		d.SellerID,
		d.SellerSource,
		d.SellerUsername,
		d.ProductType,
		d.ProductID,
		d.Name,
		d.Description,
		d.Quantity,
		d.UnitPrice,
		d.OriginalPrice,
		d.TotalPrice,
		d.TokenAmount,
		d.CouponInfo,
		d.Status,
		d.DeliveryStatus,
		d.PaymentStatus,
		d.PaymentGateway,
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, buyer_id, buyer_source, seller_id, seller_source, type,
		        quantity, original_price, total_price, coupon_info, status, payment_gateway,
		        paid_at, created_at, updated_at
		 FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindDetails(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderDetail, error) {
	var details []domain.OrderDetail
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, order_number, buyer_id, buyer_source, buyer_username, buyer_email,
		        seller_id, seller_source, seller_username, product_type, product_id, name,
		        description, quantity, unit_price, original_price, total_price, token_amount,
		        coupon_info, status, delivery_status, payment_status, payment_gateway,
		        created_at, updated_at
		 FROM order_details WHERE order_id = ? ORDER BY id`,
		orderID,
	).Scan(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repo) OrderNumberExists(ctx context.Context, db *gorm.DB, orderNumber string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders WHERE order_number = ?`,
		orderNumber,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusPaid, paidAt, paidAt, id, domain.OrderStatusCreated,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkDetailsPaid(ctx context.Context, db *gorm.DB, orderID snowflake.ID, now time.Time) error {
	if err := db.WithContext(ctx).Exec(
		`UPDATE order_details
		 SET status = ?, payment_status = ?, delivery_status = ?, updated_at = ?
		 WHERE order_id = ? AND payment_status <> ? AND product_type <> ?`,
		domain.OrderStatusPaid, domain.PaymentStatusPaid, domain.DeliveryStatusDelivered, now,
		orderID, domain.PaymentStatusPaid, domain.ProductTypePhysicalProduct,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE order_details
		 SET status = ?, payment_status = ?, delivery_status = ?, updated_at = ?
		 WHERE order_id = ? AND payment_status <> ? AND product_type = ?`,
		domain.OrderStatusPaid, domain.PaymentStatusPaid, domain.DeliveryStatusProcessing, now,
		orderID, domain.PaymentStatusPaid, domain.ProductTypePhysicalProduct,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.OrderStatus, to domain.OrderStatus, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to, now, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) AdvanceDelivery(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to domain.DeliveryStatus, status domain.OrderStatus, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE order_details
		 SET delivery_status = ?, status = ?, updated_at = ?
		 WHERE order_id = ? AND product_type = ? AND delivery_status = ?`,
		to, status, now, orderID, domain.ProductTypePhysicalProduct, from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) AddCharge(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET original_price = original_price + ?, total_price = total_price + ?,
		     quantity = quantity + 1, updated_at = ?
		 WHERE id = ?`,
		amount, amount, now, id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
