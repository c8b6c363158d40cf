// Package settlement derives every downstream effect of a successful payment
// from transaction.succeeded events: order status, earnings, subscriptions,
// wallet credit, coupon usage and notifications.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/creatorpay/internal/coupon/domain"
	earningdomain "github.com/smallbiznis/creatorpay/internal/earning/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MarkOrderPaid moves the order behind a succeeded transaction to PAID and
// publishes order.paid once per source event.
func (h *Handlers) MarkOrderPaid(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.TransactionSucceeded
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	txn, err := h.paymentRepo.FindTransaction(ctx, tx, payload.TransactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return paymentdomain.ErrTransactionNotFound
	}

	paidAt := payload.OccurredAt
	if paidAt.IsZero() {
		paidAt = evt.OccurredAt
	}

	var order *orderdomain.Order
	if payload.OrderDetailID != 0 {
		order, err = h.orderRepo.FindByID(ctx, tx, txn.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
	} else {
		var moved bool
		order, moved, err = h.orders.MarkPaidTx(ctx, tx, txn.OrderID, paidAt)
		if err != nil {
			return err
		}
		// wallet orders are written PAID; a second gateway payment for a paid
		// order must not fan out again
		if !moved && txn.PaymentGateway != paymentdomain.GatewayWallet {
			h.log.Warn("order already paid, settlement skipped",
				zap.String("order_id", order.ID.String()),
				zap.String("transaction_id", txn.ID.String()),
			)
			return nil
		}
	}

	_, err = h.outbox.PublishTx(ctx, tx, events.Event{
		Type: events.ChannelOrderPaid,
		Payload: events.OrderPaid{
			OrderID:       order.ID,
			TransactionID: txn.ID,
			Gateway:       txn.PaymentGateway,
			OrderType:     string(order.Type),
			BuyerID:       order.BuyerID,
			SellerID:      order.SellerID,
			PaidAt:        paidAt.UTC(),
			OrderDetailID: payload.OrderDetailID,
		},
		DedupeKey:  "order_paid:" + evt.ID.String(),
		OccurredAt: paidAt,
	})
	return err
}

// CreateEarnings records one earning per performer line item.
func (h *Handlers) CreateEarnings(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	payload, details, err := h.paidDetails(ctx, tx, evt)
	if err != nil {
		return err
	}
	for _, detail := range details {
		if detail.SellerSource != orderdomain.SourcePerformer {
			continue
		}
		if _, ok := earningdomain.SourceTypeFor(detail.ProductType); !ok {
			continue
		}
		if _, _, err := h.earnings.RecordTx(ctx, tx, earningdomain.RecordInput{
			TransactionID: payload.TransactionID,
			OrderID:       payload.OrderID,
			Detail:        detail,
		}); err != nil {
			return fmt.Errorf("earning for detail %s: %w", detail.ID, err)
		}
	}
	return nil
}

// UpsertSubscription extends or activates the buyer's subscription to the
// seller, anchored on the payment receipt time.
func (h *Handlers) UpsertSubscription(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.OrderPaid
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	orderType := orderdomain.OrderType(payload.OrderType)
	if !orderType.IsSubscription() || payload.OrderDetailID != 0 {
		return nil
	}
	txn, err := h.paymentRepo.FindTransaction(ctx, tx, payload.TransactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return paymentdomain.ErrTransactionNotFound
	}

	subType := subscriptiondomain.TypeMonthly
	if orderType == orderdomain.OrderTypeYearlySubscription {
		subType = subscriptiondomain.TypeYearly
	}
	_, _, err = h.subscriptions.ApplyPaymentTx(ctx, tx, subscriptiondomain.PaymentApplied{
		PerformerID:     payload.SellerID,
		UserID:          payload.BuyerID,
		Type:            subType,
		Gateway:         payload.Gateway,
		SubscriptionRef: txn.SubscriptionRef,
		TransactionID:   txn.ID,
		PaidAt:          payload.PaidAt,
		Meta:            txn.PaymentResponseInfo,
	})
	return err
}

// CreditWallet tops up the buyer: the package token amount for wallet
// packages, the price itself for custom top-ups.
func (h *Handlers) CreditWallet(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.OrderPaid
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	if orderdomain.OrderType(payload.OrderType) != orderdomain.OrderTypeWallet {
		return nil
	}
	details, err := h.orderRepo.FindDetails(ctx, tx, payload.OrderID)
	if err != nil {
		return err
	}

	credit := decimal.Zero
	for _, detail := range details {
		switch detail.ProductType {
		case orderdomain.ProductTypeWalletPackage:
			if detail.TokenAmount.Valid {
				credit = credit.Add(detail.TokenAmount.Decimal)
			} else {
				credit = credit.Add(detail.TotalPrice)
			}
		case orderdomain.ProductTypeWalletTopup:
			credit = credit.Add(detail.TotalPrice)
		}
	}
	if !credit.IsPositive() {
		return nil
	}
	if err := h.balance.CreditUser(ctx, tx, payload.BuyerID, credit.Round(2)); err != nil {
		return err
	}
	h.log.Info("wallet credited",
		zap.String("user_id", payload.BuyerID.String()),
		zap.String("order_id", payload.OrderID.String()),
		zap.String("amount", credit.StringFixed(2)),
	)
	return nil
}

// RedeemCoupon counts the coupon snapshot stored on the order as used.
func (h *Handlers) RedeemCoupon(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.OrderPaid
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	if payload.OrderDetailID != 0 {
		return nil
	}
	order, err := h.orderRepo.FindByID(ctx, tx, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil || len(order.CouponInfo) == 0 || string(order.CouponInfo) == "null" {
		return nil
	}
	var applied coupondomain.Applied
	if err := json.Unmarshal(order.CouponInfo, &applied); err != nil {
		h.log.Warn("unreadable coupon snapshot", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil
	}
	if applied.ID == 0 {
		return nil
	}
	return h.coupons.Redeem(ctx, tx, applied)
}

func (h *Handlers) paidDetails(ctx context.Context, tx *gorm.DB, evt events.Event) (events.OrderPaid, []orderdomain.OrderDetail, error) {
	var payload events.OrderPaid
	if err := evt.Decode(&payload); err != nil {
		return payload, nil, err
	}
	details, err := h.orderRepo.FindDetails(ctx, tx, payload.OrderID)
	if err != nil {
		return payload, nil, err
	}
	if payload.OrderDetailID == 0 {
		return payload, details, nil
	}
	for _, detail := range details {
		if detail.ID == payload.OrderDetailID {
			return payload, []orderdomain.OrderDetail{detail}, nil
		}
	}
	return payload, nil, orderdomain.ErrOrderNotFound
}
