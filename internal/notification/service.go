// Package notification mails buyers and performers about settled payments
// and subscription changes. Delivery is best effort: failures are logged and
// never returned to the event dispatcher.
package notification

import (
	"context"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/creatorpay/internal/catalog/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	"github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("notification",
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Email     email.Provider
	PDF       pdf.Provider `optional:"true"`
	OrderRepo orderdomain.Repository
	Catalog   catalogdomain.Repository
}

type Service struct {
	log       *zap.Logger
	email     email.Provider
	pdf       pdf.Provider
	orderRepo orderdomain.Repository
	catalog   catalogdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		log:       p.Log.Named("notification"),
		email:     p.Email,
		pdf:       p.PDF,
		orderRepo: p.OrderRepo,
		catalog:   p.Catalog,
	}
}

// OrderPaid mails the buyer a receipt and tells the performer about the sale.
func (s *Service) OrderPaid(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.OrderPaid
	if err := evt.Decode(&payload); err != nil {
		s.log.Warn("undecodable order.paid event", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return nil
	}
	log := s.log.With(zap.String("order_id", payload.OrderID.String()))

	order, err := s.orderRepo.FindByID(ctx, tx, payload.OrderID)
	if err != nil || order == nil {
		log.Warn("order lookup failed", zap.Error(err))
		return nil
	}
	details, err := s.orderRepo.FindDetails(ctx, tx, order.ID)
	if err != nil {
		log.Warn("order details lookup failed", zap.Error(err))
		return nil
	}
	if payload.OrderDetailID != 0 {
		details = onlyDetail(details, payload.OrderDetailID)
	}
	if len(details) == 0 {
		return nil
	}

	first := details[0]
	total := order.TotalPrice
	if payload.OrderDetailID != 0 {
		total = first.TotalPrice
	}
	paidAt := payload.PaidAt.UTC().Format("2006-01-02 15:04 MST")

	if first.BuyerEmail != "" {
		msg := email.Message{
			To:       []string{first.BuyerEmail},
			Subject:  "Your receipt for order " + order.OrderNumber,
			Template: "order_paid",
			Data: map[string]any{
				"buyer":        first.BuyerUsername,
				"order_number": order.OrderNumber,
				"paid_at":      paidAt,
				"total":        total.StringFixed(2),
			},
		}
		if att, ok := s.receipt(ctx, order, details, payload, paidAt, total.StringFixed(2)); ok {
			msg.Attachments = append(msg.Attachments, att)
		}
		s.send(ctx, log, msg)
	}

	if first.SellerSource == orderdomain.SourcePerformer {
		performer, err := s.catalog.FindPerformer(ctx, tx, first.SellerID)
		if err != nil || performer == nil || performer.Email == "" {
			return nil
		}
		s.send(ctx, log, email.Message{
			To:       []string{performer.Email},
			Subject:  "New sale: " + order.OrderNumber,
			Template: "performer_sale",
			Data: map[string]any{
				"performer":    performer.Username,
				"buyer":        first.BuyerUsername,
				"order_number": order.OrderNumber,
				"order_type":   strings.ReplaceAll(string(order.Type), "_", " "),
				"total":        total.StringFixed(2),
			},
		})
	}
	return nil
}

func (s *Service) receipt(ctx context.Context, order *orderdomain.Order, details []orderdomain.OrderDetail, payload events.OrderPaid, paidAt, total string) (email.Attachment, bool) {
	if s.pdf == nil {
		return email.Attachment{}, false
	}
	data := pdf.ReceiptData{
		OrderNumber:   order.OrderNumber,
		DatePaid:      paidAt,
		PaymentMethod: payload.Gateway,
		BuyerName:     details[0].BuyerUsername,
		BuyerEmail:    details[0].BuyerEmail,
		SellerName:    details[0].SellerUsername,
		Total:         total,
	}
	for _, d := range details {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: d.Name,
			Qty:         d.Quantity,
			UnitPrice:   d.UnitPrice.StringFixed(2),
			Amount:      d.TotalPrice.StringFixed(2),
		})
	}
	r, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil || r == nil {
		if err != nil {
			s.log.Warn("receipt generation failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
		return email.Attachment{}, false
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return email.Attachment{}, false
	}
	return email.Attachment{
		Filename:    "receipt-" + order.OrderNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     content,
	}, true
}

func (s *Service) SubscriptionActivated(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	return s.subscriptionChanged(ctx, tx, evt, "subscription_activated", "Subscription active")
}

func (s *Service) SubscriptionDeactivated(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	return s.subscriptionChanged(ctx, tx, evt, "subscription_cancelled", "Subscription cancelled")
}

// subscriptionChanged notifies both parties of the subscription.
func (s *Service) subscriptionChanged(ctx context.Context, tx *gorm.DB, evt events.Event, template, subject string) error {
	var payload events.SubscriptionChanged
	if err := evt.Decode(&payload); err != nil {
		s.log.Warn("undecodable subscription event", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return nil
	}
	log := s.log.With(zap.String("subscription_id", payload.SubscriptionID.String()))

	user, err := s.catalog.FindUser(ctx, tx, payload.UserID)
	if err != nil || user == nil {
		log.Warn("user lookup failed", zap.Error(err))
		return nil
	}
	performer, err := s.catalog.FindPerformer(ctx, tx, payload.PerformerID)
	if err != nil || performer == nil {
		log.Warn("performer lookup failed", zap.Error(err))
		return nil
	}

	data := func(name string) map[string]any {
		return map[string]any{
			"name":              name,
			"user":              user.Username,
			"performer":         performer.Username,
			"subscription_type": payload.SubscriptionType,
			"expired_at":        payload.ExpiredAt.Format("2006-01-02"),
		}
	}
	if user.Email != "" {
		s.send(ctx, log, email.Message{To: []string{user.Email}, Subject: subject, Template: template, Data: data(user.Username)})
	}
	if performer.Email != "" {
		s.send(ctx, log, email.Message{To: []string{performer.Email}, Subject: subject, Template: template, Data: data(performer.Username)})
	}
	return nil
}

func (s *Service) send(ctx context.Context, log *zap.Logger, msg email.Message) {
	if err := s.email.Send(ctx, msg); err != nil {
		log.Warn("email delivery failed", zap.String("template", msg.Template), zap.Error(err))
	}
}

func onlyDetail(details []orderdomain.OrderDetail, id snowflake.ID) []orderdomain.OrderDetail {
	for _, d := range details {
		if d.ID == id {
			return []orderdomain.OrderDetail{d}
		}
	}
	return nil
}
