package settlement

import (
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	coupondomain "github.com/smallbiznis/creatorpay/internal/coupon/domain"
	earningdomain "github.com/smallbiznis/creatorpay/internal/earning/domain"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/notification"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/recurring"
	"github.com/smallbiznis/creatorpay/internal/settings"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("settlement",
	fx.Provide(NewHandlers),
	fx.Provide(Routes),
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Outbox        *events.Outbox
	Orders        orderdomain.Service
	OrderRepo     orderdomain.Repository
	PaymentRepo   paymentdomain.Repository
	Earnings      earningdomain.Service
	Subscriptions subscriptiondomain.Service
	Balance       balancedomain.Repository
	Coupons       coupondomain.Service
	Notifier      *notification.Service
	Recurring     *recurring.Scheduler `optional:"true"`
	Settings      *settings.Service
}

type Handlers struct {
	log           *zap.Logger
	outbox        *events.Outbox
	orders        orderdomain.Service
	orderRepo     orderdomain.Repository
	paymentRepo   paymentdomain.Repository
	earnings      earningdomain.Service
	subscriptions subscriptiondomain.Service
	balance       balancedomain.Repository
	coupons       coupondomain.Service
	notifier      *notification.Service
	recurring     *recurring.Scheduler
	settings      *settings.Service
}

func NewHandlers(p Params) *Handlers {
	return &Handlers{
		log:           p.Log.Named("settlement"),
		outbox:        p.Outbox,
		orders:        p.Orders,
		orderRepo:     p.OrderRepo,
		paymentRepo:   p.PaymentRepo,
		earnings:      p.Earnings,
		subscriptions: p.Subscriptions,
		balance:       p.Balance,
		coupons:       p.Coupons,
		notifier:      p.Notifier,
		recurring:     p.Recurring,
		settings:      p.Settings,
	}
}

// Routes is the dispatcher table. Handler names are persisted in
// event_deliveries and must stay stable.
func Routes(h *Handlers) []events.Route {
	routes := []events.Route{
		{Channel: events.ChannelTransactionSucceeded, Handler: "order.mark_paid", Func: h.MarkOrderPaid},
		{Channel: events.ChannelOrderPaid, Handler: "earning.create", Func: h.CreateEarnings},
		{Channel: events.ChannelOrderPaid, Handler: "subscription.upsert", Func: h.UpsertSubscription},
		{Channel: events.ChannelOrderPaid, Handler: "wallet.credit", Func: h.CreditWallet},
		{Channel: events.ChannelOrderPaid, Handler: "coupon.redeem", Func: h.RedeemCoupon},
		{Channel: events.ChannelOrderPaid, Handler: "notification.order_paid", Func: h.notifier.OrderPaid},
		{Channel: events.ChannelSubscriptionActivated, Handler: "notification.subscription_activated", Func: h.notifier.SubscriptionActivated},
		{Channel: events.ChannelSubscriptionDeactivated, Handler: "notification.subscription_deactivated", Func: h.notifier.SubscriptionDeactivated},
		{Channel: events.ChannelSettingsUpdated, Handler: "settings.refresh", Func: h.settings.Refresh},
	}
	if h.recurring != nil {
		routes = append(routes,
			events.Route{Channel: events.ChannelSubscriptionActivated, Handler: "recurring.schedule", Func: h.recurring.OnSubscriptionActivated},
			events.Route{Channel: events.ChannelSubscriptionDeactivated, Handler: "recurring.cancel", Func: h.recurring.OnSubscriptionDeactivated},
		)
	}
	return routes
}
