// Package testkit assembles the payment core against an in-memory database
// for cross-package tests. Outbound mail and task queues are recorded.
package testkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	auditrepo "github.com/smallbiznis/creatorpay/internal/audit/repository"
	auditservice "github.com/smallbiznis/creatorpay/internal/audit/service"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	balancerepo "github.com/smallbiznis/creatorpay/internal/balance/repository"
	catalogrepo "github.com/smallbiznis/creatorpay/internal/catalog/repository"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	couponrepo "github.com/smallbiznis/creatorpay/internal/coupon/repository"
	couponservice "github.com/smallbiznis/creatorpay/internal/coupon/service"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	earningrepo "github.com/smallbiznis/creatorpay/internal/earning/repository"
	earningservice "github.com/smallbiznis/creatorpay/internal/earning/service"
	"github.com/smallbiznis/creatorpay/internal/events"
	gatewayconfigdomain "github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	gatewayconfigrepo "github.com/smallbiznis/creatorpay/internal/gatewayconfig/repository"
	gatewayconfigservice "github.com/smallbiznis/creatorpay/internal/gatewayconfig/service"
	"github.com/smallbiznis/creatorpay/internal/notification"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	orderrepo "github.com/smallbiznis/creatorpay/internal/order/repository"
	orderservice "github.com/smallbiznis/creatorpay/internal/order/service"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/ccbill"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/emerchantpay"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/verotel"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/creatorpay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/creatorpay/internal/payment/service"
	"github.com/smallbiznis/creatorpay/internal/payment/webhook"
	"github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"github.com/smallbiznis/creatorpay/internal/recurring"
	"github.com/smallbiznis/creatorpay/internal/settings"
	"github.com/smallbiznis/creatorpay/internal/settlement"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/creatorpay/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/creatorpay/internal/subscription/service"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	walletservice "github.com/smallbiznis/creatorpay/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const GatewaySecret = "testkit-gateway-secret"

// Start is the fake clock's initial time.
var Start = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type Kit struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
	Cfg   config.Config

	Orders         orderdomain.Service
	OrderRepo      orderdomain.Repository
	Payments       paymentdomain.Service
	PaymentRepo    paymentdomain.Repository
	Webhooks       paymentdomain.WebhookService
	Subscriptions  subscriptiondomain.Service
	SubRepo        subscriptiondomain.Repository
	GatewayConfigs gatewayconfigdomain.Service
	Balance        balancedomain.Repository
	Wallet         walletdomain.Service
	Settings       *settings.Service
	Audit          auditdomain.Service
	Scheduler      *recurring.Scheduler
	Relay          *events.Relay

	Mail  *Mailbox
	Tasks *TaskRecorder

	limiter  walletdomain.Limiter
	snapshot settings.Snapshot
}

type Option func(*Kit)

// WithLimiter installs a wallet debit limiter.
func WithLimiter(l walletdomain.Limiter) Option {
	return func(k *Kit) { k.limiter = l }
}

// WithSettings replaces the default settings snapshot.
func WithSettings(snap settings.Snapshot) Option {
	return func(k *Kit) { k.snapshot = snap }
}

// WithConfig adjusts the configuration before services are built.
func WithConfig(fn func(*config.Config)) Option {
	return func(k *Kit) { fn(&k.Cfg) }
}

func New(t testing.TB, opts ...Option) *Kit {
	t.Helper()
	log := zap.NewNop()
	k := &Kit{
		DB:    dbtest.Open(t),
		Node:  dbtest.Node(t),
		Clock: clock.NewFakeClock(Start),
		Cfg: config.Config{
			GatewayConfigSecret: GatewaySecret,
			NonWalletCeiling:    "300.00",
			PublicBaseURL:       "https://creatorpay.test",
		},
		Mail:     &Mailbox{},
		Tasks:    &TaskRecorder{},
		snapshot: settings.Defaults(),
	}
	for _, opt := range opts {
		opt(k)
	}

	outbox := events.NewOutbox(events.OutboxParams{GenID: k.Node, Clock: k.Clock})
	holder := settings.NewStaticHolder(k.DB, k.snapshot)
	catalog := catalogrepo.Provide()
	k.OrderRepo = orderrepo.Provide()
	k.PaymentRepo = paymentrepo.Provide()
	k.SubRepo = subscriptionrepo.Provide()
	k.Balance = balancerepo.Provide(k.Clock)

	coupons := couponservice.New(couponservice.Params{DB: k.DB, Log: log, Clock: k.Clock, Repo: couponrepo.Provide()})

	var err error
	k.GatewayConfigs, err = gatewayconfigservice.New(gatewayconfigservice.Params{
		DB: k.DB, Log: log, GenID: k.Node, Clock: k.Clock, Repo: gatewayconfigrepo.Provide(), Cfg: k.Cfg,
	})
	if err != nil {
		t.Fatalf("gateway configs: %v", err)
	}
	k.Orders, err = orderservice.New(orderservice.Params{
		DB: k.DB, Log: log, Clock: k.Clock, GenID: k.Node, Config: k.Cfg,
		Repo: k.OrderRepo, Catalog: catalog, Coupons: coupons,
	})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	registry := adapters.NewRegistry(ccbill.NewFactory(), verotel.NewFactory(), emerchantpay.NewFactory())
	k.Payments, err = paymentservice.NewService(paymentservice.Params{
		DB: k.DB, Log: log, Clock: k.Clock, GenID: k.Node, Config: k.Cfg,
		Repo: k.PaymentRepo, Orders: k.Orders, OrderRepo: k.OrderRepo,
		GatewayConfigs: k.GatewayConfigs, Adapters: registry, Outbox: outbox, Balance: k.Balance,
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	k.Webhooks = webhook.NewService(webhook.Params{
		DB: k.DB, Log: log, Clock: k.Clock, GenID: k.Node, Cfg: k.Cfg,
		Repo: k.PaymentRepo, PaymentSvc: k.Payments, OrderRepo: k.OrderRepo,
		Subscriptions: k.SubRepo, GatewayConfigs: k.GatewayConfigs, Adapters: registry,
	})
	k.Subscriptions = subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: k.DB, Log: log, GenID: k.Node, Clock: k.Clock, Repo: k.SubRepo,
		Balance: k.Balance, Outbox: outbox, Payments: k.Payments,
	})
	earnings := earningservice.NewService(earningservice.Params{
		DB: k.DB, Log: log, GenID: k.Node, Clock: k.Clock, Repo: earningrepo.Provide(),
		Catalog: catalog, Balance: k.Balance, Settings: holder,
	})
	k.Settings = settings.NewService(settings.ServiceParams{DB: k.DB, Log: log, Clock: k.Clock, Holder: holder, Outbox: outbox})
	k.Wallet = walletservice.NewService(walletservice.Params{
		DB: k.DB, Log: log, Orders: k.Orders, OrderRepo: k.OrderRepo, Payments: k.Payments,
		Balance: k.Balance, Catalog: catalog, Settings: holder, Outbox: outbox, Limiter: k.limiter,
	})
	k.Audit = auditservice.NewService(auditservice.Params{
		DB: k.DB, Log: log, GenID: k.Node, Clock: k.Clock, Repo: auditrepo.Provide(),
	})
	k.Scheduler = recurring.NewScheduler(recurring.SchedulerParams{
		Log: log, Client: k.Tasks, Inspector: k.Tasks, Subscriptions: k.SubRepo,
	})
	notifier := notification.NewService(notification.Params{
		Log: log, Email: k.Mail, PDF: &pdf.NoOpProvider{}, OrderRepo: k.OrderRepo, Catalog: catalog,
	})
	handlers := settlement.NewHandlers(settlement.Params{
		Log: log, Outbox: outbox, Orders: k.Orders, OrderRepo: k.OrderRepo, PaymentRepo: k.PaymentRepo,
		Earnings: earnings, Subscriptions: k.Subscriptions, Balance: k.Balance, Coupons: coupons,
		Notifier: notifier, Recurring: k.Scheduler, Settings: k.Settings,
	})
	dispatcher, err := events.NewDispatcher(events.DispatcherParams{
		DB: k.DB, Log: log, Clock: k.Clock, Routes: settlement.Routes(handlers),
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	k.Relay = events.NewRelay(events.RelayParams{DB: k.DB, Log: log, Clock: k.Clock, Dispatcher: dispatcher})
	return k
}

// Settle drains the outbox until every pending event has been dispatched.
func (k *Kit) Settle(t testing.TB) {
	t.Helper()
	if _, err := k.Relay.Drain(context.Background()); err != nil {
		t.Fatalf("drain outbox: %v", err)
	}
}

// Mailbox records outbound mail.
type Mailbox struct {
	mu       sync.Mutex
	messages []email.Message
}

func (m *Mailbox) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Mailbox) Messages() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.messages...)
}

// TaskRecorder stands in for the asynq client and inspector.
type TaskRecorder struct {
	mu      sync.Mutex
	Queued  map[string]*asynq.Task
	Deleted []string
}

func (r *TaskRecorder) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Queued == nil {
		r.Queued = make(map[string]*asynq.Task)
	}
	id := ""
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			id, _ = opt.Value().(string)
		}
	}
	if _, ok := r.Queued[id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	r.Queued[id] = task
	return &asynq.TaskInfo{ID: id, Queue: recurring.Queue, Type: task.Type(), Payload: task.Payload()}, nil
}

func (r *TaskRecorder) DeleteTask(queue, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Queued[id]; !ok {
		return asynq.ErrTaskNotFound
	}
	delete(r.Queued, id)
	r.Deleted = append(r.Deleted, id)
	return nil
}

// IDs lists the currently queued task ids.
func (r *TaskRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.Queued))
	for id := range r.Queued {
		ids = append(ids, id)
	}
	return ids
}
