package recurring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HandlerParams struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Payments      paymentdomain.Service
	Subscriptions subscriptiondomain.Repository
	Scheduler     *Scheduler
}

// Handler runs one recurring charge and queues the next cycle.
type Handler struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	payments      paymentdomain.Service
	subscriptions subscriptiondomain.Repository
	scheduler     *Scheduler
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:            p.DB,
		log:           p.Log.Named("recurring.worker"),
		clock:         p.Clock,
		payments:      p.Payments,
		subscriptions: p.Subscriptions,
		scheduler:     p.Scheduler,
	}
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p ChargePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode recurring charge: %v: %w", err, asynq.SkipRetry)
	}
	log := h.log.With(
		zap.String("performer_id", p.PerformerID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("gateway", p.Gateway),
	)

	sub, err := h.subscriptions.FindByRef(ctx, h.db, p.Gateway, p.SubscriptionRef)
	if err != nil {
		return err
	}
	if sub == nil || !sub.IsActive() || sub.PerformerID != p.PerformerID || sub.UserID != p.UserID {
		log.Info("subscription no longer billable, recurring charge dropped")
		return nil
	}
	// renewed through another path since this task was queued
	if sub.ExpiredAt.After(p.DueAt.AddDate(0, 0, 1)) {
		next := p
		next.DueAt = sub.ExpiredAt
		return h.scheduler.Schedule(ctx, next)
	}

	txn, err := h.payments.ChargeRenewal(ctx, paymentdomain.RenewalInput{
		PerformerID:     p.PerformerID,
		UserID:          p.UserID,
		Period:          p.Period,
		Gateway:         p.Gateway,
		SubscriptionRef: p.SubscriptionRef,
	})
	if err != nil {
		log.Warn("recurring charge failed", zap.Error(err))
		return err
	}

	switch txn.Status {
	case paymentdomain.TransactionStatusCancelled:
		log.Warn("recurring charge declined, subscription will lapse",
			zap.String("transaction_id", txn.ID.String()),
		)
		return nil
	case paymentdomain.TransactionStatusPending:
		log.Info("recurring charge pending, left for reconciliation",
			zap.String("transaction_id", txn.ID.String()),
		)
	}

	next := p
	next.DueAt = p.DueAt.AddDate(0, 0, subscriptiondomain.Type(p.Period).PeriodDays())
	return h.scheduler.Schedule(ctx, next)
}

type ServerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Handler   *Handler
}

// RunServer starts the asynq worker with the process lifecycle.
func RunServer(p ServerParams) {
	if !p.Config.Worker.Enabled {
		return
	}
	concurrency := p.Config.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(RedisOpt(p.Config), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Queue: 1},
		Logger:      p.Log.Named("recurring.asynq").Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeCharge, p.Handler)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start(mux)
		},
		OnStop: func(context.Context) error {
			srv.Shutdown()
			return nil
		},
	})
}
