package recurring

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/events"
	orderdomain "github.com/smallbiznis/creatorpay/internal/order/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type TaskDeleter interface {
	DeleteTask(queue, id string) error
}

func RedisOpt(cfg config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func NewClient(lc fx.Lifecycle, cfg config.Config) Enqueuer {
	client := asynq.NewClient(RedisOpt(cfg))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client
}

func NewInspector(lc fx.Lifecycle, cfg config.Config) TaskDeleter {
	inspector := asynq.NewInspector(RedisOpt(cfg))
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return inspector.Close() }})
	return inspector
}

type SchedulerParams struct {
	fx.In

	Log           *zap.Logger
	Client        Enqueuer
	Inspector     TaskDeleter `optional:"true"`
	Subscriptions subscriptiondomain.Repository
}

// Scheduler enqueues and removes delayed charge tasks.
type Scheduler struct {
	log           *zap.Logger
	client        Enqueuer
	inspector     TaskDeleter
	subscriptions subscriptiondomain.Repository
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		log:           p.Log.Named("recurring.scheduler"),
		client:        p.Client,
		inspector:     p.Inspector,
		subscriptions: p.Subscriptions,
	}
}

// Schedule enqueues the charge due at p.DueAt. A task already queued for the
// same cycle is left as is.
func (s *Scheduler) Schedule(ctx context.Context, p ChargePayload) error {
	task, opts, err := newChargeTask(p)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}
	s.log.Info("recurring charge scheduled",
		zap.String("performer_id", p.PerformerID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("gateway", p.Gateway),
		zap.Time("due_at", p.DueAt),
	)
	return nil
}

// Cancel removes the queued charge for the cycle due at dueAt, if any.
func (s *Scheduler) Cancel(ctx context.Context, p ChargePayload) error {
	if s.inspector == nil {
		return nil
	}
	id := TaskID(p.PerformerID, p.UserID, p.Gateway, p.DueAt)
	if err := s.inspector.DeleteTask(Queue, id); err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return err
	}
	s.log.Info("recurring charge removed", zap.String("task_id", id))
	return nil
}

// OnSubscriptionActivated is the subscription.activated handler.
func (s *Scheduler) OnSubscriptionActivated(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.SubscriptionChanged
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	if !Supports(payload.Gateway) {
		return nil
	}
	sub, err := s.subscriptions.FindByID(ctx, tx, payload.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || sub.SubscriptionRef == "" {
		s.log.Warn("subscription has no gateway reference, recurring charge skipped",
			zap.String("subscription_id", payload.SubscriptionID.String()),
		)
		return nil
	}
	return s.Schedule(ctx, ChargePayload{
		PerformerID:     sub.PerformerID,
		UserID:          sub.UserID,
		Gateway:         sub.PaymentGateway,
		Period:          periodOf(sub.SubscriptionType),
		SubscriptionRef: sub.SubscriptionRef,
		DueAt:           sub.ExpiredAt,
	})
}

// OnSubscriptionDeactivated is the subscription.deactivated handler.
func (s *Scheduler) OnSubscriptionDeactivated(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	var payload events.SubscriptionChanged
	if err := evt.Decode(&payload); err != nil {
		return err
	}
	if !Supports(payload.Gateway) {
		return nil
	}
	return s.Cancel(ctx, ChargePayload{
		PerformerID: payload.PerformerID,
		UserID:      payload.UserID,
		Gateway:     payload.Gateway,
		DueAt:       payload.ExpiredAt,
	})
}

func periodOf(t subscriptiondomain.Type) string {
	if t == subscriptiondomain.TypeYearly {
		return orderdomain.PeriodYearly
	}
	return orderdomain.PeriodMonthly
}
