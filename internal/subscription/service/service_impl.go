package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/smallbiznis/creatorpay/internal/balance/domain"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	balance  balancedomain.Repository
	outbox   *events.Outbox
	payments paymentdomain.Service
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Balance  balancedomain.Repository
	Outbox   *events.Outbox
	Payments paymentdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		balance:  p.Balance,
		outbox:   p.Outbox,
		payments: p.Payments,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// ApplyPaymentTx anchors the expiry on the payment time, never moves an
// existing expiry backwards, and counts a subscriber only on activation.
func (s *Service) ApplyPaymentTx(ctx context.Context, tx *gorm.DB, in subscriptiondomain.PaymentApplied) (*subscriptiondomain.Subscription, bool, error) {
	if in.PerformerID == 0 || in.UserID == 0 {
		return nil, false, subscriptiondomain.ErrInvalidSubscription
	}
	if in.Type != subscriptiondomain.TypeMonthly && in.Type != subscriptiondomain.TypeYearly {
		return nil, false, subscriptiondomain.ErrInvalidSubscription
	}

	now := s.clock.Now()
	paidAt := in.PaidAt.UTC()
	if paidAt.IsZero() {
		paidAt = now
	}
	expiredAt := paidAt.AddDate(0, 0, in.Type.PeriodDays())

	existing, err := s.repo.FindByPairForUpdate(ctx, tx, in.PerformerID, in.UserID)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		sub := &subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			PerformerID:        in.PerformerID,
			UserID:             in.UserID,
			SubscriptionType:   in.Type,
			SubscriptionRef:    in.SubscriptionRef,
			Status:             subscriptiondomain.StatusActive,
			PaymentGateway:     in.Gateway,
			TransactionID:      in.TransactionID,
			StartRecurringDate: &paidAt,
			NextRecurringDate:  &expiredAt,
			ExpiredAt:          expiredAt,
			Meta:               in.Meta,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return nil, false, err
		}
		if err := s.activated(ctx, tx, sub); err != nil {
			return nil, false, err
		}
		return sub, true, nil
	}

	if existing.TransactionID == in.TransactionID && existing.IsActive() {
		return existing, false, nil
	}

	activating := !existing.IsActive()
	if activating {
		existing.StartRecurringDate = &paidAt
	}
	if existing.ExpiredAt.After(expiredAt) {
		expiredAt = existing.ExpiredAt
	}
	existing.SubscriptionType = in.Type
	existing.Status = subscriptiondomain.StatusActive
	existing.PaymentGateway = in.Gateway
	existing.TransactionID = in.TransactionID
	if in.SubscriptionRef != "" {
		existing.SubscriptionRef = in.SubscriptionRef
	}
	if len(in.Meta) > 0 {
		existing.Meta = in.Meta
	}
	existing.ExpiredAt = expiredAt
	existing.NextRecurringDate = &expiredAt
	existing.UpdatedAt = now
	if err := s.repo.Update(ctx, tx, existing); err != nil {
		return nil, false, err
	}

	if activating {
		if err := s.activated(ctx, tx, existing); err != nil {
			return nil, false, err
		}
	}
	return existing, activating, nil
}

func (s *Service) activated(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	if err := s.balance.AdjustSubscribers(ctx, tx, sub.PerformerID, 1); err != nil {
		return err
	}
	_, err := s.outbox.PublishTx(ctx, tx, events.Event{
		Type:       events.ChannelSubscriptionActivated,
		Payload:    changed(sub),
		DedupeKey:  "subscription_activated:" + sub.ID.String() + ":" + sub.TransactionID.String(),
		OccurredAt: sub.UpdatedAt,
	})
	return err
}

// Cancel stops gateway billing first; the local row is deactivated only once
// the gateway accepted the cancellation.
func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.IsActive() {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if req.ActorID != 0 && req.ActorID != sub.UserID && req.ActorID != sub.PerformerID {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	if sub.SubscriptionRef != "" && paymentdomain.IsExternalGateway(sub.PaymentGateway) {
		if err := s.payments.CancelSubscription(ctx, sub.PaymentGateway, sub.PerformerID, sub.SubscriptionRef); err != nil {
			s.log.Warn("gateway cancellation failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("gateway", sub.PaymentGateway),
				zap.Error(err),
			)
			return nil, err
		}
	}

	now := s.clock.Now()
	var moved bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Deactivate(ctx, tx, sub.ID, now)
		if err != nil || !ok {
			return err
		}
		moved = true
		if err := s.balance.AdjustSubscribers(ctx, tx, sub.PerformerID, -1); err != nil {
			return err
		}
		sub.Status = subscriptiondomain.StatusDeactivated
		sub.UpdatedAt = now
		_, err = s.outbox.PublishTx(ctx, tx, events.Event{
			Type:       events.ChannelSubscriptionDeactivated,
			Payload:    changed(sub),
			DedupeKey:  "subscription_deactivated:" + sub.ID.String() + ":" + s.genID.Generate().String(),
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	s.outbox.Notify()

	s.log.Info("subscription cancelled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("performer_id", sub.PerformerID.String()),
		zap.String("user_id", sub.UserID.String()),
	)
	return sub, nil
}

func changed(sub *subscriptiondomain.Subscription) events.SubscriptionChanged {
	return events.SubscriptionChanged{
		SubscriptionID:   sub.ID,
		PerformerID:      sub.PerformerID,
		UserID:           sub.UserID,
		SubscriptionType: string(sub.SubscriptionType),
		Gateway:          sub.PaymentGateway,
		ExpiredAt:        sub.ExpiredAt.UTC(),
	}
}
