package settings

import (
	"context"

	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Holder *Holder
	Outbox *events.Outbox
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	holder *Holder
	outbox *events.Outbox
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("settings.service"),
		clock:  p.Clock,
		holder: p.Holder,
		outbox: p.Outbox,
	}
}

// Update stores an override and announces it on the bus.
func (s *Service) Update(ctx context.Context, key, value string) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := Set(ctx, tx, key, value, now); err != nil {
			return err
		}
		_, err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type:       events.ChannelSettingsUpdated,
			Payload:    events.SettingsUpdated{Keys: []string{key}},
			DedupeKey:  "settings_updated:" + key + ":" + now.Format("20060102T150405.000000000"),
			OccurredAt: now,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.outbox.Notify()
	s.log.Info("setting updated", zap.String("key", key))
	return nil
}

// Refresh is the settings.updated handler.
func (s *Service) Refresh(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	return s.holder.Reload(ctx, tx)
}

// Current returns the active snapshot.
func (s *Service) Current() Snapshot {
	return s.holder.Get()
}
