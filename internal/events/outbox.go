package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type OutboxParams struct {
	fx.In

	GenID  *snowflake.Node
	Clock  clock.Clock
	Signal *Signal `optional:"true"`
}

// Outbox writes events into outbox_events inside the producer's transaction.
type Outbox struct {
	genID  *snowflake.Node
	clock  clock.Clock
	signal *Signal
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{genID: p.GenID, clock: p.Clock, signal: p.Signal}
}

// PublishTx stores evt using tx. A second publish with the same dedupe key is
// a no-op and reports false.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) (bool, error) {
	evt.Type = strings.TrimSpace(evt.Type)
	evt.DedupeKey = strings.TrimSpace(evt.DedupeKey)
	if evt.Type == "" || evt.Payload == nil {
		return false, ErrInvalidEvent
	}
	if evt.DedupeKey == "" {
		return false, ErrMissingDedupeKey
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return false, err
	}

	now := o.clock.Now()
	occurredAt := evt.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, event_type, payload, dedupe_key, occurred_at, attempts, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, '', ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		evt.Type,
		string(payload),
		evt.DedupeKey,
		occurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Notify wakes the relay after the producer's transaction committed.
func (o *Outbox) Notify() {
	if o == nil {
		return
	}
	o.signal.Kick()
}

// Signal wakes a waiting relay without blocking the caller.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

func (s *Signal) Kick() {
	if s == nil {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *Signal) C() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ch
}

type outboxRow struct {
	ID         snowflake.ID `gorm:"column:id"`
	EventType  string       `gorm:"column:event_type"`
	Payload    string       `gorm:"column:payload"`
	DedupeKey  string       `gorm:"column:dedupe_key"`
	OccurredAt time.Time    `gorm:"column:occurred_at"`
	Attempts   int          `gorm:"column:attempts"`
}

func (r outboxRow) event() Event {
	return Event{
		ID:         r.ID,
		Type:       r.EventType,
		Payload:    json.RawMessage(r.Payload),
		DedupeKey:  r.DedupeKey,
		OccurredAt: r.OccurredAt.UTC(),
	}
}
