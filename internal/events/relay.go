package events

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRelayBatchSize   = 100
	defaultRelayMaxAttempts = 20
)

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Dispatcher *Dispatcher
	Signal     *Signal `optional:"true"`
}

// Relay drains unpublished outbox rows into the dispatcher.
type Relay struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	dispatcher  *Dispatcher
	signal      *Signal
	batchSize   int
	maxAttempts int
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:          p.DB,
		log:         p.Log.Named("events.relay"),
		clock:       p.Clock,
		dispatcher:  p.Dispatcher,
		signal:      p.Signal,
		batchSize:   defaultRelayBatchSize,
		maxAttempts: defaultRelayMaxAttempts,
	}
}

// Drain publishes every pending outbox row, including rows produced by handlers
// during the drain. It returns the number of rows published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var (
		cursor    snowflake.ID
		published int
		errs      []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		n, next, failures, err := r.drainBatch(ctx, cursor)
		if err != nil {
			return published, err
		}
		published += n
		errs = append(errs, failures...)
		if next == cursor {
			break
		}
		cursor = next
	}
	return published, errors.Join(errs...)
}

func (r *Relay) drainBatch(ctx context.Context, cursor snowflake.ID) (int, snowflake.ID, []error, error) {
	var (
		published int
		next      = cursor
		failures  []error
	)

	process := func(q *gorm.DB) error {
		query := `SELECT id, event_type, payload, dedupe_key, occurred_at, attempts
			FROM outbox_events
			WHERE published_at IS NULL AND id > ? AND attempts < ?
			ORDER BY id ASC
			LIMIT ?`
		if db.SupportsSkipLocked(q) {
			query += " FOR UPDATE SKIP LOCKED"
		}
		var rows []outboxRow
		if err := q.WithContext(ctx).Raw(query, cursor, r.maxAttempts, r.batchSize).Scan(&rows).Error; err != nil {
			return err
		}

		for _, row := range rows {
			next = row.ID
			evt := row.event()
			if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
				failures = append(failures, err)
				if markErr := q.WithContext(ctx).Exec(
					`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
					truncate(err.Error(), 1024), row.ID,
				).Error; markErr != nil {
					return markErr
				}
				if row.Attempts+1 >= r.maxAttempts {
					r.log.Error("outbox event exhausted retries",
						zap.String("event_id", row.ID.String()),
						zap.String("event_type", row.EventType),
						zap.Error(err),
					)
				}
				continue
			}
			if err := q.WithContext(ctx).Exec(
				`UPDATE outbox_events SET published_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`,
				r.clock.Now(), row.ID,
			).Error; err != nil {
				return err
			}
			published++
		}
		return nil
	}

	var err error
	if db.SupportsSkipLocked(r.db) {
		err = r.db.WithContext(ctx).Transaction(process)
	} else {
		err = process(r.db)
	}
	if err != nil {
		return published, cursor, nil, err
	}
	return published, next, failures, nil
}

// Run drains on every signal and at least once per interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("outbox drain incomplete", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.signal.C():
		}
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
