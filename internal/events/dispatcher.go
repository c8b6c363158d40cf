package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/creatorpay/internal/clock"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HandlerFunc applies one event inside tx. Returning an error rolls back the
// handler's writes and leaves the delivery pending for the next relay run.
type HandlerFunc func(ctx context.Context, tx *gorm.DB, evt Event) error

// Route binds a named handler to a channel.
type Route struct {
	Channel string
	Handler string
	Func    HandlerFunc
}

var ErrDuplicateRoute = errors.New("duplicate_route")

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Routes     []Route
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher fans one event out to every handler registered for its channel.
// The route table is fixed at construction.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	routes     map[string][]Route
	obsMetrics *obsmetrics.Metrics
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	routes := make(map[string][]Route)
	seen := make(map[string]struct{})
	for _, route := range p.Routes {
		route.Channel = strings.TrimSpace(route.Channel)
		route.Handler = strings.TrimSpace(route.Handler)
		if route.Channel == "" || route.Handler == "" || route.Func == nil {
			return nil, fmt.Errorf("invalid route %q on %q", route.Handler, route.Channel)
		}
		key := route.Channel + "/" + route.Handler
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
		}
		seen[key] = struct{}{}
		routes[route.Channel] = append(routes[route.Channel], route)
	}

	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("events.dispatcher"),
		clock:      p.Clock,
		routes:     routes,
		obsMetrics: p.ObsMetrics,
	}, nil
}

// Handlers lists handler names registered for channel, in registration order.
func (d *Dispatcher) Handlers(channel string) []string {
	names := make([]string, 0, len(d.routes[channel]))
	for _, route := range d.routes[channel] {
		names = append(names, route.Handler)
	}
	return names
}

// Dispatch runs every handler for evt.Type. Handlers that already recorded a
// delivery for this event are skipped. All handlers run even when one fails.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) error {
	if evt.ID == 0 {
		return ErrInvalidEvent
	}
	var errs []error
	for _, route := range d.routes[evt.Type] {
		if err := d.deliver(ctx, route, evt); err != nil {
			d.log.Warn("event handler failed",
				zap.String("channel", route.Channel),
				zap.String("handler", route.Handler),
				zap.String("event_id", evt.ID.String()),
				zap.Error(err),
			)
			d.obsMetrics.RecordSettlementHandler(ctx, route.Channel, route.Handler, "failed")
			errs = append(errs, fmt.Errorf("%s: %w", route.Handler, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, route Route, evt Event) error {
	delivered := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO event_deliveries (event_id, handler, delivered_at) VALUES (?, ?, ?)
			 ON CONFLICT (event_id, handler) DO NOTHING`,
			evt.ID,
			route.Handler,
			d.clock.Now(),
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		delivered = true
		return route.Func(ctx, tx, evt)
	})
	if err != nil {
		return err
	}
	if delivered {
		d.obsMetrics.RecordSettlementHandler(ctx, route.Channel, route.Handler, "delivered")
	}
	return nil
}
