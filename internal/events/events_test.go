package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db     *gorm.DB
	outbox *events.Outbox
	relay  *events.Relay
}

func newHarness(t *testing.T, routes []events.Route) harness {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	outbox := events.NewOutbox(events.OutboxParams{GenID: dbtest.Node(t), Clock: clk})
	dispatcher, err := events.NewDispatcher(events.DispatcherParams{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		Routes: routes,
	})
	require.NoError(t, err)
	relay := events.NewRelay(events.RelayParams{DB: db, Log: zap.NewNop(), Clock: clk, Dispatcher: dispatcher})
	return harness{db: db, outbox: outbox, relay: relay}
}

func (h harness) publish(t *testing.T, evt events.Event) bool {
	t.Helper()
	var inserted bool
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = h.outbox.PublishTx(context.Background(), tx, evt)
		return err
	})
	require.NoError(t, err)
	return inserted
}

func TestPublishTxDedupes(t *testing.T) {
	h := newHarness(t, nil)
	evt := events.Event{Type: events.ChannelOrderPaid, Payload: map[string]string{"a": "b"}, DedupeKey: "order_paid:1"}

	assert.True(t, h.publish(t, evt))
	assert.False(t, h.publish(t, evt))
	dbtest.AssertCount(t, h.db, "SELECT COUNT(1) FROM outbox_events", 1)
}

func TestPublishTxRequiresDedupeKey(t *testing.T) {
	h := newHarness(t, nil)
	err := h.db.Transaction(func(tx *gorm.DB) error {
		_, err := h.outbox.PublishTx(context.Background(), tx, events.Event{Type: events.ChannelOrderPaid, Payload: 1})
		return err
	})
	require.ErrorIs(t, err, events.ErrMissingDedupeKey)
}

func TestNewDispatcherRejectsDuplicateRoutes(t *testing.T) {
	noop := func(context.Context, *gorm.DB, events.Event) error { return nil }
	_, err := events.NewDispatcher(events.DispatcherParams{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		Clock: clock.New(),
		Routes: []events.Route{
			{Channel: events.ChannelOrderPaid, Handler: "earning.create", Func: noop},
			{Channel: events.ChannelOrderPaid, Handler: "earning.create", Func: noop},
		},
	})
	require.ErrorIs(t, err, events.ErrDuplicateRoute)
}

func TestRelayDrainsChainedEvents(t *testing.T) {
	var h harness
	var paid []events.OrderPaid
	routes := []events.Route{
		{
			Channel: events.ChannelTransactionSucceeded,
			Handler: "order.mark_paid",
			Func: func(ctx context.Context, tx *gorm.DB, evt events.Event) error {
				var payload events.TransactionSucceeded
				if err := evt.Decode(&payload); err != nil {
					return err
				}
				_, err := h.outbox.PublishTx(ctx, tx, events.Event{
					Type:      events.ChannelOrderPaid,
					Payload:   events.OrderPaid{OrderID: payload.OrderID, TransactionID: payload.TransactionID},
					DedupeKey: "order_paid:" + evt.ID.String(),
				})
				return err
			},
		},
		{
			Channel: events.ChannelOrderPaid,
			Handler: "collect",
			Func: func(ctx context.Context, tx *gorm.DB, evt events.Event) error {
				var payload events.OrderPaid
				if err := evt.Decode(&payload); err != nil {
					return err
				}
				paid = append(paid, payload)
				return nil
			},
		},
	}
	h = newHarness(t, routes)

	h.publish(t, events.Event{
		Type:      events.ChannelTransactionSucceeded,
		Payload:   events.TransactionSucceeded{TransactionID: 7, OrderID: 9},
		DedupeKey: "txn_succeeded:7",
	})

	published, err := h.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	require.Len(t, paid, 1)
	assert.EqualValues(t, 9, paid[0].OrderID)
	dbtest.AssertCount(t, h.db, "SELECT COUNT(1) FROM outbox_events WHERE published_at IS NULL", 0)

	published, err = h.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Len(t, paid, 1)
}

func TestFailedHandlerIsRetriedWithoutRerunningSuccessfulOnes(t *testing.T) {
	failures := 1
	okRuns := 0
	routes := []events.Route{
		{
			Channel: events.ChannelOrderPaid,
			Handler: "ok",
			Func: func(context.Context, *gorm.DB, events.Event) error {
				okRuns++
				return nil
			},
		},
		{
			Channel: events.ChannelOrderPaid,
			Handler: "flaky",
			Func: func(context.Context, *gorm.DB, events.Event) error {
				if failures > 0 {
					failures--
					return errors.New("smtp down")
				}
				return nil
			},
		},
	}
	h := newHarness(t, routes)
	h.publish(t, events.Event{Type: events.ChannelOrderPaid, Payload: events.OrderPaid{OrderID: 1}, DedupeKey: "order_paid:x"})

	_, err := h.relay.Drain(context.Background())
	require.Error(t, err)
	dbtest.AssertCount(t, h.db, "SELECT COUNT(1) FROM outbox_events WHERE published_at IS NULL AND attempts = 1", 1)
	dbtest.AssertCount(t, h.db, "SELECT COUNT(1) FROM event_deliveries", 1)

	published, err := h.relay.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, 1, okRuns)
	dbtest.AssertCount(t, h.db, "SELECT COUNT(1) FROM event_deliveries", 2)
}

func TestSignalKickDoesNotBlock(t *testing.T) {
	signal := events.NewSignal()
	signal.Kick()
	signal.Kick()
	select {
	case <-signal.C():
	default:
		t.Fatalf("expected pending signal")
	}
}
