package recurring_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/dbtest"
	"github.com/smallbiznis/creatorpay/internal/events"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/recurring"
	subscriptiondomain "github.com/smallbiznis/creatorpay/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/creatorpay/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task.Type(), taskID(opts))
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

type mockDeleter struct {
	mock.Mock
}

func (m *mockDeleter) DeleteTask(queue, id string) error {
	return m.Called(queue, id).Error(0)
}

func taskID(opts []asynq.Option) string {
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			return opt.Value().(string)
		}
	}
	return ""
}

type fakePayments struct {
	paymentdomain.Service
	calls  []paymentdomain.RenewalInput
	status paymentdomain.TransactionStatus
}

func (f *fakePayments) ChargeRenewal(ctx context.Context, in paymentdomain.RenewalInput) (*paymentdomain.Transaction, error) {
	f.calls = append(f.calls, in)
	return &paymentdomain.Transaction{ID: 1, Status: f.status}, nil
}

type harness struct {
	db        *gorm.DB
	node      *snowflake.Node
	repo      subscriptiondomain.Repository
	enqueuer  *mockEnqueuer
	deleter   *mockDeleter
	scheduler *recurring.Scheduler
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db := dbtest.Open(t)
	repo := subscriptionrepo.Provide()
	enq := &mockEnqueuer{}
	del := &mockDeleter{}
	return harness{
		db:       db,
		node:     dbtest.Node(t),
		repo:     repo,
		enqueuer: enq,
		deleter:  del,
		scheduler: recurring.NewScheduler(recurring.SchedulerParams{
			Log:           zap.NewNop(),
			Client:        enq,
			Inspector:     del,
			Subscriptions: repo,
		}),
	}
}

func (h harness) seedSubscription(t *testing.T, gateway string, expiredAt time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:               h.node.Generate(),
		PerformerID:      h.node.Generate(),
		UserID:           h.node.Generate(),
		SubscriptionType: subscriptiondomain.TypeMonthly,
		SubscriptionRef:  "consumer-1",
		Status:           subscriptiondomain.StatusActive,
		PaymentGateway:   gateway,
		TransactionID:    h.node.Generate(),
		ExpiredAt:        expiredAt,
		CreatedAt:        expiredAt.AddDate(0, 0, -30),
		UpdatedAt:        expiredAt.AddDate(0, 0, -30),
	}
	require.NoError(t, h.repo.Insert(context.Background(), h.db, sub))
	return sub
}

func changedEvent(t *testing.T, sub *subscriptiondomain.Subscription) events.Event {
	t.Helper()
	raw, err := json.Marshal(events.SubscriptionChanged{
		SubscriptionID:   sub.ID,
		PerformerID:      sub.PerformerID,
		UserID:           sub.UserID,
		SubscriptionType: string(sub.SubscriptionType),
		Gateway:          sub.PaymentGateway,
		ExpiredAt:        sub.ExpiredAt,
	})
	require.NoError(t, err)
	return events.Event{ID: 1, Type: events.ChannelSubscriptionActivated, Payload: json.RawMessage(raw)}
}

func TestActivationSchedulesChargeAtExpiry(t *testing.T) {
	h := newHarness(t)
	expiry := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sub := h.seedSubscription(t, paymentdomain.GatewayEmerchantpay, expiry)

	wantID := recurring.TaskID(sub.PerformerID, sub.UserID, "emerchantpay", expiry)
	h.enqueuer.On("EnqueueContext", recurring.TypeCharge, wantID).Return(&asynq.TaskInfo{ID: wantID}, nil).Once()
	require.NoError(t, h.scheduler.OnSubscriptionActivated(context.Background(), h.db, changedEvent(t, sub)))

	// a replayed activation hits the task id conflict and is accepted
	h.enqueuer.On("EnqueueContext", recurring.TypeCharge, wantID).Return(nil, asynq.ErrTaskIDConflict).Once()
	require.NoError(t, h.scheduler.OnSubscriptionActivated(context.Background(), h.db, changedEvent(t, sub)))
	h.enqueuer.AssertExpectations(t)
}

func TestActivationIgnoresWebhookGateways(t *testing.T) {
	h := newHarness(t)
	sub := h.seedSubscription(t, paymentdomain.GatewayCCBill, time.Now().UTC())
	require.NoError(t, h.scheduler.OnSubscriptionActivated(context.Background(), h.db, changedEvent(t, sub)))
	h.enqueuer.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}

func TestDeactivationRemovesQueuedCharge(t *testing.T) {
	h := newHarness(t)
	expiry := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sub := h.seedSubscription(t, paymentdomain.GatewayEmerchantpay, expiry)

	wantID := recurring.TaskID(sub.PerformerID, sub.UserID, "emerchantpay", expiry)
	h.deleter.On("DeleteTask", recurring.Queue, wantID).Return(asynq.ErrTaskNotFound).Once()
	require.NoError(t, h.scheduler.OnSubscriptionDeactivated(context.Background(), h.db, changedEvent(t, sub)))
	h.deleter.AssertExpectations(t)
}

func TestHandlerChargesAndQueuesNextCycle(t *testing.T) {
	h := newHarness(t)
	expiry := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sub := h.seedSubscription(t, paymentdomain.GatewayEmerchantpay, expiry)
	payments := &fakePayments{status: paymentdomain.TransactionStatusSuccess}

	handler := recurring.NewHandler(recurring.HandlerParams{
		DB:            h.db,
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(expiry),
		Payments:      payments,
		Subscriptions: h.repo,
		Scheduler:     h.scheduler,
	})

	payload := recurring.ChargePayload{
		PerformerID:     sub.PerformerID,
		UserID:          sub.UserID,
		Gateway:         "emerchantpay",
		Period:          "monthly",
		SubscriptionRef: "consumer-1",
		DueAt:           expiry,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	nextID := recurring.TaskID(sub.PerformerID, sub.UserID, "emerchantpay", expiry.AddDate(0, 0, 30))
	h.enqueuer.On("EnqueueContext", recurring.TypeCharge, nextID).Return(&asynq.TaskInfo{ID: nextID}, nil).Once()

	require.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask(recurring.TypeCharge, raw)))
	require.Len(t, payments.calls, 1)
	assert.Equal(t, "consumer-1", payments.calls[0].SubscriptionRef)
	h.enqueuer.AssertExpectations(t)

	// a declined charge stops the chain
	payments.status = paymentdomain.TransactionStatusCancelled
	require.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask(recurring.TypeCharge, raw)))
	assert.Len(t, payments.calls, 2)
	h.enqueuer.AssertNumberOfCalls(t, "EnqueueContext", 1)
}

func TestHandlerDropsCancelledSubscription(t *testing.T) {
	h := newHarness(t)
	expiry := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	sub := h.seedSubscription(t, paymentdomain.GatewayEmerchantpay, expiry)
	ok, err := h.repo.Deactivate(context.Background(), h.db, sub.ID, expiry)
	require.NoError(t, err)
	require.True(t, ok)

	payments := &fakePayments{status: paymentdomain.TransactionStatusSuccess}
	handler := recurring.NewHandler(recurring.HandlerParams{
		DB:            h.db,
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(expiry),
		Payments:      payments,
		Subscriptions: h.repo,
		Scheduler:     h.scheduler,
	})
	raw, err := json.Marshal(recurring.ChargePayload{
		PerformerID:     sub.PerformerID,
		UserID:          sub.UserID,
		Gateway:         "emerchantpay",
		Period:          "monthly",
		SubscriptionRef: "consumer-1",
		DueAt:           expiry,
	})
	require.NoError(t, err)

	require.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask(recurring.TypeCharge, raw)))
	assert.Empty(t, payments.calls)
}
