package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/creatorpay/internal/clock"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type paymentsMock struct {
	paymentdomain.Service
	mock.Mock
}

func (m *paymentsMock) ReconcilePending(ctx context.Context, gateway string, from, to time.Time) (paymentdomain.ReconcileResult, error) {
	args := m.Called(gateway, from, to)
	return args.Get(0).(paymentdomain.ReconcileResult), args.Error(1)
}

func (m *paymentsMock) CountStuck(ctx context.Context, gateway string, before time.Time) (int64, error) {
	args := m.Called(gateway, before)
	return args.Get(0).(int64), args.Error(1)
}

func newTestScheduler(t *testing.T, payments paymentdomain.Service, cfg Config) (*Scheduler, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)
	return &Scheduler{
		log:      zap.NewNop(),
		cfg:      cfg.withDefaults(),
		genID:    node,
		clock:    fake,
		payments: payments,
		running:  map[string]bool{},
	}, fake
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "creatorpay",
		Environment: "test",
	})
	return registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := useTestRegistry(t)

	s, _ := newTestScheduler(t, nil, Config{})
	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "creatorpay",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getMetricValue(t, registry, "creatorpay_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "creatorpay",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getMetricValue(t, registry, "creatorpay_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsFailure(t *testing.T) {
	useTestRegistry(t)

	s, _ := newTestScheduler(t, nil, Config{})
	boom := errors.New("boom")
	err := s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestReconcileJobQueriesWindow(t *testing.T) {
	registry := useTestRegistry(t)

	payments := &paymentsMock{}
	payments.On("ReconcilePending", paymentdomain.GatewayEmerchantpay, now.Add(-3*time.Hour), now.Add(-time.Hour)).
		Return(paymentdomain.ReconcileResult{Checked: 4, Succeeded: 2, Cancelled: 1}, nil).Once()

	s, _ := newTestScheduler(t, payments, Config{})
	require.NoError(t, s.ReconcileJob(context.Background()))
	payments.AssertExpectations(t)

	outcome := func(name string) map[string]string {
		return map[string]string{"service": "creatorpay", "env": "test", "gateway": paymentdomain.GatewayEmerchantpay, "outcome": name}
	}
	assert.Equal(t, float64(2), getMetricValue(t, registry, "creatorpay_reconcile_transactions_total", outcome("succeeded")))
	assert.Equal(t, float64(1), getMetricValue(t, registry, "creatorpay_reconcile_transactions_total", outcome("cancelled")))
	assert.Equal(t, float64(1), getMetricValue(t, registry, "creatorpay_reconcile_transactions_total", outcome("pending")))
	assert.Empty(t, s.running, "gateway guard must be released")
}

func TestReconcileJobWindowFollowsClock(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		advance time.Duration
		from    time.Time
		to      time.Time
	}{
		{name: "defaults", from: now.Add(-3 * time.Hour), to: now.Add(-time.Hour)},
		{name: "after clock advance", advance: 90 * time.Minute, from: now.Add(-90 * time.Minute), to: now.Add(30 * time.Minute)},
		{name: "custom bounds", cfg: Config{WindowStart: 6 * time.Hour, WindowEnd: 2 * time.Hour}, from: now.Add(-6 * time.Hour), to: now.Add(-2 * time.Hour)},
		{name: "end past start falls back", cfg: Config{WindowStart: 2 * time.Hour, WindowEnd: 4 * time.Hour}, from: now.Add(-2 * time.Hour), to: now.Add(-time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			useTestRegistry(t)

			payments := &paymentsMock{}
			payments.On("ReconcilePending", paymentdomain.GatewayEmerchantpay, tc.from, tc.to).
				Return(paymentdomain.ReconcileResult{}, nil).Once()

			s, fake := newTestScheduler(t, payments, tc.cfg)
			fake.Advance(tc.advance)
			require.NoError(t, s.ReconcileJob(context.Background()))
			payments.AssertExpectations(t)
		})
	}
}

func TestReconcileJobSurfacesGatewayError(t *testing.T) {
	useTestRegistry(t)

	payments := &paymentsMock{}
	payments.On("ReconcilePending", paymentdomain.GatewayEmerchantpay, mock.Anything, mock.Anything).
		Return(paymentdomain.ReconcileResult{}, paymentdomain.ErrGatewayUnavailable).Once()

	s, _ := newTestScheduler(t, payments, Config{})
	err := s.ReconcileJob(context.Background())
	require.ErrorIs(t, err, paymentdomain.ErrGatewayUnavailable)
	assert.Empty(t, s.running)
}

func TestReconcileSkipsGatewayAlreadyRunning(t *testing.T) {
	useTestRegistry(t)

	payments := &paymentsMock{}
	s, _ := newTestScheduler(t, payments, Config{})
	s.running[paymentdomain.GatewayEmerchantpay] = true

	require.NoError(t, s.ReconcileJob(context.Background()))
	payments.AssertNotCalled(t, "ReconcilePending", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOnceReconcilesOnInterval(t *testing.T) {
	useTestRegistry(t)

	payments := &paymentsMock{}
	payments.On("ReconcilePending", paymentdomain.GatewayEmerchantpay, mock.Anything, mock.Anything).
		Return(paymentdomain.ReconcileResult{}, nil)

	s, fake := newTestScheduler(t, payments, Config{EnabledJobs: []string{JobReconcile}})

	require.NoError(t, s.RunOnce(context.Background()))
	fake.Advance(time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	payments.AssertNumberOfCalls(t, "ReconcilePending", 1)

	fake.Advance(15 * time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	payments.AssertNumberOfCalls(t, "ReconcilePending", 2)
}

func TestStuckTransactionsJobSetsGauge(t *testing.T) {
	registry := useTestRegistry(t)

	before := now.Add(-3 * time.Hour)
	payments := &paymentsMock{}
	payments.On("CountStuck", paymentdomain.GatewayCCBill, before).Return(int64(0), nil)
	payments.On("CountStuck", paymentdomain.GatewayVerotel, before).Return(int64(2), nil)
	payments.On("CountStuck", paymentdomain.GatewayEmerchantpay, before).Return(int64(5), nil)

	s, _ := newTestScheduler(t, payments, Config{EnabledJobs: []string{JobStuck}})
	require.NoError(t, s.RunOnce(context.Background()))
	payments.AssertExpectations(t)

	gauge := func(gateway string) float64 {
		return getMetricValue(t, registry, "creatorpay_stuck_transactions",
			map[string]string{"service": "creatorpay", "env": "test", "gateway": gateway})
	}
	assert.Equal(t, float64(0), gauge(paymentdomain.GatewayCCBill))
	assert.Equal(t, float64(2), gauge(paymentdomain.GatewayVerotel))
	assert.Equal(t, float64(5), gauge(paymentdomain.GatewayEmerchantpay))
}

func TestIsJobEnabled(t *testing.T) {
	s, _ := newTestScheduler(t, nil, Config{})
	assert.True(t, s.isJobEnabled(JobRelay))

	s.cfg.EnabledJobs = splitJobs(" Reconcile , relay,")
	assert.True(t, s.isJobEnabled(JobReconcile))
	assert.True(t, s.isJobEnabled(JobRelay))
	assert.False(t, s.isJobEnabled(JobStuck))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{WindowStart: time.Hour, WindowEnd: 2 * time.Hour}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, time.Hour, cfg.WindowStart)
	assert.Equal(t, time.Hour, cfg.WindowEnd, "window end must fall back when it is not before the start")
	assert.Equal(t, []string{paymentdomain.GatewayEmerchantpay}, cfg.ReconcileGateways)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getMetricValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.Counter != nil:
				return metric.GetCounter().GetValue()
			case metric.Gauge != nil:
				return metric.GetGauge().GetValue()
			default:
				t.Fatalf("metric %s is neither counter nor gauge", name)
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
