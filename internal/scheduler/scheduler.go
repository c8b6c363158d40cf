package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/events"
	obscontext "github.com/smallbiznis/creatorpay/internal/observability/context"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcile = "reconcile"
	JobRelay     = "relay"
	JobStuck     = "stuck_transactions"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Payments paymentdomain.Service
	Relay    *events.Relay
	Locker   *ratelimit.Locker `optional:"true"`
	Config   Config            `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	payments paymentdomain.Service
	relay    *events.Relay
	locker   *ratelimit.Locker

	mu            sync.Mutex
	running       map[string]bool
	lastReconcile time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Payments == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		payments: p.Payments,
		relay:    p.Relay,
		locker:   p.Locker,
		running:  map[string]bool{},
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job a single time. Reconciliation only runs when
// ReconcileInterval has elapsed since its last start.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobReconcile, s.isJobEnabled(JobReconcile) && s.reconcileDue(), func(ctx context.Context) error {
			return s.runJob(ctx, JobReconcile, len(s.cfg.ReconcileGateways), 10*time.Minute, s.ReconcileJob)
		}},
		{JobRelay, s.isJobEnabled(JobRelay), func(ctx context.Context) error {
			return s.runJob(ctx, JobRelay, 0, 30*time.Second, s.RelayJob)
		}},
		{JobStuck, s.isJobEnabled(JobStuck), func(ctx context.Context) error {
			return s.runJob(ctx, JobStuck, len(paymentdomain.ExternalGateways), 30*time.Second, s.StuckTransactionsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list means every job (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) reconcileDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if !s.lastReconcile.IsZero() && now.Sub(s.lastReconcile) < s.cfg.ReconcileInterval {
		return false
	}
	s.lastReconcile = now
	return true
}

// ReconcileJob polls every reconcile gateway in turn. A gateway whose run is
// already active here or in another process is skipped.
func (s *Scheduler) ReconcileJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcile, len(s.cfg.ReconcileGateways))
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var jobErr error
	for _, gateway := range s.cfg.ReconcileGateways {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		err := s.reconcileGateway(ctx, run, gateway)
		if errors.Is(err, ErrLockHeld) {
			obsmetrics.Scheduler().IncBatchDeferred(JobReconcile, "lock_held")
			s.logger(ctx).Info("scheduler.reconcile.skipped",
				zap.String("gateway", gateway),
				zap.String("reason", "lock_held"),
			)
			continue
		}
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", JobReconcile, gateway, err)
		}
	}
	return jobErr
}

func (s *Scheduler) reconcileGateway(ctx context.Context, run *jobRun, gateway string) error {
	release, err := s.acquire(ctx, gateway)
	if err != nil {
		return err
	}
	defer release()

	ctx = obscontext.WithGateway(ctx, gateway)
	now := s.clock.Now()
	from := now.Add(-s.cfg.WindowStart)
	to := now.Add(-s.cfg.WindowEnd)

	result, err := s.payments.ReconcilePending(ctx, gateway, from, to)
	if err != nil {
		return err
	}

	m := obsmetrics.Scheduler()
	addOutcome(m, gateway, "succeeded", result.Succeeded)
	addOutcome(m, gateway, "cancelled", result.Cancelled)
	addOutcome(m, gateway, "failed", result.Failed)
	addOutcome(m, gateway, "pending", result.Checked-result.Succeeded-result.Cancelled-result.Failed)
	m.AddBatchProcessed(JobReconcile, obsmetrics.LockResourcePendingTransactions, result.Checked)
	run.AddProcessed(result.Checked)
	if result.Failed > 0 {
		run.IncError()
	}

	s.logger(ctx).Info("scheduler.reconcile.done",
		zap.String("gateway", gateway),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("checked", result.Checked),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("failed", result.Failed),
	)
	return nil
}

func addOutcome(m *obsmetrics.SchedulerMetrics, gateway, outcome string, count int) {
	for i := 0; i < count; i++ {
		m.IncReconcileOutcome(gateway, outcome)
	}
}

// acquire guards a gateway against overlapping runs: in process always, and
// across processes when a redis locker is configured.
func (s *Scheduler) acquire(ctx context.Context, gateway string) (func(), error) {
	s.mu.Lock()
	if s.running[gateway] {
		s.mu.Unlock()
		return nil, ErrLockHeld
	}
	s.running[gateway] = true
	s.mu.Unlock()

	local := func() {
		s.mu.Lock()
		delete(s.running, gateway)
		s.mu.Unlock()
	}
	if s.locker == nil {
		return local, nil
	}

	lease, ok, err := s.locker.TryLock(ctx, "reconcile:"+gateway, s.cfg.LockTTL)
	if err != nil {
		local()
		return nil, err
	}
	if !ok {
		local()
		return nil, ErrLockHeld
	}
	return func() {
		// the job context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.log.Warn("reconcile lock release failed", zap.String("gateway", gateway), zap.Error(err))
		}
		local()
	}, nil
}

// RelayJob publishes outbox rows the API process has not drained yet.
func (s *Scheduler) RelayJob(ctx context.Context) error {
	_, run, _ := s.ensureJobRun(ctx, JobRelay, 0)
	published, err := s.relay.Drain(ctx)
	run.AddProcessed(published)
	obsmetrics.Scheduler().AddBatchProcessed(JobRelay, obsmetrics.LockResourceOutboxEvents, published)
	return err
}

// StuckTransactionsJob reports pending transactions older than the
// reconciliation window. Nothing acts on them automatically.
func (s *Scheduler) StuckTransactionsJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobStuck, len(paymentdomain.ExternalGateways))
	before := s.clock.Now().Add(-s.cfg.WindowStart)

	var jobErr error
	for _, gateway := range paymentdomain.ExternalGateways {
		count, err := s.payments.CountStuck(ctx, gateway, before)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.stuck.count_failed", JobStuck, gateway, err)
			continue
		}
		obsmetrics.Scheduler().SetStuckTransactions(gateway, int(count))
		run.AddProcessed(1)
		if count > 0 {
			s.logger(ctx).Warn("scheduler.stuck.transactions",
				zap.String("gateway", gateway),
				zap.Int64("count", count),
				zap.Time("created_before", before),
			)
		}
	}
	return jobErr
}
