package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/creatorpay/internal/config"
)

// Config controls scheduler cadence and the reconciliation window.
type Config struct {
	RunInterval       time.Duration
	ReconcileInterval time.Duration
	// Pending transactions created between now-WindowStart and now-WindowEnd
	// are re-queried. Anything older counts as stuck.
	WindowStart time.Duration
	WindowEnd   time.Duration
	LockTTL     time.Duration
	// Gateways polled for remote status.
	ReconcileGateways []string
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		ReconcileInterval: 15 * time.Minute,
		WindowStart:       3 * time.Hour,
		WindowEnd:         time.Hour,
		LockTTL:           10 * time.Minute,
		ReconcileGateways: []string{"emerchantpay"},
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaults.ReconcileInterval
	}
	if c.WindowStart <= 0 {
		c.WindowStart = defaults.WindowStart
	}
	if c.WindowEnd <= 0 || c.WindowEnd >= c.WindowStart {
		c.WindowEnd = defaults.WindowEnd
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if len(c.ReconcileGateways) == 0 {
		c.ReconcileGateways = defaults.ReconcileGateways
	}
	return c
}

// ProvideConfig maps process configuration onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:       cfg.Scheduler.TickInterval,
		ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		EnabledJobs:       splitJobs(cfg.Scheduler.Jobs),
	}
}

func splitJobs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
