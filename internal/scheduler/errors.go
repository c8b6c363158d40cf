package scheduler

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrLockHeld      = errors.New("reconcile_lock_held")
)
