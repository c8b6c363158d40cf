package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "creatorpay:lock:"

// Deletes the key only while it still holds our token. A lease that expired
// and was taken by another process is left alone.
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errNoLockClient = errors.New("lock client not configured")

// Locker hands out redis leases so one process at a time runs a named job,
// such as a gateway's reconcile pass.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// Lease is a held lock. A nil Lease releases as a no-op.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseIfOwner),
	}
}

// LockKey namespaces a lock name under this service's prefix.
func LockKey(name string) string {
	return lockKeyPrefix + name
}

// TryLock takes the named lease for ttl. It reports false without error when
// another holder has it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, false, errNoLockClient
	case name == "":
		return nil, false, errors.New("lock name is empty")
	case ttl <= 0:
		return nil, false, errors.New("lock ttl must be positive")
	}

	lease := &Lease{locker: l, key: LockKey(name), token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil || le.locker.client == nil {
		return nil
	}
	return le.locker.script.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
}
