package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// GroupLock keeps a contact group on at most one dial session across API
// replicas. Each lock is owned by the session that acquired it.
type GroupLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewGroupLock constructs a group lock.
func NewGroupLock(client *redis.Client, prefix string, ttl time.Duration) *GroupLock {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if prefix == "" {
		prefix = "dialer:group"
	}
	return &GroupLock{client: client, prefix: prefix, ttl: ttl}
}

// Acquire attempts to claim the group for owner. It reports false when
// another session holds the lock.
func (l *GroupLock) Acquire(ctx context.Context, groupID, owner uuid.UUID) (bool, error) {
	if groupID == uuid.Nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, l.key(groupID), owner.String(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("group lock acquire: %w", err)
	}
	return ok, nil
}

// Refresh extends the lock TTL while owner still holds it. It reports false
// when the lock expired or was taken by another session.
func (l *GroupLock) Refresh(ctx context.Context, groupID, owner uuid.UUID) (bool, error) {
	if groupID == uuid.Nil {
		return true, nil
	}
	n, err := refreshScript.Run(ctx, l.client, []string{l.key(groupID)}, owner.String(), l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("group lock refresh: %w", err)
	}
	return n == 1, nil
}

// RefreshInterval is how often holders should call Refresh.
func (l *GroupLock) RefreshInterval() time.Duration {
	return l.ttl / 3
}

// Release frees the group if owner still holds it.
func (l *GroupLock) Release(ctx context.Context, groupID, owner uuid.UUID) error {
	if groupID == uuid.Nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key(groupID)}, owner.String()).Int(); err != nil {
		return fmt.Errorf("group lock release: %w", err)
	}
	return nil
}

func (l *GroupLock) key(groupID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:session", l.prefix, groupID.String())
}
