package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock is already held")

// DefaultSyncLockTTL bounds how long a crashed process can block syncs.
const DefaultSyncLockTTL = 10 * time.Minute

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// TryLock takes the lock key with SET NX and a TTL. The returned unlock
// releases it only while this holder's token is still stored.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (unlock func(), err error) {
	token := randomToken()
	full := r.Key(key)

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Background context: unlock must run after the sync context is cancelled.
		_ = r.client.Eval(context.Background(), unlockScript, []string{full}, token).Err()
	}, nil
}

// SyncLocker serializes provider syncs across processes.
type SyncLocker struct {
	r   *Redis
	ttl time.Duration
}

// NewSyncLocker returns a SyncLocker; ttl <= 0 uses DefaultSyncLockTTL.
func NewSyncLocker(r *Redis, ttl time.Duration) *SyncLocker {
	if ttl <= 0 {
		ttl = DefaultSyncLockTTL
	}
	return &SyncLocker{r: r, ttl: ttl}
}

// Lock takes the sync lock for providerID or returns ErrLocked.
func (l *SyncLocker) Lock(ctx context.Context, providerID string) (func(), error) {
	return TryLock(ctx, l.r, "lock:sync:"+providerID, l.ttl)
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
