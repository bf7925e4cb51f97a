package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates the advisory lock is owned by another in-flight operation.
var ErrLockHeld = errors.New("advisory lock already held")

// PurchaseLockKey builds redis keys for purchase ingestion critical sections.
func PurchaseLockKey(sourceID int64) string {
	return fmt.Sprintf("purchasing:source:%d:lock", sourceID)
}

// AdvisoryLock is a keyed mutual-exclusion lock backed by redis SET NX.
// It guards low-frequency, human-paced operations such as purchase
// submission; a held lock is reported immediately rather than queued.
type AdvisoryLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewAdvisoryLock constructs the lock manager. The TTL bounds how long a
// crashed holder can block other instances.
func NewAdvisoryLock(client redis.UniversalClient, ttl time.Duration) *AdvisoryLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AdvisoryLock{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lock for key and returns a release function. It fails
// fast with ErrLockHeld when another holder owns the key.
func (l *AdvisoryLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("advisory lock not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("advisory lock acquire: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		// Compare-and-delete so an expired lock re-acquired elsewhere is
		// never released by the previous holder.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
