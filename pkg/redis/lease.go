package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another worker holds the lease
var ErrLeaseHeld = errors.New("lease held by another worker")

const leaseKeyPrefix = "vault:lease:"

// releaseScript deletes the key only when it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a best-effort mutual exclusion token on a redis key.
// Correctness never depends on it: row locks still serialize the work underneath.
type Lease struct {
	key   string
	token string
}

var acquireLease = SetNX

// AcquireLease takes the named lease for ttl or returns ErrLeaseHeld
func AcquireLease(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	l := &Lease{key: leaseKeyPrefix + name, token: uuid.NewString()}
	ok, err := acquireLease(ctx, l.key, l.token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return l, nil
}

// Release gives the lease back if it has not expired and been re-taken
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, client, []string{l.key}, l.token).Err()
}

// Key returns the redis key guarding the lease
func (l *Lease) Key() string {
	return l.key
}
