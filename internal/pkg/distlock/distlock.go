// Package distlock guards campaign dispatch against concurrent starts:
// two operators (or two server replicas) pressing send on the same
// campaign must not both fan out mail.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a best-effort mutual exclusion primitive. Acquire is
// non-blocking; a false return means someone else holds the lock.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Factory builds a lock for a given key using the best available backend:
// Redis when configured (works across hosts), Postgres advisory locks when
// only a database is available, and an in-process mutex map otherwise.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	local *localLocks
}

// NewFactory creates a lock factory. Either argument may be nil.
func NewFactory(rdb *redis.Client, db *sql.DB) *Factory {
	return &Factory{redis: rdb, db: db, local: newLocalLocks()}
}

// For returns a lock scoped to key. The ttl only applies to the Redis
// backend, where it bounds how long a crashed holder can block others.
func (f *Factory) For(key string, ttl time.Duration) Lock {
	if f.redis != nil {
		return newRedisLock(f.redis, key, ttl)
	}
	if f.db != nil {
		return newAdvisoryLock(f.db, key)
	}
	return f.local.lock(key)
}

// advisoryLock uses pg_try_advisory_lock, which is session scoped and
// released automatically if the connection drops.
type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// localLocks is the single-process fallback used with the in-memory store.
type localLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLocalLocks() *localLocks {
	return &localLocks{held: make(map[string]bool)}
}

func (ll *localLocks) lock(key string) Lock {
	return &localLock{parent: ll, key: key}
}

type localLock struct {
	parent *localLocks
	key    string
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	if l.parent.held[l.key] {
		return false, nil
	}
	l.parent.held[l.key] = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	delete(l.parent.held, l.key)
	return nil
}
