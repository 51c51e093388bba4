package lockmgr

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dDoc/lib/clock"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

// DefaultLockExpiration is used when TryAcquireLock is called without an expiration,
// a lease without expiration would outlive a crashed holder forever.
const DefaultLockExpiration = 10 * time.Second

var (
	// ErrEmptyLockName is returned when a lock is requested without a name
	ErrEmptyLockName = errors.New("lock name must not be empty")

	log = logger.GetLogger("lockmgr")
)

type distributedLock struct {
	mgr   ILockManager
	clock clock.Clock
}

// Option configures a distributed lock
type Option func(*distributedLock)

// WithClock sets the clock used to wait between attempts
func WithClock(c clock.Clock) Option {
	return func(d *distributedLock) {
		d.clock = clock.OrReal(c)
	}
}

// NewDistributedLock creates a waiting lock on top of a lock manager.
// The lock manager may be local (NewLockManager) or remote (rpc client).
func NewDistributedLock(mgr ILockManager, opts ...Option) IDistributedLock {
	d := &distributedLock{
		mgr:   mgr,
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *distributedLock) TryAcquireLock(ctx context.Context, name string, timeout, expiration time.Duration) (*Locker, bool, error) {
	if name == "" {
		return nil, false, ErrEmptyLockName
	}
	if expiration <= 0 {
		expiration = DefaultLockExpiration
	}

	start := d.clock.Now()
	deadline := start.Add(timeout)
	backoff := newAcquireBackoff()
	defer func() {
		lockWait.UpdateDuration(start)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		ok, owner, err := d.mgr.AcquireLock(name, expiration)
		if err != nil {
			lockFailed.Inc()
			return nil, false, err
		}
		if ok {
			lockAcquired.Inc()
			return &Locker{mgr: d.mgr, name: name, owner: owner}, true, nil
		}

		remaining := deadline.Sub(d.clock.Now())
		if remaining <= 0 {
			lockTimedOut.Inc()
			log.Debugf("lock %q still held after %s", name, timeout)
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-d.clock.After(backoff.Next(remaining)):
		}
	}
}

func (d *distributedLock) IsLockAcquired(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrEmptyLockName
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.mgr.IsLocked(name)
}

// --------------------------------------------------------------------------
// Locker (held lease)
// --------------------------------------------------------------------------

// Locker is a held lock. It is meant to be released with defer, Release may be
// called any number of times and after the lease expired.
type Locker struct {
	mgr   ILockManager
	name  string
	owner []byte

	once sync.Once
	err  error
}

// Name returns the name of the lock
func (l *Locker) Name() string {
	return l.name
}

// Release gives the lock back if it is still owned by this locker.
// Only the first call talks to the lock manager, later calls return its result.
// If ctx is done before the lock manager answers, Release returns ctx.Err() and the
// release finishes in the background (the lease expires anyway).
func (l *Locker) Release(ctx context.Context) error {
	l.once.Do(func() {
		done := make(chan error, 1)
		go func() {
			released, err := l.mgr.ReleaseLock(l.name, l.owner)
			if err == nil && !released {
				log.Warningf("lock %q was taken over by another owner before release", l.name)
			}
			done <- err
		}()

		select {
		case l.err = <-done:
			if l.err == nil {
				lockReleased.Inc()
			}
		case <-ctx.Done():
			l.err = ctx.Err()
		}
	})
	return l.err
}
