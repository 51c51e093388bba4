package lockmgr

import (
	"crypto/rand"
	mrand "math/rand/v2"
	"time"
)

const (
	ownerIDLength = 32
)

// generateOwnerID creates a new unique owner ID
// The owner ID is a random byte slice of length 32 (256 bit).
func generateOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}

const (
	acquireBackoffStart      = 10 * time.Millisecond
	acquireBackoffMax        = 500 * time.Millisecond
	acquireBackoffMultiplier = 2
)

// acquireBackoff yields the wait time between two acquire attempts
type acquireBackoff struct {
	next time.Duration
	rand func(int64) int64
}

func newAcquireBackoff() *acquireBackoff {
	return &acquireBackoff{
		next: acquireBackoffStart,
		rand: mrand.Int64N,
	}
}

// Next returns the next wait time, never longer than limit (if limit > 0).
// The wait time is the current step plus or minus up to half of it.
func (b *acquireBackoff) Next(limit time.Duration) time.Duration {
	sleep := b.next
	if half := int64(sleep / 2); half > 0 && b.rand != nil {
		sleep += time.Duration(b.rand(2*half+1) - half)
	}
	if limit > 0 && sleep > limit {
		sleep = limit
	}

	b.next *= acquireBackoffMultiplier
	if b.next > acquireBackoffMax {
		b.next = acquireBackoffMax
	}
	return sleep
}
