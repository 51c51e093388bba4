package lockmgr

import "github.com/VictoriaMetrics/metrics"

var (
	lockAcquired = metrics.NewCounter(`ddoc_lock_acquire_total{result="acquired"}`)
	lockTimedOut = metrics.NewCounter(`ddoc_lock_acquire_total{result="timeout"}`)
	lockFailed   = metrics.NewCounter(`ddoc_lock_acquire_total{result="error"}`)
	lockReleased = metrics.NewCounter(`ddoc_lock_release_total`)
	lockWait     = metrics.NewHistogram(`ddoc_lock_wait_seconds`)
)
