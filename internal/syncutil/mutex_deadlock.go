//go:build deadlock

// Package syncutil provides the mutex bus drivers embed to serialise
// request/response transactions. This file is compiled with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// lockTimeout is well above the longest transaction: a full retry budget of
// busy polls plus the transaction timeout.
const lockTimeout = 10 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = lockTimeout
}

// Mutex wraps deadlock.Mutex. Embedding it makes a bus driver a sync.Locker.
type Mutex struct {
	deadlock.Mutex
}
