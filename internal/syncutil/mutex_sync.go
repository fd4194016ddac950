//go:build !deadlock

// Package syncutil provides the mutex bus drivers embed to serialise
// request/response transactions. Build with -tags=deadlock to swap in
// github.com/sasha-s/go-deadlock and catch a transaction that never releases
// the bus.
package syncutil

import "sync"

// Mutex is a sync.Mutex. Embedding it makes a bus driver a sync.Locker.
//
//nolint:gocritic // Embedded so the driver exposes Lock and Unlock
type Mutex struct {
	sync.Mutex
}
