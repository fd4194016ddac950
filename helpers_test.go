// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tropic

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	testutil "github.com/ZaparooProject/go-tropic/internal/testing"
	"github.com/stretchr/testify/require"
)

// simBus adapts the virtual chip to the Bus interface
type simBus struct {
	*testutil.VirtualChip
}

func (simBus) Type() TransportType {
	return TransportMock
}

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func newTestIdentity(t *testing.T, seed byte) *testutil.Identity {
	t.Helper()
	id, err := testutil.NewIdentity(seed)
	require.NoError(t, err)
	return id
}

// newSimHandle returns a handle wired to a fresh virtual chip
func newSimHandle(t *testing.T, opts ...Option) (*Handle, *testutil.VirtualChip) {
	t.Helper()
	chip := testutil.NewVirtualChip(newTestIdentity(t, 1))
	opts = append([]Option{WithRetryConfig(fastRetry()), WithStartupDelay(0)}, opts...)
	h, err := New(simBus{chip}, opts...)
	require.NoError(t, err)
	return h, chip
}

// newSessionHandle returns a handle with an established secure session
func newSessionHandle(t *testing.T, opts ...Option) (*Handle, *testutil.VirtualChip) {
	t.Helper()
	h, chip := newSimHandle(t, opts...)
	require.NoError(t, h.StartSession(context.Background()))
	require.Equal(t, SessionOn, h.State())
	return h, chip
}

// newMockHandle returns a handle on a scripted mock bus
func newMockHandle(t *testing.T) (*Handle, *MockBus) {
	t.Helper()
	bus := NewMockBus()
	h, err := New(bus, WithRetryConfig(fastRetry()), WithStartupDelay(0))
	require.NoError(t, err)
	return h, bus
}

// forceSession installs a session without talking to a chip
func forceSession(h *Handle) {
	h.session = newSession(make([]byte, 32), make([]byte, 32))
	h.state = SessionOn
}

// scriptRead queues the rx image for a request write followed by the
// given GET_RESPONSE images
func scriptRead(bus *MockBus, reads ...[]byte) {
	bus.QueueResponse([]byte{frame.ChipStatusReady})
	for _, r := range reads {
		bus.QueueResponse(r)
	}
}
