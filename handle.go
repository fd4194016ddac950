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
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// HandleConfig contains configuration options for a Handle
type HandleConfig struct {
	// RetryConfig bounds the busy-poll loop of each L1 read
	RetryConfig *RetryConfig
	// Suite provides every cryptographic primitive
	Suite crypto.Suite
	// Now is the clock used for certificate validity checks
	Now func() time.Time
	// TrustAnchors, when non-empty, must have signed the device certificate
	TrustAnchors []*x509.Certificate
	// Timeout bounds a single request/response transaction
	Timeout time.Duration
	// StartupDelay is waited after a STARTUP request
	StartupDelay time.Duration
}

// DefaultHandleConfig returns default handle configuration
func DefaultHandleConfig() *HandleConfig {
	return &HandleConfig{
		RetryConfig:  DefaultRetryConfig(),
		Suite:        crypto.NewSoftware(nil),
		Now:          time.Now,
		Timeout:      DefaultTimeout,
		StartupDelay: StartupDelay,
	}
}

// Option configures a Handle
type Option func(*Handle) error

// WithRetryConfig replaces the busy-poll budget
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(h *Handle) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		h.config.RetryConfig = cfg
		return nil
	}
}

// WithCryptoSuite replaces the software crypto implementation
func WithCryptoSuite(suite crypto.Suite) Option {
	return func(h *Handle) error {
		if suite == nil {
			return fmt.Errorf("%w: nil crypto suite", ErrParam)
		}
		h.config.Suite = suite
		return nil
	}
}

// WithRandom keeps the software suite but draws its randomness from r. It
// fails if a suite other than crypto.Software was installed before it.
func WithRandom(r io.Reader) Option {
	return func(h *Handle) error {
		if r == nil {
			return fmt.Errorf("%w: nil random source", ErrParam)
		}
		if _, ok := h.config.Suite.(*crypto.Software); !ok {
			return fmt.Errorf("%w: random source needs the software suite, got %T", ErrParam, h.config.Suite)
		}
		h.config.Suite = crypto.NewSoftware(r)
		return nil
	}
}

// WithTrustAnchors requires the device certificate to chain to one of anchors
func WithTrustAnchors(anchors ...*x509.Certificate) Option {
	return func(h *Handle) error {
		for _, a := range anchors {
			if a == nil {
				return fmt.Errorf("%w: nil trust anchor", ErrParam)
			}
		}
		h.config.TrustAnchors = anchors
		return nil
	}
}

// WithTimeout bounds each request/response transaction
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout must be positive", ErrParam)
		}
		h.config.Timeout = d
		return nil
	}
}

// WithStartupDelay overrides the wait after a STARTUP request
func WithStartupDelay(d time.Duration) Option {
	return func(h *Handle) error {
		if d < 0 {
			return fmt.Errorf("%w: negative startup delay", ErrParam)
		}
		h.config.StartupDelay = d
		return nil
	}
}

// WithClock overrides the clock used for certificate validity
func WithClock(now func() time.Time) Option {
	return func(h *Handle) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrParam)
		}
		h.config.Now = now
		return nil
	}
}

// Handle is one host-side connection to a chip.
//
// Thread Safety: Handle is NOT thread-safe. All methods must be called from a
// single goroutine or protected with external synchronization. Buses shared
// between handles are locked per transaction by L1.
type Handle struct {
	link    *link
	config  *HandleConfig
	session *session
	cert    *crypto.Certificate
	state   SessionState

	// Per-layer scratch. L3 encodes into l3Buf and finishes before decoding
	// the response into it; L2 frames never touch l3Buf.
	l2Tx  [frame.MaxRequestSize]byte
	l2Rx  [frame.MaxResponseSize]byte
	l3Buf [L3PacketMaxSize]byte
}

// New creates a handle on an already opened bus. No I/O is performed.
func New(bus Bus, opts ...Option) (*Handle, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrParam)
	}
	h := &Handle{
		config: DefaultHandleConfig(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}

	h.link = newLink(bus, h.config.RetryConfig, h.config.Timeout)
	Debugf("handle opened: bus=%s port=%q timeout=%v", bus.Type(), h.link.port, h.config.Timeout)
	return h, nil
}

// State returns the current session state
func (h *Handle) State() SessionState {
	if h == nil {
		return NoSession
	}
	return h.state
}

// Certificate returns the cached device certificate, if one has been read
func (h *Handle) Certificate() *crypto.Certificate {
	if h == nil {
		return nil
	}
	return h.cert
}

// Close drops the local session, wipes scratch buffers and closes the bus.
// The chip is not told; call SessionAbort first for an orderly shutdown.
func (h *Handle) Close() error {
	if h == nil {
		return ErrParam
	}
	h.endSession()
	crypto.Wipe(h.l2Tx[:])
	crypto.Wipe(h.l2Rx[:])
	crypto.Wipe(h.l3Buf[:])
	if err := h.link.bus.Close(); err != nil {
		return fmt.Errorf("failed to close bus: %w", err)
	}
	return nil
}

// endSession zeroes both directional contexts and returns to NoSession.
func (h *Handle) endSession() {
	if h.session != nil {
		h.session.wipe()
		h.session = nil
		Debugln("secure session closed")
	}
	h.state = NoSession
}

// requireSession is the last precondition of every session-bound call.
func (h *Handle) requireSession() error {
	if h.state != SessionOn || h.session == nil {
		return ErrNoSession
	}
	return nil
}

// invalidatesSession reports errors after which the chip no longer holds the
// session the host believes in.
func invalidatesSession(err error) bool {
	return errors.Is(err, ErrDeviceNoSession) ||
		errors.Is(err, ErrDeviceTag) ||
		errors.Is(err, ErrAuthFailed)
}
