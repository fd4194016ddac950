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
	"fmt"
	"math"
	"time"
)

// RetryConfig bounds how long L1 polls GET_RESPONSE while the chip reports
// itself busy. Nothing else is ever retried.
type RetryConfig struct {
	// MaxAttempts is the number of polls per response; values <= 1 poll once
	MaxAttempts int
	// InitialBackoff is the wait after the first busy poll
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between polls; zero means uncapped
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after every busy poll; <= 1 keeps it flat
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the busy-poll budget used when none is configured
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       L1ReadMaxTries,
		InitialBackoff:    L1ReadRetryDelay,
		MaxBackoff:        L1ReadMaxRetryDelay,
		BackoffMultiplier: L1ReadBackoffMultiplier,
	}
}

func (c *RetryConfig) validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: nil retry config", ErrParam)
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: negative retry attempts %d", ErrParam, c.MaxAttempts)
	case c.InitialBackoff < 0, c.MaxBackoff < 0:
		return fmt.Errorf("%w: negative busy backoff", ErrParam)
	case math.IsNaN(c.BackoffMultiplier) || c.BackoffMultiplier < 0:
		return fmt.Errorf("%w: invalid backoff multiplier %v", ErrParam, c.BackoffMultiplier)
	}
	return nil
}

// backoff returns the wait after the n-th busy poll, counting from zero.
func (c *RetryConfig) backoff(n int) time.Duration {
	d := c.InitialBackoff
	if c.BackoffMultiplier > 1 && n > 0 {
		grown := float64(d) * math.Pow(c.BackoffMultiplier, float64(n))
		if grown >= math.MaxInt64 {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(grown)
		}
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// pollUntilReady calls poll until it returns anything but a busy error or
// the attempt budget runs out. A cancelled ctx ends the wait early. Either
// way the last error from poll is returned unchanged, together with the
// number of polls made.
func pollUntilReady(ctx context.Context, cfg *RetryConfig, poll func() error) (int, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := max(cfg.MaxAttempts, 1)

	for n := 1; ; n++ {
		err := poll()
		if err == nil || !IsRetryable(err) {
			if n > 1 {
				Debugf("chip ready after %d polls", n)
			}
			return n, err
		}
		if n >= attempts {
			Debugf("chip still busy after %d polls", n)
			return n, err
		}
		if sleepCtx(ctx, cfg.backoff(n-1)) != nil {
			Debugf("busy wait interrupted after %d polls", n)
			return n, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
