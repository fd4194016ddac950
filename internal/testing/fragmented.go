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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures how FragmentedConn delivers reads.
type JitterConfig struct {
	MaxLatency        time.Duration
	FragmentMinBytes  int
	Seed              uint64
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig fragments every read down to single bytes at random.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             1,
	}
}

// FragmentedConn wraps a serial backend so reads arrive the way a USB CDC
// bridge delivers them: late, split at arbitrary points and at 64 byte
// packet boundaries. Writes pass through untouched.
type FragmentedConn struct {
	backend   io.ReadWriter
	rng       *rand.Rand
	buffered  []byte
	config    JitterConfig
	delivered int
}

// NewFragmentedConn wraps backend
func NewFragmentedConn(backend io.ReadWriter, config JitterConfig) *FragmentedConn {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &FragmentedConn{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)), //nolint:gosec // Test code, not crypto
	}
}

// Write implements io.Writer
func (f *FragmentedConn) Write(p []byte) (int, error) {
	return f.backend.Write(p) //nolint:wrapcheck // Pass-through wrapper
}

// Read implements io.Reader with simulated latency and fragmentation
func (f *FragmentedConn) Read(p []byte) (int, error) {
	if f.config.MaxLatency > 0 {
		time.Sleep(time.Duration(f.rng.Int64N(int64(f.config.MaxLatency) + 1)))
	}

	if len(f.buffered) == 0 {
		tmp := make([]byte, 512)
		n, err := f.backend.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		f.buffered = append(f.buffered, tmp[:n]...)
	}

	n := min(len(f.buffered), len(p))
	if f.config.USBBoundaryStress {
		if untilBoundary := 64 - f.delivered%64; untilBoundary < n {
			n = untilBoundary
		}
	}
	if f.config.FragmentReads && n > f.config.FragmentMinBytes {
		n = f.config.FragmentMinBytes + f.rng.IntN(n-f.config.FragmentMinBytes+1)
	}

	copy(p, f.buffered[:n])
	f.buffered = f.buffered[n:]
	f.delivered += n
	return n, nil
}
