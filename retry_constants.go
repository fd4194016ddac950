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

import "time"

// L1 busy-poll constants. The chip answers GET_RESPONSE with READY cleared
// while it is still processing; the host polls until it is set.
const (
	// L1ReadMaxTries is the number of GET_RESPONSE attempts before giving up
	// with ErrChipBusy.
	L1ReadMaxTries = 50
	// L1ReadRetryDelay is the delay after the first busy response.
	L1ReadRetryDelay = 5 * time.Millisecond
	// L1ReadMaxRetryDelay caps the delay between busy polls.
	L1ReadMaxRetryDelay = 25 * time.Millisecond
	// L1ReadBackoffMultiplier grows the delay between busy polls.
	L1ReadBackoffMultiplier = 1.5
)

// Command timing constants
const (
	// DefaultTimeout bounds a single request/response transaction.
	DefaultTimeout = 2 * time.Second
	// StartupDelay is how long the chip needs after a STARTUP request before
	// it answers again.
	StartupDelay = 250 * time.Millisecond
)
