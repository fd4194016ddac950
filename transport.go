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
	"errors"
	"sync"
)

// Bus is the physical link to the chip, provided by the host platform.
// Implementations live in transport/spi and transport/usbdongle.
type Bus interface {
	// Transfer clocks out tx while clocking in len(tx) bytes into rx, inside a
	// single chip-select window. rx must be at least as long as tx.
	Transfer(tx, rx []byte) error

	// Close releases the underlying device
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// PortNamer is implemented by buses that can identify their device node.
type PortNamer interface {
	PortName() string
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSPI represents a direct SPI connection.
	TransportSPI TransportType = "spi"
	// TransportUSBDongle represents an SPI bridge behind a USB serial port.
	TransportUSBDongle TransportType = "usb-dongle"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockBus is a scripted Bus for tests. Each Transfer consumes the next queued
// rx image; when the queue is empty rx is left zeroed (chip not ready).
type MockBus struct {
	err       error
	responses [][]byte
	transfers [][]byte
	mu        sync.Mutex
	closed    bool
}

// NewMockBus creates a new mock bus
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Transfer implements Bus
func (m *MockBus) Transfer(tx, rx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("bus closed")
	}
	m.transfers = append(m.transfers, append([]byte(nil), tx...))
	if m.err != nil {
		return m.err
	}

	clear(rx)
	if len(m.responses) > 0 {
		copy(rx, m.responses[0])
		m.responses = m.responses[1:]
	}
	return nil
}

// Close implements Bus
func (m *MockBus) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Bus
func (*MockBus) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueResponse appends an rx image returned by a later Transfer
func (m *MockBus) QueueResponse(rx []byte) {
	m.mu.Lock()
	m.responses = append(m.responses, append([]byte(nil), rx...))
	m.mu.Unlock()
}

// SetError makes every subsequent Transfer fail with err
func (m *MockBus) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// TransferCount returns how many transfers were attempted
func (m *MockBus) TransferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

// Transfers returns a copy of every tx image seen so far
func (m *MockBus) Transfers() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.transfers))
	copy(out, m.transfers)
	return out
}
