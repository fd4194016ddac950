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
	"bytes"
	"encoding/hex"
	"sync"
)

// VirtualDongle is the serial side of a USB-to-SPI bridge wired to a
// VirtualChip. The host writes one transfer per line as uppercase hex
// terminated by "x\n"; the dongle performs the transfer and answers with the
// clocked-in bytes as hex terminated by "\r\n".
type VirtualDongle struct {
	chip   *VirtualChip
	rx     bytes.Buffer
	tx     bytes.Buffer
	mu     sync.Mutex
	closed bool
}

// NewVirtualDongle bridges a serial line to chip
func NewVirtualDongle(chip *VirtualChip) *VirtualDongle {
	return &VirtualDongle{chip: chip}
}

// Write receives host bytes and runs every complete transfer line
func (d *VirtualDongle) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrBusClosed
	}
	d.rx.Write(p)

	for {
		line, ok := d.nextLine()
		if !ok {
			return len(p), nil
		}
		d.transfer(line)
	}
}

func (d *VirtualDongle) nextLine() ([]byte, bool) {
	data := d.rx.Bytes()
	end := bytes.Index(data, []byte("x\n"))
	if end < 0 {
		return nil, false
	}
	line := bytes.Clone(data[:end])
	d.rx.Next(end + 2)
	return line, true
}

func (d *VirtualDongle) transfer(line []byte) {
	txBytes := make([]byte, hex.DecodedLen(len(line)))
	if _, err := hex.Decode(txBytes, line); err != nil {
		d.tx.WriteString("ERR\r\n")
		return
	}
	rx := make([]byte, len(txBytes))
	if err := d.chip.Transfer(txBytes, rx); err != nil {
		d.tx.WriteString("ERR\r\n")
		return
	}
	d.tx.WriteString(hexUpper(rx))
	d.tx.WriteString("\r\n")
}

func hexUpper(b []byte) string {
	return string(bytes.ToUpper([]byte(hex.EncodeToString(b))))
}

// Read returns pending reply bytes; it never blocks
func (d *VirtualDongle) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx.Len() == 0 {
		return 0, nil
	}
	return d.tx.Read(p) //nolint:wrapcheck // Pass-through
}

// Pending returns the number of reply bytes not yet read
func (d *VirtualDongle) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx.Len()
}

// Reset drops any partial line and unread reply
func (d *VirtualDongle) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx.Reset()
	d.tx.Reset()
}

// Close stops the dongle
func (d *VirtualDongle) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
