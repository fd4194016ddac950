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

// Package spi provides the Linux SPI bus for the secure element via periph.io.
package spi

import (
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-tropic"
	"github.com/ZaparooProject/go-tropic/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// DefaultSpeed is the clock used when New is given zero
	DefaultSpeed = 5 * physic.MegaHertz

	mode        = spi.Mode0 // CPOL=0, CPHA=0, MSB first
	bitsPerWord = 8
)

// ErrClosed is returned by Transfer after Close
var ErrClosed = errors.New("spi: port closed")

// Transport implements tropic.Bus on a spidev port. Each Transfer is one
// chip-select window. Transport is a sync.Locker; the host library holds it
// for the whole of a request/response transaction.
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	syncutil.Mutex
}

// New opens portName (e.g. "/dev/spidev0.0" or "SPI0.0") at speed.
func New(portName string, speed physic.Frequency) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}
	return newTransport(port, portName, speed)
}

func newTransport(port spi.PortCloser, portName string, speed physic.Frequency) (*Transport, error) {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	conn, err := port.Connect(speed, mode, bitsPerWord)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
	}, nil
}

// Transfer clocks tx out while clocking len(tx) bytes into rx.
func (t *Transport) Transfer(tx, rx []byte) error {
	if t.conn == nil {
		return ErrClosed
	}
	if len(rx) < len(tx) {
		return fmt.Errorf("SPI transfer: %w", io.ErrShortBuffer)
	}
	if err := t.conn.Tx(tx, rx[:len(tx)]); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}
	return nil
}

// Close releases the port. It waits for an in-flight transaction.
func (t *Transport) Close() error {
	t.Lock()
	defer t.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// PortName returns the port the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() tropic.TransportType {
	return tropic.TransportSPI
}
