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

// Package usbdongle provides a bus for secure elements behind a USB-serial
// SPI bridge.
//
// The bridge speaks a line protocol: every transfer is sent as the uppercase
// hex of the bytes to clock out, terminated by "x\n". The bridge runs one
// chip-select window and answers with the hex of the clocked-in bytes
// terminated by "\r\n", or "ERR\r\n" when the transfer failed.
package usbdongle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/go-tropic"
	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// BaudRate is the bridge's line speed
	BaudRate = 115200
	// DefaultTimeout bounds one transfer round trip
	DefaultTimeout = 500 * time.Millisecond

	readTimeout = 20 * time.Millisecond
	readChunk   = 128
	// maxLine fits the hex reply to the longest transfer the host issues
	maxLine = 2*257 + 2
)

var (
	// ErrClosed is returned by Transfer after Close
	ErrClosed = errors.New("usbdongle: port closed")
	// ErrTimeout means the bridge did not answer a transfer in time
	ErrTimeout = errors.New("usbdongle: reply timeout")
	// ErrBridge means the bridge reported a failed transfer
	ErrBridge = errors.New("usbdongle: bridge reported transfer error")
	// ErrReply means the bridge's reply line could not be decoded
	ErrReply = errors.New("usbdongle: malformed reply")
)

var (
	lineEnd  = []byte("\r\n")
	txEnd    = []byte("x\n")
	errReply = []byte("ERR")
)

// Transport implements tropic.Bus over a serial port. Transport is a
// sync.Locker; the host library holds it for a whole request/response
// transaction.
type Transport struct {
	port     serial.Port
	portName string
	line     []byte
	timeout  time.Duration
	syncutil.Mutex
}

// New opens the bridge on portName.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	t, err := newTransport(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to reset serial input: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  DefaultTimeout,
		line:     make([]byte, 0, maxLine),
	}, nil
}

// SetTimeout sets the round-trip bound for a transfer
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("usbdongle: timeout must be positive, got %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Transfer sends tx to the bridge and copies the clocked-in bytes to rx.
func (t *Transport) Transfer(tx, rx []byte) error {
	if t.port == nil {
		return ErrClosed
	}
	if len(rx) < len(tx) {
		return fmt.Errorf("usbdongle transfer: %w", io.ErrShortBuffer)
	}

	if err := t.writeLine(tx); err != nil {
		return err
	}
	reply, err := t.readLine()
	if err != nil {
		return err
	}
	if bytes.Equal(reply, errReply) {
		return ErrBridge
	}

	if hex.DecodedLen(len(reply)) != len(tx) {
		return fmt.Errorf("%w: %d hex digits for a %d byte transfer", ErrReply, len(reply), len(tx))
	}
	if _, err := hex.Decode(rx[:len(tx)], reply); err != nil {
		return fmt.Errorf("%w: %w", ErrReply, err)
	}
	return nil
}

func (t *Transport) writeLine(tx []byte) error {
	const digits = "0123456789ABCDEF"
	buf := frame.GetBuffer(2*len(tx) + len(txEnd))
	defer frame.PutBuffer(buf)

	out := buf[:0]
	for _, b := range tx {
		out = append(out, digits[b>>4], digits[b&0x0F])
	}
	out = append(out, txEnd...)
	for len(out) > 0 {
		n, err := t.port.Write(out)
		if err != nil {
			return fmt.Errorf("serial write failed: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write failed: %w", io.ErrShortWrite)
		}
		out = out[n:]
	}
	return t.drainWithRetry()
}

// readLine collects bytes until CRLF. Reads that time out return no data,
// so the loop is bounded by the transfer timeout rather than by the port.
func (t *Transport) readLine() ([]byte, error) {
	t.line = t.line[:0]
	var chunk [readChunk]byte
	deadline := time.Now().Add(t.timeout)

	for {
		n, err := t.port.Read(chunk[:])
		if err != nil && !isInterruptedSystemCall(err) {
			return nil, fmt.Errorf("serial read failed: %w", err)
		}
		t.line = append(t.line, chunk[:n]...)
		if end := bytes.Index(t.line, lineEnd); end >= 0 {
			return t.line[:end], nil
		}
		if len(t.line) > maxLine {
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrReply, maxLine)
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to flush, retrying interrupted
// system calls
func (t *Transport) drainWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("serial drain failed: %w", err)
		}
		time.Sleep(baseDelay << attempt)
	}
	return nil
}

// Close closes the serial port. It waits for an in-flight transaction.
func (t *Transport) Close() error {
	t.Lock()
	defer t.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("serial close failed: %w", err)
	}
	return nil
}

// PortName returns the serial device the transport was opened on
func (t *Transport) PortName() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() tropic.TransportType {
	return tropic.TransportUSBDongle
}
