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
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// TraceDirection is the side of a full-duplex transfer a trace entry shows
type TraceDirection string

const (
	// TraceTX is data clocked out to the chip
	TraceTX TraceDirection = "TX"
	// TraceRX is data clocked in from the chip
	TraceRX TraceDirection = "RX"
)

const traceHexLimit = 32

// TraceEntry is one half of an L1 transfer
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats the entry as "[time] DIR: hex ; summary (note)".
func (e TraceEntry) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, formatHexBytes(e.Data))
	e.writeTail(&sb)
	return sb.String()
}

func (e TraceEntry) writeTail(sb *strings.Builder) {
	if s := e.summary(); s != "" {
		_, _ = fmt.Fprintf(sb, " ; %s", s)
	}
	if e.Note != "" {
		_, _ = fmt.Fprintf(sb, " (%s)", e.Note)
	}
}

// summary decodes the L2 header of the entry. Requests show their ID and
// length; responses show the CHIP_STATUS flags and, when present, the L2
// status and length.
func (e TraceEntry) summary() string {
	if len(e.Data) == 0 {
		return ""
	}
	if e.Direction == TraceTX {
		if e.Data[0] == frame.ReqGetResponse {
			return "GET_RESPONSE"
		}
		if len(e.Data) < 2 {
			return fmt.Sprintf("req=0x%02X", e.Data[0])
		}
		return fmt.Sprintf("req=0x%02X len=%d", e.Data[0], e.Data[1])
	}
	flags := chipStatusFlags(e.Data[0])
	if len(e.Data) < frame.ResponseHeaderSize {
		return flags
	}
	return fmt.Sprintf("%s status=0x%02X len=%d", flags, e.Data[1], e.Data[2])
}

// chipStatusFlags names the bits set in a CHIP_STATUS byte.
func chipStatusFlags(status byte) string {
	var flags []string
	if status&frame.ChipStatusReady != 0 {
		flags = append(flags, "READY")
	}
	if status&frame.ChipStatusAlarm != 0 {
		flags = append(flags, "ALARM")
	}
	if status&frame.ChipStatusStartup != 0 {
		flags = append(flags, "STARTUP")
	}
	if len(flags) == 0 {
		return "[BUSY]"
	}
	return "[" + strings.Join(flags, "|") + "]"
}

// TraceableError carries the transfers of a failed L1 transaction. Entries
// hold ciphertext or plaintext control frames, never session keys.
//
//	if te := tropic.GetTrace(err); te != nil {
//	    log.Print(te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace one transfer per line, ">" for TX and "<"
// for RX.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		_, _ = fmt.Fprintf(&sb, "  %s %s", arrow, formatHexBytes(entry.Data))
		entry.writeTail(&sb)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// formatHexBytes renders up to traceHexLimit bytes as spaced hex.
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if len(data) <= traceHexLimit {
		return fmt.Sprintf("% X", data)
	}
	return fmt.Sprintf("% X ... (%d bytes total)", data[:traceHexLimit], len(data))
}

// TraceBuffer keeps the last transfers of one transaction.
type TraceBuffer struct {
	transport string
	port      string
	entries   []TraceEntry
	maxSize   int
}

// NewTraceBuffer returns a ring holding at most maxSize entries, 16 if
// maxSize is not positive.
func NewTraceBuffer(transport, port string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
		port:      port,
	}
}

// RecordTX records bytes clocked out to the chip
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records bytes clocked in from the chip
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}
	if len(tb.entries) == tb.maxSize {
		tb.entries = append(tb.entries[:0], tb.entries[1:]...)
	}
	tb.entries = append(tb.entries, entry)
}

// WrapError attaches a copy of the trace to err; nil stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Trace:     append([]TraceEntry(nil), tb.entries...),
		Transport: tb.transport,
		Port:      tb.port,
	}
}

// GetTrace returns the trace attached to err, or nil
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
