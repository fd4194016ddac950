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
	"errors"
	"sync"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// link is the L1 transport adapter. It owns no protocol state beyond the
// trace of the transaction in flight.
type link struct {
	bus          Bus
	retry        *RetryConfig
	currentTrace *TraceBuffer
	port         string
	readTx       [frame.MaxResponseSize]byte
	writeRx      [frame.MaxRequestSize]byte
	timeout      time.Duration
}

func newLink(bus Bus, retry *RetryConfig, timeout time.Duration) *link {
	l := &link{
		bus:     bus,
		retry:   retry,
		timeout: timeout,
	}
	if namer, ok := bus.(PortNamer); ok {
		l.port = namer.PortName()
	}
	return l
}

// begin opens a transaction. Buses shared between handles implement
// sync.Locker so a transaction holds the wire exclusively.
func (l *link) begin() func() {
	l.currentTrace = NewTraceBuffer(string(l.bus.Type()), l.port, 16)
	locker, ok := l.bus.(sync.Locker)
	if ok {
		locker.Lock()
	}
	return func() {
		if ok {
			locker.Unlock()
		}
		l.currentTrace = nil
	}
}

func (l *link) traceTX(data []byte, note string) {
	if l.currentTrace != nil {
		l.currentTrace.RecordTX(data, note)
	}
}

func (l *link) traceRX(data []byte, note string) {
	if l.currentTrace != nil {
		l.currentTrace.RecordRX(data, note)
	}
}

func (l *link) wrap(err error) error {
	if l.currentTrace == nil {
		return err
	}
	return l.currentTrace.WrapError(err)
}

// write clocks out one encoded request frame.
func (l *link) write(req []byte) error {
	if len(req) > len(l.writeRx) {
		return NewTransportError("write", l.port, ErrDataLength, ErrorTypePermanent)
	}
	l.traceTX(req, "request")
	if err := l.bus.Transfer(req, l.writeRx[:len(req)]); err != nil {
		return l.wrap(NewBusFaultError("write", l.port, err))
	}
	return nil
}

// read polls GET_RESPONSE until the chip is ready, then decodes the frame
// into buf. Only a busy chip is retried. The poll budget is bounded by the
// retry config and the link timeout; a started transaction is not
// cancellable, so ctx only contributes its values.
func (l *link) read(ctx context.Context, buf []byte) (frame.Response, error) {
	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	var resp frame.Response
	_, err := pollUntilReady(retryCtx, l.retry, func() error {
		var err error
		resp, err = l.readOnce(buf)
		return err
	})
	if err != nil {
		return frame.Response{}, l.wrap(err)
	}
	return resp, nil
}

func (l *link) readOnce(buf []byte) (frame.Response, error) {
	if len(buf) < frame.MaxResponseSize {
		return frame.Response{}, NewTransportError("read", l.port, ErrDataLength, ErrorTypePermanent)
	}
	tx := l.readTx[:]
	clear(tx)
	tx[0] = frame.ReqGetResponse
	rx := buf[:frame.MaxResponseSize]

	if err := l.bus.Transfer(tx, rx); err != nil {
		return frame.Response{}, NewBusFaultError("read", l.port, err)
	}

	chipStatus := rx[0]
	switch {
	case chipStatus&frame.ChipStatusAlarm != 0:
		l.traceRX(rx[:1], "alarm")
		return frame.Response{}, NewTransportError("read", l.port, ErrAlarmMode, ErrorTypePermanent)
	case chipStatus&frame.ChipStatusStartup != 0:
		l.traceRX(rx[:1], "startup")
		return frame.Response{}, NewTransportError("read", l.port, ErrStartupMode, ErrorTypePermanent)
	case chipStatus&frame.ChipStatusReady == 0, rx[1] == frame.StatusNoResponse:
		return frame.Response{}, NewChipBusyError("read", l.port)
	}

	total, err := frame.ResponseLen(rx)
	if err != nil {
		l.traceRX(rx[:frame.ResponseHeaderSize], "bad length")
		if errors.Is(err, frame.ErrDataTooLong) {
			return frame.Response{}, NewTransportError("read", l.port, ErrDataLength, ErrorTypePermanent)
		}
		return frame.Response{}, err
	}
	l.traceRX(rx[:total], "response")

	resp, err := frame.DecodeResponse(rx[:total])
	if err != nil {
		return frame.Response{}, err
	}
	return resp, nil
}
