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

	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// Host-side errors, detected before any I/O
var (
	// ErrParam reports a nil handle or an argument outside its domain
	ErrParam = errors.New("invalid parameter")
	// ErrNoSession reports an operation that needs a secure session
	ErrNoSession = errors.New("no secure session")
	// ErrFail is the generic protocol failure (response size mismatch,
	// unexpected status, nonce exhaustion)
	ErrFail = errors.New("operation failed")
)

// Transport errors - originate in L1
var (
	ErrBusFault    = errors.New("bus transfer failed")
	ErrChipBusy    = errors.New("chip busy")
	ErrDataLength  = errors.New("malformed data length")
	ErrStartupMode = errors.New("chip in startup mode")
	ErrAlarmMode   = errors.New("chip in alarm mode")
)

// Frame errors - L2 decode failures are protocol failures
var (
	ErrFrameTooShort  = frame.ErrFrameTooShort
	ErrLengthMismatch = frame.ErrLengthMismatch
	ErrCRCMismatch    = frame.ErrCRCMismatch
)

// Device-reported errors
var (
	ErrDeviceFail     = errors.New("device reported failure")
	ErrUnauthorized   = errors.New("device reported unauthorized")
	ErrInvalidCommand = errors.New("device reported invalid command")
	// ErrDeviceNoSession is the chip telling us it has no session even though
	// the host believed one was active
	ErrDeviceNoSession = errors.New("device reported no session")
	ErrDeviceCRC       = errors.New("device reported CRC error")
	ErrDeviceHandshake = errors.New("device rejected handshake")
	ErrDeviceTag       = errors.New("device reported authentication tag error")
)

// Cryptographic errors
var (
	ErrAuthFailed      = crypto.ErrAuthFailed
	ErrSignature       = errors.New("handshake signature verification failed")
	ErrCertParse       = crypto.ErrCertParse
	ErrCertNotTrusted  = crypto.ErrCertNotTrusted
	ErrCertExpired     = crypto.ErrCertExpired
	ErrNonceExhausted  = errors.New("nonce counter exhausted")
	ErrHandshakeFailed = errors.New("handshake failed")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
)

// TransportError wraps L1 errors with the operation and port they came from.
type TransportError struct {
	Err       error     // Underlying sentinel
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient,
	}
}

// NewChipBusyError creates the only transient L1 error
func NewChipBusyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrChipBusy, ErrorTypeTransient)
}

// NewBusFaultError wraps a bus driver failure
func NewBusFaultError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %w", ErrBusFault, cause), ErrorTypePermanent)
}

// Layer identifies which protocol layer a device status came from
type Layer string

const (
	// LayerL2 is the frame layer status byte
	LayerL2 Layer = "L2"
	// LayerL3 is the decrypted result byte
	LayerL3 Layer = "L3"
)

// DeviceError carries a status or result code reported by the chip.
type DeviceError struct {
	Err     error
	Command string
	Layer   Layer
	Code    byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s status 0x%02X (%s): %v", e.Command, e.Layer, e.Code, e.meaning(), e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) meaning() string {
	var m string
	var ok bool
	if e.Layer == LayerL2 {
		m, ok = l2StatusMeanings[e.Code]
	} else {
		m, ok = l3ResultMeanings[e.Code]
	}
	if !ok {
		return "unknown status"
	}
	return m
}

var l2StatusMeanings = map[byte]string{
	frame.StatusRequestOK:    "request ok",
	frame.StatusResultOK:     "result ok",
	frame.StatusRequestCont:  "request continue",
	frame.StatusResultCont:   "result continue",
	frame.StatusRespDisabled: "request disabled",
	frame.StatusHandshakeErr: "handshake error",
	frame.StatusNoSession:    "no session",
	frame.StatusTagErr:       "tag error",
	frame.StatusCRCErr:       "CRC error",
	frame.StatusUnknownReq:   "unknown request",
	frame.StatusGenErr:       "generic error",
	frame.StatusNoResponse:   "no response",
}

var l3ResultMeanings = map[byte]string{
	resultOK:                "ok",
	resultFail:              "fail",
	resultUnauthorized:      "unauthorized",
	resultInvalidCmd:        "invalid command",
	resultECCInvalidKey:     "invalid ECC key",
	resultMCounterUpdateErr: "monotonic counter update error",
	resultCounterInvalid:    "monotonic counter disabled or invalid",
}

// l2StatusError maps a non-success L2 status to its sentinel.
func l2StatusError(command string, status byte) error {
	var err error
	switch status {
	case frame.StatusNoSession:
		err = ErrDeviceNoSession
	case frame.StatusTagErr:
		err = ErrDeviceTag
	case frame.StatusHandshakeErr:
		err = ErrDeviceHandshake
	case frame.StatusCRCErr:
		err = ErrDeviceCRC
	case frame.StatusUnknownReq:
		err = ErrInvalidCommand
	case frame.StatusRespDisabled, frame.StatusGenErr:
		err = ErrDeviceFail
	default:
		err = ErrFail
	}
	return &DeviceError{Command: command, Layer: LayerL2, Code: status, Err: err}
}

// l3ResultError maps a non-OK L3 result byte to its sentinel.
func l3ResultError(command string, result byte) error {
	var err error
	switch result {
	case resultUnauthorized:
		err = ErrUnauthorized
	case resultInvalidCmd:
		err = ErrInvalidCommand
	default:
		err = ErrDeviceFail
	}
	return &DeviceError{Command: command, Layer: LayerL3, Code: result, Err: err}
}

// IsRetryable returns true if the error is potentially retryable. Only a busy
// chip qualifies; everything else is terminal for the attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return errors.Is(err, ErrChipBusy)
}

// IsDeviceResult reports whether err carries the given L3 result code.
func IsDeviceResult(err error, code byte) bool {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Layer == LayerL3 && de.Code == code
	}
	return false
}
