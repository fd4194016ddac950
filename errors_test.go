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
	"testing"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		name      string
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "chip busy sentinel", err: ErrChipBusy, retryable: true},
		{name: "chip busy transport error", err: NewChipBusyError("read", "/dev/spidev0.0"), retryable: true},
		{name: "wrapped busy", err: fmt.Errorf("poll: %w", NewChipBusyError("read", "")), retryable: true},
		{name: "alarm", err: NewTransportError("read", "", ErrAlarmMode, ErrorTypePermanent)},
		{name: "startup", err: NewTransportError("read", "", ErrStartupMode, ErrorTypePermanent)},
		{name: "bus fault", err: NewBusFaultError("write", "", errors.New("EIO"))},
		{name: "CRC mismatch", err: ErrCRCMismatch},
		{name: "device failure", err: l3ResultError("Ping", resultFail)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("spidev: transfer failed")
	err := NewBusFaultError("write", "/dev/spidev0.0", cause)

	assert.Equal(t, "write", err.Op)
	assert.Equal(t, "/dev/spidev0.0", err.Port)
	assert.Equal(t, ErrorTypePermanent, err.Type)
	assert.False(t, err.Retryable)
	require.ErrorIs(t, err, ErrBusFault)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "write /dev/spidev0.0: bus transfer failed: spidev: transfer failed", err.Error())

	noPort := NewChipBusyError("read", "")
	assert.Equal(t, "read: chip busy", noPort.Error())
	assert.True(t, noPort.Retryable)
}

func TestL2StatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want   error
		name   string
		status byte
	}{
		{name: "no session", status: frame.StatusNoSession, want: ErrDeviceNoSession},
		{name: "tag error", status: frame.StatusTagErr, want: ErrDeviceTag},
		{name: "handshake error", status: frame.StatusHandshakeErr, want: ErrDeviceHandshake},
		{name: "CRC error", status: frame.StatusCRCErr, want: ErrDeviceCRC},
		{name: "unknown request", status: frame.StatusUnknownReq, want: ErrInvalidCommand},
		{name: "generic error", status: frame.StatusGenErr, want: ErrDeviceFail},
		{name: "request disabled", status: frame.StatusRespDisabled, want: ErrDeviceFail},
		{name: "unexpected continue", status: frame.StatusRequestCont, want: ErrFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := l2StatusError("Handshake", tt.status)
			require.ErrorIs(t, err, tt.want)

			var de *DeviceError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, LayerL2, de.Layer)
			assert.Equal(t, tt.status, de.Code)
			assert.Contains(t, err.Error(), "Handshake L2 status")
		})
	}
}

func TestL3ResultError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want    error
		name    string
		meaning string
		result  byte
	}{
		{name: "fail", result: resultFail, want: ErrDeviceFail, meaning: "fail"},
		{name: "unauthorized", result: resultUnauthorized, want: ErrUnauthorized, meaning: "unauthorized"},
		{name: "invalid command", result: resultInvalidCmd, want: ErrInvalidCommand, meaning: "invalid command"},
		{name: "invalid key", result: resultECCInvalidKey, want: ErrDeviceFail, meaning: "invalid ECC key"},
		{name: "counter update", result: resultMCounterUpdateErr, want: ErrDeviceFail, meaning: "monotonic counter update error"},
		{name: "counter invalid", result: resultCounterInvalid, want: ErrDeviceFail, meaning: "disabled or invalid"},
		{name: "unknown", result: 0x77, want: ErrDeviceFail, meaning: "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := l3ResultError("ECCKeyRead", tt.result)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsDeviceResult(err, tt.result))
			assert.Contains(t, err.Error(), tt.meaning)
		})
	}

	assert.False(t, IsDeviceResult(l2StatusError("Sleep", resultFail), resultFail), "L2 status is not an L3 result")
	assert.False(t, IsDeviceResult(errors.New("plain"), resultFail))
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want Code
	}{
		{name: "nil", err: nil, want: CodeOK},
		{name: "param", err: ErrParam, want: CodeParamErr},
		{name: "wrapped param", err: fmt.Errorf("%w: slot 32", ErrParam), want: CodeParamErr},
		{name: "no session", err: ErrNoSession, want: CodeNoSession},
		{name: "device lost session", err: l2StatusError("EncryptedCmd", frame.StatusNoSession), want: CodeNoSession},
		{name: "generic failure", err: ErrFail, want: CodeFail},
		{name: "CRC mismatch", err: ErrCRCMismatch, want: CodeFail},
		{name: "nonce exhausted", err: ErrNonceExhausted, want: CodeFail},
		{name: "bus fault", err: NewBusFaultError("write", "", errors.New("EIO")), want: CodeBusFault},
		{name: "busy", err: NewChipBusyError("read", ""), want: CodeChipBusy},
		{name: "data length", err: NewTransportError("read", "", ErrDataLength, ErrorTypePermanent), want: CodeDataLenErr},
		{name: "startup", err: NewTransportError("read", "", ErrStartupMode, ErrorTypePermanent), want: CodeStartupMode},
		{name: "alarm", err: NewTransportError("read", "", ErrAlarmMode, ErrorTypePermanent), want: CodeAlarmMode},
		{name: "device fail", err: l3ResultError("Ping", resultFail), want: CodeDeviceFail},
		{name: "unauthorized", err: l3ResultError("Ping", resultUnauthorized), want: CodeUnauthorized},
		{name: "invalid command", err: l3ResultError("Ping", resultInvalidCmd), want: CodeInvalidCmd},
		{name: "auth failed", err: crypto.ErrAuthFailed, want: CodeCryptoErr},
		{name: "device tag error", err: l2StatusError("EncryptedCmd", frame.StatusTagErr), want: CodeCryptoErr},
		{name: "signature", err: ErrSignature, want: CodeCryptoErr},
		{name: "untrusted", err: crypto.ErrCertNotTrusted, want: CodeCryptoErr},
		{name: "expired", err: crypto.ErrCertExpired, want: CodeCryptoErr},
		{name: "device handshake", err: l2StatusError("Handshake", frame.StatusHandshakeErr), want: CodeHandshakeErr},
		{name: "unrecognised", err: errors.New("something else"), want: CodeFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestCode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", CodeOK.String())
	assert.Equal(t, "parameter error", CodeParamErr.String())
	assert.Equal(t, "handshake failure", CodeHandshakeErr.String())
	assert.Equal(t, "unknown", Code(99).String())
}
