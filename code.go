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

	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// Code is the host-facing return code. Every API call maps to exactly one.
type Code int

// Return codes
const (
	CodeOK Code = iota
	CodeParamErr
	CodeNoSession
	CodeFail
	CodeBusFault
	CodeChipBusy
	CodeDataLenErr
	CodeStartupMode
	CodeAlarmMode
	CodeDeviceFail
	CodeUnauthorized
	CodeInvalidCmd
	CodeCryptoErr
	CodeHandshakeErr
)

var codeNames = map[Code]string{
	CodeOK:           "ok",
	CodeParamErr:     "parameter error",
	CodeNoSession:    "no session",
	CodeFail:         "failure",
	CodeBusFault:     "bus fault",
	CodeChipBusy:     "chip busy",
	CodeDataLenErr:   "data length error",
	CodeStartupMode:  "chip in startup mode",
	CodeAlarmMode:    "chip in alarm mode",
	CodeDeviceFail:   "device failure",
	CodeUnauthorized: "unauthorized",
	CodeInvalidCmd:   "invalid command",
	CodeCryptoErr:    "cryptographic failure",
	CodeHandshakeErr: "handshake failure",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// codeTable is checked in order; the first sentinel matched by errors.Is wins.
var codeTable = []struct {
	err  error
	code Code
}{
	{ErrParam, CodeParamErr},
	{ErrNoSession, CodeNoSession},
	{ErrDeviceNoSession, CodeNoSession},
	{ErrBusFault, CodeBusFault},
	{ErrChipBusy, CodeChipBusy},
	{ErrDataLength, CodeDataLenErr},
	{ErrStartupMode, CodeStartupMode},
	{ErrAlarmMode, CodeAlarmMode},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidCommand, CodeInvalidCmd},
	{ErrDeviceFail, CodeDeviceFail},
	{ErrDeviceHandshake, CodeHandshakeErr},
	{ErrAuthFailed, CodeCryptoErr},
	{ErrDeviceTag, CodeCryptoErr},
	{ErrSignature, CodeCryptoErr},
	{ErrCertParse, CodeCryptoErr},
	{crypto.ErrCertKeyType, CodeCryptoErr},
	{crypto.ErrCertTooLarge, CodeCryptoErr},
	{ErrCertNotTrusted, CodeCryptoErr},
	{ErrCertExpired, CodeCryptoErr},
	{crypto.ErrLowOrderPoint, CodeCryptoErr},
	// last, so a wrapped cryptographic cause keeps its own code
	{ErrHandshakeFailed, CodeHandshakeErr},
}

// CodeOf classifies err into the return-code taxonomy. Frame corruption,
// size mismatches and anything unrecognised are CodeFail.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeFail
}
