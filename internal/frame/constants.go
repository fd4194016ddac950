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

// Package frame implements the L2 packet format spoken by the secure element.
package frame

// Request identifiers (first byte of every request frame)
const (
	ReqGetInfo             = 0x01
	ReqHandshake           = 0x02
	ReqEncryptedCmd        = 0x04
	ReqEncryptedSessionAbt = 0x08
	ReqResend              = 0x10
	ReqSleep               = 0x20
	ReqStartup             = 0xB3

	// ReqGetResponse is clocked out by L1 to read back a pending response.
	// It is not a request frame and carries no LEN or CRC.
	ReqGetResponse = 0xAA
)

// Status codes reported in the STATUS byte of a response frame
const (
	StatusRequestOK    = 0x01
	StatusResultOK     = 0x02
	StatusRequestCont  = 0x03
	StatusResultCont   = 0x04
	StatusRespDisabled = 0x78
	StatusHandshakeErr = 0x79
	StatusNoSession    = 0x7A
	StatusTagErr       = 0x7B
	StatusCRCErr       = 0x7C
	StatusUnknownReq   = 0x7E
	StatusGenErr       = 0x7F
	StatusNoResponse   = 0xFF
)

// CHIP_STATUS bits, always the first byte clocked in during a transfer
const (
	ChipStatusReady   = 0x01
	ChipStatusAlarm   = 0x02
	ChipStatusStartup = 0x04
)

// Frame size limits
const (
	MaxDataLength = 252 // LEN is one byte and the chip caps it below 255
	CRCSize       = 2

	RequestHeaderSize  = 2 // ID + LEN
	ResponseHeaderSize = 3 // CHIP_STATUS + STATUS + LEN

	MaxRequestSize  = RequestHeaderSize + MaxDataLength + CRCSize
	MaxResponseSize = ResponseHeaderSize + MaxDataLength + CRCSize
	MinResponseSize = ResponseHeaderSize + CRCSize
)

// GET_INFO object identifiers and block geometry
const (
	InfoObjectX509Certificate = 0x00
	InfoObjectChipID          = 0x01
	InfoObjectRiscvFWVersion  = 0x02
	InfoObjectSpectFWVersion  = 0x04

	InfoBlockSize = 128
)

// Sleep kinds carried by a SLEEP request
const (
	SleepKindSleep     = 0x05
	SleepKindDeepSleep = 0x0A
)

// Startup request reboot modes
const (
	StartupReboot      = 0x01
	StartupMaintReboot = 0x03
)
