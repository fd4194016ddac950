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

// Package testing provides test utilities including a wire-level chip simulator.
//
// VirtualChip honours the bus contract used by the host library: every
// Transfer is one chip-select window. A transfer starting with GET_RESPONSE
// clocks out the oldest pending response frame; any other transfer is parsed
// as a request frame. The simulator runs the device side of the handshake and
// of the encrypted command layer, and exposes fault injection for every error
// path the host handles.
package testing

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"
	"slices"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/internal/syncutil"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// Handshake constants mirror the host's to avoid an import cycle
const (
	protocolName = "TROPIC_X25519_AESGCM_SHA256_ED25519"
	labelCmdKey  = "tropic host->device"
	labelResKey  = "tropic device->host"
)

// ErrBusClosed is returned by Transfer after Close
var ErrBusClosed = errors.New("virtual chip: bus closed")

// chipSession is the device half of the secure channel
type chipSession struct {
	cmdKey   []byte
	resKey   []byte
	cmdNonce uint32
	resNonce uint32
}

// VirtualChip simulates the secure element at the frame level.
type VirtualChip struct {
	identity      *Identity
	suite         crypto.Suite
	rand          io.Reader
	session       *chipSession
	busError      error
	resultHook    func(cmd byte, result []byte) []byte
	controlHook   func(req frame.Request) (frame.Response, bool)
	unauthorized  map[byte]bool
	counters      map[int]uint32
	slots         [numSlots]*VirtualSlot
	pending       [][]byte
	lastResponse  []byte
	l3In          []byte
	requests      []frame.Request
	commandNonces []uint32
	mu            syncutil.Mutex
	transfers     int
	busyPolls     int
	lastSleep     byte
	alarm         bool
	startup       bool
	injectCRC     bool
	injectTag     bool
	closed        bool
}

// NewVirtualChip creates a chip provisioned with id. It starts awake, with
// empty key slots, uninitialised counters and no session.
func NewVirtualChip(id *Identity) *VirtualChip {
	return &VirtualChip{
		identity:     id,
		rand:         crand.Reader,
		suite:        crypto.NewSoftware(crand.Reader),
		unauthorized: make(map[byte]bool),
		counters:     make(map[int]uint32),
	}
}

// NewSeededReader returns a deterministic byte stream for reproducible
// handshakes. It is not a secure random source.
func NewSeededReader(seed byte) io.Reader {
	var key [32]byte
	for i := range key {
		key[i] = seed + byte(i)
	}
	return rand.NewChaCha8(key)
}

// SetRandom replaces the chip's randomness (ephemeral keys, key generation,
// RANDOM_VALUE_GET).
func (c *VirtualChip) SetRandom(r io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rand = r
	c.suite = crypto.NewSoftware(r)
}

// Transfer implements the bus contract.
func (c *VirtualChip) Transfer(tx, rx []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrBusClosed
	}
	c.transfers++
	if c.busError != nil {
		return c.busError
	}
	if len(rx) < len(tx) {
		return io.ErrShortBuffer
	}
	rx = rx[:len(tx)]
	clear(rx)
	if len(tx) == 0 {
		return nil
	}

	if tx[0] == frame.ReqGetResponse {
		c.clockOutResponse(rx)
		return nil
	}
	rx[0] = c.chipStatus()
	c.receive(tx)
	return nil
}

// Close implements the bus contract
func (c *VirtualChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *VirtualChip) chipStatus() byte {
	switch {
	case c.alarm:
		return frame.ChipStatusAlarm
	case c.startup:
		return frame.ChipStatusStartup
	default:
		return frame.ChipStatusReady
	}
}

func (c *VirtualChip) clockOutResponse(rx []byte) {
	rx[0] = c.chipStatus()
	if c.alarm || c.startup {
		return
	}
	if c.busyPolls > 0 {
		c.busyPolls--
		rx[0] = 0
		return
	}
	if len(c.pending) == 0 {
		if len(rx) > 1 {
			rx[1] = frame.StatusNoResponse
		}
		return
	}
	resp := c.pending[0]
	c.pending = c.pending[1:]
	copy(rx, resp)
}

// receive parses one request frame and queues the chip's answer.
func (c *VirtualChip) receive(tx []byte) {
	req, err := frame.DecodeRequest(tx)
	if err != nil {
		c.respond(frame.StatusCRCErr, nil)
		return
	}
	req.Data = slices.Clone(req.Data)
	c.requests = append(c.requests, req)

	if c.controlHook != nil {
		if resp, ok := c.controlHook(req); ok {
			c.queue(resp)
			return
		}
	}

	switch req.ID {
	case frame.ReqGetInfo:
		c.getInfo(req.Data)
	case frame.ReqHandshake:
		c.handshake(req.Data)
	case frame.ReqEncryptedCmd:
		c.encryptedChunk(req.Data)
	case frame.ReqEncryptedSessionAbt:
		c.dropSession()
		c.respond(frame.StatusRequestOK, nil)
	case frame.ReqResend:
		if c.lastResponse == nil {
			c.respond(frame.StatusGenErr, nil)
			return
		}
		c.pending = append(c.pending, slices.Clone(c.lastResponse))
	case frame.ReqSleep:
		c.sleep(req.Data)
	case frame.ReqStartup:
		c.reboot(req.Data)
	default:
		c.respond(frame.StatusUnknownReq, nil)
	}
}

func (c *VirtualChip) respond(status byte, data []byte) {
	c.queue(frame.Response{ChipStatus: frame.ChipStatusReady, Status: status, Data: data})
}

func (c *VirtualChip) queue(resp frame.Response) {
	buf := make([]byte, frame.MaxResponseSize)
	enc, err := resp.Encode(buf)
	if err != nil {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	if c.injectCRC {
		c.injectCRC = false
		enc[len(enc)-1] ^= 0xFF
	}
	c.lastResponse = enc
	c.pending = append(c.pending, enc)
}

func (c *VirtualChip) getInfo(data []byte) {
	if len(data) != 2 {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	object, block := data[0], int(data[1])

	var store []byte
	switch object {
	case frame.InfoObjectX509Certificate:
		store = c.identity.certificateStore(frame.InfoBlockSize)
	case frame.InfoObjectChipID:
		store = make([]byte, frame.InfoBlockSize)
		for i := range store {
			store[i] = byte(i)
		}
	default:
		c.respond(frame.StatusGenErr, nil)
		return
	}

	start := block * frame.InfoBlockSize
	if start >= len(store) {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	c.respond(frame.StatusRequestOK, store[start:start+frame.InfoBlockSize])
}

// handshake answers with etpub || Ed25519(transcript) and installs the keys.
func (c *VirtualChip) handshake(ehpub []byte) {
	c.dropSession()
	if len(ehpub) != crypto.X25519KeySize {
		c.respond(frame.StatusHandshakeErr, nil)
		return
	}

	etpriv, etpub, err := c.suite.GenerateX25519()
	if err != nil {
		c.respond(frame.StatusHandshakeErr, nil)
		return
	}
	defer crypto.Wipe(etpriv)

	transcript := c.suite.Hash([]byte(protocolName), ehpub, etpub, c.suite.Hash(c.identity.CertDER))
	sig := ed25519.Sign(c.identity.DeviceKey, transcript)

	shared, err := c.suite.X25519(etpriv, ehpub)
	if err != nil {
		c.respond(frame.StatusHandshakeErr, nil)
		return
	}
	keys, err := c.suite.DeriveKeys(shared, transcript, labelCmdKey, labelResKey)
	crypto.Wipe(shared)
	if err != nil {
		c.respond(frame.StatusHandshakeErr, nil)
		return
	}

	c.session = &chipSession{cmdKey: keys[0], resKey: keys[1]}
	c.respond(frame.StatusRequestOK, append(etpub, sig...))
}

func (c *VirtualChip) dropSession() {
	if c.session != nil {
		crypto.Wipe(c.session.cmdKey)
		crypto.Wipe(c.session.resKey)
	}
	c.session = nil
	c.l3In = nil
}

func (c *VirtualChip) sleep(data []byte) {
	if len(data) != 1 || (data[0] != frame.SleepKindSleep && data[0] != frame.SleepKindDeepSleep) {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	c.dropSession()
	c.lastSleep = data[0]
	c.respond(frame.StatusRequestOK, nil)
}

func (c *VirtualChip) reboot(data []byte) {
	if len(data) != 1 {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	c.dropSession()
	c.lastSleep = 0
	c.respond(frame.StatusRequestOK, nil)
}

// encryptedChunk accumulates ENCRYPTED_CMD payloads until a whole L3 packet
// has arrived.
func (c *VirtualChip) encryptedChunk(chunk []byte) {
	if c.session == nil {
		c.l3In = nil
		c.respond(frame.StatusNoSession, nil)
		return
	}
	c.l3In = append(c.l3In, chunk...)
	if len(c.l3In) < 2 {
		c.respond(frame.StatusRequestCont, nil)
		return
	}

	need := 2 + int(binary.LittleEndian.Uint16(c.l3In)) + crypto.TagSize
	switch {
	case len(c.l3In) < need:
		c.respond(frame.StatusRequestCont, nil)
	case len(c.l3In) > need:
		c.l3In = nil
		c.respond(frame.StatusGenErr, nil)
	default:
		packet := c.l3In
		c.l3In = nil
		c.executePacket(packet)
	}
}

func nonceBytes(n uint32) []byte {
	nonce := make([]byte, crypto.NonceSize)
	binary.LittleEndian.PutUint32(nonce, n)
	return nonce
}

func (c *VirtualChip) executePacket(packet []byte) {
	s := c.session
	plain, err := c.suite.Open(s.cmdKey, nonceBytes(s.cmdNonce), packet[2:], nil)
	if err != nil {
		c.dropSession()
		c.respond(frame.StatusTagErr, nil)
		return
	}
	c.commandNonces = append(c.commandNonces, s.cmdNonce)
	s.cmdNonce++

	result := c.execute(plain)
	if c.resultHook != nil {
		result = c.resultHook(plain[0], result)
	}

	sealed, err := c.suite.Seal(s.resKey, nonceBytes(s.resNonce), result, nil)
	if err != nil {
		c.respond(frame.StatusGenErr, nil)
		return
	}
	s.resNonce++
	if c.injectTag {
		c.injectTag = false
		sealed[len(sealed)-1] ^= 0x01
	}

	out := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(sealed)), uint16(len(result)))
	out = append(out, sealed...)

	c.respond(frame.StatusRequestOK, nil)
	chunks := frame.Chunks(out)
	for i, chunk := range chunks {
		status := byte(frame.StatusResultCont)
		if i == len(chunks)-1 {
			status = frame.StatusResultOK
		}
		c.respond(status, chunk)
	}
}

// Fault injection

// SetBusy makes the next n GET_RESPONSE polls report the chip as not ready
func (c *VirtualChip) SetBusy(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyPolls = n
}

// SetAlarm puts the chip into (or out of) alarm mode
func (c *VirtualChip) SetAlarm(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarm = on
}

// SetStartup puts the chip into (or out of) startup mode
func (c *VirtualChip) SetStartup(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startup = on
}

// SetBusError makes every subsequent Transfer fail with err (nil clears it)
func (c *VirtualChip) SetBusError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busError = err
}

// InjectCRCError corrupts the CRC of the next queued response frame
func (c *VirtualChip) InjectCRCError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injectCRC = true
}

// InjectTagError corrupts the authentication tag of the next encrypted result
func (c *VirtualChip) InjectTagError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injectTag = true
}

// SetResultHook lets a test rewrite every plaintext result before it is
// encrypted. The returned slice is sent as the result.
func (c *VirtualChip) SetResultHook(hook func(cmd byte, result []byte) []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultHook = hook
}

// SetControlHook lets a test answer a request frame itself. Returning false
// falls through to the normal handler.
func (c *VirtualChip) SetControlHook(hook func(req frame.Request) (frame.Response, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlHook = hook
}

// SetUnauthorized makes L3 command cmd fail with UNAUTHORIZED
func (c *VirtualChip) SetUnauthorized(cmd byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unauthorized[cmd] = true
}

// Inspection

// TransferCount returns how many transfers the host has attempted
func (c *VirtualChip) TransferCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers
}

// Requests returns every request frame received so far
func (c *VirtualChip) Requests() []frame.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

// RequestCount returns how many requests with the given ID were received
func (c *VirtualChip) RequestCount(id byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.requests {
		if req.ID == id {
			n++
		}
	}
	return n
}

// CommandNonces returns the host->device nonce of every command decrypted
func (c *VirtualChip) CommandNonces() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.commandNonces)
}

// HasSession reports whether the chip holds a secure session
func (c *VirtualChip) HasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// LastSleep returns the kind of the last accepted SLEEP request, 0 if none
func (c *VirtualChip) LastSleep() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSleep
}

// SessionKeys returns copies of the chip's command and result keys
func (c *VirtualChip) SessionKeys() (cmdKey, resKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	return slices.Clone(c.session.cmdKey), slices.Clone(c.session.resKey)
}
