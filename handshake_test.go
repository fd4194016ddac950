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
	"fmt"
	"testing"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	testutil "github.com/ZaparooProject/go-tropic/internal/testing"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSession_KeysMatchChip(t *testing.T) {
	t.Parallel()

	h, chip := newSessionHandle(t)

	cmdKey, resKey := chip.SessionKeys()
	require.NotNil(t, h.session)
	assert.Equal(t, cmdKey, h.session.tx.key)
	assert.Equal(t, resKey, h.session.rx.key)
	assert.NotEqual(t, h.session.tx.key, h.session.rx.key, "directional keys differ")
	assert.Zero(t, h.session.tx.nonce)
	assert.Zero(t, h.session.rx.nonce)
}

func TestStartSession_Deterministic(t *testing.T) {
	t.Parallel()

	id := newTestIdentity(t, 3)
	keys := make([][]byte, 0, 2)
	for range 2 {
		chip := testutil.NewVirtualChip(id)
		chip.SetRandom(testutil.NewSeededReader(7))
		h, err := New(simBus{chip},
			WithRetryConfig(fastRetry()),
			WithRandom(testutil.NewSeededReader(9)),
		)
		require.NoError(t, err)
		require.NoError(t, h.StartSession(context.Background()))
		keys = append(keys, append([]byte(nil), h.session.tx.key...))
	}

	assert.Equal(t, keys[0], keys[1], "same ephemerals and certificate give the same session keys")
}

func TestStartSession_CachesCertificate(t *testing.T) {
	t.Parallel()

	h, chip := newSessionHandle(t)
	infoReads := chip.RequestCount(frame.ReqGetInfo)
	require.Positive(t, infoReads)

	require.NoError(t, h.StartSession(context.Background()))
	assert.Equal(t, infoReads, chip.RequestCount(frame.ReqGetInfo))
	assert.Equal(t, 2, chip.RequestCount(frame.ReqHandshake))
}

func TestStartSession_ReplacesLiveSession(t *testing.T) {
	t.Parallel()

	h, _ := newSessionHandle(t)
	_, err := h.Ping(context.Background(), []byte{1})
	require.NoError(t, err)
	old := h.session
	oldKey := old.tx.key

	require.NoError(t, h.StartSession(context.Background()))
	assert.NotSame(t, old, h.session)
	assert.Equal(t, make([]byte, 32), oldKey, "previous keys are wiped")
	assert.Zero(t, h.session.tx.nonce)

	_, err = h.Ping(context.Background(), []byte{2})
	require.NoError(t, err)
}

func TestStartSession_TrustAnchors(t *testing.T) {
	t.Parallel()

	trusted := newTestIdentity(t, 1)
	foreign := newTestIdentity(t, 2)

	tests := []struct {
		want    error
		name    string
		options []Option
	}{
		{name: "signed by anchor", options: []Option{WithTrustAnchors(trusted.Root)}},
		{name: "one of several anchors", options: []Option{WithTrustAnchors(foreign.Root, trusted.Root)}},
		{name: "foreign anchor", options: []Option{WithTrustAnchors(foreign.Root)}, want: ErrCertNotTrusted},
		{
			name:    "before validity window",
			options: []Option{WithTrustAnchors(trusted.Root), WithClock(func() time.Time { return testutil.CertNotBefore.Add(-time.Hour) })},
			want:    ErrCertExpired,
		},
		{
			name:    "after validity window",
			options: []Option{WithTrustAnchors(trusted.Root), WithClock(func() time.Time { return testutil.CertNotAfter.Add(time.Hour) })},
			want:    ErrCertExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, chip := newSimHandle(t, tt.options...)
			err := h.StartSession(context.Background())
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, SessionOn, h.State())
				return
			}
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, CodeCryptoErr, CodeOf(err))
			assert.Equal(t, NoSession, h.State())
			assert.Nil(t, h.Certificate(), "untrusted certificates are not cached")
			assert.Zero(t, chip.RequestCount(frame.ReqHandshake), "no handshake with an untrusted chip")
		})
	}
}

func TestStartSession_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want     error
		reply    *frame.Response
		name     string
		wantCode Code
	}{
		{
			name:     "forged signature",
			reply:    &frame.Response{Status: frame.StatusRequestOK, Data: make([]byte, 96)},
			want:     ErrSignature,
			wantCode: CodeCryptoErr,
		},
		{
			name:     "short response",
			reply:    &frame.Response{Status: frame.StatusRequestOK, Data: make([]byte, 32)},
			want:     ErrFail,
			wantCode: CodeFail,
		},
		{
			name:     "device rejects handshake",
			reply:    &frame.Response{Status: frame.StatusHandshakeErr},
			want:     ErrDeviceHandshake,
			wantCode: CodeHandshakeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, chip := newSimHandle(t)
			chip.SetControlHook(func(req frame.Request) (frame.Response, bool) {
				if req.ID != frame.ReqHandshake {
					return frame.Response{}, false
				}
				resp := *tt.reply
				resp.ChipStatus = frame.ChipStatusReady
				return resp, true
			})

			err := h.StartSession(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			assert.Equal(t, NoSession, h.State())
			assert.Nil(t, h.session)

			_, err = h.Ping(context.Background(), nil)
			require.ErrorIs(t, err, ErrNoSession)
		})
	}
}

// lowOrderSuite rejects every key exchange as a low-order point
type lowOrderSuite struct {
	crypto.Suite
}

func (lowOrderSuite) X25519(_, _ []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: all-zero shared secret", crypto.ErrLowOrderPoint)
}

func TestStartSession_KeyExchangeKeepsCryptoCode(t *testing.T) {
	t.Parallel()

	h, chip := newSimHandle(t, WithCryptoSuite(lowOrderSuite{crypto.NewSoftware(nil)}))

	err := h.StartSession(context.Background())
	require.ErrorIs(t, err, ErrHandshakeFailed)
	require.ErrorIs(t, err, crypto.ErrLowOrderPoint)
	assert.Equal(t, CodeCryptoErr, CodeOf(err))
	assert.Equal(t, NoSession, h.State())
	assert.Nil(t, h.session)
	assert.Equal(t, 1, chip.RequestCount(frame.ReqHandshake))

	// a handshake failure with no more specific cause keeps its own code
	assert.Equal(t, CodeHandshakeErr, CodeOf(fmt.Errorf("%w: key derivation: short output", ErrHandshakeFailed)))
}

func TestStartSession_TransportErrorUnchanged(t *testing.T) {
	t.Parallel()

	h, chip := newSimHandle(t)
	chip.SetAlarm(true)

	err := h.StartSession(context.Background())
	require.ErrorIs(t, err, ErrAlarmMode)
	assert.Equal(t, NoSession, h.State())
}

func TestGetCertificate(t *testing.T) {
	t.Parallel()

	h, chip := newSimHandle(t)
	cert, err := h.GetCertificate(context.Background())
	require.NoError(t, err)

	assert.Contains(t, cert.Subject, "Fixture Chip 1")
	assert.Len(t, cert.PublicKey, 32)
	assert.Equal(t, NoSession, h.State(), "reading the certificate needs no session")

	reads := chip.RequestCount(frame.ReqGetInfo)
	_, err = h.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reads, chip.RequestCount(frame.ReqGetInfo))

	var nilHandle *Handle
	_, err = nilHandle.GetCertificate(context.Background())
	require.ErrorIs(t, err, ErrParam)
}
