// Copyright 2022 The Ztp Authors
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

package ztp

import (
	"bytes"

	"github.com/nanozmq/ztp/wire"
)

// Greeting byte layout constants. The 10-byte signature is common to every
// revision; v1/v2 use a 12-byte greeting, v3 the full 64 bytes.
const (
	greetingSignatureSize = 10
	v1v2GreetingSize      = 12
	v3GreetingSize        = 64
)

// Wire values of the major-version byte sent right after the signature.
// Anything not equal to one of these two is treated as v3 or later, per
// the handshake() decision table.
const (
	wireProtocolV1 byte = 0
	wireProtocolV2 byte = 1
	wireProtocolV3 byte = 3
)

const (
	revisionV0 = 0
	revisionV1 = 1
	revisionV2 = 2
	revisionV3 = 3
)

type greetPhase int

const (
	greetPhaseSig   greetPhase = iota // collecting the 10-byte signature
	greetPhaseMajor                   // collecting the major version byte
	greetPhaseTail                    // collecting the v1/v2 or v3 tail
)

// socketTypeCodes maps socket type names to libzmq's numeric socket type
// codes, which v1/v2 greetings carry as a single tail byte instead of a
// name (v3 carries the mechanism name instead and has no use for this
// table).
var socketTypeCodes = map[string]byte{
	"PAIR": 0, "PUB": 1, "SUB": 2, "REQ": 3, "REP": 4,
	"DEALER": 5, "ROUTER": 6, "PULL": 7, "PUSH": 8,
	"XPUB": 9, "XSUB": 10, "STREAM": 11,
}

func socketTypeCode(name string) byte {
	return socketTypeCodes[name]
}

func isPubXPub(socketType string) bool {
	return socketType == "PUB" || socketType == "XPUB"
}

// fixedField renders name into a zero-padded field of the given width, as
// used for the v3 greeting's mechanism-name slot.
func fixedField(name string, width int) []byte {
	b := make([]byte, width)
	copy(b, name)
	return b
}

func trimFixedField(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// handshake drives the byte-level version-detection state machine. It is
// called from inEvent whenever e.greeting is still set, and it owns its
// own reads into e.greetRecv rather than sharing e.in with the decoder:
// each read targets exactly the bytes still needed for the current
// decision, so there is never a risk of reading past the boundary the
// engine hasn't yet decided it wants.
func (e *Engine) handshake() error {
	for e.greetHave < e.greetWant {
		n, rerr := e.transport.Read(e.greetRecv[e.greetHave:e.greetWant])
		if n == 0 {
			if rerr == nil || rerr == ErrWouldBlock {
				return nil
			}
			return connectionError("read greeting", rerr)
		}
		e.greetHave += n
		if e.greetHave < e.greetWant {
			continue
		}

		switch e.greetPhase {
		case greetPhaseSig:
			if e.greetWant == 1 {
				if e.greetRecv[0] != 0xff {
					return e.commitV0()
				}
				e.greetWant = greetingSignatureSize
				continue
			}
			if e.greetRecv[9]&0x01 == 0 {
				return e.commitV0()
			}
			e.out = append(e.out, wireProtocolV3)
			e.armOutput()
			e.greetPhase = greetPhaseMajor
			e.greetWant = greetingSignatureSize + 1

		case greetPhaseMajor:
			switch e.greetRecv[greetingSignatureSize] {
			case wireProtocolV1, wireProtocolV2:
				e.out = append(e.out, socketTypeCode(e.config.SocketType))
				e.greetWant = v1v2GreetingSize
			default:
				e.out = append(e.out, 0) // minor version number
				e.out = append(e.out, fixedField(e.config.Mechanism.String(), curveNameLen)...)
				e.out = append(e.out, make([]byte, 32)...) // filler
				e.greetWant = v3GreetingSize
			}
			e.armOutput()
			e.greetPhase = greetPhaseTail

		case greetPhaseTail:
			switch e.greetRecv[greetingSignatureSize] {
			case wireProtocolV1:
				return e.commitV1()
			case wireProtocolV2:
				return e.commitV2()
			default:
				return e.commitV3()
			}
		}
	}
	return nil
}

// finishGreeting is the common tail of every commitVN: cancel the
// handshake timer, record the negotiated revision, and make sure
// anything queued for this connection so far gets a chance to go out.
func (e *Engine) finishGreeting(revision int) {
	e.greeting = false
	e.revision = revision
	if e.hasHandshakeTimer {
		e.reactor.CancelTimer(e.handle, HandshakeTimerID)
		e.hasHandshakeTimer = false
	}
	e.armOutput()
}

// commitV0 handles the unversioned peer: the bytes already read while
// probing for the version decision were genuine wire data, not greeting
// bytes (v0 has no greeting region beyond the signature trick), so they
// are replayed into the decoder verbatim. e.greetHave is at most
// greetingSignatureSize here, always well inside e.in's capacity.
func (e *Engine) commitV0() error {
	if e.session.ZapEnabled() {
		return protocolError("zap requires zmtp v3, peer negotiated v0")
	}

	e.decoder = wire.NewV1Decoder(e.config.MaxMsgSize)
	e.encoder = wire.NewV1Encoder()

	// The 10-byte signature we already sent at Plug time doubles, to a v0
	// peer, as a v1 frame header for our identity: byte 0 is the
	// long-form length marker, the next 8 are the length, and the last
	// is the flags byte. Only the body is still owed; load the identity
	// into the encoder, discard the header bytes it regenerates (already
	// sent), and drain the body straight into e.out now rather than
	// leaving it half-sent for outEvent to clobber with the next pulled
	// message.
	identity := wire.NewMsg(append([]byte(nil), e.config.Identity...))
	e.encoder.LoadMsg(identity)
	headerSize := 2
	if len(e.config.Identity)+1 >= 0xff {
		headerSize = 10
	}
	e.encoder.Encode(make([]byte, headerSize))
	for {
		n := e.encoder.Encode(e.encodeScratch)
		if n == 0 {
			break
		}
		e.out = append(e.out, e.encodeScratch[:n]...)
	}
	e.encoder.Encoded()

	copy(e.in, e.greetRecv[:e.greetHave])
	e.inOff = 0
	e.inSize = e.greetHave

	if isPubXPub(e.config.SocketType) {
		e.subscriptionRequired = true
	}

	e.nextMsg = e.pullFromSession
	e.processMsg = e.processIdentity

	e.finishGreeting(revisionV0)
	e.events.EventHandshaken(e.endpoint, revisionV0)
	return nil
}

func (e *Engine) commitV1() error {
	if e.session.ZapEnabled() {
		return protocolError("zap requires zmtp v3, peer negotiated v1")
	}
	e.decoder = wire.NewV1Decoder(e.config.MaxMsgSize)
	e.encoder = wire.NewV1Encoder()
	e.nextMsg = e.nextIdentity
	e.processMsg = e.processIdentity
	e.finishGreeting(revisionV1)
	e.events.EventHandshaken(e.endpoint, revisionV1)
	return nil
}

func (e *Engine) commitV2() error {
	if e.session.ZapEnabled() {
		return protocolError("zap requires zmtp v3, peer negotiated v2")
	}
	e.decoder = wire.NewV2Decoder(e.config.MaxMsgSize)
	e.encoder = wire.NewV2Encoder()
	e.nextMsg = e.nextIdentity
	e.processMsg = e.processIdentity
	e.finishGreeting(revisionV2)
	e.events.EventHandshaken(e.endpoint, revisionV2)
	return nil
}

// commitV3 does not fire EventHandshaken: unlike v0/v1/v2, a v3 peer
// still has a whole mechanism handshake ahead of it, so "handshaken" is
// deferred to mechanismReady (see pipeline.go) where it actually means
// what the event name says.
func (e *Engine) commitV3() error {
	e.decoder = wire.NewV2Decoder(e.config.MaxMsgSize)
	e.encoder = wire.NewV2Encoder()

	nameOffset := greetingSignatureSize + 2
	peerMech := trimFixedField(e.greetRecv[nameOffset : nameOffset+curveNameLen])
	if peerMech != e.config.Mechanism.String() {
		return protocolError("mechanism mismatch: peer sent %q, configured %q", peerMech, e.config.Mechanism.String())
	}

	mech, err := e.newMechanism()
	if err != nil {
		return protocolErrorWrap("mechanism", err)
	}
	e.mech = mech

	e.nextMsg = e.nextHandshakeCommand
	e.processMsg = e.processHandshakeCommand

	e.finishGreeting(revisionV3)
	return nil
}
