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

// Package mechanism implements the ZMTP v3 security mechanisms (NULL,
// PLAIN, CURVE) that run after greeting negotiation resolves to v3. Each
// variant is modeled as a sum-type member: a concrete type implementing
// the shared Mechanism interface, not a class hierarchy.
package mechanism

import "github.com/nanozmq/ztp/wire"

// Status is a mechanism's coarse handshake state, reported to the engine
// so it knows when to stop driving next_handshake_command/
// process_handshake_command and start driving pull_and_encode/
// decode_and_push instead.
type Status int

const (
	StatusHandshaking Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHandshaking:
		return "handshaking"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrAgain is returned by NextHandshakeCommand when the mechanism has
// nothing to send yet (for example CURVE waiting on a ZAP reply). It is
// the same sentinel wire.ErrAgain exposes, re-exported here so mechanism
// implementations and callers don't need to import wire just for this
// check.
var ErrAgain = wire.ErrAgain

// Mechanism is the capability set every security variant implements:
// produce/consume handshake commands, react to an asynchronous ZAP
// reply, report status, and transform application frames once READY.
type Mechanism interface {
	// Status reports the mechanism's current phase.
	Status() Status

	// NextHandshakeCommand returns the next handshake command this side
	// should send, or ErrAgain if nothing is ready to send yet.
	NextHandshakeCommand() (*wire.Msg, error)

	// ProcessHandshakeCommand consumes one handshake command received
	// from the peer.
	ProcessHandshakeCommand(msg *wire.Msg) error

	// ZapMsgAvailable is called when the session signals a ZAP reply can
	// now be read; only meaningful while status is Handshaking and the
	// mechanism is waiting on ZAP.
	ZapMsgAvailable() error

	// Encode transforms an outbound application frame into its
	// post-handshake wire representation. NULL and PLAIN pass through
	// unchanged; CURVE seals it.
	Encode(msg *wire.Msg) (*wire.Msg, error)

	// Decode transforms an inbound post-handshake wire frame back into
	// an application frame.
	Decode(msg *wire.Msg) (*wire.Msg, error)

	// PeerIdentity returns the identity the peer's handshake presented,
	// or nil if none was sent.
	PeerIdentity() []byte

	// ZapProperties returns properties learned from the ZAP reply
	// (User-Id plus any properties carried in the reply's metadata
	// frame), or an empty set if ZAP wasn't used.
	ZapProperties() *wire.Metadata

	// ZmtpProperties returns properties the peer presented directly in
	// its handshake metadata (Socket-Type, Identity, ...).
	ZmtpProperties() *wire.Metadata
}
