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
	"errors"
	"io"
)

// ErrWouldBlock is returned by Transport.Read/Write to signal a
// non-blocking I/O call that has no data/room available right now. It
// is distinct from io.EOF (peer closed) and from any other error
// (CONNECTION failure).
var ErrWouldBlock = errors.New("ztp: transport would block")

// Transport is the already-connected, non-blocking byte stream the
// engine reads from and writes to once a peer is attached (§3's
// "transport handle"). Producing and owning it — dialing, accepting,
// setting it non-blocking — is out of scope (§1): the engine only
// consumes an already-connected instance.
type Transport interface {
	io.Reader
	io.Writer
}

// TimerID identifies one of the engine's four timers. Values match the
// original stream engine's timer ids so log output and the reactor's own
// diagnostics line up with the reference implementation.
type TimerID int

const (
	HandshakeTimerID        TimerID = 0x40
	HeartbeatTTLTimerID     TimerID = 0x80
	HeartbeatIvlTimerID     TimerID = 0x81
	HeartbeatTimeoutTimerID TimerID = 0x82
)

// Handle is the opaque fd/connection token the caller constructing an
// Engine already holds (e.g. a *net.TCPConn wrapper). The engine never
// inspects it; it only threads it through Reactor calls so the reactor
// can tell which registration an event belongs to.
type Handle interface{}

// Reactor is the I/O multiplexer the engine registers itself with. It is
// an external collaborator: ztp never implements it, only consumes it.
// The concrete reactor is expected to invoke Readable/Writable/TimerFired
// on the Engine (which satisfies Callbacks) when the corresponding event
// fires for h.
type Reactor interface {
	AddFD(h Handle)
	RemoveFD(h Handle)
	SetPollIn(h Handle)
	ResetPollIn(h Handle)
	SetPollOut(h Handle)
	ResetPollOut(h Handle)
	AddTimer(h Handle, intervalMS int64, id TimerID)
	CancelTimer(h Handle, id TimerID)
}

// Callbacks is the set of events a Reactor drives on a registered engine.
type Callbacks interface {
	Readable()
	Writable()
	TimerFired(id TimerID)
}

// Session owns the application-visible message pipes above the engine.
// It is a weak back-reference: the engine calls into it but never owns
// its lifetime.
type Session interface {
	// PullMsg returns the next outgoing application message, or ok=false
	// if none is currently queued.
	PullMsg() (msg *Msg, ok bool)
	// PushMsg delivers an inbound message to the session. ok=false with
	// err=nil means backpressure (EAGAIN): the caller should stop
	// reading and wait for RestartInput. ok=false with err!=nil is a
	// fatal rejection (surfaces as a PROTOCOL error).
	PushMsg(msg *Msg) (ok bool, err error)
	// Flush notifies the session that one or more PushMsg calls have
	// happened since the last Flush and it may want to wake a reader.
	Flush()
	// ZapConnect reports whether a ZAP reply is available synchronously:
	// nil means yes (call the reply reader now), errAgain means the reply
	// will arrive later via a wakeup the mechanism must poll for via
	// ZapMsgAvailable, any other error is fatal.
	ZapConnect() error
	// ReadZapMsg reads one frame of a 7-frame ZAP reply.
	ReadZapMsg() (*Msg, error)
	// WriteZapMsg writes one frame of a ZAP request.
	WriteZapMsg(msg *Msg) error
	// ZapEnabled reports whether this session requires ZAP authentication.
	ZapEnabled() bool

	// EngineError reports that the engine is tearing the connection down.
	// handshaken is true once greeting+mechanism negotiation had already
	// completed when the failure occurred, false if it died mid-handshake.
	EngineError(handshaken bool, kind ErrorKind)
}

// ErrorReasonHandler is an optional Session capability (SUPPLEMENTED,
// see SPEC_FULL.md) letting a session learn the 3-digit status code a
// peer's CURVE/PLAIN ERROR command carried, instead of only seeing a
// generic protocol error.
type ErrorReasonHandler interface {
	HandleErrorReason(code string) error
}

// SocketEvents receives operator-facing lifecycle notifications. It is
// distinct from Session: Session carries message traffic, SocketEvents
// carries connection lifecycle telemetry.
type SocketEvents interface {
	EventHandshaken(endpoint string, revision int)
	EventDisconnected(endpoint string)
	EventHandshakeFailedProtocol(endpoint string, code int)
}
