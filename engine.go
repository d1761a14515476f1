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

// Package ztp implements a ZMTP stream engine: the reactor-driven state
// machine that turns an already-connected, non-blocking byte transport
// into a sequence of application messages, negotiating the wire
// revision (v0 through v3) and, for v3, a security mechanism (NULL,
// PLAIN or CURVE) along the way.
package ztp

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nanozmq/ztp/mechanism"
	"github.com/nanozmq/ztp/mechanism/curve"
	"github.com/nanozmq/ztp/wire"
)

// Engine is a single connection's stream engine. It is not safe for
// concurrent use: every exported method (Readable, Writable, TimerFired,
// RestartInput, RestartOutput, ZapMsgAvailable) is meant to be called
// from the single goroutine the owning Reactor drives it from, per §5.
type Engine struct {
	id  uuid.UUID
	log logrus.FieldLogger

	config    *Config
	transport Transport
	reactor   Reactor
	handle    Handle
	session   Session
	events    SocketEvents
	endpoint  string

	plugged bool
	ioError bool

	greeting             bool
	inputStopped         bool
	outputStopped        bool
	identityPushed       bool
	subscriptionRequired bool

	hasHandshakeTimer bool
	hasHeartbeatTimer bool
	hasTTLTimer       bool
	hasTimeoutTimer   bool

	revision int

	in         []byte
	inOff      int
	inSize     int
	pendingMsg *wire.Msg

	out           []byte
	outOff        int
	encodeScratch []byte

	greetRecv  [v3GreetingSize]byte
	greetHave  int
	greetWant  int
	greetPhase greetPhase

	decoder wire.Decoder
	encoder wire.Encoder
	mech    mechanism.Mechanism

	metadata    *wire.Metadata
	pongContext []byte

	nextMsg    nextMsgFunc
	processMsg processMsgFunc
}

// NewEngine constructs an Engine for one connection. Plug must be called
// before any Readable/Writable/TimerFired callback reaches it.
func NewEngine(transport Transport, reactor Reactor, session Session, events SocketEvents, config *Config, baseLog logrus.FieldLogger) *Engine {
	id := uuid.New()
	return &Engine{
		id:        id,
		log:       newConnLogger(baseLog, id),
		config:    config,
		transport: transport,
		reactor:   reactor,
		session:   session,
		events:    events,
		endpoint:  config.PeerAddress,
	}
}

func (e *Engine) newMechanism() (mechanism.Mechanism, error) {
	identity := e.config.Identity
	includeIdentity := includesIdentity(e.config.SocketType)

	switch e.config.Mechanism {
	case MechanismNull:
		return mechanism.NewNull(e.session, e.config.SocketType, identity, includeIdentity, e.config.ZapDomain, e.config.PeerAddress), nil
	case MechanismPlain:
		return mechanism.NewPlainServer(e.session, e.config.SocketType, identity, includeIdentity, e.config.ZapDomain, e.config.PeerAddress), nil
	case MechanismCurve:
		return curve.NewServer(e.session, e.config.CurveSecretKey, e.config.CurvePublicKey, e.config.SocketType, identity, includeIdentity, e.config.ZapDomain, e.config.PeerAddress)
	default:
		return nil, fmt.Errorf("mechanism %s is not implemented", e.config.Mechanism)
	}
}

func includesIdentity(socketType string) bool {
	switch socketType {
	case "REQ", "DEALER", "ROUTER":
		return true
	default:
		return false
	}
}

// Plug registers the engine with its reactor and starts the connection:
// a raw socket skips straight to the Raw codec and synthesizes a
// zero-length connect message, everything else sends the 10-byte
// signature and arms the handshake timer.
func (e *Engine) Plug(handle Handle) {
	e.handle = handle
	e.plugged = true
	e.ioError = false

	e.in = make([]byte, e.config.inBatchSize())
	e.encodeScratch = make([]byte, e.config.outBatchSize())

	e.reactor.AddFD(e.handle)

	if e.config.RawSocket {
		e.decoder = wire.NewRawDecoder()
		e.encoder = wire.NewRawEncoder()
		e.greeting = false
		e.nextMsg = e.pullFromSession
		e.processMsg = e.pushRawToSession

		if e.config.PeerAddress != "" || (e.config.SelfAddressPropertyName != "" && e.config.SelfAddress != "") {
			e.metadata = wire.NewMetadata()
			if e.config.PeerAddress != "" {
				e.metadata.Set(propertyPeerAddress, []byte(e.config.PeerAddress))
			}
			if e.config.SelfAddressPropertyName != "" && e.config.SelfAddress != "" {
				e.metadata.Set(e.config.SelfAddressPropertyName, []byte(e.config.SelfAddress))
			}
		}

		_ = e.processMsg(wire.NewMsgSize(0))
		e.session.Flush()
	} else {
		e.greeting = true
		if e.config.HandshakeInterval > 0 {
			e.reactor.AddTimer(e.handle, e.config.HandshakeInterval.Milliseconds(), HandshakeTimerID)
			e.hasHandshakeTimer = true
		}

		e.greetWant = 1
		e.out = append(e.out, 0xff)
		e.out = wire.PutUint64(e.out, uint64(len(e.config.Identity)+1))
		e.out = append(e.out, 0x7f)

		e.nextMsg = e.nextIdentity
		e.processMsg = e.processIdentity
	}

	e.reactor.SetPollIn(e.handle)
	e.reactor.SetPollOut(e.handle)

	e.Readable()
}

func (e *Engine) unplug() {
	if !e.plugged {
		return
	}
	e.plugged = false

	if e.hasHandshakeTimer {
		e.reactor.CancelTimer(e.handle, HandshakeTimerID)
		e.hasHandshakeTimer = false
	}
	if e.hasHeartbeatTimer {
		e.reactor.CancelTimer(e.handle, HeartbeatIvlTimerID)
		e.hasHeartbeatTimer = false
	}
	if e.hasTTLTimer {
		e.reactor.CancelTimer(e.handle, HeartbeatTTLTimerID)
		e.hasTTLTimer = false
	}
	if e.hasTimeoutTimer {
		e.reactor.CancelTimer(e.handle, HeartbeatTimeoutTimerID)
		e.hasTimeoutTimer = false
	}

	if !e.ioError {
		e.reactor.RemoveFD(e.handle)
	}
	e.handle = nil
}

func (e *Engine) destroy() {
	e.decoder = nil
	e.encoder = nil
	e.mech = nil
}

// fail tears the connection down. handshaken mirrors §7: true once
// greeting and (for v3) the mechanism handshake had both already
// completed when the failure happened.
func (e *Engine) fail(err error) {
	if err == nil || !e.plugged {
		return
	}
	ee, ok := err.(*EngineError)
	if !ok {
		ee = protocolErrorWrap("engine", err)
	}

	if e.config.RawSocket {
		_ = e.processMsg(wire.NewMsgSize(0))
	}

	handshaken := !e.greeting && (e.mech == nil || e.mech.Status() != mechanism.StatusHandshaking)

	if ee.Kind == ErrProtocol && !handshaken {
		e.events.EventHandshakeFailedProtocol(e.endpoint, 0)
	} else {
		e.events.EventDisconnected(e.endpoint)
	}

	e.session.Flush()
	e.session.EngineError(handshaken, ee.Kind)

	e.unplug()
	e.destroy()
}

func (e *Engine) armOutput() {
	if e.outputStopped {
		e.outputStopped = false
		e.reactor.SetPollOut(e.handle)
	}
}

// Readable, Writable and TimerFired satisfy Callbacks: the reactor calls
// these directly when it observes the corresponding event for this
// engine's Handle.
func (e *Engine) Readable() {
	if !e.plugged || e.ioError {
		return
	}
	e.inEvent()
}

func (e *Engine) Writable() {
	if !e.plugged || e.ioError {
		return
	}
	e.outEvent()
}

func (e *Engine) TimerFired(id TimerID) {
	if !e.plugged || e.ioError {
		return
	}
	switch id {
	case HandshakeTimerID:
		e.hasHandshakeTimer = false
		e.fail(timeoutError("handshake timer expired"))
	case HeartbeatIvlTimerID:
		e.nextMsg = e.producePing
		e.outEvent()
		if e.hasHeartbeatTimer {
			e.reactor.AddTimer(e.handle, e.config.HeartbeatInterval.Milliseconds(), HeartbeatIvlTimerID)
		}
	case HeartbeatTTLTimerID:
		e.hasTTLTimer = false
		e.fail(timeoutError("peer heartbeat ttl expired"))
	case HeartbeatTimeoutTimerID:
		e.hasTimeoutTimer = false
		e.fail(timeoutError("heartbeat timeout waiting for pong"))
	}
}

// inEvent is the readable-side driver: while greeting is set it defers
// entirely to handshake(); once resolved it reads a batch into e.in and
// runs decodeLoop over it.
func (e *Engine) inEvent() {
	if e.greeting {
		if err := e.handshake(); err != nil {
			e.fail(err)
			return
		}
		if e.greeting {
			return
		}
	}

	if e.inputStopped {
		// A readable callback while input is stopped should not happen
		// under a correctly behaving reactor; treat it as unrecoverable
		// rather than risk decoding into backpressured state.
		e.reactor.RemoveFD(e.handle)
		e.ioError = true
		return
	}

	if e.inSize == 0 {
		e.inOff = 0
		n, rerr := e.transport.Read(e.in)
		e.inSize = n
		if n == 0 {
			switch rerr {
			case nil, ErrWouldBlock:
				return
			case io.EOF:
				e.fail(connectionError("peer closed connection", rerr))
			default:
				e.fail(connectionError("read", rerr))
			}
			return
		}
	}

	if err := e.decodeLoop(); err != nil {
		if err == errAgain {
			e.inputStopped = true
			e.reactor.ResetPollIn(e.handle)
		} else {
			e.fail(err)
			return
		}
	}
	e.session.Flush()
}

// decodeLoop drains everything currently buffered in e.in through the
// decoder and processMsg, stopping on MoreData (need another read),
// errAgain (backpressure; the undelivered message is parked in
// pendingMsg for RestartInput to retry) or a fatal error.
func (e *Engine) decodeLoop() error {
	for e.inSize > 0 {
		consumed, result := e.decoder.Decode(e.in[e.inOff : e.inOff+e.inSize])
		e.inOff += consumed
		e.inSize -= consumed

		switch result {
		case wire.DecodeError:
			return protocolError("decode error")
		case wire.MoreData:
			return nil
		case wire.Decoded:
			msg := e.decoder.Msg()
			if err := e.processMsg(msg); err != nil {
				if err == errAgain {
					e.pendingMsg = msg
					return errAgain
				}
				return err
			}
		}
	}
	return nil
}

// outEvent is the writable-side driver: refill e.out from nextMsg when
// empty, then write whatever is queued. A write error other than
// ErrWouldBlock stops polling but never tears the connection down (§7:
// only read errors/EOF are fatal); that is the caller's job via the next
// inEvent.
func (e *Engine) outEvent() {
	if e.outOff >= len(e.out) {
		e.out = e.out[:0]
		e.outOff = 0

		if e.encoder == nil {
			// Pure greeting-byte phase with nothing queued right now:
			// stop polling rather than spin under a level-triggered
			// reactor until handshake() has more to send.
			e.outputStopped = true
			e.reactor.ResetPollOut(e.handle)
			return
		}

		for len(e.out) < e.config.outBatchSize() {
			msg, err := e.nextMsg()
			if err != nil {
				e.fail(err)
				return
			}
			if msg == nil {
				break
			}
			e.encoder.LoadMsg(msg)
			for {
				n := e.encoder.Encode(e.encodeScratch)
				if n == 0 {
					break
				}
				e.out = append(e.out, e.encodeScratch[:n]...)
			}
		}
		e.encoder.Encoded()

		if len(e.out) == 0 {
			e.outputStopped = true
			e.reactor.ResetPollOut(e.handle)
			return
		}
	}

	n, werr := e.transport.Write(e.out[e.outOff:])
	e.outOff += n
	if werr != nil && werr != ErrWouldBlock {
		e.outputStopped = true
		e.reactor.ResetPollOut(e.handle)
	}

	if e.greeting && e.outOff >= len(e.out) {
		e.outputStopped = true
		e.reactor.ResetPollOut(e.handle)
	}
}

// RestartInput is called by the session once it has drained whatever
// backpressure made PushMsg return ok=false. It first retries the
// message decodeLoop parked in pendingMsg, if any, then resumes
// decoding whatever is still buffered.
func (e *Engine) RestartInput() {
	if !e.plugged {
		return
	}

	if e.pendingMsg != nil {
		msg := e.pendingMsg
		e.pendingMsg = nil
		if err := e.processMsg(msg); err != nil {
			if err == errAgain {
				e.pendingMsg = msg
				e.session.Flush()
				return
			}
			e.fail(err)
			return
		}
	}

	if err := e.decodeLoop(); err != nil {
		if err == errAgain {
			e.session.Flush()
			return
		}
		e.fail(err)
		return
	}

	e.inputStopped = false
	e.reactor.SetPollIn(e.handle)
	e.session.Flush()
	e.inEvent()
}

// RestartOutput re-arms output polling and immediately attempts a
// speculative write, so a reply produced synchronously (a handshake
// command, a ZAP-driven READY) does not wait for the next reactor tick.
func (e *Engine) RestartOutput() {
	if !e.plugged {
		return
	}
	e.armOutput()
	e.outEvent()
}

// ZapMsgAvailable notifies the engine's mechanism that a previously
// pending ZAP reply has arrived, and resumes whichever side of the
// pipeline was waiting on it.
func (e *Engine) ZapMsgAvailable() {
	if !e.plugged || e.mech == nil {
		return
	}
	if err := e.mech.ZapMsgAvailable(); err != nil {
		e.fail(protocolErrorWrap("zap reply", err))
		return
	}
	if e.inputStopped {
		e.RestartInput()
	}
	if e.outputStopped {
		e.RestartOutput()
	}
}
