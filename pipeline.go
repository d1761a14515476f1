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
	"github.com/nanozmq/ztp/mechanism"
	"github.com/nanozmq/ztp/wire"
)

const propertyPeerAddress = "Peer-Address"

// mechanismReady runs exactly once, the moment a v3 mechanism reports
// Ready: it arms the heartbeat timer, tries to forward the peer's
// declared identity, compiles connection metadata, and rewires the
// pipeline to its steady state.
func (e *Engine) mechanismReady() {
	if e.config.HeartbeatInterval > 0 {
		e.reactor.AddTimer(e.handle, e.config.HeartbeatInterval.Milliseconds(), HeartbeatIvlTimerID)
		e.hasHeartbeatTimer = true
	}

	if id := e.mech.PeerIdentity(); len(id) > 0 {
		m := wire.NewMsg(id)
		m.SetFlags(wire.FlagIdentity)
		if ok, err := e.session.PushMsg(m); err == nil && ok {
			e.session.Flush()
		}
		// A rejected or backpressured push here is not fatal: the peer
		// identity is a convenience, not part of the handshake contract.
	}

	e.nextMsg = e.pullAndEncode
	e.processMsg = e.writeCredential

	e.metadata = wire.NewMetadata()
	if e.config.PeerAddress != "" {
		e.metadata.Set(propertyPeerAddress, []byte(e.config.PeerAddress))
	}
	if e.config.SelfAddressPropertyName != "" && e.config.SelfAddress != "" {
		e.metadata.Set(e.config.SelfAddressPropertyName, []byte(e.config.SelfAddress))
	}
	e.metadata.Merge(e.mech.ZapProperties())
	e.metadata.Merge(e.mech.ZmtpProperties())
	if e.metadata.IsEmpty() {
		e.metadata = nil
	}

	e.events.EventHandshaken(e.endpoint, e.revision)
}

// pullAndEncode is the steady-state next_msg slot: pull whatever the
// session has queued and hand it to the mechanism for encoding (CURVE
// encrypts here; NULL/PLAIN pass through).
func (e *Engine) pullAndEncode() (*wire.Msg, error) {
	msg, ok := e.session.PullMsg()
	if !ok {
		return nil, nil
	}
	encoded, err := e.mech.Encode(msg)
	if err != nil {
		return nil, protocolErrorWrap("mechanism encode", err)
	}
	return encoded, nil
}

// writeCredential is the one-shot process_msg slot installed right after
// mechanismReady: it pushes the authenticated user id as a CREDENTIAL
// frame (if the mechanism produced one) before handing off to the
// steady-state decodeAndPush for every message after, including the
// one it was called with.
func (e *Engine) writeCredential(msg *wire.Msg) error {
	if props := e.mech.ZapProperties(); props != nil {
		if uid, ok := props.Get(mechanism.PropertyUserID); ok && len(uid) > 0 {
			cred := wire.NewMsg(append([]byte(nil), uid...))
			cred.SetFlags(wire.FlagCredential)
			if err := e.pushToSession(cred); err != nil {
				return err
			}
		}
	}
	e.processMsg = e.decodeAndPush
	return e.decodeAndPush(msg)
}

// decodeAndPush is the steady-state process_msg slot: decode through the
// mechanism (CURVE decrypts here), reset the heartbeat timeout/ttl
// timers since any inbound frame counts as liveness, dispatch command
// frames, and push the result to the session.
func (e *Engine) decodeAndPush(msg *wire.Msg) error {
	decoded, err := e.mech.Decode(msg)
	if err != nil {
		return protocolErrorWrap("mechanism decode", err)
	}

	if e.hasTimeoutTimer {
		e.hasTimeoutTimer = false
		e.reactor.CancelTimer(e.handle, HeartbeatTimeoutTimerID)
	}
	if e.hasTTLTimer {
		e.hasTTLTimer = false
		e.reactor.CancelTimer(e.handle, HeartbeatTTLTimerID)
	}

	if decoded.IsCommand() {
		e.processCommand(decoded)
	}

	if e.metadata != nil {
		decoded.SetMetadata(e.metadata)
	}

	if err := e.pushToSession(decoded); err != nil {
		if err == errAgain {
			e.processMsg = e.pushOneThenDecodeAndPush
		}
		return err
	}
	return nil
}

// pushOneThenDecodeAndPush drains a message decodeAndPush could not push
// because of backpressure, then reverts to decodeAndPush for the next
// message.
func (e *Engine) pushOneThenDecodeAndPush(msg *wire.Msg) error {
	if err := e.pushToSession(msg); err != nil {
		return err
	}
	e.processMsg = e.decodeAndPush
	return nil
}
