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
	"time"

	"github.com/nanozmq/ztp/wire"
)

const (
	pingCommandPrefixLen = 7 // 1 len byte + "PING" + 2-byte ttl
	maxHeartbeatContext  = 16
)

// processCommand dispatches command frames arriving through
// decodeAndPush. Only PING is recognized; any other command (including
// a PONG we didn't ask for) is silently ignored, matching the peer
// protocol's tolerance for commands it doesn't understand.
func (e *Engine) processCommand(msg *wire.Msg) {
	if msg.StartsWith("PING") {
		e.processHeartbeatMessage(msg)
	}
}

// processHeartbeatMessage handles an inbound PING: it arms the ttl timer
// against the peer's declared ttl, captures the ping context to echo
// back, and produces the PONG immediately rather than waiting for the
// next writable callback, so back-to-back PINGs are never dropped.
func (e *Engine) processHeartbeatMessage(msg *wire.Msg) {
	data := msg.Data()
	if len(data) < pingCommandPrefixLen {
		return
	}

	ttl := wire.Uint16(data[5:7])
	if !e.hasTTLTimer && ttl > 0 {
		e.reactor.AddTimer(e.handle, int64(ttl)*100, HeartbeatTTLTimerID)
		e.hasTTLTimer = true
	}

	ctx := data[pingCommandPrefixLen:]
	if len(ctx) > maxHeartbeatContext {
		ctx = ctx[:maxHeartbeatContext]
	}
	e.pongContext = append([]byte(nil), ctx...)

	e.nextMsg = e.producePong
	e.outEvent()
}

// producePing is armed by the heartbeat interval timer; it is one-shot,
// reverting nextMsg to pullAndEncode immediately after producing the
// frame.
func (e *Engine) producePing() (*wire.Msg, error) {
	buf := wire.PutShortString(nil, "PING")
	buf = wire.PutUint16(buf, uint16(e.config.HeartbeatTTL/(100*time.Millisecond)))
	buf = append(buf, e.config.heartbeatContext()...)
	msg := wire.NewMsg(buf)
	msg.SetFlags(wire.FlagCommand)

	encoded, err := e.mech.Encode(msg)
	if err != nil {
		return nil, protocolErrorWrap("mechanism encode ping", err)
	}

	e.nextMsg = e.pullAndEncode

	if !e.hasTimeoutTimer && e.config.HeartbeatTimeout > 0 {
		e.reactor.AddTimer(e.handle, e.config.HeartbeatTimeout.Milliseconds(), HeartbeatTimeoutTimerID)
		e.hasTimeoutTimer = true
	}

	return encoded, nil
}

// producePong is armed by processHeartbeatMessage; one-shot like
// producePing.
func (e *Engine) producePong() (*wire.Msg, error) {
	ctx := e.pongContext
	e.pongContext = nil

	buf := wire.PutShortString(nil, "PONG")
	buf = append(buf, ctx...)
	msg := wire.NewMsg(buf)
	msg.SetFlags(wire.FlagCommand)

	encoded, err := e.mech.Encode(msg)
	if err != nil {
		return nil, protocolErrorWrap("mechanism encode pong", err)
	}

	e.nextMsg = e.pullAndEncode
	return encoded, nil
}
