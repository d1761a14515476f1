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

// nextMsgFunc/processMsgFunc are the runtime-rewired pipeline stages
// described in §4.3: at any moment exactly one of each is installed on
// the engine, and outEvent/decodeLoop call whichever is current. A nil
// *wire.Msg with a nil error from nextMsgFunc means "nothing to send
// right now", not a failure. errAgain from processMsgFunc means
// backpressure, not a failure.
type nextMsgFunc func() (*wire.Msg, error)
type processMsgFunc func(*wire.Msg) error

// pullFromSession and pushToSession/pushRawToSession are the pipeline's
// two ends into the application-facing Session, shared by every
// mechanism's post-handshake phase (v0/v1/v2 identity phase, v3's
// writeCredential/decodeAndPush, and raw sockets).
func (e *Engine) pullFromSession() (*wire.Msg, error) {
	msg, ok := e.session.PullMsg()
	if !ok {
		return nil, nil
	}
	return msg, nil
}

func (e *Engine) pushToSession(msg *wire.Msg) error {
	ok, err := e.session.PushMsg(msg)
	if err != nil {
		return protocolErrorWrap("session rejected message", err)
	}
	if !ok {
		return errAgain
	}
	return nil
}

// pushRawToSession additionally stamps connection metadata onto a
// message that doesn't already carry any, since a raw socket has no
// mechanism to have compiled it during a handshake.
func (e *Engine) pushRawToSession(msg *wire.Msg) error {
	if e.metadata != nil && msg.Metadata() == nil {
		msg.SetMetadata(e.metadata)
	}
	return e.pushToSession(msg)
}

// nextIdentity is the one-shot next_msg slot armed right after a v1/v2
// greeting completes: it sends our identity frame, then rewires to the
// steady-state pullFromSession for everything after.
func (e *Engine) nextIdentity() (*wire.Msg, error) {
	msg := wire.NewMsg(append([]byte(nil), e.config.Identity...))
	msg.SetFlags(wire.FlagIdentity)
	e.nextMsg = e.pullFromSession
	return msg, nil
}

// processIdentity is the one-shot process_msg slot that receives the
// peer's identity frame. identityPushed guards against a double push if
// the session backpressures and the engine retries with the same
// message (Java relies on this call never being retried under its
// threading model and does not need the guard).
func (e *Engine) processIdentity(msg *wire.Msg) error {
	if !e.identityPushed {
		msg.SetFlags(wire.FlagIdentity)
		if err := e.pushToSession(msg); err != nil {
			return err
		}
		e.identityPushed = true

		if e.subscriptionRequired {
			sub := wire.NewMsg([]byte{0x01})
			if err := e.pushToSession(sub); err != nil {
				e.identityPushed = false
				return err
			}
			e.subscriptionRequired = false
		}
	}
	e.processMsg = e.pushToSession
	return nil
}

// nextHandshakeCommand and processHandshakeCommand are the v3 next/
// process slots active until the mechanism reaches Ready or Error.
func (e *Engine) nextHandshakeCommand() (*wire.Msg, error) {
	switch e.mech.Status() {
	case mechanism.StatusReady:
		e.mechanismReady()
		return e.pullAndEncode()
	case mechanism.StatusError:
		return nil, protocolError("mechanism entered error state")
	default:
		msg, err := e.mech.NextHandshakeCommand()
		if err != nil {
			if err == mechanism.ErrAgain {
				return nil, nil
			}
			return nil, protocolErrorWrap("mechanism next handshake command", err)
		}
		if msg == nil {
			return nil, nil
		}
		msg.SetFlags(wire.FlagCommand)
		return msg, nil
	}
}

func (e *Engine) processHandshakeCommand(msg *wire.Msg) error {
	if msg.StartsWith("ERROR") {
		if code, ok := parseErrorCode(msg); ok {
			if h, isHandler := e.session.(ErrorReasonHandler); isHandler {
				if err := h.HandleErrorReason(code); err != nil {
					return protocolErrorWrap("error reason handler", err)
				}
			}
		}
	}

	if err := e.mech.ProcessHandshakeCommand(msg); err != nil {
		return protocolErrorWrap("mechanism process handshake command", err)
	}

	switch e.mech.Status() {
	case mechanism.StatusReady:
		e.mechanismReady()
	case mechanism.StatusError:
		return protocolError("mechanism entered error state")
	}

	if e.outputStopped {
		e.RestartOutput()
	}
	return nil
}

// parseErrorCode pulls the 3-digit status code out of an ERROR command's
// body: 0x05 "ERROR" followed by a short_string status code (§6.1).
func parseErrorCode(msg *wire.Msg) (string, bool) {
	const errorPrefixLen = 6 // 1 length byte + "ERROR"
	data := msg.Data()
	if len(data) < errorPrefixLen {
		return "", false
	}
	code, _, ok := wire.ShortString(data[errorPrefixLen:])
	return code, ok
}
