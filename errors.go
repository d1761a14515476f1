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
	"fmt"

	"github.com/nanozmq/ztp/wire"
)

// ErrorKind classifies the three ways an engine can fail, per the error
// handling design: transport failures, wire/handshake violations, and
// timer expiries.
type ErrorKind int

const (
	// ErrConnection covers transport-level failures: peer closed, or a
	// read/write returned a socket error.
	ErrConnection ErrorKind = iota
	// ErrProtocol covers decoder framing errors, disallowed greetings,
	// ZAP-vs-version conflicts, crypto failures, mechanism state
	// violations, and non-backpressure session rejections.
	ErrProtocol
	// ErrTimeout covers handshake, ping-response, and peer-TTL timer
	// expiries.
	ErrTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConnection:
		return "connection"
	case ErrProtocol:
		return "protocol"
	case ErrTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// EngineError is the error type the engine hands to Session.EngineError
// and that terminates the connection. It is always fatal: any EngineError
// triggers unplug and destroy.
type EngineError struct {
	Kind ErrorKind
	msg  string
	err  error
}

func (e *EngineError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("ztp: %s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("ztp: %s: %s", e.Kind, e.msg)
}

func (e *EngineError) Unwrap() error { return e.err }

func connectionError(msg string, cause error) *EngineError {
	return &EngineError{Kind: ErrConnection, msg: msg, err: cause}
}

func protocolError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: ErrProtocol, msg: fmt.Sprintf(format, args...)}
}

func protocolErrorWrap(msg string, cause error) *EngineError {
	return &EngineError{Kind: ErrProtocol, msg: msg, err: cause}
}

func timeoutError(msg string) *EngineError {
	return &EngineError{Kind: ErrTimeout, msg: msg}
}

// IsKind reports whether err is an *EngineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// errAgain signals backpressure or a would-block condition internal to the
// engine (push_msg backpressure, a short non-blocking read/write, a
// mechanism handshake step with nothing to send yet). It never reaches the
// session; it is always handled by rewiring a phase slot or by waiting for
// the next reactor callback. Shared with package wire and mechanism so a
// single sentinel value crosses all three without an import cycle.
var errAgain = wire.ErrAgain
