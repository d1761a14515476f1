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

import "time"

// MechanismKind selects the security mechanism variant a connection uses.
type MechanismKind int

const (
	MechanismNull MechanismKind = iota
	MechanismPlain
	MechanismCurve
	MechanismGSSAPI
)

func (k MechanismKind) String() string {
	switch k {
	case MechanismNull:
		return "NULL"
	case MechanismPlain:
		return "PLAIN"
	case MechanismCurve:
		return "CURVE"
	case MechanismGSSAPI:
		return "GSSAPI"
	default:
		return "UNKNOWN"
	}
}

const (
	minBatchSize = 8192

	// curveNameLen is the fixed width of the mechanism name field in a
	// v3 greeting.
	curveNameLen = 20
)

// Config carries every option the engine recognizes (§6.3). It is built
// and owned by the socket layer above the engine (out of scope here) and
// handed to NewEngine once per connection; the engine never parses it
// from files or flags.
type Config struct {
	// RawSocket skips the greeting/handshake entirely and uses the Raw
	// codec, synthesizing zero-length connect/disconnect messages.
	RawSocket bool

	// Mechanism selects NULL/PLAIN/CURVE/GSSAPI.
	Mechanism MechanismKind

	// Identity is sent in the v0/v1/v2 greeting tail and, for v3
	// connections, as the READY Identity property (REQ/DEALER/ROUTER
	// only).
	Identity []byte

	// SocketType names the local socket type, sent as the v1/v2
	// greeting tail byte and the v3 READY Socket-Type property.
	SocketType string

	// AsServer marks this engine as the server side of the connection.
	// The engine does not read it: the PLAIN and CURVE mechanisms it
	// constructs always play the server role.
	AsServer bool

	// HeartbeatInterval enables the PING subsystem when positive.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout arms HEARTBEAT_TIMEOUT after a PING is sent, if
	// positive.
	HeartbeatTimeout time.Duration
	// HeartbeatTTL is advertised to the peer in PING's ttl field; when
	// the peer advertises a nonzero TTL to us we arm HEARTBEAT_TTL for
	// that duration instead.
	HeartbeatTTL time.Duration
	// HeartbeatContext is appended to every outgoing PING and echoed
	// back verbatim (truncated to 16 bytes) in the following PONG.
	HeartbeatContext []byte

	// HandshakeInterval bounds the whole greeting+mechanism handshake;
	// 0 disables the handshake timer.
	HandshakeInterval time.Duration

	// MaxMsgSize bounds a single decoded message; 0 means unbounded.
	MaxMsgSize int64

	// RcvBuf/SndBuf lower-bound the engine's batch buffer sizes.
	RcvBuf int
	SndBuf int

	// SelfAddressPropertyName, if non-empty, publishes SelfAddress into
	// the peer's v3 metadata under this property name.
	SelfAddressPropertyName string
	SelfAddress             string
	PeerAddress             string

	// ZapDomain is sent as the domain frame of ZAP requests. It does not
	// decide whether a request is sent: NULL and CURVE send one only when
	// Session.ZapEnabled reports true, and PLAIN sends one for every
	// HELLO it processes.
	ZapDomain string

	// CurvePublicKey/CurveSecretKey are this engine's long-term CURVE
	// keypair (server role only).
	CurvePublicKey [32]byte
	CurveSecretKey [32]byte

	// PLAIN credentials are not configured here: the server-role PLAIN
	// mechanism reads the username/password from the peer's HELLO and
	// checks them through ZAP.
}

// inBatchSize returns the receive buffer size, bounded below by
// Config.RcvBuf (§5's "sized against Config.{IN,OUT}_BATCH_SIZE bounded
// below by SO_{RCVBUF,SNDBUF}").
func (c *Config) inBatchSize() int {
	if c.RcvBuf > minBatchSize {
		return c.RcvBuf
	}
	return minBatchSize
}

func (c *Config) outBatchSize() int {
	if c.SndBuf > minBatchSize {
		return c.SndBuf
	}
	return minBatchSize
}

// heartbeatContext returns a copy safe for the caller to retain.
func (c *Config) heartbeatContext() []byte {
	if len(c.HeartbeatContext) == 0 {
		return nil
	}
	ctx := make([]byte, len(c.HeartbeatContext))
	copy(ctx, c.HeartbeatContext)
	return ctx
}
