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

package curve

import "encoding/binary"

// Command names, sent on the wire as ZMTP short strings.
const (
	cmdHello    = "HELLO"
	cmdWelcome  = "WELCOME"
	cmdInitiate = "INITIATE"
	cmdReady    = "READY"
	cmdError    = "ERROR"
	cmdMessage  = "MESSAGE"
)

// Fixed command sizes (§6.1). INITIATE has a minimum, not a fixed size,
// since its metadata tail is variable-length.
const (
	helloSize       = 200
	welcomeSize     = 168
	minInitiateSize = 257
	minMessageSize  = 33
)

// Nonce prefixes. Every CURVE nonce is 24 bytes: a fixed ASCII prefix
// naming the message kind plus either an 8-byte monotonic counter
// (HELLO/INITIATE/READY/MESSAGE) or a 16-byte randomly generated value
// (COOKIE/WELCOME/VOUCH). Spec.md's §6.1 states the 16+8 form; the
// 8+16 form for the cookie/welcome/vouch boxes is resolved from
// CurveServerMechanism.java (spec.md is silent on the split there), and
// cross-checked against jchv-curvecp's identical prefixes.
const (
	helloNoncePrefix     = "CurveZMQHELLO---"
	cookieNoncePrefix    = "COOKIE--"
	initiateNoncePrefix  = "CurveZMQINITIATE"
	vouchNoncePrefix     = "VOUCH---"
	welcomeNoncePrefix   = "WELCOME-"
	readyNoncePrefix     = "CurveZMQREADY---"
	serverMsgNoncePrefix = "CurveZMQMESSAGES"
	clientMsgNoncePrefix = "CurveZMQMESSAGEC"
)

// nonceCounter builds a 24-byte nonce from a 16-byte ASCII prefix and an
// 8-byte big-endian counter.
func nonceCounter(prefix string, counter uint64) *[24]byte {
	var n [24]byte
	copy(n[:16], prefix)
	binary.BigEndian.PutUint64(n[16:], counter)
	return &n
}

// nonceRandom builds a 24-byte nonce from an 8-byte ASCII prefix and a
// 16-byte value (random when generated, or the 16 bytes read back off
// the wire when reopening a box the other side produced).
func nonceRandom(prefix string, value []byte) *[24]byte {
	var n [24]byte
	copy(n[:8], prefix)
	copy(n[8:], value)
	return &n
}

// messageFlags mirrors the single plaintext flags byte prefixing every
// MESSAGE frame's payload: MORE and COMMAND.
const (
	messageFlagMore    byte = 1 << 0
	messageFlagCommand byte = 1 << 1
)
