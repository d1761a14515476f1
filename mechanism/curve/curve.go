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

// Package curve implements the server side of the ZMTP CURVE security
// mechanism: HELLO/WELCOME/INITIATE/READY handshake, ZAP credential
// check, and per-message authenticated encryption once connected.
package curve

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/nanozmq/ztp/mechanism"
	"github.com/nanozmq/ztp/wire"
)

type state int

const (
	stateExpectHello state = iota
	stateSendWelcome
	stateExpectInitiate
	stateExpectZapReply
	stateSendReady
	stateSendError
	stateErrorSent
	stateConnected
)

// Server is the server-role CURVE mechanism state machine (§4.5). The
// client role is out of scope: spec.md's CURVE component design and
// original_source/'s CurveServerMechanism.java both only cover the
// server side.
type Server struct {
	secretKey [32]byte // this server's long-term secret key
	publicKey [32]byte // this server's long-term public key (unused by Open/Seal, kept for completeness)

	cnPublic [32]byte // this connection's short-term public key
	cnSecret [32]byte // this connection's short-term secret key
	cnClient [32]byte // peer's short-term public key, set by processHello

	cookieKey [32]byte // fresh per-connection secretbox key for the cookie
	cnPrecom  [32]byte // precomputed (cnClient, cnSecret) shared key, set by processInitiate

	cnNonce     uint64
	cnPeerNonce uint64

	longTermClientKey [32]byte

	state      state
	statusCode string

	socketType   string
	identity     []byte
	includeIdent bool
	domain       string
	peerAddress  string
	session      mechanism.Session

	peerIdentity   []byte
	zapProperties  *wire.Metadata
	zmtpProperties *wire.Metadata
}

// NewServer constructs a CURVE server mechanism. secretKey is the
// server's long-term secret key; publicKey its corresponding public key.
func NewServer(session mechanism.Session, secretKey, publicKey [32]byte, socketType string, identity []byte, includeIdentity bool, domain, peerAddress string) (*Server, error) {
	s := &Server{
		secretKey:      secretKey,
		publicKey:      publicKey,
		session:        session,
		socketType:     socketType,
		identity:       identity,
		includeIdent:   includeIdentity,
		domain:         domain,
		peerAddress:    peerAddress,
		state:          stateExpectHello,
		cnNonce:        1,
		cnPeerNonce:    1,
		zapProperties:  wire.NewMetadata(),
		zmtpProperties: wire.NewMetadata(),
	}
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("curve: generate short-term keypair: %w", err)
	}
	s.cnPublic = *pub
	s.cnSecret = *sec
	return s, nil
}

func (s *Server) Status() mechanism.Status {
	switch s.state {
	case stateConnected:
		return mechanism.StatusReady
	case stateErrorSent:
		return mechanism.StatusError
	default:
		return mechanism.StatusHandshaking
	}
}

func (s *Server) NextHandshakeCommand() (*wire.Msg, error) {
	switch s.state {
	case stateSendWelcome:
		msg, err := s.produceWelcome()
		if err != nil {
			return nil, err
		}
		s.state = stateExpectInitiate
		return msg, nil
	case stateSendReady:
		msg := s.produceReady()
		s.state = stateConnected
		return msg, nil
	case stateSendError:
		msg := s.produceError()
		s.state = stateErrorSent
		return msg, nil
	default:
		return nil, mechanism.ErrAgain
	}
}

func (s *Server) ProcessHandshakeCommand(msg *wire.Msg) error {
	switch s.state {
	case stateExpectHello:
		return s.processHello(msg)
	case stateExpectInitiate:
		return s.processInitiate(msg)
	default:
		return fmt.Errorf("curve: unexpected handshake command in state %d", s.state)
	}
}

func (s *Server) processHello(msg *wire.Msg) error {
	if !msg.StartsWith(cmdHello) || msg.Size() != helloSize {
		return fmt.Errorf("curve: malformed HELLO")
	}
	data := msg.Data()
	// data[6:8] is the version (major=1, minor=0); data[8:80] is the
	// 72-byte anti-amplification filler; neither carries information we
	// act on beyond validating major/minor.
	if data[6] != 1 || data[7] != 0 {
		return fmt.Errorf("curve: unsupported HELLO version %d.%d", data[6], data[7])
	}
	copy(s.cnClient[:], data[80:112])
	peerNonce := binary.BigEndian.Uint64(data[112:120])
	nonce := nonceCounter(helloNoncePrefix, peerNonce)

	if _, ok := box.Open(nil, data[120:200], nonce, &s.cnClient, &s.secretKey); !ok {
		s.state = stateSendError
		s.statusCode = ""
		return nil
	}
	s.cnPeerNonce = peerNonce
	s.state = stateSendWelcome
	return nil
}

func (s *Server) produceWelcome() (*wire.Msg, error) {
	if _, err := rand.Read(s.cookieKey[:]); err != nil {
		return nil, fmt.Errorf("curve: generate cookie key: %w", err)
	}
	var cookieNonceValue [16]byte
	if _, err := rand.Read(cookieNonceValue[:]); err != nil {
		return nil, fmt.Errorf("curve: generate cookie nonce: %w", err)
	}
	cookieNonce := nonceRandom(cookieNoncePrefix, cookieNonceValue[:])

	cookiePlaintext := make([]byte, 0, 64)
	cookiePlaintext = append(cookiePlaintext, s.cnClient[:]...)
	cookiePlaintext = append(cookiePlaintext, s.cnSecret[:]...)
	cookieBox := secretbox.Seal(nil, cookiePlaintext, cookieNonce, &s.cookieKey)

	var welcomeNonceValue [16]byte
	if _, err := rand.Read(welcomeNonceValue[:]); err != nil {
		return nil, fmt.Errorf("curve: generate welcome nonce: %w", err)
	}
	welcomeNonce := nonceRandom(welcomeNoncePrefix, welcomeNonceValue[:])

	welcomePlaintext := make([]byte, 0, 128)
	welcomePlaintext = append(welcomePlaintext, s.cnPublic[:]...)
	welcomePlaintext = append(welcomePlaintext, cookieNonceValue[:]...)
	welcomePlaintext = append(welcomePlaintext, cookieBox...)

	welcomeBox := box.Seal(nil, welcomePlaintext, welcomeNonce, &s.cnClient, &s.secretKey)

	buf := wire.PutShortString(nil, cmdWelcome)
	buf = append(buf, welcomeNonceValue[:]...)
	buf = append(buf, welcomeBox...)
	m := wire.NewMsg(buf)
	m.SetFlags(wire.FlagCommand)
	return m, nil
}

func (s *Server) processInitiate(msg *wire.Msg) error {
	if !msg.StartsWith(cmdInitiate) || msg.Size() < minInitiateSize {
		return fmt.Errorf("curve: malformed INITIATE")
	}
	data := msg.Data()

	cookieNonceValue := data[9:25]
	cookieBox := data[25:105]
	cookieNonce := nonceRandom(cookieNoncePrefix, cookieNonceValue)
	cookiePlaintext, ok := secretbox.Open(nil, cookieBox, cookieNonce, &s.cookieKey)
	if !ok || len(cookiePlaintext) != 64 {
		return fmt.Errorf("curve: cookie authentication failed")
	}
	if subtle.ConstantTimeCompare(cookiePlaintext[:32], s.cnClient[:]) != 1 || subtle.ConstantTimeCompare(cookiePlaintext[32:], s.cnSecret[:]) != 1 {
		return fmt.Errorf("curve: cookie contents mismatch")
	}

	peerNonce := binary.BigEndian.Uint64(data[105:113])
	initiateNonce := nonceCounter(initiateNoncePrefix, peerNonce)
	initiatePlaintext, ok := box.Open(nil, data[113:], initiateNonce, &s.cnClient, &s.cnSecret)
	if !ok || len(initiatePlaintext) < 128 {
		return fmt.Errorf("curve: INITIATE box authentication failed")
	}
	s.cnPeerNonce = peerNonce

	copy(s.longTermClientKey[:], initiatePlaintext[:32])
	vouchNonce := nonceRandom(vouchNoncePrefix, initiatePlaintext[32:48])
	vouchPlaintext, ok := box.Open(nil, initiatePlaintext[48:128], vouchNonce, &s.longTermClientKey, &s.cnSecret)
	if !ok || subtle.ConstantTimeCompare(vouchPlaintext, s.cnClient[:]) != 1 {
		return fmt.Errorf("curve: vouch authentication failed")
	}

	box.Precompute(&s.cnPrecom, &s.cnClient, &s.cnSecret)

	if err := mechanism.ParseMetadata(initiatePlaintext[128:], func(name string, value []byte) error {
		if name == mechanism.PropertyIdentity {
			s.peerIdentity = append([]byte(nil), value...)
		}
		s.zmtpProperties.Set(name, append([]byte(nil), value...))
		return nil
	}); err != nil {
		return err
	}

	if !s.session.ZapEnabled() {
		s.state = stateSendReady
		return nil
	}
	return s.startZap()
}

func (s *Server) startZap() error {
	err := s.session.ZapConnect()
	switch err {
	case nil:
		if zerr := mechanism.SendZapRequest(s.session, "CURVE", s.domain, s.peerAddress, s.identity, s.longTermClientKey[:]); zerr != nil {
			return zerr
		}
		reply, zerr := mechanism.ReceiveAndProcessZapReply(s.session)
		if zerr != nil {
			return zerr
		}
		s.applyZapReply(reply)
		return nil
	case mechanism.ErrAgain:
		s.state = stateExpectZapReply
		return nil
	default:
		return err
	}
}

func (s *Server) applyZapReply(reply *mechanism.ZapReply) {
	s.statusCode = reply.StatusCode
	if reply.StatusCode == "200" {
		s.zapProperties.Set(mechanism.PropertyUserID, reply.UserID)
		s.zapProperties.Merge(reply.Properties)
		s.state = stateSendReady
	} else {
		s.state = stateSendError
	}
}

func (s *Server) ZapMsgAvailable() error {
	if s.state != stateExpectZapReply {
		return fmt.Errorf("curve: unexpected zap reply")
	}
	reply, err := mechanism.ReceiveAndProcessZapReply(s.session)
	if err != nil {
		return err
	}
	s.applyZapReply(reply)
	return nil
}

func (s *Server) produceReady() *wire.Msg {
	buf := []byte(nil)
	buf = mechanism.AddProperty(buf, mechanism.PropertySocketType, []byte(s.socketType))
	if s.includeIdent && len(s.identity) > 0 {
		buf = mechanism.AddProperty(buf, mechanism.PropertyIdentity, s.identity)
	}
	nonce := nonceCounter(readyNoncePrefix, s.cnNonce)
	sealed := box.SealAfterPrecomputation(nil, buf, nonce, &s.cnPrecom)
	s.cnNonce++

	out := wire.PutShortString(nil, cmdReady)
	out = append(out, nonce[16:24]...)
	out = append(out, sealed...)
	m := wire.NewMsg(out)
	m.SetFlags(wire.FlagCommand)
	return m
}

func (s *Server) produceError() *wire.Msg {
	buf := wire.PutShortString(nil, cmdError)
	buf = wire.PutShortString(buf, s.statusCode)
	m := wire.NewMsg(buf)
	m.SetFlags(wire.FlagCommand)
	return m
}

// Encode seals an outbound application frame into a MESSAGE command.
// Only valid once Status returns StatusReady.
func (s *Server) Encode(msg *wire.Msg) (*wire.Msg, error) {
	var flags byte
	if msg.HasMore() {
		flags |= messageFlagMore
	}
	if msg.IsCommand() {
		flags |= messageFlagCommand
	}
	plaintext := make([]byte, 0, 1+msg.Size())
	plaintext = append(plaintext, flags)
	plaintext = append(plaintext, msg.Data()...)

	nonce := nonceCounter(serverMsgNoncePrefix, s.cnNonce)
	sealed := box.SealAfterPrecomputation(nil, plaintext, nonce, &s.cnPrecom)
	s.cnNonce++

	out := wire.PutShortString(nil, cmdMessage)
	out = append(out, nonce[16:24]...)
	out = append(out, sealed...)
	return wire.NewMsg(out), nil
}

// Decode opens an inbound MESSAGE command back into an application
// frame, enforcing the strictly increasing peer nonce invariant.
func (s *Server) Decode(msg *wire.Msg) (*wire.Msg, error) {
	if !msg.StartsWith(cmdMessage) || msg.Size() < minMessageSize {
		return nil, fmt.Errorf("curve: malformed MESSAGE")
	}
	data := msg.Data()[8:] // past short_string("MESSAGE")
	peerNonce := binary.BigEndian.Uint64(data[:8])
	if peerNonce <= s.cnPeerNonce {
		return nil, fmt.Errorf("curve: nonce replay or reorder detected")
	}
	nonce := nonceCounter(clientMsgNoncePrefix, peerNonce)
	plaintext, ok := box.OpenAfterPrecomputation(nil, data[8:], nonce, &s.cnPrecom)
	if !ok || len(plaintext) < 1 {
		return nil, fmt.Errorf("curve: MESSAGE authentication failed")
	}
	s.cnPeerNonce = peerNonce

	out := wire.NewMsg(plaintext[1:])
	if plaintext[0]&messageFlagMore != 0 {
		out.SetFlags(wire.FlagMore)
	}
	if plaintext[0]&messageFlagCommand != 0 {
		out.SetFlags(wire.FlagCommand)
	}
	return out, nil
}

func (s *Server) PeerIdentity() []byte           { return s.peerIdentity }
func (s *Server) ZapProperties() *wire.Metadata  { return s.zapProperties }
func (s *Server) ZmtpProperties() *wire.Metadata { return s.zmtpProperties }
