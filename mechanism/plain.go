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

package mechanism

import (
	"fmt"

	"github.com/nanozmq/ztp/wire"
)

// PLAIN (SUPPLEMENTED, see SPEC_FULL.md) trades CURVE's boxes for a
// plaintext username/password credential, checked out of band through
// the same ZAP round trip Mechanism.java's sendZapRequest/
// receiveAndProcessZapReply drive for every mechanism. Frames are never
// encrypted; Encode/Decode are passthrough, same as NULL.
type plainState int

const (
	plainExpectHello plainState = iota
	plainSendWelcome
	plainExpectInitiate
	plainExpectZapReply
	plainSendReady
	plainSendError
	plainErrorSent
	plainConnected
)

// Plain implements the server side of the PLAIN mechanism.
type Plain struct {
	socketType   string
	identity     []byte
	includeIdent bool
	domain       string
	peerAddress  string
	session      Session

	state      plainState
	statusCode string

	peerIdentity   []byte
	zapProperties  *wire.Metadata
	zmtpProperties *wire.Metadata
}

// NewPlainServer constructs a server-role PLAIN mechanism.
func NewPlainServer(session Session, socketType string, identity []byte, includeIdentity bool, domain, peerAddress string) *Plain {
	return &Plain{
		session:        session,
		socketType:     socketType,
		identity:       identity,
		includeIdent:   includeIdentity,
		domain:         domain,
		peerAddress:    peerAddress,
		state:          plainExpectHello,
		zapProperties:  wire.NewMetadata(),
		zmtpProperties: wire.NewMetadata(),
	}
}

func (p *Plain) Status() Status {
	switch p.state {
	case plainConnected:
		return StatusReady
	case plainErrorSent:
		return StatusError
	default:
		return StatusHandshaking
	}
}

func (p *Plain) NextHandshakeCommand() (*wire.Msg, error) {
	switch p.state {
	case plainSendWelcome:
		p.state = plainExpectInitiate
		return commandMsg("WELCOME", nil), nil
	case plainSendReady:
		p.state = plainConnected
		return p.produceReady(), nil
	case plainSendError:
		p.state = plainErrorSent
		return p.produceError(), nil
	default:
		return nil, ErrAgain
	}
}

func (p *Plain) produceReady() *wire.Msg {
	buf := []byte(nil)
	buf = AddProperty(buf, PropertySocketType, []byte(p.socketType))
	if p.includeIdent && len(p.identity) > 0 {
		buf = AddProperty(buf, PropertyIdentity, p.identity)
	}
	return commandMsg("READY", buf)
}

func (p *Plain) produceError() *wire.Msg {
	return commandMsg("ERROR", wire.PutShortString(nil, p.statusCode))
}

func (p *Plain) ProcessHandshakeCommand(msg *wire.Msg) error {
	switch p.state {
	case plainExpectHello:
		return p.processHello(msg)
	case plainExpectInitiate:
		return p.processInitiate(msg)
	default:
		return fmt.Errorf("mechanism: plain: unexpected command in state %d", p.state)
	}
}

func (p *Plain) processHello(msg *wire.Msg) error {
	if !msg.StartsWith("HELLO") {
		return fmt.Errorf("mechanism: plain: expected HELLO command")
	}
	body := msg.Data()[6:]
	username, n, ok := wire.ShortString(body)
	if !ok {
		return fmt.Errorf("mechanism: plain: truncated HELLO username")
	}
	body = body[n:]
	password, _, ok := wire.ShortString(body)
	if !ok {
		return fmt.Errorf("mechanism: plain: truncated HELLO password")
	}

	err := p.session.ZapConnect()
	switch err {
	case nil:
		if zerr := SendZapRequest(p.session, "PLAIN", p.domain, p.peerAddress, p.identity,
			[]byte(username), []byte(password)); zerr != nil {
			return zerr
		}
		reply, zerr := ReceiveAndProcessZapReply(p.session)
		if zerr != nil {
			return zerr
		}
		p.applyZapReply(reply)
	case ErrAgain:
		p.state = plainExpectZapReply
	default:
		return err
	}
	return nil
}

func (p *Plain) applyZapReply(reply *ZapReply) {
	p.statusCode = reply.StatusCode
	if reply.StatusCode == "200" {
		p.zapProperties.Set(PropertyUserID, reply.UserID)
		p.zapProperties.Merge(reply.Properties)
		p.state = plainSendWelcome
	} else {
		p.state = plainSendError
	}
}

func (p *Plain) ZapMsgAvailable() error {
	if p.state != plainExpectZapReply {
		return fmt.Errorf("mechanism: plain: unexpected zap reply")
	}
	reply, err := ReceiveAndProcessZapReply(p.session)
	if err != nil {
		return err
	}
	p.applyZapReply(reply)
	return nil
}

func (p *Plain) processInitiate(msg *wire.Msg) error {
	if !msg.StartsWith("INITIATE") {
		return fmt.Errorf("mechanism: plain: expected INITIATE command")
	}
	body := msg.Data()[9:]
	if err := ParseMetadata(body, func(name string, value []byte) error {
		if name == PropertyIdentity {
			p.peerIdentity = append([]byte(nil), value...)
		}
		p.zmtpProperties.Set(name, append([]byte(nil), value...))
		return nil
	}); err != nil {
		return err
	}
	p.state = plainSendReady
	return nil
}

func (p *Plain) Encode(msg *wire.Msg) (*wire.Msg, error) { return msg, nil }
func (p *Plain) Decode(msg *wire.Msg) (*wire.Msg, error) { return msg, nil }

func (p *Plain) PeerIdentity() []byte           { return p.peerIdentity }
func (p *Plain) ZapProperties() *wire.Metadata  { return p.zapProperties }
func (p *Plain) ZmtpProperties() *wire.Metadata { return p.zmtpProperties }

// commandMsg builds a COMMAND-flagged message whose body is
// short_string(name) followed by extra.
func commandMsg(name string, extra []byte) *wire.Msg {
	buf := wire.PutShortString(nil, name)
	buf = append(buf, extra...)
	m := wire.NewMsg(buf)
	m.SetFlags(wire.FlagCommand)
	return m
}
