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

// Null is the NULL mechanism: no cryptography, no credential check
// beyond an optional ZAP round trip. It is jeromq's default; a NULL
// connection with ZAP enabled is a real, supported combination
// (anonymous transport, credential checked out of band by address).
type Null struct {
	socketType   string
	identity     []byte
	includeIdent bool
	domain       string
	peerAddress  string
	session      Session

	sentReady     bool
	receivedReady bool
	awaitingZap   bool
	status        Status

	peerIdentity   []byte
	zapProperties  *wire.Metadata
	zmtpProperties *wire.Metadata
}

// NewNull constructs a NULL mechanism. includeIdentity should be true
// for REQ/DEALER/ROUTER sockets, which advertise Identity in READY.
func NewNull(session Session, socketType string, identity []byte, includeIdentity bool, domain, peerAddress string) *Null {
	return &Null{
		session:        session,
		socketType:     socketType,
		identity:       identity,
		includeIdent:   includeIdentity,
		domain:         domain,
		peerAddress:    peerAddress,
		zapProperties:  wire.NewMetadata(),
		zmtpProperties: wire.NewMetadata(),
	}
}

func (n *Null) Status() Status { return n.status }

func (n *Null) NextHandshakeCommand() (*wire.Msg, error) {
	if n.sentReady {
		return nil, ErrAgain
	}
	if n.session.ZapEnabled() && !n.awaitingZap {
		if err := n.startZap(); err != nil {
			return nil, err
		}
		if n.awaitingZap {
			return nil, ErrAgain
		}
		if n.status == StatusError {
			return n.produceError()
		}
	}
	return n.produceReady()
}

func (n *Null) startZap() error {
	err := n.session.ZapConnect()
	if err == nil {
		if zerr := SendZapRequest(n.session, "NULL", n.domain, n.peerAddress, n.identity); zerr != nil {
			return zerr
		}
		reply, zerr := ReceiveAndProcessZapReply(n.session)
		if zerr != nil {
			return zerr
		}
		n.applyZapReply(reply)
		return nil
	}
	if err == ErrAgain {
		n.awaitingZap = true
		return nil
	}
	return err
}

func (n *Null) applyZapReply(reply *ZapReply) {
	if reply.StatusCode == "200" {
		n.zapProperties.Set(PropertyUserID, reply.UserID)
		n.zapProperties.Merge(reply.Properties)
	} else {
		n.status = StatusError
	}
}

func (n *Null) ZapMsgAvailable() error {
	if !n.awaitingZap {
		return fmt.Errorf("mechanism: null: unexpected zap reply")
	}
	n.awaitingZap = false
	reply, err := ReceiveAndProcessZapReply(n.session)
	if err != nil {
		return err
	}
	n.applyZapReply(reply)
	return nil
}

func (n *Null) produceReady() (*wire.Msg, error) {
	buf := []byte(nil)
	buf = AddProperty(buf, PropertySocketType, []byte(n.socketType))
	if n.includeIdent && len(n.identity) > 0 {
		buf = AddProperty(buf, PropertyIdentity, n.identity)
	}
	n.sentReady = true
	n.maybeReady()
	return commandMsg("READY", buf), nil
}

func (n *Null) produceError() (*wire.Msg, error) {
	n.sentReady = true
	return commandMsg("ERROR", wire.PutShortString(nil, "300")), nil
}

func (n *Null) ProcessHandshakeCommand(msg *wire.Msg) error {
	if msg.StartsWith("ERROR") {
		return fmt.Errorf("mechanism: null: peer sent ERROR")
	}
	if !msg.StartsWith("READY") {
		return fmt.Errorf("mechanism: null: expected READY command")
	}
	_, n1, _ := wire.ShortString(msg.Data())
	if err := ParseMetadata(msg.Data()[n1:], func(name string, value []byte) error {
		switch name {
		case PropertyIdentity:
			n.peerIdentity = append([]byte(nil), value...)
		}
		n.zmtpProperties.Set(name, append([]byte(nil), value...))
		return nil
	}); err != nil {
		return err
	}
	n.receivedReady = true
	n.maybeReady()
	return nil
}

func (n *Null) maybeReady() {
	if n.sentReady && n.receivedReady {
		n.status = StatusReady
	}
}

func (n *Null) Encode(msg *wire.Msg) (*wire.Msg, error) { return msg, nil }
func (n *Null) Decode(msg *wire.Msg) (*wire.Msg, error) { return msg, nil }

func (n *Null) PeerIdentity() []byte           { return n.peerIdentity }
func (n *Null) ZapProperties() *wire.Metadata  { return n.zapProperties }
func (n *Null) ZmtpProperties() *wire.Metadata { return n.zmtpProperties }
