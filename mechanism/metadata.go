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

// Well-known property names, per the ZMTP metadata convention.
const (
	PropertySocketType = "Socket-Type"
	PropertyIdentity   = "Identity"
	PropertyUserID     = "User-Id"
)

// AddProperty appends one property (name/value pair) to buf in the wire
// layout a CURVE/PLAIN handshake command's metadata blob uses: a 1-byte
// name length, the name, a 4-byte big-endian value length, and the
// value. This layout is not specified in the distilled wire format
// section; it is taken from the original jeromq source's
// Mechanism.addProperty, since every CURVE/PLAIN metadata blob depends
// on it byte for byte.
func AddProperty(buf []byte, name string, value []byte) []byte {
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	buf = wire.PutUint32(buf, uint32(len(value)))
	buf = append(buf, value...)
	return buf
}

// ParseMetadata walks a sequence of properties laid out by AddProperty
// and calls set for each one. It returns an error if the blob is
// truncated mid-property.
func ParseMetadata(data []byte, set func(name string, value []byte) error) error {
	for len(data) > 0 {
		nameLen := int(data[0])
		data = data[1:]
		if len(data) < nameLen {
			return fmt.Errorf("mechanism: truncated property name")
		}
		name := string(data[:nameLen])
		data = data[nameLen:]

		if len(data) < 4 {
			return fmt.Errorf("mechanism: truncated property value length")
		}
		valueLen := int(wire.Uint32(data))
		data = data[4:]
		if len(data) < valueLen {
			return fmt.Errorf("mechanism: truncated property value")
		}
		value := data[:valueLen]
		data = data[valueLen:]

		if err := set(name, value); err != nil {
			return err
		}
	}
	return nil
}
