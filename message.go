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

import "github.com/nanozmq/ztp/wire"

// Msg, Metadata and the frame Flag bits live in package wire (the codecs
// need them and the engine needs the codecs); the root package re-exports
// them under their spec names so callers of ztp never have to import wire
// directly just to build or inspect a message.
type (
	Msg      = wire.Msg
	Metadata = wire.Metadata
	Flag     = wire.Flag
)

const (
	FlagMore       = wire.FlagMore
	FlagCommand    = wire.FlagCommand
	FlagIdentity   = wire.FlagIdentity
	FlagCredential = wire.FlagCredential
)

// NewMsg wraps data as a Msg with no flags set.
func NewMsg(data []byte) *Msg { return wire.NewMsg(data) }

// NewMsgSize allocates a zeroed Msg of the given size.
func NewMsgSize(size int) *Msg { return wire.NewMsgSize(size) }

// NewMetadata returns an empty property set.
func NewMetadata() *Metadata { return wire.NewMetadata() }
