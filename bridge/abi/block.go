// Copyright 2025 go-numbridge Authors
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

package abi

import (
	"reflect"

	"github.com/pkg/errors"
)

const (
	// DeviceNameLen is the capacity of Block.DeviceName, terminator included.
	DeviceNameLen = 256

	// ErrorMsgLen is the capacity of Block.ErrorMsg, terminator included.
	ErrorMsgLen = 2048
)

// ErrBootstrap is returned (wrapped) when an engine fails to initialize.
var ErrBootstrap = errors.New("abi: bootstrap failed")

// Block is the bootstrap context shared by host and engine. Strings are
// fixed, zero-terminated rune buffers.
type Block struct {
	DeviceName         [DeviceNameLen]rune
	UseDoublePrecision int32
	Flags              AllocationFlags
	ErrorMsg           [ErrorMsgLen]rune
	Table              Table
}

// InitFunc is an engine entry point. It fills b.Table and returns a value
// greater than zero on failure, with a message in b.ErrorMsg.
type InitFunc func(b *Block) int

func putRunes(dst []rune, s string) {
	clear(dst)
	n := 0
	for _, r := range s {
		if n == len(dst)-1 {
			break
		}
		dst[n] = r
		n++
	}
}

func getRunes(src []rune) string {
	for i, r := range src {
		if r == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

// SetDeviceName stores name, truncated to DeviceNameLen-1 runes.
func (b *Block) SetDeviceName(name string) { putRunes(b.DeviceName[:], name) }

// Device returns the device name.
func (b *Block) Device() string { return getRunes(b.DeviceName[:]) }

// SetError stores msg, truncated to ErrorMsgLen-1 runes.
func (b *Block) SetError(msg string) { putRunes(b.ErrorMsg[:], msg) }

// Error returns the stored error message.
func (b *Block) Error() string { return getRunes(b.ErrorMsg[:]) }

// DoublePrecision reports the requested scalar precision.
func (b *Block) DoublePrecision() bool { return b.UseDoublePrecision != 0 }

// Bootstrap zeroes a new Block, writes the device name and precision, and
// runs init. It fails if init reports an error or leaves any Table entry
// unset.
func Bootstrap(device string, double bool, flags AllocationFlags, init InitFunc) (*Block, error) {
	if init == nil {
		return nil, errors.Wrap(ErrBootstrap, "no init entry point")
	}
	b := new(Block)
	b.SetDeviceName(device)
	if double {
		b.UseDoublePrecision = 1
	}
	b.Flags = flags

	if rc := init(b); rc > 0 {
		msg := b.Error()
		if msg == "" {
			msg = "engine returned no message"
		}
		return nil, errors.Wrapf(ErrBootstrap, "init returned %d: %s", rc, msg)
	}
	if missing := MissingEntries(&b.Table); len(missing) > 0 {
		return nil, errors.Wrapf(ErrBootstrap, "table entries not set: %v", missing)
	}
	return b, nil
}

// MissingEntries returns the names of the Table fields that are nil.
func MissingEntries(t *Table) []string {
	var missing []string
	rv := reflect.ValueOf(t).Elem()
	rt := rv.Type()
	for i := range rv.NumField() {
		if rv.Field(i).IsNil() {
			missing = append(missing, rt.Field(i).Name)
		}
	}
	return missing
}
