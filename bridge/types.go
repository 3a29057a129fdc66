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

package bridge

import (
	"github.com/pkg/errors"
)

// CreateType starts a new object type in module. Add fields and parameters,
// then FinalizeType before creating instances.
func (h *Host) CreateType(module, name string) (Handle, error) {
	if err := h.live(); err != nil {
		return 0, err
	}
	th, err := h.b.CreateType(module, name)
	return th, errors.Wrapf(err, "type %s", name)
}

// AddField appends a field of type fieldType.
func (h *Host) AddField(t Handle, name string, fieldType Handle) error {
	return errors.Wrapf(h.b.AddField(t, name, fieldType), "field %s", name)
}

// AddParameter declares a generic parameter and returns its placeholder
// type, usable as a field type.
func (h *Host) AddParameter(t Handle, name string) (Handle, error) {
	ph, err := h.b.AddParameter(t, name)
	return ph, errors.Wrapf(err, "parameter %s", name)
}

// FinalizeType freezes t. Later AddField and AddParameter calls fail.
func (h *Host) FinalizeType(t Handle) error {
	return errors.Wrap(h.b.FinalizeType(t), "finalize")
}

// Field names a field and its type for DefineType.
type Field struct {
	Name string
	Type Handle
}

// DefineType creates, fills and finalizes a type in one call.
func (h *Host) DefineType(module, name string, fields ...Field) (Handle, error) {
	th, err := h.CreateType(module, name)
	if err != nil {
		return 0, err
	}
	for _, f := range fields {
		if err = h.AddField(th, f.Name, f.Type); err != nil {
			return 0, errors.Wrapf(err, "type %s", name)
		}
	}
	if err = h.FinalizeType(th); err != nil {
		return 0, errors.Wrapf(err, "type %s", name)
	}
	return th, nil
}
