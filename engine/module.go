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

package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// BinaryMagic prefixes the binary form of a module manifest.
const BinaryMagic = "NBMOD1\n"

// Manifest is the source form of a module.
type Manifest struct {
	Module    string         `yaml:"module"`
	Functions []FuncSpec     `yaml:"functions,omitempty"`
	Types     []TypeSpec     `yaml:"types,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
}

// FuncSpec binds a signature to a registered builtin.
type FuncSpec struct {
	Signature string `yaml:"signature"`
	Builtin   string `yaml:"builtin"`
}

// TypeSpec declares a user type.
type TypeSpec struct {
	Name    string      `yaml:"name"`
	Fields  []FieldSpec `yaml:"fields,omitempty"`
	Params  []string    `yaml:"params,omitempty"`
	Methods []FuncSpec  `yaml:"methods,omitempty"`
}

type FieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// EncodeBinary returns the binary module form of a source manifest.
func EncodeBinary(src []byte) []byte {
	return append([]byte(BinaryMagic), src...)
}

// LoadSourceModule loads a YAML manifest from path. The module is named
// after the manifest's module key, or the file name without extension.
func (e *Engine) LoadSourceModule(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "load module")
	}
	if bytes.HasPrefix(b, []byte(BinaryMagic)) {
		return errors.Errorf("%s is a binary module", path)
	}
	return e.loadManifest(moduleName(path), b, path)
}

// LoadBinaryModule loads a manifest stored behind BinaryMagic.
func (e *Engine) LoadBinaryModule(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "load module")
	}
	src, ok := bytes.CutPrefix(b, []byte(BinaryMagic))
	if !ok {
		return errors.Errorf("%s: bad module header", path)
	}
	return e.loadManifest(moduleName(path), src, path)
}

// LoadModuleFromSource loads a manifest held in memory.
func (e *Engine) LoadModuleFromSource(name, src string) error {
	return e.loadManifest(name, []byte(src), "<source>")
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (e *Engine) loadManifest(name string, src []byte, origin string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	var m Manifest
	if err := yaml.Unmarshal(src, &m); err != nil {
		return errors.Wrapf(err, "parse module %s", origin)
	}
	if m.Module != "" {
		name = m.Module
	}
	if name == "" {
		return errors.Errorf("module %s has no name", origin)
	}
	if err := e.checkBuiltins(m); err != nil {
		return errors.Wrapf(err, "module %s", name)
	}

	rec := &moduleRecord{Name: name, ID: uuid.NewString(), Source: origin, Loaded: time.Now()}
	placeholder := *rec
	if err := e.cat.insertModule(&placeholder); err != nil {
		return err
	}
	if err := e.define(name, m, rec); err != nil {
		e.UnloadModule(name)
		return errors.Wrapf(err, "module %s", name)
	}
	if err := e.cat.updateModule(rec); err != nil {
		e.UnloadModule(name)
		return err
	}

	e.log.With(log.F{
		"module":    name,
		"functions": len(rec.Functions),
		"types":     len(rec.Types),
	}).Debug("module loaded")
	return nil
}

func (e *Engine) checkBuiltins(m Manifest) error {
	specs := append([]FuncSpec(nil), m.Functions...)
	for _, t := range m.Types {
		specs = append(specs, t.Methods...)
	}
	for _, f := range specs {
		if _, ok := e.builtins[f.Builtin]; !ok {
			return errors.Errorf("%s: unknown builtin %q", f.Signature, f.Builtin)
		}
	}
	return nil
}

func (e *Engine) define(module string, m Manifest, rec *moduleRecord) error {
	for _, f := range m.Functions {
		fr, err := e.cat.insertFunction(module, f.Signature, f.Builtin)
		if err != nil {
			return err
		}
		rec.Functions = append(rec.Functions, fr.Signature)
	}

	for _, ts := range m.Types {
		th, err := e.CreateType(module, ts.Name)
		if err != nil {
			return err
		}
		for _, p := range ts.Params {
			if _, err := e.AddParameter(th, p); err != nil {
				return err
			}
		}
		for _, f := range ts.Fields {
			ft := e.ParseType(f.Type)
			if ft == 0 {
				return errors.Errorf("type %s: field %s has unknown type %q", ts.Name, f.Name, f.Type)
			}
			if err := e.AddField(th, f.Name, ft); err != nil {
				return err
			}
		}
		for _, f := range ts.Methods {
			if err := e.addMethod(th, module, f.Signature, f.Builtin); err != nil {
				return err
			}
		}
		if err := e.FinalizeType(th); err != nil {
			return err
		}
		rec.Types = append(rec.Types, module+"."+ts.Name)
	}

	names := make([]string, 0, len(m.Variables))
	for k := range m.Variables {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, err := e.valueOf(m.Variables[k])
		if err != nil {
			return errors.Wrapf(err, "variable %s", k)
		}
		if old, had := e.cat.setVariable(module, k, v); had {
			e.drop(old)
		}
		rec.Variables = append(rec.Variables, k)
	}
	return nil
}

// valueOf converts a decoded YAML value. Lists of numbers become row
// vectors.
func (e *Engine) valueOf(x any) (abi.Value, error) {
	switch v := x.(type) {
	case int:
		return abi.Int(int64(v)), nil
	case int64:
		return abi.Int(v), nil
	case float64:
		return abi.Scalar(v), nil
	case bool:
		if v {
			return abi.Int(1), nil
		}
		return abi.Int(0), nil
	case string:
		return abi.Value{Type: abi.TypeString, Handle: e.CreateString(v)}, nil
	case []any:
		re := make([]float64, len(v))
		for i, el := range v {
			n, err := e.valueOf(el)
			if err != nil || (n.Type != abi.TypeScalar && n.Type != abi.TypeInt) {
				return abi.Value{}, errors.Errorf("element %d is not a number", i)
			}
			re[i] = n.Float()
		}
		a, err := e.newArray(abi.TypeScalar, []int{1, len(re)})
		if err != nil {
			return abi.Value{}, err
		}
		if err := a.setFloats(re, nil); err != nil {
			return abi.Value{}, err
		}
		return a.value(e.arena.put(a.tag(), a)), nil
	}
	return abi.Value{}, errors.Errorf("unsupported value %T", x)
}

// UnloadModule removes a module with its functions, types and variables.
// Handles already handed out stay valid.
func (e *Engine) UnloadModule(name string) bool {
	vals, ok := e.cat.dropModule(name)
	if !ok {
		return false
	}
	for _, v := range vals {
		e.drop(v)
	}

	e.mu.Lock()
	for sig, h := range e.funcs {
		if f, ok := lookup[*function](e.arena, h); ok && f.rec.Module == name {
			delete(e.funcs, sig)
		}
	}
	e.mu.Unlock()

	e.log.WithField("module", name).Debug("module unloaded")
	return true
}

// Modules lists the loaded module names.
func (e *Engine) Modules() []string {
	var out []string
	for _, m := range e.cat.modules() {
		out = append(out, m.Name)
	}
	return out
}
