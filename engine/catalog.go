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
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

const (
	tableFunctions = "functions"
	tableTypes     = "types"
	tableModules   = "modules"
	tableVariables = "variables"
)

var schema = memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableFunctions: {
			Name: tableFunctions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Signature"},
				},
				"name": {
					Name:    "name",
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
				"module": {
					Name:    "module",
					Indexer: &memdb.StringFieldIndex{Field: "Module"},
				},
			},
		},
		tableTypes: {
			Name: tableTypes,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Qualified"},
				},
				"name": {
					Name:    "name",
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
				"module": {
					Name:    "module",
					Indexer: &memdb.StringFieldIndex{Field: "Module"},
				},
			},
		},
		tableModules: {
			Name: tableModules,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
		tableVariables: {
			Name: tableVariables,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
				"module": {
					Name:         "module",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Module"},
				},
			},
		},
	},
}

// funcRecord binds a signature to a builtin kernel.
type funcRecord struct {
	Signature string
	Name      string
	Module    string
	Builtin   string
	Params    []string
	Variadic  bool
}

type typeRecord struct {
	Qualified string
	Name      string
	Module    string
	Handle    abi.Handle
}

type moduleRecord struct {
	Name      string
	ID        string
	Source    string
	Loaded    time.Time
	Functions []string
	Types     []string
	Variables []string
}

type varRecord struct {
	Name   string
	Module string
	Value  abi.Value
}

// catalog is the engine namespace: functions, types, modules and
// variables, each in its own memdb table.
type catalog struct {
	db *memdb.MemDB
}

func newCatalog() (*catalog, error) {
	db, err := memdb.NewMemDB(&schema)
	if err != nil {
		return nil, errors.Wrap(err, "catalog schema")
	}
	return &catalog{db: db}, nil
}

// parseSignature splits "name(a,b,...)" into its name and parameter
// types. A bare name has no parameter list and matches any arguments.
func parseSignature(sig string) (name string, params []string, variadic bool, err error) {
	sig = strings.TrimSpace(sig)
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return sig, nil, true, nil
	}
	if !strings.HasSuffix(sig, ")") || open == 0 {
		return "", nil, false, errors.Errorf("malformed signature %q", sig)
	}
	name = sig[:open]
	inner := strings.TrimSpace(sig[open+1 : len(sig)-1])
	if inner == "" {
		return name, nil, false, nil
	}
	for _, p := range strings.Split(inner, ",") {
		p = strings.TrimSpace(p)
		if p == "..." {
			variadic = true
			continue
		}
		if variadic {
			return "", nil, false, errors.Errorf("parameters after ... in %q", sig)
		}
		params = append(params, p)
	}
	return name, params, variadic, nil
}

// BaseName returns the part of a signature before its parameter list.
func BaseName(sig string) string {
	name, _, _ := strings.Cut(sig, "(")
	return strings.TrimSpace(name)
}

func (c *catalog) insertFunction(module, sig, builtin string) (*funcRecord, error) {
	name, params, variadic, err := parseSignature(sig)
	if err != nil {
		return nil, err
	}
	rec := &funcRecord{
		Signature: canonical(name, params, variadic),
		Name:      name,
		Module:    module,
		Builtin:   builtin,
		Params:    params,
		Variadic:  variadic,
	}

	txn := c.db.Txn(true)
	defer txn.Abort()
	if raw, err := txn.First(tableFunctions, "id", rec.Signature); err != nil {
		return nil, err
	} else if raw != nil {
		return nil, errors.Errorf("function %s already defined by module %s", rec.Signature, raw.(*funcRecord).Module)
	}
	if err := txn.Insert(tableFunctions, rec); err != nil {
		return nil, err
	}
	txn.Commit()
	return rec, nil
}

// canonical rewrites a signature without whitespace so lookups do not
// depend on spacing.
func canonical(name string, params []string, variadic bool) string {
	if params == nil && variadic {
		return name + "(...)"
	}
	all := params
	if variadic {
		all = append(append([]string(nil), params...), "...")
	}
	return name + "(" + strings.Join(all, ",") + ")"
}

// Canonical normalizes the spacing of a signature.
func Canonical(sig string) string {
	name, params, variadic, err := parseSignature(sig)
	if err != nil {
		return sig
	}
	if !strings.Contains(sig, "(") {
		return name
	}
	return canonical(name, params, variadic)
}

func (c *catalog) function(sig string) *funcRecord {
	txn := c.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableFunctions, "id", Canonical(sig))
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*funcRecord)
}

func (c *catalog) functionsNamed(name string) []*funcRecord {
	txn := c.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableFunctions, "name", name)
	if err != nil {
		return nil
	}
	var out []*funcRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*funcRecord))
	}
	return out
}

func (c *catalog) insertType(rec *typeRecord) error {
	txn := c.db.Txn(true)
	defer txn.Abort()
	if raw, _ := txn.First(tableTypes, "id", rec.Qualified); raw != nil {
		return errors.Errorf("type %s already defined", rec.Qualified)
	}
	if err := txn.Insert(tableTypes, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// typeNamed resolves a module-qualified name first, then a bare name.
func (c *catalog) typeNamed(name string) *typeRecord {
	txn := c.db.Txn(false)
	defer txn.Abort()
	if raw, err := txn.First(tableTypes, "id", name); err == nil && raw != nil {
		return raw.(*typeRecord)
	}
	if raw, err := txn.First(tableTypes, "name", name); err == nil && raw != nil {
		return raw.(*typeRecord)
	}
	return nil
}

func (c *catalog) insertModule(rec *moduleRecord) error {
	txn := c.db.Txn(true)
	defer txn.Abort()
	if raw, _ := txn.First(tableModules, "id", rec.Name); raw != nil {
		return errors.Errorf("module %s already loaded", rec.Name)
	}
	if err := txn.Insert(tableModules, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (c *catalog) module(name string) *moduleRecord {
	txn := c.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableModules, "id", name)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*moduleRecord)
}

func (c *catalog) modules() []*moduleRecord {
	txn := c.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableModules, "id")
	if err != nil {
		return nil
	}
	var out []*moduleRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*moduleRecord))
	}
	return out
}

// dropModule deletes a module and everything it defined. It returns the
// variables that were removed so their values can be released.
func (c *catalog) dropModule(name string) ([]abi.Value, bool) {
	txn := c.db.Txn(true)
	defer txn.Abort()
	if raw, _ := txn.First(tableModules, "id", name); raw == nil {
		return nil, false
	}

	var vals []abi.Value
	it, err := txn.Get(tableVariables, "module", name)
	if err == nil {
		for raw := it.Next(); raw != nil; raw = it.Next() {
			vals = append(vals, raw.(*varRecord).Value)
		}
	}
	for _, table := range []string{tableFunctions, tableTypes, tableVariables} {
		if _, err := txn.DeleteAll(table, "module", name); err != nil {
			return nil, false
		}
	}
	if _, err := txn.DeleteAll(tableModules, "id", name); err != nil {
		return nil, false
	}
	txn.Commit()
	return vals, true
}

// setVariable stores v under name and returns the value it replaced.
func (c *catalog) setVariable(module, name string, v abi.Value) (abi.Value, bool) {
	txn := c.db.Txn(true)
	defer txn.Abort()
	var old abi.Value
	raw, _ := txn.First(tableVariables, "id", name)
	if raw != nil {
		old = raw.(*varRecord).Value
		if module == "" {
			module = raw.(*varRecord).Module
		}
	}
	if err := txn.Insert(tableVariables, &varRecord{Name: name, Module: module, Value: v}); err != nil {
		return abi.Value{}, false
	}
	txn.Commit()
	return old, raw != nil
}

func (c *catalog) variable(name string) (abi.Value, bool) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tableVariables, "id", name)
	if err != nil || raw == nil {
		return abi.Value{}, false
	}
	return raw.(*varRecord).Value, true
}

// variables returns every stored value, for release at Close.
func (c *catalog) variables() []abi.Value {
	txn := c.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableVariables, "id")
	if err != nil {
		return nil
	}
	var out []abi.Value
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*varRecord).Value)
	}
	return out
}

// updateModule replaces the record of an already inserted module.
func (c *catalog) updateModule(rec *moduleRecord) error {
	txn := c.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableModules, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}
