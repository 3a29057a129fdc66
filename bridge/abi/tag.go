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

// Package abi is the binary edge between a host and an engine: the tagged
// value layout, the lock and allocation enums, the flat function table the
// engine fills in, and the bootstrap block that carries it.
//
// Only the bridge package talks to a Table directly. Everything else goes
// through the typed bridge.Backend built on top of it.
package abi

import "fmt"

// Handle is an opaque engine-side object reference. The zero Handle is null.
type Handle uint64

// Tag identifies the kind of payload a Value carries. The order of the
// constants is part of the wire format.
type Tag int32

const (
	TypeVoid Tag = iota
	TypeScalar
	TypeComplexScalar
	TypeInt
	TypeVec
	TypeMat
	TypeCube
	TypeCVec
	TypeCMat
	TypeCCube
	TypeString
	TypeTypeInfo
	TypeLambdaExpr
	TypeInt8
	TypeInt16
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeTypedObject
	TypeUntypedObject
	TypeNCube
	TypeNCCube
	TypeMethod

	// NumTags is the number of defined tags.
	NumTags
)

// typeNames holds the engine spelling of each primitive tag. TypeTypedObject
// has no primitive name: its type comes from a user definition.
var typeNames = [NumTags]string{
	TypeVoid:          "??",
	TypeScalar:        "scalar",
	TypeComplexScalar: "cscalar",
	TypeInt:           "int",
	TypeVec:           "vec",
	TypeMat:           "mat",
	TypeCube:          "cube",
	TypeCVec:          "cvec",
	TypeCMat:          "cmat",
	TypeCCube:         "ccube",
	TypeString:        "string",
	TypeTypeInfo:      "type",
	TypeLambdaExpr:    "lambda_expr",
	TypeInt8:          "int8",
	TypeInt16:         "int16",
	TypeInt64:         "int64",
	TypeUInt8:         "uint8",
	TypeUInt16:        "uint16",
	TypeUInt32:        "uint32",
	TypeUInt64:        "uint64",
	TypeUntypedObject: "object",
	TypeNCube:         "cube{4}",
	TypeNCCube:        "ccube{4}",
	TypeMethod:        "method",
}

var refCounted = [NumTags]bool{
	TypeVec:           true,
	TypeMat:           true,
	TypeCube:          true,
	TypeCVec:          true,
	TypeCMat:          true,
	TypeCCube:         true,
	TypeNCube:         true,
	TypeNCCube:        true,
	TypeTypedObject:   true,
	TypeUntypedObject: true,
}

// Valid reports whether t is one of the defined tags.
func (t Tag) Valid() bool { return t >= 0 && t < NumTags }

// TypeName returns the name the engine parses for t, or "" when t has no
// primitive spelling.
func (t Tag) TypeName() string {
	if !t.Valid() {
		return ""
	}
	return typeNames[t]
}

func (t Tag) String() string {
	switch {
	case t == TypeTypedObject:
		return "typed_object"
	case t.Valid():
		return typeNames[t]
	default:
		return fmt.Sprintf("Tag(%d)", int32(t))
	}
}

// IsRefCounted reports whether values with tag t own a refcounted handle.
func (t Tag) IsRefCounted() bool { return t.Valid() && refCounted[t] }

// HasHandle reports whether values with tag t carry a Handle at all,
// refcounted or not.
func (t Tag) HasHandle() bool {
	switch t {
	case TypeString, TypeTypeInfo, TypeLambdaExpr, TypeMethod:
		return true
	}
	return t.IsRefCounted()
}

// IsArray reports whether t is one of the array tags.
func (t Tag) IsArray() bool {
	switch t {
	case TypeVec, TypeMat, TypeCube, TypeCVec, TypeCMat, TypeCCube, TypeNCube, TypeNCCube:
		return true
	}
	return false
}

// IsComplexArray reports whether t is an array of complex elements.
func (t Tag) IsComplexArray() bool {
	switch t {
	case TypeCVec, TypeCMat, TypeCCube, TypeNCCube:
		return true
	}
	return false
}

// IsInteger reports whether t is one of the inline integer tags.
func (t Tag) IsInteger() bool {
	switch t {
	case TypeInt, TypeInt8, TypeInt16, TypeInt64, TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64:
		return true
	}
	return false
}

// ArrayTag returns the array tag for an array of the given rank. Complex
// selects the complex family. Ranks above three use the n-cube tags.
func ArrayTag(rank int, complex bool) Tag {
	switch {
	case rank <= 1 && complex:
		return TypeCVec
	case rank <= 1:
		return TypeVec
	case rank == 2 && complex:
		return TypeCMat
	case rank == 2:
		return TypeMat
	case rank == 3 && complex:
		return TypeCCube
	case rank == 3:
		return TypeCube
	case complex:
		return TypeNCCube
	default:
		return TypeNCube
	}
}

// NCubeTypeName returns the engine spelling of an n-dimensional array type,
// for instance cube{5} or ccube{5}.
func NCubeTypeName(rank int, complex bool) string {
	if complex {
		return fmt.Sprintf("ccube{%d}", rank)
	}
	return fmt.Sprintf("cube{%d}", rank)
}
