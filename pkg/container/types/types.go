// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import "fmt"

type T uint8

const (
	T_any T = iota
	T_bool
	T_int64
	T_float64
	T_varchar
)

type Type struct {
	Oid T
}

// FixedSizeT is the set of column element types stored in a vector.
type FixedSizeT interface {
	bool | int64 | float64 | string
}

func New(oid T) Type {
	return Type{Oid: oid}
}

func (t T) ToType() Type {
	return Type{Oid: t}
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int64:
		return "BIGINT"
	case T_float64:
		return "DOUBLE"
	case T_varchar:
		return "VARCHAR"
	}
	return fmt.Sprintf("unexpected type: %d", t)
}

func (t Type) String() string {
	return t.Oid.String()
}

func (t Type) Eq(b Type) bool {
	return t.Oid == b.Oid
}

// IsValid reports whether t names a known column type.
func (t Type) IsValid() bool {
	return t.Oid > T_any && t.Oid <= T_varchar
}

// TypeOf returns the column type of the Go element type E.
func TypeOf[E FixedSizeT]() Type {
	var v E
	switch any(v).(type) {
	case bool:
		return T_bool.ToType()
	case int64:
		return T_int64.ToType()
	case float64:
		return T_float64.ToType()
	default:
		return T_varchar.ToType()
	}
}
