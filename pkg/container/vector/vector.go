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

package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/nulls"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
)

// Vector is a typed column with a null bitmap.
type Vector struct {
	typ types.Type
	nsp *nulls.Nulls
	// col is one of []bool, []int64, []float64, []string depending on typ.
	col any
}

func NewVec(typ types.Type) *Vector {
	v := &Vector{typ: typ, nsp: nulls.New()}
	switch typ.Oid {
	case types.T_bool:
		v.col = []bool{}
	case types.T_int64:
		v.col = []int64{}
	case types.T_float64:
		v.col = []float64{}
	case types.T_varchar:
		v.col = []string{}
	default:
		panic(moerr.NewUnsupportedDataType(moerr.Context(), typ.String()))
	}
	return v
}

// NewVecFromSlice builds a vector over vs, rows listed in nullRows are NULL.
func NewVecFromSlice[T types.FixedSizeT](vs []T, nullRows ...uint32) *Vector {
	v := &Vector{
		typ: types.TypeOf[T](),
		nsp: nulls.Build(nullRows...),
		col: vs,
	}
	return v
}

// MustFixedCol returns the column slice of v, it panics on a type mismatch.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	return v.col.([]T)
}

func AppendFixed[T types.FixedSizeT](v *Vector, val T, isNull bool) error {
	col, ok := v.col.([]T)
	if !ok {
		return moerr.NewInvalidInputNoCtx("append %T to %s vector", val, v.typ)
	}
	if isNull {
		nulls.Add(v.nsp, uint32(len(col)))
	}
	v.col = append(col, val)
	return nil
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) IsNull(i int) bool {
	return nulls.Contains(v.nsp, uint32(i))
}

func (v *Vector) Length() int {
	switch col := v.col.(type) {
	case []bool:
		return len(col)
	case []int64:
		return len(col)
	case []float64:
		return len(col)
	case []string:
		return len(col)
	}
	return 0
}

// Size estimates the memory footprint of the column data.
func (v *Vector) Size() int {
	switch col := v.col.(type) {
	case []bool:
		return len(col)
	case []int64:
		return 8 * len(col)
	case []float64:
		return 8 * len(col)
	case []string:
		n := 0
		for _, s := range col {
			n += len(s)
		}
		return n
	}
	return 0
}

// GetAny returns row i as an interface value, nil when the row is NULL.
func (v *Vector) GetAny(i int) any {
	if v.IsNull(i) {
		return nil
	}
	switch col := v.col.(type) {
	case []bool:
		return col[i]
	case []int64:
		return col[i]
	case []float64:
		return col[i]
	case []string:
		return col[i]
	}
	return nil
}

// UnionOne appends row sel of w to v.
func (v *Vector) UnionOne(w *Vector, sel int64) error {
	if !v.typ.Eq(w.typ) {
		return moerr.NewInvalidInputNoCtx("union %s into %s", w.typ, v.typ)
	}
	isNull := w.IsNull(int(sel))
	switch col := w.col.(type) {
	case []bool:
		return AppendFixed(v, col[sel], isNull)
	case []int64:
		return AppendFixed(v, col[sel], isNull)
	case []float64:
		return AppendFixed(v, col[sel], isNull)
	case []string:
		return AppendFixed(v, col[sel], isNull)
	}
	return nil
}

// Shrink keeps only the rows in sels, in the order given.
func (v *Vector) Shrink(sels []int64) {
	switch col := v.col.(type) {
	case []bool:
		v.col = shrinkFixed(col, sels)
	case []int64:
		v.col = shrinkFixed(col, sels)
	case []float64:
		v.col = shrinkFixed(col, sels)
	case []string:
		v.col = shrinkFixed(col, sels)
	}
	v.nsp = nulls.Filter(v.nsp, sels)
}

func shrinkFixed[T types.FixedSizeT](col []T, sels []int64) []T {
	ret := make([]T, len(sels))
	for i, sel := range sels {
		ret[i] = col[sel]
	}
	return ret
}

func (v *Vector) Dup() *Vector {
	w := &Vector{typ: v.typ, nsp: v.nsp.Clone()}
	switch col := v.col.(type) {
	case []bool:
		w.col = append([]bool(nil), col...)
	case []int64:
		w.col = append([]int64(nil), col...)
	case []float64:
		w.col = append([]float64(nil), col...)
	case []string:
		w.col = append([]string(nil), col...)
	}
	return w
}

// AppendRawKey appends a byte encoding of row i to buf. Equal values
// produce equal encodings, NULL encodes to a single marker byte.
func (v *Vector) AppendRawKey(buf []byte, i int) []byte {
	if v.IsNull(i) {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	switch col := v.col.(type) {
	case []bool:
		if col[i] {
			return append(buf, 1)
		}
		return append(buf, 0)
	case []int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(col[i]))
	case []float64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(col[i]))
	case []string:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(col[i])))
		return append(buf, col[i]...)
	}
	return buf
}

// Compare orders row i of v against row j of w. NULL sorts first.
func (v *Vector) Compare(i int, w *Vector, j int) int {
	vn, wn := v.IsNull(i), w.IsNull(j)
	switch {
	case vn && wn:
		return 0
	case vn:
		return -1
	case wn:
		return 1
	}
	switch col := v.col.(type) {
	case []bool:
		a, b := col[i], w.col.([]bool)[j]
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		}
		return 1
	case []int64:
		return compareOrdered(col[i], w.col.([]int64)[j])
	case []float64:
		return compareOrdered(col[i], w.col.([]float64)[j])
	case []string:
		return strings.Compare(col[i], w.col.([]string)[j])
	}
	return 0
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (v *Vector) String() string {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i := 0; i < v.Length(); i++ {
		if i > 0 {
			buf.WriteString(" ")
		}
		if v.IsNull(i) {
			buf.WriteString("null")
			continue
		}
		fmt.Fprintf(&buf, "%v", v.GetAny(i))
	}
	buf.WriteString("]")
	return buf.String()
}

// MarshalBinary layout: type | length | nulls size | nulls | data.
func (v *Vector) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(v.typ.Oid))
	length := v.Length()
	writeUint32(&buf, uint32(length))

	nsp, err := v.nsp.Show()
	if err != nil {
		return nil, err
	}
	writeUint32(&buf, uint32(len(nsp)))
	buf.Write(nsp)

	var tmp [8]byte
	switch col := v.col.(type) {
	case []bool:
		for _, b := range col {
			if b {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	case []int64:
		for _, x := range col {
			binary.LittleEndian.PutUint64(tmp[:], uint64(x))
			buf.Write(tmp[:])
		}
	case []float64:
		for _, x := range col {
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(x))
			buf.Write(tmp[:])
		}
	case []string:
		for _, s := range col {
			writeUint32(&buf, uint32(len(s)))
			buf.WriteString(s)
		}
	}
	return buf.Bytes(), nil
}

func (v *Vector) UnmarshalBinary(data []byte) error {
	_, err := v.unmarshal(data)
	return err
}

// UnmarshalFrom decodes a vector from the head of data and returns the rest.
func (v *Vector) UnmarshalFrom(data []byte) ([]byte, error) {
	return v.unmarshal(data)
}

func (v *Vector) unmarshal(data []byte) ([]byte, error) {
	if len(data) < 9 {
		return nil, moerr.NewUnexpectedEOFNoCtx("vector header")
	}
	typ := types.T(data[0]).ToType()
	if !typ.IsValid() {
		return nil, moerr.NewUnsupportedDataType(moerr.Context(), typ.String())
	}
	length := int(binary.LittleEndian.Uint32(data[1:]))
	nspLen := int(binary.LittleEndian.Uint32(data[5:]))
	data = data[9:]
	if len(data) < nspLen {
		return nil, moerr.NewUnexpectedEOFNoCtx("vector nulls")
	}
	v.typ = typ
	v.nsp = nulls.New()
	if err := v.nsp.Read(data[:nspLen]); err != nil {
		return nil, err
	}
	data = data[nspLen:]

	switch typ.Oid {
	case types.T_bool:
		if len(data) < length {
			return nil, moerr.NewUnexpectedEOFNoCtx("vector data")
		}
		col := make([]bool, length)
		for i := range col {
			col[i] = data[i] == 1
		}
		v.col = col
		data = data[length:]
	case types.T_int64:
		if len(data) < 8*length {
			return nil, moerr.NewUnexpectedEOFNoCtx("vector data")
		}
		col := make([]int64, length)
		for i := range col {
			col[i] = int64(binary.LittleEndian.Uint64(data[8*i:]))
		}
		v.col = col
		data = data[8*length:]
	case types.T_float64:
		if len(data) < 8*length {
			return nil, moerr.NewUnexpectedEOFNoCtx("vector data")
		}
		col := make([]float64, length)
		for i := range col {
			col[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		v.col = col
		data = data[8*length:]
	case types.T_varchar:
		col := make([]string, length)
		for i := range col {
			if len(data) < 4 {
				return nil, moerr.NewUnexpectedEOFNoCtx("vector data")
			}
			n := int(binary.LittleEndian.Uint32(data))
			data = data[4:]
			if len(data) < n {
				return nil, moerr.NewUnexpectedEOFNoCtx("vector data")
			}
			col[i] = string(data[:n])
			data = data[n:]
		}
		v.col = col
	}
	return data, nil
}

func writeUint32(buf *bytes.Buffer, x uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], x)
	buf.Write(tmp[:])
}
