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

package batch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
)

// Batch represents a part of a relationship
//
//	(Attrs) - list of attributes
//	(Vecs)  - columns
//
// A batch is the unit of data moved through ports. Once pushed it belongs to
// the consumer.
type Batch struct {
	// Attrs column name list
	Attrs []string
	// Vecs col data
	Vecs     []*vector.Vector
	rowCount int
}

// EmptyBatch carries no columns and no rows.
var EmptyBatch = &Batch{}

func New(attrs []string) *Batch {
	return &Batch{
		Attrs: attrs,
		Vecs:  make([]*vector.Vector, len(attrs)),
	}
}

// NewWithSchema returns an empty batch with one vector per attribute.
func NewWithSchema(attrs []string, typs []types.Type) *Batch {
	bat := New(attrs)
	for i := range typs {
		bat.Vecs[i] = vector.NewVec(typs[i])
	}
	return bat
}

// NewWithVectors wraps vecs; the row count is taken from the first vector.
func NewWithVectors(attrs []string, vecs ...*vector.Vector) *Batch {
	bat := &Batch{Attrs: attrs, Vecs: vecs}
	if len(vecs) > 0 {
		bat.rowCount = vecs[0].Length()
	}
	return bat
}

func (bat *Batch) RowCount() int {
	return bat.rowCount
}

func (bat *Batch) SetRowCount(rowCount int) {
	bat.rowCount = rowCount
}

func (bat *Batch) AddRowCount(rowCount int) {
	bat.rowCount += rowCount
}

func (bat *Batch) IsEmpty() bool {
	return bat == nil || bat.rowCount == 0
}

func (bat *Batch) GetVector(pos int32) *vector.Vector {
	return bat.Vecs[pos]
}

// Types returns the column types in attribute order.
func (bat *Batch) Types() []types.Type {
	typs := make([]types.Type, len(bat.Vecs))
	for i, vec := range bat.Vecs {
		typs[i] = *vec.GetType()
	}
	return typs
}

func (bat *Batch) Size() int {
	var size int
	for _, vec := range bat.Vecs {
		size += vec.Size()
	}
	return size
}

// Shrink keeps the rows in sels, or every other row when negate is set.
func (bat *Batch) Shrink(sels []int64, negate bool) {
	if negate {
		if len(sels) == 0 {
			return
		}
		keep := make([]int64, 0, bat.rowCount-len(sels))
		next := 0
		for i := 0; i < bat.rowCount; i++ {
			if next < len(sels) && sels[next] == int64(i) {
				next++
				continue
			}
			keep = append(keep, int64(i))
		}
		sels = keep
	}
	for _, vec := range bat.Vecs {
		vec.Shrink(sels)
	}
	bat.rowCount = len(sels)
}

// Window returns a new batch holding rows [start, end).
func (bat *Batch) Window(start, end int) *Batch {
	sels := make([]int64, 0, end-start)
	for i := start; i < end; i++ {
		sels = append(sels, int64(i))
	}
	w := bat.Dup()
	w.Shrink(sels, false)
	return w
}

func (bat *Batch) Dup() *Batch {
	rbat := &Batch{
		Attrs:    append([]string(nil), bat.Attrs...),
		Vecs:     make([]*vector.Vector, len(bat.Vecs)),
		rowCount: bat.rowCount,
	}
	for i, vec := range bat.Vecs {
		rbat.Vecs[i] = vec.Dup()
	}
	return rbat
}

// UnionOne appends row sel of src. Both batches must share a schema.
func (bat *Batch) UnionOne(src *Batch, sel int64) error {
	if len(bat.Vecs) != len(src.Vecs) {
		return moerr.NewInvalidInputNoCtx("union batch of %d columns into %d", len(src.Vecs), len(bat.Vecs))
	}
	for i, vec := range bat.Vecs {
		if err := vec.UnionOne(src.Vecs[i], sel); err != nil {
			return err
		}
	}
	bat.rowCount++
	return nil
}

func (bat *Batch) String() string {
	var buf bytes.Buffer

	for i, vec := range bat.Vecs {
		name := ""
		if i < len(bat.Attrs) {
			name = bat.Attrs[i]
		}
		buf.WriteString(fmt.Sprintf("%d(%s) : %s\n", i, name, vec.String()))
	}
	return buf.String()
}

// MarshalBinary layout: row count | attr count | attrs | vector count | vectors.
func (bat *Batch) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], uint32(bat.rowCount))
	buf.Write(tmp[:])

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(bat.Attrs)))
	buf.Write(tmp[:])
	for _, attr := range bat.Attrs {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(attr)))
		buf.Write(tmp[:])
		buf.WriteString(attr)
	}

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(bat.Vecs)))
	buf.Write(tmp[:])
	for _, vec := range bat.Vecs {
		data, err := vec.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func (bat *Batch) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return moerr.NewUnexpectedEOFNoCtx("batch header")
	}
	bat.rowCount = int(binary.LittleEndian.Uint32(data))
	n := int(binary.LittleEndian.Uint32(data[4:]))
	data = data[8:]

	bat.Attrs = make([]string, n)
	for i := range bat.Attrs {
		if len(data) < 4 {
			return moerr.NewUnexpectedEOFNoCtx("batch attrs")
		}
		l := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if len(data) < l {
			return moerr.NewUnexpectedEOFNoCtx("batch attrs")
		}
		bat.Attrs[i] = string(data[:l])
		data = data[l:]
	}

	if len(data) < 4 {
		return moerr.NewUnexpectedEOFNoCtx("batch vectors")
	}
	n = int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	bat.Vecs = make([]*vector.Vector, n)
	for i := range bat.Vecs {
		vec := new(vector.Vector)
		rest, err := vec.UnmarshalFrom(data)
		if err != nil {
			return err
		}
		bat.Vecs[i] = vec
		data = rest
	}
	return nil
}
