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

package group

import (
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func (op AggOp) String() string {
	switch op {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	}
	return fmt.Sprintf("AggOp(%d)", int(op))
}

func (group *Group) String(buf *bytes.Buffer) {
	buf.WriteString("γ(")
	buf.WriteString(fmt.Sprintf("%v, [", group.GroupBy))
	for i, agg := range group.Aggs {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(fmt.Sprintf("%s(%d)", agg.Op, agg.Col))
	}
	buf.WriteString("])")
}

func (group *Group) Prepare() error {
	group.ctr.groups = make(map[string]int)
	group.ctr.aggs = make([]aggState, len(group.Aggs))
	return nil
}

func (group *Group) Consume(bat *batch.Batch) error {
	if bat.IsEmpty() {
		return nil
	}
	ctr := &group.ctr
	if ctr.keys == nil {
		if err := group.initSchema(bat); err != nil {
			return err
		}
	}
	for i := 0; i < bat.RowCount(); i++ {
		ctr.buf = ctr.buf[:0]
		for _, col := range group.GroupBy {
			ctr.buf = bat.Vecs[col].AppendRawKey(ctr.buf, i)
		}
		g, ok := ctr.groups[string(ctr.buf)]
		if !ok {
			g = len(ctr.groups)
			ctr.groups[string(ctr.buf)] = g
			for j, col := range group.GroupBy {
				if err := ctr.keys.Vecs[j].UnionOne(bat.Vecs[col], int64(i)); err != nil {
					return err
				}
			}
			ctr.keys.AddRowCount(1)
			for j := range ctr.aggs {
				ctr.aggs[j].grow()
			}
		}
		for j, agg := range group.Aggs {
			ctr.aggs[j].update(agg.Op, g, bat, agg.Col, i)
		}
	}
	return nil
}

func (group *Group) initSchema(bat *batch.Batch) error {
	ctr := &group.ctr
	attrs := make([]string, len(group.GroupBy))
	typs := make([]types.Type, len(group.GroupBy))
	for i, col := range group.GroupBy {
		if int(col) >= len(bat.Vecs) {
			return moerr.NewOutOfRange(moerr.Context(), "column", "%d of %d", col, len(bat.Vecs))
		}
		if int(col) < len(bat.Attrs) {
			attrs[i] = bat.Attrs[col]
		}
		typs[i] = *bat.Vecs[col].GetType()
	}
	ctr.keys = batch.NewWithSchema(attrs, typs)

	for i, agg := range group.Aggs {
		switch agg.Op {
		case AggCount:
			ctr.aggs[i].typ = types.T_int64.ToType()
		case AggSum:
			if int(agg.Col) >= len(bat.Vecs) {
				return moerr.NewOutOfRange(moerr.Context(), "column", "%d of %d", agg.Col, len(bat.Vecs))
			}
			typ := *bat.Vecs[agg.Col].GetType()
			if typ.Oid != types.T_int64 && typ.Oid != types.T_float64 {
				return moerr.NewInvalidInputNoCtx("sum over %s", typ)
			}
			ctr.aggs[i].typ = typ
		default:
			return moerr.NewNotSupported(moerr.Context(), "aggregate %s", agg.Op)
		}
	}
	return nil
}

func (s *aggState) grow() {
	if s.typ.Oid == types.T_float64 {
		s.floats = append(s.floats, 0)
	} else {
		s.ints = append(s.ints, 0)
	}
	s.seen = append(s.seen, false)
}

func (s *aggState) update(op AggOp, g int, bat *batch.Batch, col int32, row int) {
	if op == AggCount {
		s.ints[g]++
		s.seen[g] = true
		return
	}
	vec := bat.Vecs[col]
	if vec.IsNull(row) {
		return
	}
	s.seen[g] = true
	if s.typ.Oid == types.T_float64 {
		s.floats[g] += vector.MustFixedCol[float64](vec)[row]
	} else {
		s.ints[g] += vector.MustFixedCol[int64](vec)[row]
	}
}

// result builds the output column. A sum of only NULLs is NULL.
func (s *aggState) result() *vector.Vector {
	var nullRows []uint32
	for g, ok := range s.seen {
		if !ok {
			nullRows = append(nullRows, uint32(g))
		}
	}
	if s.typ.Oid == types.T_float64 {
		return vector.NewVecFromSlice(s.floats, nullRows...)
	}
	return vector.NewVecFromSlice(s.ints, nullRows...)
}

func (group *Group) Flush() ([]*batch.Batch, error) {
	ctr := &group.ctr
	if ctr.keys == nil {
		return nil, nil
	}
	rbat := ctr.keys
	for i, agg := range group.Aggs {
		name := agg.Name
		if name == "" {
			name = fmt.Sprintf("%s(%d)", agg.Op, agg.Col)
		}
		rbat.Attrs = append(rbat.Attrs, name)
		rbat.Vecs = append(rbat.Vecs, ctr.aggs[i].result())
	}
	ctr.keys = nil
	ctr.groups = nil
	return []*batch.Batch{rbat}, nil
}

func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, groupBy []int32, aggs []Aggregate) *colexec.BlockingTransformer {
	return colexec.NewBlockingTransformer(opName, in, out, NewArgument(groupBy, aggs))
}
