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

package restrict

import (
	"bytes"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

var cmpNames = [...]string{EQ: "=", NE: "<>", LT: "<", LE: "<=", GT: ">", GE: ">="}

func (op CmpOp) String() string {
	if int(op) < len(cmpNames) {
		return cmpNames[op]
	}
	return fmt.Sprintf("CmpOp(%d)", int(op))
}

func (restrict *Restrict) String(buf *bytes.Buffer) {
	buf.WriteString(fmt.Sprintf("filter(%s)", restrict.Desc))
}

func (restrict *Restrict) Prepare() error {
	if restrict.Expr == nil {
		return moerr.NewInvalidArg(moerr.Context(), "restrict expression", nil)
	}
	restrict.ctr.sels = roaring.New()
	return nil
}

func (restrict *Restrict) Transform(bat *batch.Batch) (*batch.Batch, error) {
	ctr := &restrict.ctr
	ctr.sels.Clear()
	for i := 0; i < bat.RowCount(); i++ {
		ok, err := restrict.Expr(bat, i)
		if err != nil {
			return nil, err
		}
		if ok {
			ctr.sels.Add(uint32(i))
		}
	}

	switch n := int(ctr.sels.GetCardinality()); n {
	case 0:
		return nil, nil
	case bat.RowCount():
		return bat, nil
	}

	ctr.buf = ctr.buf[:0]
	it := ctr.sels.Iterator()
	for it.HasNext() {
		ctr.buf = append(ctr.buf, int64(it.Next()))
	}
	bat.Shrink(ctr.buf, false)
	return bat, nil
}

// KeepAll passes every row.
func KeepAll(*batch.Batch, int) (bool, error) {
	return true, nil
}

// Compare builds a predicate comparing column col against a constant. Rows
// where the column is NULL never pass.
func Compare(col int32, op CmpOp, val any) (Predicate, error) {
	var cv *vector.Vector
	switch v := val.(type) {
	case bool:
		cv = vector.NewVecFromSlice([]bool{v})
	case int:
		cv = vector.NewVecFromSlice([]int64{int64(v)})
	case int64:
		cv = vector.NewVecFromSlice([]int64{v})
	case float64:
		cv = vector.NewVecFromSlice([]float64{v})
	case string:
		cv = vector.NewVecFromSlice([]string{v})
	default:
		return nil, moerr.NewUnsupportedDataType(moerr.Context(), fmt.Sprintf("%T", val))
	}
	return func(bat *batch.Batch, row int) (bool, error) {
		vec := bat.GetVector(col)
		if !vec.GetType().Eq(*cv.GetType()) {
			return false, moerr.NewInvalidInputNoCtx("compare %s column with %s constant", vec.GetType(), cv.GetType())
		}
		if vec.IsNull(row) {
			return false, nil
		}
		r := vec.Compare(row, cv, 0)
		switch op {
		case EQ:
			return r == 0, nil
		case NE:
			return r != 0, nil
		case LT:
			return r < 0, nil
		case LE:
			return r <= 0, nil
		case GT:
			return r > 0, nil
		case GE:
			return r >= 0, nil
		}
		return false, moerr.NewNotSupported(moerr.Context(), "comparison %s", op)
	}, nil
}

func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, expr Predicate, desc string) *colexec.Transformer {
	return colexec.NewTransformer(opName, in, out, NewArgument(expr, desc))
}
