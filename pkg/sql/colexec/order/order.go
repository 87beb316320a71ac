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

package order

import (
	"bytes"
	"fmt"

	"github.com/tidwall/btree"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func (f Field) String() string {
	if f.Desc {
		return fmt.Sprintf("%d DESC", f.Col)
	}
	return fmt.Sprintf("%d", f.Col)
}

func (order *Order) String(buf *bytes.Buffer) {
	buf.WriteString("τ([")
	for i, f := range order.OrderBy {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(f.String())
	}
	buf.WriteString("])")
}

func (order *Order) Prepare() error {
	if len(order.OrderBy) == 0 {
		return moerr.NewInvalidInputNoCtx("order by without fields")
	}
	order.ctr.rows = btree.NewBTreeGOptions(order.less, btree.Options{NoLocks: true})
	return nil
}

func (order *Order) less(a, b row) bool {
	abat, bbat := order.ctr.bats[a.bat], order.ctr.bats[b.bat]
	for _, f := range order.OrderBy {
		r := abat.Vecs[f.Col].Compare(a.sel, bbat.Vecs[f.Col], b.sel)
		if r == 0 {
			continue
		}
		if f.Desc {
			return r > 0
		}
		return r < 0
	}
	return a.seq < b.seq
}

func (order *Order) Consume(bat *batch.Batch) error {
	if bat.IsEmpty() {
		return nil
	}
	for _, f := range order.OrderBy {
		if int(f.Col) >= len(bat.Vecs) {
			return moerr.NewOutOfRange(moerr.Context(), "column", "%d of %d", f.Col, len(bat.Vecs))
		}
	}
	ctr := &order.ctr
	idx := len(ctr.bats)
	ctr.bats = append(ctr.bats, bat)
	for i := 0; i < bat.RowCount(); i++ {
		ctr.seq++
		ctr.rows.Set(row{bat: idx, sel: i, seq: ctr.seq})
	}
	return nil
}

func (order *Order) Flush() ([]*batch.Batch, error) {
	ctr := &order.ctr
	if len(ctr.bats) == 0 {
		return nil, nil
	}
	first := ctr.bats[0]
	rbat := batch.NewWithSchema(append([]string(nil), first.Attrs...), first.Types())
	var err error
	ctr.rows.Scan(func(r row) bool {
		err = rbat.UnionOne(ctr.bats[r.bat], int64(r.sel))
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	ctr.bats = nil
	ctr.rows.Clear()
	return []*batch.Batch{rbat}, nil
}

func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, fields ...Field) *colexec.BlockingTransformer {
	return colexec.NewBlockingTransformer(opName, in, out, NewArgument(fields...))
}
