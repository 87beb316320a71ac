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
	"github.com/tidwall/btree"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
)

const opName = "order"

var _ colexec.BlockingOperator = new(Order)

// Field is one sort key.
type Field struct {
	Col  int32
	Desc bool
}

type row struct {
	bat int
	sel int
	seq uint64
}

type container struct {
	bats []*batch.Batch
	rows *btree.BTreeG[row]
	seq  uint64
}

// Order sorts its whole input. Rows with equal keys keep arrival order.
type Order struct {
	ctr     container
	OrderBy []Field
}

func NewArgument(fields ...Field) *Order {
	return &Order{OrderBy: fields}
}

func (order *Order) Free(pipelineFailed bool, err error) {
	order.ctr.bats = nil
	if order.ctr.rows != nil {
		order.ctr.rows.Clear()
	}
}
