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
	"github.com/RoaringBitmap/roaring"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
)

const opName = "restrict"

var _ colexec.TransformOperator = new(Restrict)

// Predicate reports whether row of bat passes the filter.
type Predicate func(bat *batch.Batch, row int) (bool, error)

type CmpOp int

const (
	EQ CmpOp = iota
	NE
	LT
	LE
	GT
	GE
)

type container struct {
	sels *roaring.Bitmap
	buf  []int64
}

type Restrict struct {
	ctr  container
	Expr Predicate
	// Desc is printed in plans in place of the predicate.
	Desc string
}

func NewArgument(expr Predicate, desc string) *Restrict {
	return &Restrict{Expr: expr, Desc: desc}
}

func (restrict *Restrict) Free(pipelineFailed bool, err error) {
	restrict.ctr.sels = nil
	restrict.ctr.buf = nil
}
