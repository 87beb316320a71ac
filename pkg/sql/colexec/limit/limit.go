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

package limit

import (
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "limit"

var (
	_ colexec.TransformOperator = new(Limit)
	_ colexec.Exhauster         = new(Limit)
)

type container struct {
	seen uint64
}

// Limit passes the first n rows of its lane and then stops its input.
type Limit struct {
	ctr   container
	Limit uint64
}

func NewArgument(n uint64) *Limit {
	return &Limit{Limit: n}
}

func (limit *Limit) String(buf *bytes.Buffer) {
	buf.WriteString(fmt.Sprintf("limit(%v)", limit.Limit))
}

func (limit *Limit) Prepare() error {
	limit.ctr.seen = 0
	return nil
}

func (limit *Limit) Transform(bat *batch.Batch) (*batch.Batch, error) {
	if limit.ctr.seen >= limit.Limit {
		return nil, nil
	}
	length := uint64(bat.RowCount())
	newSeen := limit.ctr.seen + length
	if newSeen > limit.Limit {
		bat = bat.Window(0, int(limit.Limit-limit.ctr.seen))
		newSeen = limit.Limit
	}
	limit.ctr.seen = newSeen
	return bat, nil
}

func (limit *Limit) Exhausted() bool {
	return limit.ctr.seen >= limit.Limit
}

func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, n uint64) *colexec.Transformer {
	return colexec.NewTransformer(opName, in, out, NewArgument(n))
}
