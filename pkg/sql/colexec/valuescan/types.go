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

package valuescan

import (
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
)

const opName = "value_scan"

var _ colexec.SourceOperator = new(ValueScan)

type container struct {
	idx int
}

// ValueScan emits a fixed list of batches, one per step.
type ValueScan struct {
	ctr     container
	Batches []*batch.Batch
}

func NewArgument(bats ...*batch.Batch) *ValueScan {
	return &ValueScan{Batches: bats}
}

func (valueScan *ValueScan) Free(pipelineFailed bool, err error) {
	valueScan.Batches = nil
	valueScan.ctr.idx = 0
}
