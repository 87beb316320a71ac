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

package output

import (
	"sync"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
)

const opName = "output"

var _ colexec.SinkOperator = new(Output)

// Output hands every batch to Func. OnEnd, if set, runs once when the input
// is exhausted.
type Output struct {
	Func  func(*batch.Batch) error
	OnEnd func() error
}

// Collector gathers the batches of any number of output lanes.
type Collector struct {
	sync.Mutex
	bats  []*batch.Batch
	rows  int
	lanes int
	ended int
}

func NewArgument(fn func(*batch.Batch) error) *Output {
	return &Output{Func: fn}
}
