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
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func (valueScan *ValueScan) String(buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(fmt.Sprintf("(%d batches)", len(valueScan.Batches)))
}

func (valueScan *ValueScan) Prepare() error {
	valueScan.ctr.idx = 0
	return nil
}

func (valueScan *ValueScan) Generate() (*batch.Batch, error) {
	if valueScan.ctr.idx >= len(valueScan.Batches) {
		return nil, nil
	}
	bat := valueScan.Batches[valueScan.ctr.idx]
	valueScan.ctr.idx++
	if bat == nil {
		return batch.EmptyBatch, nil
	}
	return bat, nil
}

// NewProcessor returns a source emitting bats on out.
func NewProcessor(out *pipeline.OutputPort, bats ...*batch.Batch) *colexec.SyncSource {
	return colexec.NewSyncSource(opName, out, NewArgument(bats...))
}
