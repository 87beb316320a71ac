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
	"bytes"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func (output *Output) String(buf *bytes.Buffer) {
	buf.WriteString("sql output")
}

func (output *Output) Prepare() error {
	if output.Func == nil {
		return moerr.NewInvalidArg(moerr.Context(), "output func", nil)
	}
	return nil
}

func (output *Output) Consume(bat *batch.Batch) error {
	if bat.IsEmpty() {
		return nil
	}
	return output.Func(bat)
}

func (output *Output) OnFinish() error {
	if output.OnEnd != nil {
		return output.OnEnd()
	}
	return nil
}

func NewProcessor(in *pipeline.InputPort, fn func(*batch.Batch) error) *colexec.Sink {
	return colexec.NewSink(opName, in, NewArgument(fn))
}

func NewCollector() *Collector {
	return &Collector{}
}

// NewProcessor returns a sink lane feeding c.
func (c *Collector) NewProcessor(in *pipeline.InputPort) (pipeline.Processor, error) {
	c.Lock()
	c.lanes++
	c.Unlock()
	return colexec.NewSink(opName, in, &Output{Func: c.add, OnEnd: c.end}), nil
}

func (c *Collector) add(bat *batch.Batch) error {
	c.Lock()
	defer c.Unlock()
	c.bats = append(c.bats, bat)
	c.rows += bat.RowCount()
	return nil
}

func (c *Collector) end() error {
	c.Lock()
	defer c.Unlock()
	c.ended++
	return nil
}

// Batches returns the collected batches in arrival order.
func (c *Collector) Batches() []*batch.Batch {
	c.Lock()
	defer c.Unlock()
	return append([]*batch.Batch(nil), c.bats...)
}

func (c *Collector) RowCount() int {
	c.Lock()
	defer c.Unlock()
	return c.rows
}

// Done reports whether every lane saw the end of its input.
func (c *Collector) Done() bool {
	c.Lock()
	defer c.Unlock()
	return c.lanes > 0 && c.ended == c.lanes
}
