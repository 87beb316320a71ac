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

package colexec

import (
	"bytes"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

// Operator is the part every operator shares.
type Operator interface {
	String(buf *bytes.Buffer)
	// Prepare runs once, in the first step of the processor.
	Prepare() error
}

// TransformOperator maps each input batch to at most one output batch.
type TransformOperator interface {
	Operator
	// Transform returns nil when the batch produces no output.
	Transform(bat *batch.Batch) (*batch.Batch, error)
}

// Exhauster is implemented by transform operators that can stop before
// their input ends, like limit.
type Exhauster interface {
	Exhausted() bool
}

// BlockingOperator consumes its whole input before emitting anything.
type BlockingOperator interface {
	Operator
	Consume(bat *batch.Batch) error
	// Flush is called once after the input finished.
	Flush() ([]*batch.Batch, error)
}

// SourceOperator produces batches until it returns nil.
type SourceOperator interface {
	Operator
	Generate() (*batch.Batch, error)
}

// SinkOperator consumes batches, OnFinish is called once the input ends.
type SinkOperator interface {
	Operator
	Consume(bat *batch.Batch) error
	OnFinish() error
}

// Transformer runs a TransformOperator between one input and one output.
type Transformer struct {
	pipeline.ProcessorBase

	op         TransformOperator
	in         *pipeline.InputPort
	out        *pipeline.OutputPort
	prepared   bool
	inputData  *batch.Batch
	outputData *batch.Batch
}

// BlockingTransformer runs a BlockingOperator between one input and one
// output.
type BlockingTransformer struct {
	pipeline.ProcessorBase

	op        BlockingOperator
	in        *pipeline.InputPort
	out       *pipeline.OutputPort
	prepared  bool
	inputData *batch.Batch
	needFlush bool
	flushed   bool
	outputs   []*batch.Batch
}

// SyncSource runs a SourceOperator on one output.
type SyncSource struct {
	pipeline.ProcessorBase

	op       SourceOperator
	out      *pipeline.OutputPort
	prepared bool
	pending  *batch.Batch
	done     bool
}

// Sink runs a SinkOperator on one input.
type Sink struct {
	pipeline.ProcessorBase

	op        SinkOperator
	in        *pipeline.InputPort
	prepared  bool
	inputData *batch.Batch
	finishing bool
	finished  bool
}
