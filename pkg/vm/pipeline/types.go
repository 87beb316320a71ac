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

package pipeline

import (
	"context"
	"sync"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

// PortState is the state of the slot shared by a connected port pair.
type PortState int32

const (
	PortEmpty PortState = iota
	PortHasData
	PortNeedData
	PortFinished
)

// Event is what a processor reports when asked what it needs next.
type Event int

const (
	// EventNeedData the processor waits for an upstream unit.
	EventNeedData Event = iota
	// EventNeedConsume the processor waits for downstream to drain its output.
	EventNeedConsume
	// EventReady the processor has bounded synchronous work for a worker.
	EventReady
	// EventAsync the processor must wait on something outside the graph.
	EventAsync
	// EventFinished the processor is done and has finished all its ports.
	EventFinished
)

// Processor is one node of the execution graph.
//
// Event is called by the scheduler to learn what the processor needs next; it
// may move data across ports but must not block or do heavy work. Process runs
// one bounded unit of work and is only called after Event returned EventReady.
// Event and Process of one processor are never called concurrently.
type Processor interface {
	Name() string
	ID() int
	SetID(id int)
	Inputs() []*InputPort
	Outputs() []*OutputPort

	Event() (Event, error)
	Process() error
}

// AsyncProcessor is implemented by processors that return EventAsync. The
// call runs outside the worker pool and must return once ctx is done.
type AsyncProcessor interface {
	Processor
	AsyncProcess(ctx context.Context) error
}

// GraphChecker is implemented by processors sharing state with other
// processors. CheckGraph runs once the whole graph of a run is known.
type GraphChecker interface {
	CheckGraph() error
}

// Releaser is implemented by processors that hold resources. Free is called
// exactly once when the run ends, successful or not.
type Releaser interface {
	Free(pipelineFailed bool, err error)
}

// ProcessorBase carries the identity and ports of a processor. It holds no
// scheduling state.
type ProcessorBase struct {
	id      int
	name    string
	inputs  []*InputPort
	outputs []*OutputPort
}

type portSlot struct {
	sync.Mutex
	data     *batch.Batch
	needData bool
	finished bool
	version  uint64

	in  *InputPort
	out *OutputPort
}

// InputPort is the consumer end of a port.
type InputPort struct {
	slot *portSlot
}

// OutputPort is the producer end of a port.
type OutputPort struct {
	slot *portSlot
}

// Pipe is one stage of a pipeline: a set of parallel lanes whose processors
// all have the same input and output arity.
type Pipe struct {
	processors []Processor
	inputs     []*InputPort
	outputs    []*OutputPort
}

// Pipeline is an ordered list of pipes, connected lane by lane.
type Pipeline struct {
	pipes      []*Pipe
	maxThreads int
	onFinished []func(err error)
}
