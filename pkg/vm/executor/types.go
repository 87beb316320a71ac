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

package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

// SchedulePolicy decides which ready processor a free worker takes next.
type SchedulePolicy int

const (
	// ScheduleFIFO runs processors in the order they became ready.
	ScheduleFIFO SchedulePolicy = iota
	// ScheduleCPUTime runs the processor with the least accumulated cpu
	// time first, ties in the order they became ready.
	ScheduleCPUTime
)

// DefaultNoProgressLimit is the number of consecutive Ready reports without
// any port activity after which a processor is considered stuck.
const DefaultNoProgressLimit = 100000

type Options struct {
	// MaxThreads caps the worker pool. Zero takes the largest value set on
	// the pipelines, and the number of cpus if none is set.
	MaxThreads int
	Policy     SchedulePolicy
	// NoProgressLimit zero means DefaultNoProgressLimit, negative disables
	// the check.
	NoProgressLimit int
	// Profiles receives one profile per processor. A private registry is
	// used when nil.
	Profiles *process.SharedProfiles
}

type nodeStatus int

const (
	nodeIdle nodeStatus = iota
	nodeQueued
	nodeRunning
	nodeAsync
	nodeFinished
)

// node wraps one processor of the running graph. mu guards the status and
// serializes every call into the processor.
type node struct {
	mu sync.Mutex

	id        int
	proc      pipeline.Processor
	profile   *process.Profile
	neighbors []*node

	status    nodeStatus
	lastEvent pipeline.Event

	readyStreak  int
	readyVersion uint64
	stalled      int
}

// ProcessorState describes a processor at the time it was asked.
type ProcessorState struct {
	ID        int
	Name      string
	Finished  bool
	LastEvent pipeline.Event
}

// runQueue holds processors that are ready to run.
type runQueue interface {
	push(n *node)
	// pop blocks until a processor is ready or the queue is closed.
	pop() (*node, bool)
	close()
	len() int
}

// PipelineExecutor drives a set of pipelines to completion on a bounded
// worker pool.
type PipelineExecutor struct {
	pipelines []*pipeline.Pipeline
	nodes     []*node
	profiles  *process.SharedProfiles
	threads   int
	limit     int
	queue     runQueue
	logger    *zap.Logger

	started  atomic.Bool
	inflight atomic.Int64
	finished atomic.Int64

	workers sync.WaitGroup
	asyncWG sync.WaitGroup

	mu sync.Mutex
	// parent is the caller's context, ctx the run context derived from it.
	parent      context.Context
	ctx         context.Context
	cancelCtx   context.CancelFunc
	closed      bool
	interrupted bool
	err         error
	done        chan struct{}
}
