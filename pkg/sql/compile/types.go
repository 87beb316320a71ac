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

package compile

import (
	"context"
	"sync"
	"time"

	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/vm/executor"
	"github.com/matrixorigin/mopipeline/pkg/vm/message"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

// Exchange describes one fragment boundary.
type Exchange struct {
	// FragmentID correlates the senders and receivers of the boundary.
	FragmentID string
	Kind       exchange.PartitionKind
	// KeyColumns are hashed by a Hash exchange.
	KeyColumns []int32
	// Senders are the producing nodes, Receivers the consuming nodes.
	Senders   []string
	Receivers []string
	// SenderLanes is the number of dispatch lanes each sender runs.
	SenderLanes int
}

// ExchangeInjector rewrites fragment boundaries while pipelines are built.
type ExchangeInjector interface {
	// IsLocal reports whether both sides of ex run in this pipeline.
	IsLocal(ex *Exchange) bool
	// InjectSink terminates the producing side p at the boundary.
	InjectSink(ctx context.Context, p *pipeline.Pipeline, ex *Exchange) error
	// InjectSource starts the consuming side p with width lanes.
	InjectSource(ctx context.Context, p *pipeline.Pipeline, ex *Exchange, width int) error
}

// DefaultExchangeInjector keeps every boundary local.
type DefaultExchangeInjector struct{}

// RemoteExchangeInjector turns boundaries into transport links as seen
// from LocalNode.
type RemoteExchangeInjector struct {
	Transport   exchange.Transport
	LocalNode   string
	Compress    bool
	RecvTimeout time.Duration
}

// BuilderData is state shared between the pipelines of one build.
type BuilderData struct {
	InputJoinState *message.JoinBuildState
}

// PipelineBuildResult is what the planner hands to the executor.
type PipelineBuildResult struct {
	MainPipeline     *pipeline.Pipeline
	SourcesPipelines []*pipeline.Pipeline
	ExchangeInjector ExchangeInjector
	BuilderData      BuilderData
	Profiles         *process.SharedProfiles
}

type RunOptions struct {
	MaxThreads      int
	Policy          executor.SchedulePolicy
	NoProgressLimit int
}

// Query is one run of a build result.
type Query struct {
	id     string
	result *PipelineBuildResult
	opts   RunOptions

	mu        sync.Mutex
	ran       bool
	exec      *executor.PipelineExecutor
	cancelled bool
	profiles  []process.ProfileSnapshot
}
