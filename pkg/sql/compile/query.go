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

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/logutil"
	"github.com/matrixorigin/mopipeline/pkg/vm/executor"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

// NewQuery prepares a run of result. Nothing runs before Run.
func NewQuery(result *PipelineBuildResult, opts RunOptions) *Query {
	if result.Profiles == nil {
		result.Profiles = process.NewSharedProfiles()
	}
	return &Query{
		id:     uuid.New().String(),
		result: result,
		opts:   opts,
	}
}

func (q *Query) ID() string {
	return q.id
}

// Run drives every pipeline of the result to completion and returns the
// first error. A cancelled query returns a query interrupted error. Run
// may be called once.
func (q *Query) Run(ctx context.Context) error {
	ctx = logutil.WithQueryID(ctx, q.id)
	q.mu.Lock()
	if q.ran {
		q.mu.Unlock()
		return moerr.NewInvalidState(ctx, "query %s already ran", q.id)
	}
	q.ran = true
	q.mu.Unlock()

	if err := q.result.Validate(); err != nil {
		return err
	}
	if q.opts.MaxThreads > 0 {
		q.result.SetMaxThreads(q.opts.MaxThreads)
	}

	exec, err := executor.NewPipelineExecutor(q.result.Pipelines(), executor.Options{
		MaxThreads:      q.opts.MaxThreads,
		Policy:          q.opts.Policy,
		NoProgressLimit: q.opts.NoProgressLimit,
		Profiles:        q.result.Profiles,
	})
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.exec = exec
	cancelled := q.cancelled
	q.mu.Unlock()
	if cancelled {
		exec.Cancel()
	}

	logutil.Ctx(ctx).Debug("query start", zap.Stringer("pipeline", q.result.MainPipeline))
	err = exec.Execute(ctx)

	q.mu.Lock()
	q.profiles = q.result.Profiles.Drain()
	q.mu.Unlock()
	return err
}

// Cancel stops the query. It is safe to call any number of times, before,
// during or after Run.
func (q *Query) Cancel() {
	q.mu.Lock()
	q.cancelled = true
	exec := q.exec
	q.mu.Unlock()
	if exec != nil {
		exec.Cancel()
	}
}

// Profiles returns the per processor counters. During a run they are as of
// the last step of each processor, afterwards the final values.
func (q *Query) Profiles() []process.ProfileSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.profiles != nil {
		return q.profiles
	}
	return q.result.Profiles.Snapshot()
}

// Run runs result to completion.
func Run(ctx context.Context, result *PipelineBuildResult, opts RunOptions) error {
	return NewQuery(result, opts).Run(ctx)
}

// RunFragments runs the fragments of a distributed query side by side. The
// first failure cancels the other fragments.
func RunFragments(ctx context.Context, queries ...*Query) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			return q.Run(gctx)
		})
	}
	return g.Wait()
}
