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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/testutil/leakcheck"
	v2 "github.com/matrixorigin/mopipeline/pkg/util/metric/v2"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

func makeBatch(rows int) *batch.Batch {
	return batch.NewWithVectors([]string{"a"}, vector.NewVecFromSlice(make([]int64, rows)))
}

type freeRecorder struct {
	freed  atomic.Int32
	failed atomic.Bool
}

func (r *freeRecorder) Free(pipelineFailed bool, err error) {
	r.freed.Add(1)
	r.failed.Store(pipelineFailed)
}

type source struct {
	pipeline.ProcessorBase
	freeRecorder

	out       *pipeline.OutputPort
	batches   int
	rows      int
	made      int
	pending   *batch.Batch
	onProcess func(i int) error
}

func newSource(batches, rows int) func(out *pipeline.OutputPort) (pipeline.Processor, error) {
	return func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return &source{
			ProcessorBase: pipeline.NewProcessorBase("source", nil, []*pipeline.OutputPort{out}),
			out:           out,
			batches:       batches,
			rows:          rows,
		}, nil
	}
}

func (s *source) Event() (pipeline.Event, error) {
	if s.out.IsFinished() {
		return pipeline.EventFinished, nil
	}
	if s.pending != nil {
		if !s.out.CanPush() {
			return pipeline.EventNeedConsume, nil
		}
		if err := s.out.Push(s.pending); err != nil {
			return pipeline.EventFinished, err
		}
		s.pending = nil
	}
	if s.made == s.batches {
		s.out.Finish()
		return pipeline.EventFinished, nil
	}
	if !s.out.CanPush() {
		return pipeline.EventNeedConsume, nil
	}
	return pipeline.EventReady, nil
}

func (s *source) Process() error {
	if s.onProcess != nil {
		if err := s.onProcess(s.made); err != nil {
			return err
		}
	}
	s.pending = makeBatch(s.rows)
	s.made++
	return nil
}

type sink struct {
	pipeline.ProcessorBase
	freeRecorder

	in      *pipeline.InputPort
	pending *batch.Batch
	rows    *atomic.Int64
}

func newSink(rows *atomic.Int64) func(in *pipeline.InputPort) (pipeline.Processor, error) {
	return func(in *pipeline.InputPort) (pipeline.Processor, error) {
		return &sink{
			ProcessorBase: pipeline.NewProcessorBase("sink", []*pipeline.InputPort{in}, nil),
			in:            in,
			rows:          rows,
		}, nil
	}
}

func (s *sink) Event() (pipeline.Event, error) {
	if s.pending != nil {
		return pipeline.EventReady, nil
	}
	if s.in.HasData() {
		s.pending = s.in.Pull()
		return pipeline.EventReady, nil
	}
	if s.in.IsFinished() {
		return pipeline.EventFinished, nil
	}
	s.in.SetNeedData()
	return pipeline.EventNeedData, nil
}

func (s *sink) Process() error {
	s.rows.Add(int64(s.pending.RowCount()))
	s.pending = nil
	return nil
}

// asyncSource fetches every batch in AsyncProcess. With block set it waits
// for the run to be cancelled instead.
type asyncSource struct {
	pipeline.ProcessorBase
	freeRecorder

	out     *pipeline.OutputPort
	batches int
	made    int
	pending *batch.Batch
	block   bool
	started chan struct{}
	once    sync.Once
}

func (s *asyncSource) Event() (pipeline.Event, error) {
	if s.out.IsFinished() {
		return pipeline.EventFinished, nil
	}
	if s.pending != nil {
		if !s.out.CanPush() {
			return pipeline.EventNeedConsume, nil
		}
		if err := s.out.Push(s.pending); err != nil {
			return pipeline.EventFinished, err
		}
		s.pending = nil
		return pipeline.EventNeedConsume, nil
	}
	if s.made == s.batches {
		s.out.Finish()
		return pipeline.EventFinished, nil
	}
	return pipeline.EventAsync, nil
}

func (s *asyncSource) Process() error {
	return nil
}

func (s *asyncSource) AsyncProcess(ctx context.Context) error {
	if s.block {
		s.once.Do(func() { close(s.started) })
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
	}
	s.pending = makeBatch(3)
	s.made++
	return nil
}

func newBlockingPipeline(t *testing.T) (*pipeline.Pipeline, *asyncSource) {
	p := pipeline.New()
	var src *asyncSource
	require.NoError(t, p.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		src = &asyncSource{
			ProcessorBase: pipeline.NewProcessorBase("blocking_source", nil, []*pipeline.OutputPort{out}),
			out:           out,
			batches:       1,
			block:         true,
			started:       make(chan struct{}),
		}
		return src, nil
	}))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))
	return p, src
}

type stuckSource struct {
	pipeline.ProcessorBase
}

func (s *stuckSource) Event() (pipeline.Event, error) { return pipeline.EventNeedConsume, nil }
func (s *stuckSource) Process() error                 { return nil }

// spinner reports Ready without touching its port until it spun enough.
type spinner struct {
	pipeline.ProcessorBase
	out   *pipeline.OutputPort
	spins int
	limit int
}

func (s *spinner) Event() (pipeline.Event, error) {
	if s.spins >= s.limit {
		s.out.Finish()
		return pipeline.EventFinished, nil
	}
	return pipeline.EventReady, nil
}

func (s *spinner) Process() error {
	s.spins++
	return nil
}

func TestExecuteSourceToSink(t *testing.T) {
	defer leakcheck.AfterTest(t)()

	succeeded := testutil.ToFloat64(v2.PipelineRunSucceededCounter)
	p := pipeline.New()
	require.NoError(t, p.AddSource(4, newSource(10, 7)))
	require.NoError(t, p.Resize(2))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))

	var finishedErr error
	called := 0
	p.SetOnFinished(func(err error) {
		called++
		finishedErr = err
	})

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{MaxThreads: 3})
	require.NoError(t, err)
	require.Equal(t, 3, e.Threads())
	require.NoError(t, e.Execute(context.Background()))
	require.Equal(t, int64(4*10*7), rows.Load())
	require.Equal(t, 1, called)
	require.NoError(t, finishedErr)
	require.Equal(t, succeeded+1, testutil.ToFloat64(v2.PipelineRunSucceededCounter))

	for _, proc := range p.Processors() {
		switch x := proc.(type) {
		case *source:
			require.Equal(t, int32(1), x.freed.Load())
			require.False(t, x.failed.Load())
		case *sink:
			require.Equal(t, int32(1), x.freed.Load())
		}
	}
	for _, st := range e.ProcessorStates() {
		require.True(t, st.Finished, st.Name)
		require.Equal(t, pipeline.EventFinished, st.LastEvent)
	}

	snaps := e.Profiles()
	require.Len(t, snaps, len(p.Processors()))
	for _, s := range snaps {
		if s.ProcessorName == "source" {
			require.Equal(t, int64(10), s.CallCount)
		}
	}
}

func TestExecuteMultiplePipelines(t *testing.T) {
	var rows atomic.Int64
	var pipes []*pipeline.Pipeline
	for i := 0; i < 3; i++ {
		p := pipeline.New()
		require.NoError(t, p.AddSource(2, newSource(5, 2)))
		require.NoError(t, p.AddSink(newSink(&rows)))
		pipes = append(pipes, p)
	}
	profiles := process.NewSharedProfiles()
	e, err := NewPipelineExecutor(pipes, Options{MaxThreads: 1, Policy: ScheduleCPUTime, Profiles: profiles})
	require.NoError(t, err)
	require.NoError(t, e.Execute(context.Background()))
	require.Equal(t, int64(3*2*5*2), rows.Load())
	require.Equal(t, 12, profiles.Len())
}

func TestThreadsDefaults(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(1, newSource(1, 1)))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))
	p.SetMaxThreads(16)

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)
	// never more workers than processors
	require.Equal(t, 2, e.Threads())
	require.NoError(t, e.Execute(context.Background()))
}

func TestNewPipelineExecutorRejectsBadGraphs(t *testing.T) {
	_, err := NewPipelineExecutor(nil, Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineConstruct))

	incomplete := pipeline.New()
	require.NoError(t, incomplete.AddSource(1, newSource(1, 1)))
	_, err = NewPipelineExecutor([]*pipeline.Pipeline{incomplete}, Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineConstruct))

	p := pipeline.New()
	require.NoError(t, p.AddSource(1, newSource(1, 1)))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))
	_, err = NewPipelineExecutor([]*pipeline.Pipeline{p, p}, Options{})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineConstruct))
}

func TestExecuteTwice(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(1, newSource(1, 1)))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))
	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)
	require.NoError(t, e.Execute(context.Background()))
	err = e.Execute(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))
}

func TestProcessorError(t *testing.T) {
	failed := testutil.ToFloat64(v2.PipelineRunFailedCounter)
	boom := errors.New("boom")
	p := pipeline.New()
	lane := 0
	require.NoError(t, p.AddSource(4, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		proc, _ := newSource(100, 1)(out)
		if lane == 2 {
			proc.(*source).onProcess = func(i int) error {
				if i == 3 {
					return boom
				}
				return nil
			}
		}
		lane++
		return proc, nil
	}))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{MaxThreads: 2})
	require.NoError(t, err)
	err = e.Execute(context.Background())
	require.Error(t, err)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrProcessorFailed))
	require.ErrorIs(t, err, boom)
	require.Equal(t, failed+1, testutil.ToFloat64(v2.PipelineRunFailedCounter))

	for _, proc := range p.Processors() {
		switch x := proc.(type) {
		case *source:
			require.Equal(t, int32(1), x.freed.Load())
			require.True(t, x.failed.Load())
		case *sink:
			require.Equal(t, int32(1), x.freed.Load())
			require.True(t, x.failed.Load())
		}
	}
	for _, st := range e.ProcessorStates() {
		require.True(t, st.Finished)
	}
}

func TestProcessorPanic(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		proc, _ := newSource(5, 1)(out)
		proc.(*source).onProcess = func(i int) error {
			if i == 1 {
				panic("unexpected")
			}
			return nil
		}
		return proc, nil
	}))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)
	err = e.Execute(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrProcessorFailed))
	require.ErrorIs(t, err, moerr.NewInternalErrorNoCtx(""))
}

func TestDeadlock(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return &stuckSource{ProcessorBase: pipeline.NewProcessorBase("stuck", nil, []*pipeline.OutputPort{out})}, nil
	}))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)
	err = e.Execute(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineDeadlock))
	require.Contains(t, err.Error(), "stuck(0)")
}

func TestNoProgress(t *testing.T) {
	build := func(spins int) *pipeline.Pipeline {
		p := pipeline.New()
		require.NoError(t, p.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
			return &spinner{
				ProcessorBase: pipeline.NewProcessorBase("spinner", nil, []*pipeline.OutputPort{out}),
				out:           out,
				limit:         spins,
			}, nil
		}))
		var rows atomic.Int64
		require.NoError(t, p.AddSink(newSink(&rows)))
		return p
	}

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{build(50)}, Options{NoProgressLimit: 10})
	require.NoError(t, err)
	err = e.Execute(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNoProgress))

	e, err = NewPipelineExecutor([]*pipeline.Pipeline{build(50)}, Options{NoProgressLimit: -1})
	require.NoError(t, err)
	require.NoError(t, e.Execute(context.Background()))

	e, err = NewPipelineExecutor([]*pipeline.Pipeline{build(50)}, Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultNoProgressLimit, e.limit)
	require.NoError(t, e.Execute(context.Background()))
}

func TestAsyncProcessor(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(3, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return &asyncSource{
			ProcessorBase: pipeline.NewProcessorBase("async_source", nil, []*pipeline.OutputPort{out}),
			out:           out,
			batches:       4,
		}, nil
	}))
	require.NoError(t, p.Resize(1))
	var rows atomic.Int64
	require.NoError(t, p.AddSink(newSink(&rows)))

	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{MaxThreads: 1})
	require.NoError(t, err)
	require.NoError(t, e.Execute(context.Background()))
	require.Equal(t, int64(3*4*3), rows.Load())

	for _, s := range e.Profiles() {
		if s.ProcessorName == "async_source" {
			require.Positive(t, s.WaitTime)
		}
	}
}

func TestCancelDuringRun(t *testing.T) {
	defer leakcheck.AfterTest(t)()

	interrupted := testutil.ToFloat64(v2.PipelineRunInterruptedCounter)
	p, src := newBlockingPipeline(t)
	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)

	errC := make(chan error, 1)
	go func() { errC <- e.Execute(context.Background()) }()
	<-src.started
	e.Cancel()
	e.Cancel()

	err = <-errC
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrQueryInterrupted))
	require.Equal(t, int32(1), src.freed.Load())
	require.True(t, src.failed.Load())
	require.Equal(t, interrupted+1, testutil.ToFloat64(v2.PipelineRunInterruptedCounter))

	// cancelling a finished run does nothing
	e.Cancel()
}

func TestCancelBeforeExecute(t *testing.T) {
	p, src := newBlockingPipeline(t)
	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)
	e.Cancel()
	err = e.Execute(context.Background())
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrQueryInterrupted))
	require.Equal(t, int32(1), src.freed.Load())
}

func TestParentContextCancel(t *testing.T) {
	// the blocked source sees the run context die before the watcher
	// goroutine cancels the executor, repeat to cover both orders
	for i := 0; i < 20; i++ {
		p, src := newBlockingPipeline(t)
		e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errC := make(chan error, 1)
		go func() { errC <- e.Execute(ctx) }()
		<-src.started
		cancel()

		select {
		case err = <-errC:
		case <-time.After(10 * time.Second):
			t.Fatal("executor did not observe the cancelled context")
		}
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrQueryInterrupted), "got %v", err)
		require.False(t, moerr.IsMoErrCode(err, moerr.ErrProcessorFailed))
	}
}

func TestProcessorErrorAfterParentCancel(t *testing.T) {
	p, _ := newBlockingPipeline(t)
	e, err := NewPipelineExecutor([]*pipeline.Pipeline{p}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.mu.Lock()
	e.parent = ctx
	e.mu.Unlock()
	e.fail(e.nodes[0], context.Canceled)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.True(t, e.interrupted)
	require.True(t, moerr.IsMoErrCode(e.err, moerr.ErrQueryInterrupted))
}
