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
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/logutil"
	v2 "github.com/matrixorigin/mopipeline/pkg/util/metric/v2"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

// NewPipelineExecutor validates pipelines and builds the running graph. All
// construction problems are reported here, before anything runs.
func NewPipelineExecutor(pipelines []*pipeline.Pipeline, opts Options) (*PipelineExecutor, error) {
	if len(pipelines) == 0 {
		return nil, moerr.NewPipelineConstructNoCtx("no pipeline to execute")
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = process.NewSharedProfiles()
	}
	e := &PipelineExecutor{
		pipelines: pipelines,
		profiles:  profiles,
		queue:     newRunQueue(opts.Policy),
		done:      make(chan struct{}),
		logger:    logutil.GetGlobalLogger(),
	}

	e.limit = opts.NoProgressLimit
	if e.limit == 0 {
		e.limit = DefaultNoProgressLimit
	}

	if err := e.buildGraph(); err != nil {
		return nil, err
	}

	e.threads = opts.MaxThreads
	if e.threads <= 0 {
		for _, p := range pipelines {
			if p.MaxThreads() > e.threads {
				e.threads = p.MaxThreads()
			}
		}
	}
	if e.threads <= 0 {
		e.threads = runtime.NumCPU()
	}
	if e.threads > len(e.nodes) {
		e.threads = len(e.nodes)
	}
	return e, nil
}

func (e *PipelineExecutor) buildGraph() error {
	seen := make(map[pipeline.Processor]struct{})
	producers := make(map[*pipeline.OutputPort]*node)
	consumers := make(map[*pipeline.InputPort]*node)

	for _, p := range e.pipelines {
		if err := p.Validate(); err != nil {
			return err
		}
		for _, proc := range p.Processors() {
			if _, ok := seen[proc]; ok {
				return moerr.NewPipelineConstructNoCtx("processor %s appears twice", proc.Name())
			}
			seen[proc] = struct{}{}

			id := len(e.nodes)
			proc.SetID(id)
			profile, err := e.profiles.Register(id, proc.Name())
			if err != nil {
				return err
			}
			n := &node{id: id, proc: proc, profile: profile}
			e.nodes = append(e.nodes, n)
			for _, out := range proc.Outputs() {
				producers[out] = n
			}
			for _, in := range proc.Inputs() {
				consumers[in] = n
			}
		}
	}

	for _, n := range e.nodes {
		adjacent := make(map[*node]struct{})
		for _, in := range n.proc.Inputs() {
			up, ok := producers[in.Peer()]
			if !ok {
				return moerr.NewPipelineConstructNoCtx("input of %s is driven from outside the run", n.proc.Name())
			}
			adjacent[up] = struct{}{}
		}
		for _, out := range n.proc.Outputs() {
			down, ok := consumers[out.Peer()]
			if !ok {
				return moerr.NewPipelineConstructNoCtx("output of %s feeds a processor outside the run", n.proc.Name())
			}
			adjacent[down] = struct{}{}
		}
		for m := range adjacent {
			if m != n {
				n.neighbors = append(n.neighbors, m)
			}
		}
	}

	for _, n := range e.nodes {
		if c, ok := n.proc.(pipeline.GraphChecker); ok {
			if err := c.CheckGraph(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Threads returns the size of the worker pool.
func (e *PipelineExecutor) Threads() int {
	return e.threads
}

// Profiles returns a snapshot of the profiles of this run.
func (e *PipelineExecutor) Profiles() []process.ProfileSnapshot {
	return e.profiles.Snapshot()
}

// ProcessorStates reports the scheduling state of every processor.
func (e *PipelineExecutor) ProcessorStates() []ProcessorState {
	states := make([]ProcessorState, 0, len(e.nodes))
	for _, n := range e.nodes {
		n.mu.Lock()
		states = append(states, ProcessorState{
			ID:        n.id,
			Name:      n.proc.Name(),
			Finished:  n.status == nodeFinished,
			LastEvent: n.lastEvent,
		})
		n.mu.Unlock()
	}
	return states
}

// Execute runs the graph until every processor finished, one failed, or the
// run is cancelled. It can be called once.
func (e *PipelineExecutor) Execute(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return moerr.NewInvalidState(ctx, "pipeline executor already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.parent, e.ctx, e.cancelCtx = ctx, runCtx, cancel
	if e.closed {
		cancel()
	}
	e.mu.Unlock()

	e.logger = logutil.Ctx(ctx).With(zap.Int("processors", len(e.nodes)), zap.Int("threads", e.threads))
	e.logger.Debug("pipeline executor start")
	start := time.Now()
	v2.PipelineRunningGauge.Inc()
	defer v2.PipelineRunningGauge.Dec()

	go func() {
		select {
		case <-ctx.Done():
			e.Cancel()
		case <-e.done:
		}
	}()

	pool, err := ants.NewPool(e.threads, ants.WithPanicHandler(func(p interface{}) {
		e.fail(nil, moerr.ConvertPanicError(runCtx, p))
	}))
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	// the seed token keeps the run alive until every processor was evaluated
	e.inflight.Add(1)
	for i := 0; i < e.threads; i++ {
		e.workers.Add(1)
		if err := pool.Submit(func() {
			defer e.workers.Done()
			e.workerLoop()
		}); err != nil {
			e.workers.Done()
			e.fail(nil, moerr.ConvertGoError(ctx, err))
			break
		}
	}
	e.scheduleNodes(e.nodes...)
	e.release()

	<-e.done
	e.queue.close()
	e.workers.Wait()
	e.asyncWG.Wait()
	e.finalize()

	e.mu.Lock()
	runErr, interrupted := e.err, e.interrupted
	e.mu.Unlock()

	switch {
	case runErr == nil:
		v2.PipelineRunSucceededCounter.Inc()
		e.logger.Debug("pipeline executor finished", zap.Duration("duration", time.Since(start)))
	case interrupted:
		v2.PipelineRunInterruptedCounter.Inc()
		e.logger.Info("pipeline executor interrupted", zap.Duration("duration", time.Since(start)))
	default:
		v2.PipelineRunFailedCounter.Inc()
		e.logger.Error("pipeline executor failed", zap.Error(runErr), zap.Duration("duration", time.Since(start)))
	}
	return runErr
}

// Cancel stops the run. The first call wins, later calls and calls after
// completion do nothing. Execute returns a query interrupted error.
func (e *PipelineExecutor) Cancel() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.interrupted = true
	e.err = moerr.NewQueryInterruptedNoCtx()
	close(e.done)
	cancel := e.cancelCtx
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.finishAllPorts()
}

func (e *PipelineExecutor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fail records the first error and tears the run down. Errors raised by a
// processor are wrapped with its identity. Once the caller's context is done
// the run counts as interrupted, whatever error a processor observed first.
func (e *PipelineExecutor) fail(n *node, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	switch {
	case e.parent != nil && e.parent.Err() != nil:
		e.interrupted = true
		err = moerr.NewQueryInterruptedNoCtx()
	case n != nil:
		err = moerr.NewProcessorFailed(e.ctx, n.proc.Name(), n.id, err)
	}
	e.closed = true
	e.err = err
	close(e.done)
	cancel := e.cancelCtx
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.finishAllPorts()
}

func (e *PipelineExecutor) finishAllPorts() {
	for _, n := range e.nodes {
		pipeline.FinishPorts(n.proc)
	}
}

func (e *PipelineExecutor) workerLoop() {
	for {
		n, ok := e.queue.pop()
		if !ok {
			return
		}
		e.runNode(n)
	}
}

func (e *PipelineExecutor) runNode(n *node) {
	defer e.release()
	if e.isClosed() {
		return
	}

	// neighbours skip a running node, it re-evaluates itself afterwards
	n.mu.Lock()
	n.status = nodeRunning
	n.mu.Unlock()

	before := pipeline.PortVersion(n.proc)
	tracker := n.profile.StartStep()
	err := e.process(n)
	d := tracker.Stop()
	changed := pipeline.PortVersion(n.proc) != before

	n.mu.Lock()
	n.status = nodeIdle
	n.mu.Unlock()

	v2.ProcessorSyncStepCounter.Inc()
	v2.ProcessorSyncDurationHistogram.Observe(d.Seconds())
	if err != nil {
		e.fail(n, err)
		return
	}
	if changed {
		e.scheduleNodes(append([]*node{n}, n.neighbors...)...)
		return
	}
	e.scheduleNodes(n)
}

func (e *PipelineExecutor) runAsync(n *node, ap pipeline.AsyncProcessor) {
	defer e.asyncWG.Done()
	defer e.release()

	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	before := pipeline.PortVersion(n.proc)
	tracker := n.profile.StartStep()
	err := e.asyncProcess(ctx, ap)
	d := tracker.StopWait()
	changed := pipeline.PortVersion(n.proc) != before
	v2.ProcessorAsyncStepCounter.Inc()
	v2.ProcessorAsyncDurationHistogram.Observe(d.Seconds())

	n.mu.Lock()
	n.status = nodeIdle
	n.mu.Unlock()

	if err != nil {
		e.fail(n, err)
		return
	}
	if changed {
		e.scheduleNodes(append([]*node{n}, n.neighbors...)...)
		return
	}
	e.scheduleNodes(n)
}

// release returns one inflight token. When the last token is returned while
// processors are unfinished, nothing can make progress anymore.
func (e *PipelineExecutor) release() {
	if e.inflight.Add(-1) != 0 {
		return
	}
	if e.finished.Load() == int64(len(e.nodes)) || e.isClosed() {
		return
	}
	e.fail(nil, moerr.NewPipelineDeadlock(moerr.Context(), e.describeStuck()))
}

func (e *PipelineExecutor) describeStuck() string {
	var stuck []string
	for _, n := range e.nodes {
		n.mu.Lock()
		if n.status != nodeFinished {
			stuck = append(stuck, fmt.Sprintf("%s(%d) waiting on %s", n.proc.Name(), n.id, n.lastEvent))
		}
		n.mu.Unlock()
	}
	return strings.Join(stuck, ", ")
}

// scheduleNodes evaluates seeds and, transitively, the neighbours of every
// processor whose ports changed while it was evaluated.
func (e *PipelineExecutor) scheduleNodes(seeds ...*node) {
	work := append([]*node(nil), seeds...)
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if e.isClosed() {
			return
		}
		changed, err := e.evaluate(n)
		if err != nil {
			e.fail(n, err)
			return
		}
		if changed {
			work = append(work, n.neighbors...)
		}
	}
}

func (e *PipelineExecutor) evaluate(n *node) (bool, error) {
	n.mu.Lock()
	if n.status != nodeIdle {
		n.mu.Unlock()
		return false, nil
	}

	before := pipeline.PortVersion(n.proc)
	tracker := n.profile.StartStep()
	ev, err := e.event(n)
	after := pipeline.PortVersion(n.proc)
	changed := before != after
	tracker.StopEvent(changed)
	n.lastEvent = ev
	if err != nil {
		n.mu.Unlock()
		return changed, err
	}

	if ev != pipeline.EventReady {
		n.readyStreak = 0
		n.stalled = 0
	}

	switch ev {
	case pipeline.EventFinished:
		n.status = nodeFinished
		n.mu.Unlock()
		if e.finished.Add(1) == int64(len(e.nodes)) {
			e.complete()
		}
		return true, nil

	case pipeline.EventReady:
		if e.limit > 0 {
			if n.readyStreak > 0 && after == n.readyVersion {
				n.stalled++
			} else {
				n.stalled = 0
			}
			n.readyStreak++
			n.readyVersion = after
			if n.stalled >= e.limit {
				n.mu.Unlock()
				e.fail(nil, moerr.NewNoProgress(moerr.Context(),
					fmt.Sprintf("%s(%d) was ready %d times without port activity", n.proc.Name(), n.id, n.stalled)))
				return changed, nil
			}
		}
		n.status = nodeQueued
		e.inflight.Add(1)
		n.mu.Unlock()
		e.queue.push(n)

	case pipeline.EventAsync:
		ap, ok := n.proc.(pipeline.AsyncProcessor)
		if !ok {
			n.mu.Unlock()
			return changed, moerr.NewInvalidStateNoCtx("%s reported Async without AsyncProcess", n.proc.Name())
		}
		n.status = nodeAsync
		e.inflight.Add(1)
		e.asyncWG.Add(1)
		n.mu.Unlock()
		go e.runAsync(n, ap)

	default:
		n.mu.Unlock()
	}
	return changed, nil
}

func (e *PipelineExecutor) complete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
}

func (e *PipelineExecutor) event(n *node) (ev pipeline.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = pipeline.EventFinished, moerr.ConvertPanicError(moerr.Context(), r)
		}
	}()
	return n.proc.Event()
}

func (e *PipelineExecutor) process(n *node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = moerr.ConvertPanicError(moerr.Context(), r)
		}
	}()
	return n.proc.Process()
}

func (e *PipelineExecutor) asyncProcess(ctx context.Context, ap pipeline.AsyncProcessor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = moerr.ConvertPanicError(ctx, r)
		}
	}()
	return ap.AsyncProcess(ctx)
}

// finalize runs once workers and async steps are drained. Processors left
// unfinished by a failed run get a last chance to observe their finished
// ports, then everything is freed.
func (e *PipelineExecutor) finalize() {
	e.mu.Lock()
	runErr := e.err
	e.mu.Unlock()
	failed := runErr != nil

	for _, n := range e.nodes {
		n.mu.Lock()
		if n.status != nodeFinished {
			ev, err := e.event(n)
			n.lastEvent = ev
			if ev != pipeline.EventFinished || err != nil {
				e.logger.Debug("processor did not finish after cancellation",
					zap.String("processor", n.proc.Name()), zap.Int("id", n.id), zap.Stringer("event", ev), zap.Error(err))
			}
			n.status = nodeFinished
		}
		n.mu.Unlock()
		e.free(n, failed, runErr)
	}
	for _, p := range e.pipelines {
		p.OnFinished(runErr)
	}
}

func (e *PipelineExecutor) free(n *node, failed bool, err error) {
	r, ok := n.proc.(pipeline.Releaser)
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("free processor panic", zap.String("processor", n.proc.Name()), zap.Any("panic", p))
		}
	}()
	r.Free(failed, err)
}
