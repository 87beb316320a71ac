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

	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

// Stringer is implemented by every operator, including the exchange
// endpoints that are not wrapped as operators.
type Stringer interface {
	String(buf *bytes.Buffer)
}

// String renders op the way plans are printed.
func String(op Stringer) string {
	var buf bytes.Buffer
	op.String(&buf)
	return buf.String()
}

func checkGraph(op any) error {
	if c, ok := op.(pipeline.GraphChecker); ok {
		return c.CheckGraph()
	}
	return nil
}

func free(op any, pipelineFailed bool, err error) {
	if r, ok := op.(pipeline.Releaser); ok {
		r.Free(pipelineFailed, err)
	}
}

func NewTransformer(name string, in *pipeline.InputPort, out *pipeline.OutputPort, op TransformOperator) *Transformer {
	return &Transformer{
		ProcessorBase: pipeline.NewProcessorBase(name, []*pipeline.InputPort{in}, []*pipeline.OutputPort{out}),
		op:            op,
		in:            in,
		out:           out,
	}
}

func (t *Transformer) Operator() TransformOperator {
	return t.op
}

func (t *Transformer) Event() (pipeline.Event, error) {
	if t.out.IsFinished() {
		t.in.Finish()
		return pipeline.EventFinished, nil
	}
	if !t.out.CanPush() {
		t.in.SetNotNeedData()
		return pipeline.EventNeedConsume, nil
	}
	if t.outputData != nil {
		if err := t.out.Push(t.outputData); err != nil {
			return pipeline.EventFinished, err
		}
		t.outputData = nil
		if t.exhausted() {
			t.in.Finish()
			t.out.Finish()
			return pipeline.EventFinished, nil
		}
		return pipeline.EventNeedConsume, nil
	}
	if t.exhausted() {
		t.in.Finish()
		t.out.Finish()
		return pipeline.EventFinished, nil
	}
	if t.inputData != nil {
		return pipeline.EventReady, nil
	}
	if t.in.HasData() {
		t.inputData = t.in.Pull()
		return pipeline.EventReady, nil
	}
	if t.in.IsFinished() {
		t.out.Finish()
		return pipeline.EventFinished, nil
	}
	t.in.SetNeedData()
	return pipeline.EventNeedData, nil
}

func (t *Transformer) Process() error {
	if !t.prepared {
		if err := t.op.Prepare(); err != nil {
			return err
		}
		t.prepared = true
	}
	bat := t.inputData
	t.inputData = nil
	if bat == nil {
		return nil
	}
	out, err := t.op.Transform(bat)
	if err != nil {
		return err
	}
	if !out.IsEmpty() {
		t.outputData = out
	}
	return nil
}

func (t *Transformer) CheckGraph() error {
	return checkGraph(t.op)
}

func (t *Transformer) Free(pipelineFailed bool, err error) {
	t.inputData, t.outputData = nil, nil
	free(t.op, pipelineFailed, err)
}

func (t *Transformer) exhausted() bool {
	if ex, ok := t.op.(Exhauster); ok {
		return ex.Exhausted()
	}
	return false
}

func NewBlockingTransformer(name string, in *pipeline.InputPort, out *pipeline.OutputPort, op BlockingOperator) *BlockingTransformer {
	return &BlockingTransformer{
		ProcessorBase: pipeline.NewProcessorBase(name, []*pipeline.InputPort{in}, []*pipeline.OutputPort{out}),
		op:            op,
		in:            in,
		out:           out,
	}
}

func (t *BlockingTransformer) Operator() BlockingOperator {
	return t.op
}

func (t *BlockingTransformer) Event() (pipeline.Event, error) {
	if t.out.IsFinished() {
		t.in.Finish()
		return pipeline.EventFinished, nil
	}
	if !t.out.CanPush() {
		t.in.SetNotNeedData()
		return pipeline.EventNeedConsume, nil
	}
	if len(t.outputs) > 0 {
		if err := t.out.Push(t.outputs[0]); err != nil {
			return pipeline.EventFinished, err
		}
		t.outputs = t.outputs[1:]
		if len(t.outputs) == 0 {
			t.out.Finish()
			return pipeline.EventFinished, nil
		}
		return pipeline.EventNeedConsume, nil
	}
	if t.flushed {
		t.out.Finish()
		return pipeline.EventFinished, nil
	}
	if t.inputData != nil || t.needFlush {
		return pipeline.EventReady, nil
	}
	if t.in.HasData() {
		t.inputData = t.in.Pull()
		return pipeline.EventReady, nil
	}
	if t.in.IsFinished() {
		t.needFlush = true
		return pipeline.EventReady, nil
	}
	t.in.SetNeedData()
	return pipeline.EventNeedData, nil
}

func (t *BlockingTransformer) Process() error {
	if !t.prepared {
		if err := t.op.Prepare(); err != nil {
			return err
		}
		t.prepared = true
	}
	if bat := t.inputData; bat != nil {
		t.inputData = nil
		return t.op.Consume(bat)
	}
	if t.needFlush && !t.flushed {
		bats, err := t.op.Flush()
		if err != nil {
			return err
		}
		for _, bat := range bats {
			if !bat.IsEmpty() {
				t.outputs = append(t.outputs, bat)
			}
		}
		t.flushed = true
	}
	return nil
}

func (t *BlockingTransformer) Free(pipelineFailed bool, err error) {
	t.inputData, t.outputs = nil, nil
	free(t.op, pipelineFailed, err)
}

func NewSyncSource(name string, out *pipeline.OutputPort, op SourceOperator) *SyncSource {
	return &SyncSource{
		ProcessorBase: pipeline.NewProcessorBase(name, nil, []*pipeline.OutputPort{out}),
		op:            op,
		out:           out,
	}
}

func (s *SyncSource) Operator() SourceOperator {
	return s.op
}

func (s *SyncSource) Event() (pipeline.Event, error) {
	if s.out.IsFinished() {
		return pipeline.EventFinished, nil
	}
	if !s.out.CanPush() {
		return pipeline.EventNeedConsume, nil
	}
	if s.pending != nil {
		if err := s.out.Push(s.pending); err != nil {
			return pipeline.EventFinished, err
		}
		s.pending = nil
		return pipeline.EventNeedConsume, nil
	}
	if s.done {
		s.out.Finish()
		return pipeline.EventFinished, nil
	}
	return pipeline.EventReady, nil
}

func (s *SyncSource) Process() error {
	if !s.prepared {
		if err := s.op.Prepare(); err != nil {
			return err
		}
		s.prepared = true
	}
	bat, err := s.op.Generate()
	if err != nil {
		return err
	}
	if bat == nil {
		s.done = true
		return nil
	}
	if !bat.IsEmpty() {
		s.pending = bat
	}
	return nil
}

func (s *SyncSource) Free(pipelineFailed bool, err error) {
	s.pending = nil
	free(s.op, pipelineFailed, err)
}

func NewSink(name string, in *pipeline.InputPort, op SinkOperator) *Sink {
	return &Sink{
		ProcessorBase: pipeline.NewProcessorBase(name, []*pipeline.InputPort{in}, nil),
		op:            op,
		in:            in,
	}
}

func (s *Sink) Operator() SinkOperator {
	return s.op
}

func (s *Sink) Event() (pipeline.Event, error) {
	if s.finished {
		s.in.Finish()
		return pipeline.EventFinished, nil
	}
	if s.inputData != nil {
		return pipeline.EventReady, nil
	}
	if s.in.HasData() {
		s.inputData = s.in.Pull()
		return pipeline.EventReady, nil
	}
	if s.in.IsFinished() {
		s.finishing = true
		return pipeline.EventReady, nil
	}
	s.in.SetNeedData()
	return pipeline.EventNeedData, nil
}

func (s *Sink) Process() error {
	if !s.prepared {
		if err := s.op.Prepare(); err != nil {
			return err
		}
		s.prepared = true
	}
	if bat := s.inputData; bat != nil {
		s.inputData = nil
		return s.op.Consume(bat)
	}
	if s.finishing && !s.finished {
		if err := s.op.OnFinish(); err != nil {
			return err
		}
		s.finished = true
	}
	return nil
}

func (s *Sink) CheckGraph() error {
	return checkGraph(s.op)
}

func (s *Sink) Free(pipelineFailed bool, err error) {
	s.inputData = nil
	free(s.op, pipelineFailed, err)
}
