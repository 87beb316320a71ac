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
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
)

func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) IsEmpty() bool {
	return len(p.pipes) == 0
}

// IsComplete reports whether the pipeline ends in sinks.
func (p *Pipeline) IsComplete() bool {
	return !p.IsEmpty() && p.OutputLen() == 0
}

// OutputLen is the number of open output ports of the last pipe.
func (p *Pipeline) OutputLen() int {
	if p.IsEmpty() {
		return 0
	}
	return p.pipes[len(p.pipes)-1].OutputLen()
}

func (p *Pipeline) Pipes() []*Pipe {
	return p.pipes
}

func (p *Pipeline) Processors() []Processor {
	var procs []Processor
	for _, pipe := range p.pipes {
		procs = append(procs, pipe.processors...)
	}
	return procs
}

// InputPorts returns the ports feeding the first pipe.
func (p *Pipeline) InputPorts() []*InputPort {
	if p.IsEmpty() {
		return nil
	}
	return p.pipes[0].inputs
}

// OutputPorts returns the open outputs of the last pipe.
func (p *Pipeline) OutputPorts() []*OutputPort {
	if p.IsEmpty() {
		return nil
	}
	return p.pipes[len(p.pipes)-1].outputs
}

// AddPipe appends pipe, connecting lane i of the current tail to input i of
// pipe.
func (p *Pipeline) AddPipe(pipe *Pipe) error {
	if p.IsEmpty() {
		p.pipes = append(p.pipes, pipe)
		return nil
	}
	if p.IsComplete() {
		return moerr.NewPipelineConstructNoCtx("add pipe to a pipeline that ends in sinks")
	}
	outs := p.OutputPorts()
	if len(outs) != pipe.InputLen() {
		return moerr.NewPipelineConstructNoCtx("pipe with %d inputs cannot follow %d outputs", pipe.InputLen(), len(outs))
	}
	for i, out := range outs {
		if err := Connect(out, pipe.inputs[i]); err != nil {
			return err
		}
	}
	p.pipes = append(p.pipes, pipe)
	return nil
}

// AddSource starts an empty pipeline with n source lanes.
func (p *Pipeline) AddSource(n int, fn func(out *OutputPort) (Processor, error)) error {
	if !p.IsEmpty() {
		return moerr.NewPipelineConstructNoCtx("add source to a non-empty pipeline")
	}
	procs := make([]Processor, 0, n)
	for i := 0; i < n; i++ {
		proc, err := fn(NewOutputPort())
		if err != nil {
			return err
		}
		procs = append(procs, proc)
	}
	pipe, err := NewPipe(procs...)
	if err != nil {
		return err
	}
	return p.AddPipe(pipe)
}

// AddTransform appends one 1:1 processor per lane.
func (p *Pipeline) AddTransform(fn func(in *InputPort, out *OutputPort) (Processor, error)) error {
	n := p.OutputLen()
	if n == 0 {
		return moerr.NewPipelineConstructNoCtx("add transform to a pipeline without outputs")
	}
	procs := make([]Processor, 0, n)
	for i := 0; i < n; i++ {
		proc, err := fn(NewInputPort(), NewOutputPort())
		if err != nil {
			return err
		}
		procs = append(procs, proc)
	}
	pipe, err := NewPipe(procs...)
	if err != nil {
		return err
	}
	return p.AddPipe(pipe)
}

// AddSink terminates every lane with a sink.
func (p *Pipeline) AddSink(fn func(in *InputPort) (Processor, error)) error {
	n := p.OutputLen()
	if n == 0 {
		return moerr.NewPipelineConstructNoCtx("add sink to a pipeline without outputs")
	}
	procs := make([]Processor, 0, n)
	for i := 0; i < n; i++ {
		proc, err := fn(NewInputPort())
		if err != nil {
			return err
		}
		procs = append(procs, proc)
	}
	pipe, err := NewPipe(procs...)
	if err != nil {
		return err
	}
	return p.AddPipe(pipe)
}

// Resize changes the number of lanes to n, spreading units round robin.
func (p *Pipeline) Resize(n int) error {
	m := p.OutputLen()
	if m == 0 || n <= 0 {
		return moerr.NewPipelineConstructNoCtx("resize %d lanes to %d", m, n)
	}
	if m == n {
		return nil
	}
	pipe, err := NewPipe(NewResizeProcessor(m, n))
	if err != nil {
		return err
	}
	return p.AddPipe(pipe)
}

func (p *Pipeline) SetMaxThreads(n int) {
	p.maxThreads = n
}

func (p *Pipeline) MaxThreads() int {
	return p.maxThreads
}

// SetOnFinished registers fn to be called with the outcome of the run.
func (p *Pipeline) SetOnFinished(fn func(err error)) {
	p.onFinished = append(p.onFinished, fn)
}

// OnFinished runs the registered callbacks in registration order.
func (p *Pipeline) OnFinished(err error) {
	for _, fn := range p.onFinished {
		fn(err)
	}
}

// Validate checks the pipeline is complete and every port is connected.
func (p *Pipeline) Validate() error {
	if p.IsEmpty() {
		return moerr.NewPipelineConstructNoCtx("empty pipeline")
	}
	if !p.IsComplete() {
		return moerr.NewPipelineConstructNoCtx("pipeline has %d dangling outputs", p.OutputLen())
	}
	for _, proc := range p.Processors() {
		for i, in := range proc.Inputs() {
			if !in.Connected() {
				return moerr.NewPipelineConstructNoCtx("input %d of %s is not connected", i, proc.Name())
			}
		}
		for i, out := range proc.Outputs() {
			if !out.Connected() {
				return moerr.NewPipelineConstructNoCtx("output %d of %s is not connected", i, proc.Name())
			}
		}
	}
	return nil
}

func (p *Pipeline) String() string {
	var buf bytes.Buffer

	for i, pipe := range p.pipes {
		if i > 0 {
			buf.WriteString(" -> ")
		}
		name := ""
		if pipe.Width() > 0 {
			name = pipe.processors[0].Name()
		}
		buf.WriteString(fmt.Sprintf("%s x%d", name, pipe.Width()))
	}
	return buf.String()
}
