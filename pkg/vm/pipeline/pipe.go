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
	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
)

// NewPipe groups processors into lanes. Every processor must have the same
// number of inputs and the same number of outputs.
func NewPipe(processors ...Processor) (*Pipe, error) {
	if len(processors) == 0 {
		return nil, moerr.NewPipelineConstructNoCtx("pipe without processors")
	}
	ins, outs := len(processors[0].Inputs()), len(processors[0].Outputs())
	pipe := &Pipe{processors: processors}
	for _, p := range processors {
		if len(p.Inputs()) != ins || len(p.Outputs()) != outs {
			return nil, moerr.NewPipelineConstructNoCtx(
				"pipe arity mismatch: %s has %d inputs and %d outputs, want %d and %d",
				p.Name(), len(p.Inputs()), len(p.Outputs()), ins, outs)
		}
		pipe.inputs = append(pipe.inputs, p.Inputs()...)
		pipe.outputs = append(pipe.outputs, p.Outputs()...)
	}
	return pipe, nil
}

func (p *Pipe) Processors() []Processor {
	return p.processors
}

func (p *Pipe) Inputs() []*InputPort {
	return p.inputs
}

func (p *Pipe) Outputs() []*OutputPort {
	return p.outputs
}

func (p *Pipe) InputLen() int {
	return len(p.inputs)
}

func (p *Pipe) OutputLen() int {
	return len(p.outputs)
}

// Width is the number of lanes.
func (p *Pipe) Width() int {
	return len(p.processors)
}
