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

func (e Event) String() string {
	switch e {
	case EventNeedData:
		return "NeedData"
	case EventNeedConsume:
		return "NeedConsume"
	case EventReady:
		return "Ready"
	case EventAsync:
		return "Async"
	case EventFinished:
		return "Finished"
	}
	return "Unknown"
}

func NewProcessorBase(name string, inputs []*InputPort, outputs []*OutputPort) ProcessorBase {
	return ProcessorBase{
		id:      -1,
		name:    name,
		inputs:  inputs,
		outputs: outputs,
	}
}

func (b *ProcessorBase) Name() string {
	return b.name
}

// ID is assigned by the executor, -1 until then.
func (b *ProcessorBase) ID() int {
	return b.id
}

func (b *ProcessorBase) SetID(id int) {
	b.id = id
}

func (b *ProcessorBase) Inputs() []*InputPort {
	return b.inputs
}

func (b *ProcessorBase) Outputs() []*OutputPort {
	return b.outputs
}

// FinishAll finishes every port of the processor.
func (b *ProcessorBase) FinishAll() {
	for _, in := range b.inputs {
		in.Finish()
	}
	for _, out := range b.outputs {
		out.Finish()
	}
}

// FinishPorts finishes every port of p.
func FinishPorts(p Processor) {
	for _, in := range p.Inputs() {
		in.Finish()
	}
	for _, out := range p.Outputs() {
		out.Finish()
	}
}

// PortVersion sums the versions of every port of p.
func PortVersion(p Processor) uint64 {
	var v uint64
	for _, in := range p.Inputs() {
		v += in.Version()
	}
	for _, out := range p.Outputs() {
		v += out.Version()
	}
	return v
}
