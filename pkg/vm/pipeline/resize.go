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

// ResizeProcessor moves units from m inputs to n outputs. Units go to the
// next output that can take one, in round robin order. It does all of its
// work while reporting events and is never Ready.
type ResizeProcessor struct {
	ProcessorBase

	nextIn  int
	nextOut int
}

func NewResizeProcessor(m, n int) *ResizeProcessor {
	return &ResizeProcessor{
		ProcessorBase: NewProcessorBase("resize", NewInputPorts(m), NewOutputPorts(n)),
	}
}

func (r *ResizeProcessor) Event() (Event, error) {
	if r.allOutputsFinished() {
		for _, in := range r.inputs {
			in.Finish()
		}
		return EventFinished, nil
	}

	for moved := true; moved; {
		moved = false
		for k := 0; k < len(r.inputs); k++ {
			in := r.inputs[(r.nextIn+k)%len(r.inputs)]
			if !in.HasData() {
				continue
			}
			out := r.pickOutput()
			if out == nil {
				break
			}
			if err := out.Push(in.Pull()); err != nil {
				return EventFinished, err
			}
			r.nextIn = (r.nextIn + k + 1) % len(r.inputs)
			moved = true
			break
		}
	}

	pending := false
	allFinished := true
	for _, in := range r.inputs {
		if in.HasData() {
			pending = true
		}
		if !in.IsFinished() {
			allFinished = false
		}
	}
	if allFinished {
		for _, out := range r.outputs {
			out.Finish()
		}
		return EventFinished, nil
	}
	if pending {
		return EventNeedConsume, nil
	}
	for _, in := range r.inputs {
		if !in.IsFinished() {
			in.SetNeedData()
		}
	}
	return EventNeedData, nil
}

func (r *ResizeProcessor) Process() error {
	return nil
}

func (r *ResizeProcessor) pickOutput() *OutputPort {
	for k := 0; k < len(r.outputs); k++ {
		idx := (r.nextOut + k) % len(r.outputs)
		if r.outputs[idx].CanPush() {
			r.nextOut = (idx + 1) % len(r.outputs)
			return r.outputs[idx]
		}
	}
	return nil
}

func (r *ResizeProcessor) allOutputsFinished() bool {
	for _, out := range r.outputs {
		if !out.IsFinished() {
			return false
		}
	}
	return true
}
