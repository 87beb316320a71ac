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
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

func (s PortState) String() string {
	switch s {
	case PortEmpty:
		return "Empty"
	case PortHasData:
		return "HasData"
	case PortNeedData:
		return "NeedData"
	case PortFinished:
		return "Finished"
	}
	return "Unknown"
}

func NewInputPort() *InputPort {
	in := &InputPort{slot: &portSlot{}}
	in.slot.in = in
	return in
}

func NewOutputPort() *OutputPort {
	out := &OutputPort{slot: &portSlot{}}
	out.slot.out = out
	return out
}

// NewInputPorts returns n unconnected input ports.
func NewInputPorts(n int) []*InputPort {
	ports := make([]*InputPort, n)
	for i := range ports {
		ports[i] = NewInputPort()
	}
	return ports
}

// NewOutputPorts returns n unconnected output ports.
func NewOutputPorts(n int) []*OutputPort {
	ports := make([]*OutputPort, n)
	for i := range ports {
		ports[i] = NewOutputPort()
	}
	return ports
}

// Connect links out to in. Each port can be connected once.
func Connect(out *OutputPort, in *InputPort) error {
	if out.Connected() || in.Connected() {
		return moerr.NewPipelineConstructNoCtx("port is already connected")
	}
	slot := &portSlot{in: in, out: out}
	in.slot = slot
	out.slot = slot
	return nil
}

func (s *portSlot) stateLocked() PortState {
	switch {
	case s.data != nil:
		return PortHasData
	case s.finished:
		return PortFinished
	case s.needData:
		return PortNeedData
	}
	return PortEmpty
}

func (s *portSlot) connected() bool {
	s.Lock()
	defer s.Unlock()
	return s.in != nil && s.out != nil
}

func (s *portSlot) getVersion() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.version
}

// Push hands bat to the consumer. Pushing while the previous unit is still
// pending breaks the protocol and is rejected. A push after the consumer
// finished the port is dropped.
func (o *OutputPort) Push(bat *batch.Batch) error {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	if s.finished {
		return nil
	}
	if s.data != nil {
		return moerr.NewPortContractNoCtx("push on a port that still holds data")
	}
	s.data = bat
	s.needData = false
	s.version++
	return nil
}

// Finish tells the consumer no more data will come. Data already pushed is
// still delivered.
func (o *OutputPort) Finish() {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	if !s.finished {
		s.finished = true
		s.version++
	}
}

// IsFinished reports whether either side finished the port.
func (o *OutputPort) IsFinished() bool {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return s.finished
}

// CanPush reports whether the slot is empty and open.
func (o *OutputPort) CanPush() bool {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return !s.finished && s.data == nil
}

func (o *OutputPort) IsNeedData() bool {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return s.needData && !s.finished
}

func (o *OutputPort) HasData() bool {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return s.data != nil
}

func (o *OutputPort) State() PortState {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return s.stateLocked()
}

func (o *OutputPort) Connected() bool {
	return o.slot.connected()
}

// Peer returns the input port o is connected to.
func (o *OutputPort) Peer() *InputPort {
	s := o.slot
	s.Lock()
	defer s.Unlock()
	return s.in
}

// Version increases on every state change of the port.
func (o *OutputPort) Version() uint64 {
	return o.slot.getVersion()
}

// Pull takes the pending unit, nil if there is none.
func (i *InputPort) Pull() *batch.Batch {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	bat := s.data
	if bat != nil {
		s.data = nil
		s.version++
	}
	return bat
}

func (i *InputPort) HasData() bool {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	return s.data != nil
}

// IsFinished is true once the port is finished and the last unit was pulled.
func (i *InputPort) IsFinished() bool {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	return s.finished && s.data == nil
}

// SetNeedData asks the producer for the next unit.
func (i *InputPort) SetNeedData() {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	if !s.needData && !s.finished {
		s.needData = true
		s.version++
	}
}

func (i *InputPort) SetNotNeedData() {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	if s.needData {
		s.needData = false
		s.version++
	}
}

// Finish closes the port from the consumer side. Any pending unit is dropped
// and the producer sees the port as finished.
func (i *InputPort) Finish() {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	if !s.finished || s.data != nil {
		s.finished = true
		s.data = nil
		s.version++
	}
}

func (i *InputPort) State() PortState {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	return s.stateLocked()
}

func (i *InputPort) Connected() bool {
	return i.slot.connected()
}

// Peer returns the output port driving i.
func (i *InputPort) Peer() *OutputPort {
	s := i.slot
	s.Lock()
	defer s.Unlock()
	return s.out
}

// Version increases on every state change of the port.
func (i *InputPort) Version() uint64 {
	return i.slot.getVersion()
}
