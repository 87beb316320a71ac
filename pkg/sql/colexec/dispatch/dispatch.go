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

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/logutil"
	v2 "github.com/matrixorigin/mopipeline/pkg/util/metric/v2"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

// errorFrameTimeout bounds the best effort error notification of Free.
var errorFrameTimeout = 5 * time.Second

func (arg *Dispatch) String(buf *bytes.Buffer) {
	buf.WriteString(fmt.Sprintf("dispatch %s to %v (%s)", arg.FragmentID, arg.Receivers, arg.Kind))
}

func NewProcessor(in *pipeline.InputPort, arg *Dispatch) (*Processor, error) {
	partitioner, err := exchange.NewPartitioner(arg.Kind, arg.Keys, len(arg.Receivers))
	if err != nil {
		return nil, moerr.NewPipelineConstructNoCtx("dispatch %s: %s", arg.FragmentID, err.Error())
	}
	p := &Processor{
		ProcessorBase: pipeline.NewProcessorBase(opName, []*pipeline.InputPort{in}, nil),
		arg:           arg,
		in:            in,
	}
	p.ctr.stream = uuid.New()
	p.ctr.partitioner = partitioner
	return p, nil
}

// Stream identifies this lane in the frames it sends.
func (p *Processor) Stream() uuid.UUID {
	return p.ctr.stream
}

func (p *Processor) Event() (pipeline.Event, error) {
	ctr := &p.ctr
	if ctr.done {
		p.in.Finish()
		return pipeline.EventFinished, nil
	}
	if len(ctr.pending) > 0 {
		return pipeline.EventAsync, nil
	}
	if ctr.endQueued {
		ctr.done = true
		p.in.Finish()
		return pipeline.EventFinished, nil
	}
	if ctr.inputData != nil || ctr.finishing {
		return pipeline.EventReady, nil
	}
	if p.in.HasData() {
		ctr.inputData = p.in.Pull()
		return pipeline.EventReady, nil
	}
	if p.in.IsFinished() {
		ctr.finishing = true
		return pipeline.EventReady, nil
	}
	p.in.SetNeedData()
	return pipeline.EventNeedData, nil
}

// Process partitions and encodes, the frames go out in AsyncProcess.
func (p *Processor) Process() error {
	ctr := &p.ctr
	if bat := ctr.inputData; bat != nil {
		ctr.inputData = nil
		if bat.IsEmpty() {
			return nil
		}
		parts, err := ctr.partitioner.Partition(bat)
		if err != nil {
			return err
		}
		for dest, part := range parts {
			if part.IsEmpty() {
				continue
			}
			data, err := p.arg.Codec.Encode(exchange.DataFrame(ctr.stream, part))
			if err != nil {
				return err
			}
			ctr.pending = append(ctr.pending, frame{dest: dest, data: data})
		}
		return nil
	}
	if ctr.finishing && !ctr.endQueued {
		data, err := p.arg.Codec.Encode(exchange.EndFrame(ctr.stream))
		if err != nil {
			return err
		}
		for dest := range p.arg.Receivers {
			ctr.pending = append(ctr.pending, frame{dest: dest, data: data})
		}
		ctr.endQueued = true
	}
	return nil
}

func (p *Processor) AsyncProcess(ctx context.Context) error {
	ctr := &p.ctr
	if err := p.open(ctx); err != nil {
		return err
	}
	for len(ctr.pending) > 0 {
		f := ctr.pending[0]
		if err := ctr.senders[f.dest].Send(ctx, f.data); err != nil {
			return moerr.NewExchangeFailed(ctx, p.arg.FragmentID, err)
		}
		v2.ExchangeSendBytesCounter.Add(float64(len(f.data)))
		v2.ExchangeSendBatchCounter.Inc()
		ctr.pending[0].data = nil
		ctr.pending = ctr.pending[1:]
	}
	ctr.pending = nil
	return nil
}

func (p *Processor) open(ctx context.Context) error {
	ctr := &p.ctr
	if ctr.senders != nil {
		return nil
	}
	senders := make([]exchange.Sender, 0, len(p.arg.Receivers))
	for _, node := range p.arg.Receivers {
		s, err := p.arg.Transport.NewSender(ctx, p.arg.FragmentID, node)
		if err != nil {
			for _, s := range senders {
				_ = s.Close()
			}
			return moerr.NewExchangeFailed(ctx, p.arg.FragmentID, err)
		}
		senders = append(senders, s)
	}
	ctr.senders = senders
	return nil
}

// Free tells every receiver about a failed run, otherwise they would wait
// for an end frame that never comes.
func (p *Processor) Free(pipelineFailed bool, err error) {
	ctr := &p.ctr
	if pipelineFailed && !ctr.done {
		ctx, cancel := context.WithTimeout(context.Background(), errorFrameTimeout)
		defer cancel()
		if openErr := p.open(ctx); openErr == nil {
			if err == nil {
				err = moerr.NewInternalErrorNoCtx("pipeline failed")
			}
			data, encErr := p.arg.Codec.Encode(exchange.ErrorFrame(ctr.stream, err))
			if encErr == nil {
				for i, s := range ctr.senders {
					if sendErr := s.Send(ctx, data); sendErr != nil {
						logutil.Warn("dispatch error frame not delivered",
							zap.String("fragment", p.arg.FragmentID),
							zap.String("node", p.arg.Receivers[i]),
							zap.Error(sendErr))
					}
				}
			}
		}
	}
	for _, s := range ctr.senders {
		_ = s.Close()
	}
	ctr.senders = nil
	ctr.pending = nil
	ctr.inputData = nil
}
