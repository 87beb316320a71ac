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

package receiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	v2 "github.com/matrixorigin/mopipeline/pkg/util/metric/v2"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

var defaultRecvTimeout = time.Minute

func (arg *Receiver) String(buf *bytes.Buffer) {
	buf.WriteString(fmt.Sprintf("receive %s from %d streams", arg.FragmentID, arg.Streams))
}

func NewProcessor(out *pipeline.OutputPort, arg *Receiver) *Processor {
	p := &Processor{
		ProcessorBase: pipeline.NewProcessorBase(opName, nil, []*pipeline.OutputPort{out}),
		arg:           arg,
		out:           out,
	}
	p.ctr.ended = make(map[uuid.UUID]struct{}, arg.Streams)
	p.ctr.eos = arg.Streams == 0
	return p
}

func (p *Processor) Event() (pipeline.Event, error) {
	ctr := &p.ctr
	if p.out.IsFinished() {
		return pipeline.EventFinished, nil
	}
	if !p.out.CanPush() {
		return pipeline.EventNeedConsume, nil
	}
	if ctr.pending != nil {
		if err := p.out.Push(ctr.pending); err != nil {
			return pipeline.EventFinished, err
		}
		ctr.pending = nil
		return pipeline.EventNeedConsume, nil
	}
	if ctr.eos {
		p.out.Finish()
		return pipeline.EventFinished, nil
	}
	return pipeline.EventAsync, nil
}

func (p *Processor) Process() error {
	return nil
}

// AsyncProcess reads until it has a batch to push or every stream ended.
func (p *Processor) AsyncProcess(ctx context.Context) error {
	ctr := &p.ctr
	if ctr.receiver == nil {
		r, err := p.arg.Transport.NewReceiver(ctx, p.arg.FragmentID)
		if err != nil {
			return moerr.NewExchangeFailed(ctx, p.arg.FragmentID, err)
		}
		ctr.receiver = r
	}
	timeout := p.arg.Timeout
	if timeout <= 0 {
		timeout = defaultRecvTimeout
	}

	for ctr.pending == nil && !ctr.eos {
		data, err := p.recv(ctx, timeout)
		if err != nil {
			return err
		}
		v2.ExchangeRecvBytesCounter.Add(float64(len(data)))
		f, err := p.arg.Codec.Decode(data)
		if err != nil {
			return moerr.NewExchangeFailed(ctx, p.arg.FragmentID, err)
		}
		switch f.Kind {
		case exchange.FrameData:
			v2.ExchangeRecvBatchCounter.Inc()
			if !f.Batch.IsEmpty() {
				ctr.pending = f.Batch
			}
		case exchange.FrameEnd:
			ctr.ended[f.Stream] = struct{}{}
			ctr.eos = len(ctr.ended) >= p.arg.Streams
		case exchange.FrameError:
			return moerr.NewExchangeFailed(ctx, p.arg.FragmentID, f.Err)
		}
	}
	return nil
}

func (p *Processor) recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	data, err := p.ctr.receiver.Recv(rctx)
	if err == nil {
		return data, nil
	}
	if ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return nil, moerr.NewRPCTimeout(ctx)
	}
	return nil, moerr.NewExchangeFailed(ctx, p.arg.FragmentID, err)
}

// Free closes the stream so senders stop waiting on this node.
func (p *Processor) Free(pipelineFailed bool, err error) {
	ctr := &p.ctr
	if ctr.receiver == nil {
		r, openErr := p.arg.Transport.NewReceiver(context.Background(), p.arg.FragmentID)
		if openErr != nil {
			return
		}
		ctr.receiver = r
	}
	_ = ctr.receiver.Close()
	ctr.pending = nil
}
