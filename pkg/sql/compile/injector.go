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

package compile

import (
	"context"

	"golang.org/x/exp/slices"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/dispatch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/receiver"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

var (
	_ ExchangeInjector = DefaultExchangeInjector{}
	_ ExchangeInjector = (*RemoteExchangeInjector)(nil)
)

func (DefaultExchangeInjector) IsLocal(*Exchange) bool {
	return true
}

// InjectSink leaves p open, the consuming side continues it.
func (DefaultExchangeInjector) InjectSink(_ context.Context, p *pipeline.Pipeline, ex *Exchange) error {
	if p.IsEmpty() || p.IsComplete() {
		return moerr.NewPipelineConstructNoCtx("local exchange %s has no open producer", ex.FragmentID)
	}
	return nil
}

// InjectSource resizes the still open producer to width lanes.
func (DefaultExchangeInjector) InjectSource(_ context.Context, p *pipeline.Pipeline, ex *Exchange, width int) error {
	if p.IsEmpty() || p.IsComplete() {
		return moerr.NewPipelineConstructNoCtx("local exchange %s has no open producer", ex.FragmentID)
	}
	return p.Resize(width)
}

func (ex *Exchange) validate() error {
	switch {
	case ex.FragmentID == "":
		return moerr.NewPipelineConstructNoCtx("exchange without fragment id")
	case len(ex.Senders) == 0 || len(ex.Receivers) == 0:
		return moerr.NewPipelineConstructNoCtx("exchange %s needs senders and receivers", ex.FragmentID)
	case ex.SenderLanes <= 0:
		return moerr.NewPipelineConstructNoCtx("exchange %s with %d sender lanes", ex.FragmentID, ex.SenderLanes)
	}
	return nil
}

func (r *RemoteExchangeInjector) IsLocal(ex *Exchange) bool {
	return len(ex.Senders) == 1 && len(ex.Receivers) == 1 &&
		ex.Senders[0] == r.LocalNode && ex.Receivers[0] == r.LocalNode
}

func (r *RemoteExchangeInjector) InjectSink(ctx context.Context, p *pipeline.Pipeline, ex *Exchange) error {
	if err := ex.validate(); err != nil {
		return err
	}
	if r.IsLocal(ex) {
		return DefaultExchangeInjector{}.InjectSink(ctx, p, ex)
	}
	if !slices.Contains(ex.Senders, r.LocalNode) {
		return moerr.NewPipelineConstructNoCtx("unknown exchange fragment %s on sender %s", ex.FragmentID, r.LocalNode)
	}
	if p.IsEmpty() || p.IsComplete() {
		return moerr.NewPipelineConstructNoCtx("exchange %s has no open producer", ex.FragmentID)
	}
	if err := p.Resize(ex.SenderLanes); err != nil {
		return err
	}
	return p.AddSink(func(in *pipeline.InputPort) (pipeline.Processor, error) {
		return dispatch.NewProcessor(in, &dispatch.Dispatch{
			FragmentID: ex.FragmentID,
			Transport:  r.Transport,
			Receivers:  ex.Receivers,
			Kind:       ex.Kind,
			Keys:       ex.KeyColumns,
			Codec:      exchange.Codec{Compress: r.Compress},
		})
	})
}

func (r *RemoteExchangeInjector) InjectSource(ctx context.Context, p *pipeline.Pipeline, ex *Exchange, width int) error {
	if err := ex.validate(); err != nil {
		return err
	}
	if r.IsLocal(ex) {
		return DefaultExchangeInjector{}.InjectSource(ctx, p, ex, width)
	}
	if !slices.Contains(ex.Receivers, r.LocalNode) {
		return moerr.NewPipelineConstructNoCtx("unknown exchange fragment %s on receiver %s", ex.FragmentID, r.LocalNode)
	}
	if !p.IsEmpty() {
		return moerr.NewPipelineConstructNoCtx("exchange %s source added to a non-empty pipeline", ex.FragmentID)
	}
	err := p.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return receiver.NewProcessor(out, &receiver.Receiver{
			FragmentID: ex.FragmentID,
			Transport:  r.Transport,
			Streams:    len(ex.Senders) * ex.SenderLanes,
			Codec:      exchange.Codec{Compress: r.Compress},
			Timeout:    r.RecvTimeout,
		}), nil
	})
	if err != nil {
		return err
	}
	return p.Resize(width)
}

// CrossBoundary carries p over ex and returns the pipeline the consuming
// side continues with. For a local boundary that is p itself.
func CrossBoundary(ctx context.Context, inj ExchangeInjector, p *pipeline.Pipeline, ex *Exchange, width int) (*pipeline.Pipeline, error) {
	if inj.IsLocal(ex) {
		if err := inj.InjectSink(ctx, p, ex); err != nil {
			return nil, err
		}
		if err := inj.InjectSource(ctx, p, ex, width); err != nil {
			return nil, err
		}
		return p, nil
	}
	if err := inj.InjectSink(ctx, p, ex); err != nil {
		return nil, err
	}
	q := pipeline.New()
	if err := inj.InjectSource(ctx, q, ex, width); err != nil {
		return nil, err
	}
	return q, nil
}
