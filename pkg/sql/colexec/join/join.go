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

package join

import (
	"bytes"
	"context"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/message"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func (innerJoin *InnerJoin) String(buf *bytes.Buffer) {
	buf.WriteString(" ⨝ ")
	buf.WriteString(fmt.Sprintf("(probe keys %v)", innerJoin.Conditions))
}

func (innerJoin *InnerJoin) Prepare() error {
	if len(innerJoin.Conditions) != len(innerJoin.State.KeyCols()) {
		return moerr.NewInvalidInputNoCtx("join on %d probe keys against %d build keys",
			len(innerJoin.Conditions), len(innerJoin.State.KeyCols()))
	}
	jm, err := innerJoin.State.JoinMap()
	if err != nil {
		return err
	}
	innerJoin.ctr.jm = jm
	return nil
}

func (innerJoin *InnerJoin) Transform(bat *batch.Batch) (*batch.Batch, error) {
	ctr := &innerJoin.ctr
	build := ctr.jm.GetBatches()
	var rbat *batch.Batch

	for i := 0; i < bat.RowCount(); i++ {
		var ok bool
		ctr.buf, ok = message.AppendKey(ctr.buf[:0], bat, innerJoin.Conditions, i)
		if !ok {
			continue
		}
		for _, ref := range ctr.jm.Lookup(ctr.buf) {
			if rbat == nil {
				var err error
				if rbat, err = innerJoin.newResult(bat, build[ref.Batch]); err != nil {
					return nil, err
				}
			}
			for j, rp := range innerJoin.Result {
				var err error
				if rp.Rel == 0 {
					err = rbat.Vecs[j].UnionOne(bat.Vecs[rp.Pos], int64(i))
				} else {
					err = rbat.Vecs[j].UnionOne(build[ref.Batch].Vecs[rp.Pos], int64(ref.Row))
				}
				if err != nil {
					return nil, err
				}
			}
			rbat.AddRowCount(1)
		}
	}
	return rbat, nil
}

func (innerJoin *InnerJoin) newResult(probe, build *batch.Batch) (*batch.Batch, error) {
	attrs := make([]string, len(innerJoin.Result))
	typs := make([]types.Type, len(innerJoin.Result))
	for i, rp := range innerJoin.Result {
		src := probe
		if rp.Rel != 0 {
			src = build
		}
		if int(rp.Pos) >= len(src.Vecs) {
			return nil, moerr.NewOutOfRange(moerr.Context(), "column", "%d of %d", rp.Pos, len(src.Vecs))
		}
		typs[i] = *src.Vecs[rp.Pos].GetType()
		switch {
		case i < len(innerJoin.Attrs):
			attrs[i] = innerJoin.Attrs[i]
		case int(rp.Pos) < len(src.Attrs):
			attrs[i] = src.Attrs[rp.Pos]
		}
	}
	return batch.NewWithSchema(attrs, typs), nil
}

func (innerJoin *InnerJoin) CheckGraph() error {
	return innerJoin.State.Validate()
}

// Free drops this probe's reference to the build side.
func (innerJoin *InnerJoin) Free(pipelineFailed bool, err error) {
	if jm, _ := innerJoin.State.JoinMap(); jm != nil {
		jm.Free()
	}
	innerJoin.ctr.jm = nil
}

// NewProcessor returns a probe lane. It reports Async until the build side
// is published and never touches it before.
func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, arg *InnerJoin) *Processor {
	arg.State.AddProber()
	return &Processor{
		Transformer: colexec.NewTransformer(opName, in, out, arg),
		state:       arg.State,
	}
}

func (p *Processor) Event() (pipeline.Event, error) {
	if !p.state.IsPublished() && !p.Outputs()[0].IsFinished() {
		return pipeline.EventAsync, nil
	}
	return p.Transformer.Event()
}

func (p *Processor) AsyncProcess(ctx context.Context) error {
	select {
	case <-p.state.Wait():
		_, err := p.state.JoinMap()
		return err
	case <-ctx.Done():
		return moerr.ConvertGoError(ctx, ctx.Err())
	}
}
