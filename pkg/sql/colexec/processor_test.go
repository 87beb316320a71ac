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

package colexec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/testutil"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

type passOp struct {
	prepared int
	freed    int
	err      error
}

func (op *passOp) String(buf *bytes.Buffer) { buf.WriteString("pass") }
func (op *passOp) Free(bool, error)         { op.freed++ }

func (op *passOp) Prepare() error {
	op.prepared++
	return nil
}

func (op *passOp) Transform(bat *batch.Batch) (*batch.Batch, error) {
	return bat, op.err
}

type countOp struct {
	passOp
	rows int
}

func (op *countOp) Consume(bat *batch.Batch) error {
	op.rows += bat.RowCount()
	return op.err
}

func (op *countOp) Flush() ([]*batch.Batch, error) {
	return []*batch.Batch{testutil.NewInt64Batch([]string{"n"}, []int64{int64(op.rows)})}, nil
}

func (op *countOp) OnFinish() error {
	return nil
}

// harness wires a processor between a test owned producer and consumer.
type harness struct {
	up   *pipeline.OutputPort
	down *pipeline.InputPort
}

func newHarness(t *testing.T) (*harness, *pipeline.InputPort, *pipeline.OutputPort) {
	h := &harness{up: pipeline.NewOutputPort(), down: pipeline.NewInputPort()}
	in, out := pipeline.NewInputPort(), pipeline.NewOutputPort()
	require.NoError(t, pipeline.Connect(h.up, in))
	require.NoError(t, pipeline.Connect(out, h.down))
	return h, in, out
}

func event(t *testing.T, p pipeline.Processor) pipeline.Event {
	ev, err := p.Event()
	require.NoError(t, err)
	return ev
}

func TestTransformer(t *testing.T) {
	h, in, out := newHarness(t)
	op := &passOp{}
	tr := colexec.NewTransformer("pass", in, out, op)
	require.Same(t, op, tr.Operator())

	require.Equal(t, pipeline.EventNeedData, event(t, tr))
	require.True(t, h.up.IsNeedData())

	require.NoError(t, h.up.Push(testutil.NewBatch(nil, false, 0)))
	require.Equal(t, pipeline.EventReady, event(t, tr))
	require.NoError(t, tr.Process())
	// an empty result is not forwarded
	require.Equal(t, pipeline.EventNeedData, event(t, tr))

	bat := testutil.NewInt64Batch([]string{"a"}, []int64{1, 2, 3})
	require.NoError(t, h.up.Push(bat))
	require.Equal(t, pipeline.EventReady, event(t, tr))
	require.NoError(t, tr.Process())
	require.Equal(t, pipeline.EventNeedConsume, event(t, tr))
	require.Equal(t, pipeline.EventNeedConsume, event(t, tr))
	require.Same(t, bat, h.down.Pull())

	h.up.Finish()
	require.Equal(t, pipeline.EventFinished, event(t, tr))
	require.True(t, h.down.IsFinished())
	require.Equal(t, 1, op.prepared)

	tr.Free(false, nil)
	require.Equal(t, 1, op.freed)
	require.Equal(t, "pass", colexec.String(op))
}

func TestTransformerDownstreamFinished(t *testing.T) {
	h, in, out := newHarness(t)
	tr := colexec.NewTransformer("pass", in, out, &passOp{})
	require.NoError(t, h.up.Push(testutil.NewInt64Batch([]string{"a"}, []int64{1})))
	h.down.Finish()
	require.Equal(t, pipeline.EventFinished, event(t, tr))
	require.True(t, h.up.IsFinished())
	require.False(t, h.up.HasData())
}

func TestTransformerError(t *testing.T) {
	h, in, out := newHarness(t)
	boom := errors.New("boom")
	tr := colexec.NewTransformer("pass", in, out, &passOp{err: boom})
	require.NoError(t, h.up.Push(testutil.NewInt64Batch([]string{"a"}, []int64{1})))
	require.Equal(t, pipeline.EventReady, event(t, tr))
	require.ErrorIs(t, tr.Process(), boom)
}

func TestBlockingTransformer(t *testing.T) {
	h, in, out := newHarness(t)
	op := &countOp{}
	bt := colexec.NewBlockingTransformer("count", in, out, op)
	require.Same(t, op, bt.Operator())

	for i := 0; i < 3; i++ {
		require.Equal(t, pipeline.EventNeedData, event(t, bt))
		require.NoError(t, h.up.Push(testutil.NewInt64Batch([]string{"a"}, []int64{1, 2})))
		require.Equal(t, pipeline.EventReady, event(t, bt))
		require.NoError(t, bt.Process())
	}
	// nothing is emitted before the input ends
	require.False(t, h.down.HasData())
	h.up.Finish()
	require.Equal(t, pipeline.EventReady, event(t, bt))
	require.NoError(t, bt.Process())
	require.Equal(t, pipeline.EventFinished, event(t, bt))

	res := h.down.Pull()
	require.Equal(t, []string{"6"}, testutil.Rows([]*batch.Batch{res}))
	require.True(t, h.down.IsFinished())
}

func TestSyncSource(t *testing.T) {
	down := pipeline.NewInputPort()
	out := pipeline.NewOutputPort()
	require.NoError(t, pipeline.Connect(out, down))

	op := &genOp{bats: []*batch.Batch{
		testutil.NewInt64Batch([]string{"a"}, []int64{1}),
		testutil.NewBatch(nil, false, 0),
		testutil.NewInt64Batch([]string{"a"}, []int64{2, 3}),
	}}
	src := colexec.NewSyncSource("gen", out, op)
	require.Same(t, op, src.Operator())

	var rows int
	for i := 0; i < 100; i++ {
		ev := event(t, src)
		if ev == pipeline.EventFinished {
			break
		}
		switch ev {
		case pipeline.EventReady:
			require.NoError(t, src.Process())
		case pipeline.EventNeedConsume:
			if bat := down.Pull(); bat != nil {
				rows += bat.RowCount()
			}
		}
	}
	if bat := down.Pull(); bat != nil {
		rows += bat.RowCount()
	}
	require.Equal(t, 3, rows)
	require.True(t, down.IsFinished())
}

func TestSink(t *testing.T) {
	up := pipeline.NewOutputPort()
	in := pipeline.NewInputPort()
	require.NoError(t, pipeline.Connect(up, in))
	op := &countOp{}
	s := colexec.NewSink("count", in, op)
	require.Same(t, op, s.Operator())

	require.Equal(t, pipeline.EventNeedData, event(t, s))
	require.NoError(t, up.Push(testutil.NewInt64Batch([]string{"a"}, []int64{1, 2, 3})))
	require.Equal(t, pipeline.EventReady, event(t, s))
	require.NoError(t, s.Process())
	up.Finish()
	require.Equal(t, pipeline.EventReady, event(t, s))
	require.NoError(t, s.Process())
	require.Equal(t, pipeline.EventFinished, event(t, s))
	require.Equal(t, 3, op.rows)

	s.Free(true, nil)
	require.Equal(t, 1, op.freed)
}

type genOp struct {
	passOp
	bats []*batch.Batch
	idx  int
}

func (op *genOp) Generate() (*batch.Batch, error) {
	if op.idx == len(op.bats) {
		return nil, nil
	}
	op.idx++
	return op.bats[op.idx-1], nil
}
