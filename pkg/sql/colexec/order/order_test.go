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

package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/output"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/valuescan"
	"github.com/matrixorigin/mopipeline/pkg/testutil"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func column(bat *batch.Batch, col int32) []any {
	vs := make([]any, bat.RowCount())
	for i := range vs {
		vs[i] = bat.GetVector(col).GetAny(i)
	}
	return vs
}

func TestOrder(t *testing.T) {
	arg := NewArgument(Field{Col: 0}, Field{Col: 1, Desc: true})
	require.Equal(t, "τ([0, 1 DESC])", colexec.String(arg))
	require.NoError(t, arg.Prepare())

	require.NoError(t, arg.Consume(batch.NewWithVectors([]string{"a", "b"},
		vector.NewVecFromSlice([]int64{3, 1, 2}),
		vector.NewVecFromSlice([]string{"x", "y", "z"}))))
	require.NoError(t, arg.Consume(batch.EmptyBatch))
	require.NoError(t, arg.Consume(batch.NewWithVectors([]string{"a", "b"},
		vector.NewVecFromSlice([]int64{1, 0, 2}, 1),
		vector.NewVecFromSlice([]string{"z", "w", "z"}))))

	bats, err := arg.Flush()
	require.NoError(t, err)
	require.Len(t, bats, 1)
	// NULL first, then a ascending, b descending, equal keys in arrival order
	require.Equal(t, []any{nil, int64(1), int64(1), int64(2), int64(2), int64(3)}, column(bats[0], 0))
	require.Equal(t, []any{"w", "z", "y", "z", "z", "x"}, column(bats[0], 1))
	require.Equal(t, []string{"a", "b"}, bats[0].Attrs)

	arg.Free(false, nil)
}

func TestOrderErrors(t *testing.T) {
	require.True(t, moerr.IsMoErrCode(NewArgument().Prepare(), moerr.ErrInvalidInput))

	arg := NewArgument(Field{Col: 4})
	require.NoError(t, arg.Prepare())
	err := arg.Consume(testutil.NewInt64Batch([]string{"a"}, []int64{1}))
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOutOfRange))

	bats, err := NewArgument(Field{Col: 0}).Flush()
	require.NoError(t, err)
	require.Empty(t, bats)
}

func TestOrderPipeline(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(4, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return valuescan.NewProcessor(out,
			testutil.NewInt64Batch([]string{"a"}, []int64{5, 3, 9}),
			testutil.NewInt64Batch([]string{"a"}, []int64{7, 1})), nil
	}))
	require.NoError(t, p.Resize(1))
	require.NoError(t, p.AddTransform(func(in *pipeline.InputPort, out *pipeline.OutputPort) (pipeline.Processor, error) {
		return NewProcessor(in, out, Field{Col: 0, Desc: true}), nil
	}))
	c := output.NewCollector()
	require.NoError(t, p.AddSink(c.NewProcessor))
	require.NoError(t, testutil.Run(context.Background(), 4, p))

	bats := c.Batches()
	require.Len(t, bats, 1)
	vs := vector.MustFixedCol[int64](bats[0].GetVector(0))
	require.Len(t, vs, 20)
	for i := 1; i < len(vs); i++ {
		require.GreaterOrEqual(t, vs[i-1], vs[i])
	}
}
