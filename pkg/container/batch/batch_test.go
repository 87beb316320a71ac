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

package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
)

func newTestBatch() *Batch {
	return NewWithVectors(
		[]string{"id", "name", "score", "ok"},
		vector.NewVecFromSlice([]int64{1, 2, 3, 4}),
		vector.NewVecFromSlice([]string{"a", "bb", "", "dddd"}, 2),
		vector.NewVecFromSlice([]float64{0.5, 1.5, 2.5, 3.5}),
		vector.NewVecFromSlice([]bool{true, false, true, false}),
	)
}

func TestBatchMarshalBinary(t *testing.T) {
	bat := newTestBatch()
	data, err := bat.MarshalBinary()
	require.NoError(t, err)

	var got Batch
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, bat.RowCount(), got.RowCount())
	require.Equal(t, bat.Attrs, got.Attrs)
	require.Equal(t, bat.Types(), got.Types())
	require.Equal(t, bat.String(), got.String())
	require.True(t, got.Vecs[1].IsNull(2))

	require.Error(t, got.UnmarshalBinary(data[:len(data)-3]))
}

func TestBatchShrink(t *testing.T) {
	bat := newTestBatch()
	bat.Shrink([]int64{1, 2}, false)
	require.Equal(t, 2, bat.RowCount())
	require.Equal(t, []int64{2, 3}, vector.MustFixedCol[int64](bat.Vecs[0]))
	require.True(t, bat.Vecs[1].IsNull(1))

	bat = newTestBatch()
	bat.Shrink([]int64{0, 3}, true)
	require.Equal(t, []int64{2, 3}, vector.MustFixedCol[int64](bat.Vecs[0]))
}

func TestBatchUnionOneAndWindow(t *testing.T) {
	src := newTestBatch()
	dst := NewWithSchema(src.Attrs, src.Types())
	require.NoError(t, dst.UnionOne(src, 3))
	require.NoError(t, dst.UnionOne(src, 2))
	require.Equal(t, 2, dst.RowCount())
	require.Equal(t, []int64{4, 3}, vector.MustFixedCol[int64](dst.Vecs[0]))
	require.True(t, dst.Vecs[1].IsNull(1))

	w := src.Window(1, 3)
	require.Equal(t, 2, w.RowCount())
	require.Equal(t, 4, src.RowCount())
	require.Equal(t, []float64{1.5, 2.5}, vector.MustFixedCol[float64](w.Vecs[2]))

	bad := New([]string{"x"})
	bad.Vecs[0] = vector.NewVec(types.T_int64.ToType())
	require.Error(t, bad.UnionOne(src, 0))
}

func TestBatchEmpty(t *testing.T) {
	var bat *Batch
	require.True(t, bat.IsEmpty())
	require.True(t, EmptyBatch.IsEmpty())
	require.False(t, newTestBatch().IsEmpty())
}
