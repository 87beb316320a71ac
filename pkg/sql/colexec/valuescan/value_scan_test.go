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

package valuescan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/output"
	"github.com/matrixorigin/mopipeline/pkg/testutil"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func TestString(t *testing.T) {
	arg := NewArgument(testutil.NewInt64Batch([]string{"a"}, []int64{1}))
	require.Equal(t, "value_scan(1 batches)", colexec.String(arg))
}

func TestGenerate(t *testing.T) {
	first := testutil.NewInt64Batch([]string{"a"}, []int64{1, 2})
	arg := NewArgument(first, nil)
	require.NoError(t, arg.Prepare())

	bat, err := arg.Generate()
	require.NoError(t, err)
	require.Same(t, first, bat)

	bat, err = arg.Generate()
	require.NoError(t, err)
	require.Same(t, batch.EmptyBatch, bat)

	bat, err = arg.Generate()
	require.NoError(t, err)
	require.Nil(t, bat)

	arg.Free(false, nil)
	require.Nil(t, arg.Batches)
}

func TestValueScanPipeline(t *testing.T) {
	p := pipeline.New()
	require.NoError(t, p.AddSource(3, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		return NewProcessor(out,
			testutil.NewBatch(nil, false, 0),
			testutil.NewInt64Batch([]string{"a"}, []int64{1, 2}),
			testutil.NewInt64Batch([]string{"a"}, []int64{3})), nil
	}))
	c := output.NewCollector()
	require.NoError(t, p.AddSink(c.NewProcessor))
	require.NoError(t, testutil.Run(context.Background(), 2, p))

	require.Equal(t, 9, c.RowCount())
	require.True(t, c.Done())
	require.Equal(t, []string{"1", "1", "1", "2", "2", "2", "3", "3", "3"}, testutil.Rows(c.Batches()))
}
