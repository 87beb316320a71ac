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

package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/vm/executor"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func NewBatch(ts []types.Type, random bool, n int) *batch.Batch {
	attrs := make([]string, len(ts))
	vecs := make([]*vector.Vector, len(ts))
	for i := range ts {
		attrs[i] = "c" + strconv.Itoa(i)
		vecs[i] = NewVector(n, ts[i], random)
	}
	bat := batch.NewWithVectors(attrs, vecs...)
	bat.SetRowCount(n)
	return bat
}

func NewVector(n int, typ types.Type, random bool) *vector.Vector {
	switch typ.Oid {
	case types.T_bool:
		return NewBoolVector(n, random)
	case types.T_int64:
		return NewInt64Vector(n, random)
	case types.T_float64:
		return NewFloat64Vector(n, random)
	case types.T_varchar:
		return NewStringVector(n, random)
	default:
		panic(fmt.Errorf("unsupport vector's type '%v", typ))
	}
}

func NewBoolVector(n int, random bool) *vector.Vector {
	vs := make([]bool, n)
	for i := range vs {
		vs[i] = i%2 == 0
		if random {
			vs[i] = rand.Intn(2) == 0
		}
	}
	return vector.NewVecFromSlice(vs)
}

func NewInt64Vector(n int, random bool) *vector.Vector {
	vs := make([]int64, n)
	for i := range vs {
		v := i
		if random {
			v = rand.Int()
		}
		vs[i] = int64(v)
	}
	return vector.NewVecFromSlice(vs)
}

func NewFloat64Vector(n int, random bool) *vector.Vector {
	vs := make([]float64, n)
	for i := range vs {
		v := float64(i)
		if random {
			v = rand.Float64()
		}
		vs[i] = v
	}
	return vector.NewVecFromSlice(vs)
}

func NewStringVector(n int, random bool) *vector.Vector {
	vs := make([]string, n)
	for i := range vs {
		v := i
		if random {
			v = rand.Int()
		}
		vs[i] = strconv.Itoa(v)
	}
	return vector.NewVecFromSlice(vs)
}

// NewInt64Batch builds a batch with one BIGINT column per slice in cols.
func NewInt64Batch(attrs []string, cols ...[]int64) *batch.Batch {
	vecs := make([]*vector.Vector, len(cols))
	for i, col := range cols {
		vecs[i] = vector.NewVecFromSlice(col)
	}
	return batch.NewWithVectors(attrs, vecs...)
}

// Rows flattens bats into rows rendered as strings, sorted so results can be
// compared as multisets.
func Rows(bats []*batch.Batch) []string {
	var rows []string
	for _, bat := range bats {
		for i := 0; i < bat.RowCount(); i++ {
			row := ""
			for j, vec := range bat.Vecs {
				if j > 0 {
					row += ","
				}
				if vec.IsNull(i) {
					row += "null"
					continue
				}
				row += fmt.Sprint(vec.GetAny(i))
			}
			rows = append(rows, row)
		}
	}
	sort.Strings(rows)
	return rows
}

// Run executes pipes on at most threads workers.
func Run(ctx context.Context, threads int, pipes ...*pipeline.Pipeline) error {
	e, err := executor.NewPipelineExecutor(pipes, executor.Options{MaxThreads: threads})
	if err != nil {
		return err
	}
	return e.Execute(ctx)
}
