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

package group

import (
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/types"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
)

const opName = "group"

var _ colexec.BlockingOperator = new(Group)

type AggOp int

const (
	AggCount AggOp = iota
	AggSum
)

// Aggregate computes Op over column Col. Col is ignored by a count, which
// counts rows.
type Aggregate struct {
	Op   AggOp
	Col  int32
	Name string
}

type aggState struct {
	typ    types.Type
	ints   []int64
	floats []float64
	seen   []bool
}

type container struct {
	groups map[string]int
	keys   *batch.Batch
	aggs   []aggState
	buf    []byte
}

// Group is a hash aggregation. Output columns are the group by columns
// followed by one column per aggregate.
type Group struct {
	ctr     container
	GroupBy []int32
	Aggs    []Aggregate
}

func NewArgument(groupBy []int32, aggs []Aggregate) *Group {
	return &Group{GroupBy: groupBy, Aggs: aggs}
}

func (group *Group) Free(pipelineFailed bool, err error) {
	group.ctr.groups = nil
	group.ctr.keys = nil
	group.ctr.aggs = nil
}
