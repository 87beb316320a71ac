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
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/message"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "join"

var (
	_ colexec.TransformOperator = new(InnerJoin)
	_ pipeline.AsyncProcessor   = new(Processor)
)

// ResultPos picks output column Pos from the probe (Rel 0) or the build
// (Rel 1) side.
type ResultPos struct {
	Rel int32
	Pos int32
}

type container struct {
	jm  *message.JoinMap
	buf []byte
}

// InnerJoin probes the published build side with every input batch.
type InnerJoin struct {
	ctr        container
	State      *message.JoinBuildState
	Conditions []int32
	Result     []ResultPos
	Attrs      []string
}

// Processor waits for the build side before it runs the join.
type Processor struct {
	*colexec.Transformer
	state *message.JoinBuildState
}

func NewArgument(state *message.JoinBuildState, conds []int32, result []ResultPos) *InnerJoin {
	return &InnerJoin{State: state, Conditions: conds, Result: result}
}
