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

package hashbuild

import (
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/message"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "hash_build"

var _ colexec.SinkOperator = new(HashBuild)

type container struct {
	done bool
}

// HashBuild feeds one lane of the build side into a shared JoinBuildState.
type HashBuild struct {
	ctr   container
	State *message.JoinBuildState
}

func NewArgument(state *message.JoinBuildState) *HashBuild {
	return &HashBuild{State: state}
}

func (hashBuild *HashBuild) String(buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(fmt.Sprintf("(keys %v)", hashBuild.State.KeyCols()))
}

func (hashBuild *HashBuild) Prepare() error {
	return nil
}

func (hashBuild *HashBuild) Consume(bat *batch.Batch) error {
	return hashBuild.State.Add(bat)
}

func (hashBuild *HashBuild) OnFinish() error {
	hashBuild.ctr.done = true
	hashBuild.State.BuilderDone()
	return nil
}

func (hashBuild *HashBuild) CheckGraph() error {
	return hashBuild.State.Validate()
}

// Free publishes the failure if this lane never completed, probes
// waiting on the build side then fail instead of hanging.
func (hashBuild *HashBuild) Free(pipelineFailed bool, err error) {
	if !hashBuild.ctr.done {
		hashBuild.State.Fail(err)
	}
}

func NewProcessor(in *pipeline.InputPort, state *message.JoinBuildState) *colexec.Sink {
	state.AddBuilder()
	return colexec.NewSink(opName, in, NewArgument(state))
}
