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
	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/valuescan"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

func NewPipelineBuildResult() *PipelineBuildResult {
	return &PipelineBuildResult{
		MainPipeline:     pipeline.New(),
		ExchangeInjector: DefaultExchangeInjector{},
		Profiles:         process.NewSharedProfiles(),
	}
}

// FromBatches starts the main pipeline with one source lane per batch.
func FromBatches(bats []*batch.Batch) (*PipelineBuildResult, error) {
	r := NewPipelineBuildResult()
	if len(bats) == 0 {
		err := r.MainPipeline.AddSource(1, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
			return valuescan.NewProcessor(out), nil
		})
		return r, err
	}
	i := 0
	err := r.MainPipeline.AddSource(len(bats), func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		bat := bats[i]
		i++
		return valuescan.NewProcessor(out, bat), nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// AddSourcePipeline registers an auxiliary pipeline run alongside the main
// one, such as a join build side.
func (r *PipelineBuildResult) AddSourcePipeline(p *pipeline.Pipeline) {
	r.SourcesPipelines = append(r.SourcesPipelines, p)
}

// SetMaxThreads applies n to every pipeline of the result.
func (r *PipelineBuildResult) SetMaxThreads(n int) {
	r.MainPipeline.SetMaxThreads(n)
	for _, p := range r.SourcesPipelines {
		p.SetMaxThreads(n)
	}
}

// Pipelines returns the source pipelines followed by the main pipeline.
func (r *PipelineBuildResult) Pipelines() []*pipeline.Pipeline {
	ps := make([]*pipeline.Pipeline, 0, len(r.SourcesPipelines)+1)
	ps = append(ps, r.SourcesPipelines...)
	return append(ps, r.MainPipeline)
}

func (r *PipelineBuildResult) Validate() error {
	if r.MainPipeline == nil {
		return moerr.NewPipelineConstructNoCtx("build result without main pipeline")
	}
	for _, p := range r.Pipelines() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
