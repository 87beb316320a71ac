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

package receiver

import (
	"time"

	"github.com/google/uuid"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "receiver"

var (
	_ pipeline.AsyncProcessor = new(Processor)
	_ pipeline.Releaser       = new(Processor)
)

// Receiver describes the frames one consuming node waits for.
type Receiver struct {
	FragmentID string
	Transport  exchange.Transport
	// Streams is the number of sending lanes, each ends with one end frame.
	Streams int
	Codec   exchange.Codec
	// Timeout bounds each read, zero takes the package default.
	Timeout time.Duration
}

type container struct {
	receiver exchange.Receiver
	pending  *batch.Batch
	ended    map[uuid.UUID]struct{}
	eos      bool
}

// Processor is the exchange source of one node.
type Processor struct {
	pipeline.ProcessorBase
	ctr container
	arg *Receiver
	out *pipeline.OutputPort
}
