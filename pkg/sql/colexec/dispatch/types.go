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

package dispatch

import (
	"github.com/google/uuid"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "dispatch"

var (
	_ pipeline.AsyncProcessor = new(Processor)
	_ pipeline.Releaser       = new(Processor)
)

// Dispatch describes where one producing lane sends its rows.
type Dispatch struct {
	FragmentID string
	Transport  exchange.Transport
	// Receivers are the consuming nodes, in partition order.
	Receivers []string
	Kind      exchange.PartitionKind
	Keys      []int32
	Codec     exchange.Codec
}

type frame struct {
	dest int
	data []byte
}

type container struct {
	stream      uuid.UUID
	partitioner exchange.Partitioner
	senders     []exchange.Sender
	pending     []frame
	inputData   *batch.Batch
	finishing   bool
	endQueued   bool
	done        bool
}

// Processor is the exchange sink of one lane. Sends run asynchronously so
// a full transport never holds a worker.
type Processor struct {
	pipeline.ProcessorBase
	ctr container
	arg *Dispatch
	in  *pipeline.InputPort
}
