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

package exchange

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

func (k PartitionKind) String() string {
	switch k {
	case Passthrough:
		return "passthrough"
	case Broadcast:
		return "broadcast"
	case Hash:
		return "hash"
	case RoundRobin:
		return "round-robin"
	}
	return "unknown"
}

// NewPartitioner returns the partitioner of kind over dests destinations.
// keys are only used by Hash.
func NewPartitioner(kind PartitionKind, keys []int32, dests int) (Partitioner, error) {
	if dests <= 0 {
		return nil, moerr.NewInvalidInputNoCtx("partition over %d destinations", dests)
	}
	switch kind {
	case Passthrough:
		if dests != 1 {
			return nil, moerr.NewInvalidInputNoCtx("passthrough exchange to %d destinations", dests)
		}
		return &broadcastPartitioner{dests: 1}, nil
	case Broadcast:
		return &broadcastPartitioner{dests: dests}, nil
	case Hash:
		if len(keys) == 0 {
			return nil, moerr.NewInvalidInputNoCtx("hash exchange without key columns")
		}
		p := &hashPartitioner{keys: keys, sels: make([]*roaring.Bitmap, dests)}
		for i := range p.sels {
			p.sels[i] = roaring.New()
		}
		return p, nil
	case RoundRobin:
		return &roundRobinPartitioner{dests: dests}, nil
	}
	return nil, moerr.NewNotSupported(moerr.Context(), "partition kind %s", kind)
}

// HashRow hashes the key columns of row. NULL keys hash like any other
// value, so all NULL keys land on one destination.
func HashRow(buf []byte, bat *batch.Batch, keys []int32, row int) (uint64, []byte) {
	buf = buf[:0]
	for _, col := range keys {
		buf = bat.Vecs[col].AppendRawKey(buf, row)
	}
	return xxhash.Sum64(buf), buf
}

// Destination maps a row hash onto one of dests destinations.
func Destination(h uint64, dests int) int {
	return int(h % uint64(dests))
}

type broadcastPartitioner struct {
	dests int
}

func (p *broadcastPartitioner) Destinations() int {
	return p.dests
}

func (p *broadcastPartitioner) Partition(bat *batch.Batch) ([]*batch.Batch, error) {
	out := make([]*batch.Batch, p.dests)
	for i := range out {
		out[i] = bat
	}
	return out, nil
}

type roundRobinPartitioner struct {
	dests int
	next  int
}

func (p *roundRobinPartitioner) Destinations() int {
	return p.dests
}

func (p *roundRobinPartitioner) Partition(bat *batch.Batch) ([]*batch.Batch, error) {
	out := make([]*batch.Batch, p.dests)
	out[p.next] = bat
	p.next = (p.next + 1) % p.dests
	return out, nil
}

type hashPartitioner struct {
	keys []int32
	sels []*roaring.Bitmap
	buf  []byte
}

func (p *hashPartitioner) Destinations() int {
	return len(p.sels)
}

func (p *hashPartitioner) Partition(bat *batch.Batch) ([]*batch.Batch, error) {
	for _, col := range p.keys {
		if int(col) >= len(bat.Vecs) {
			return nil, moerr.NewOutOfRange(moerr.Context(), "column", "hash key %d of %d", col, len(bat.Vecs))
		}
	}
	for _, sels := range p.sels {
		sels.Clear()
	}
	dests := len(p.sels)
	for i := 0; i < bat.RowCount(); i++ {
		var h uint64
		h, p.buf = HashRow(p.buf, bat, p.keys, i)
		p.sels[Destination(h, dests)].Add(uint32(i))
	}

	out := make([]*batch.Batch, dests)
	for d, sels := range p.sels {
		n := int(sels.GetCardinality())
		switch n {
		case 0:
			continue
		case bat.RowCount():
			out[d] = bat
			continue
		}
		rows := make([]int64, 0, n)
		it := sels.Iterator()
		for it.HasNext() {
			rows = append(rows, int64(it.Next()))
		}
		part := bat.Dup()
		part.Shrink(rows, false)
		out[d] = part
	}
	return out, nil
}
