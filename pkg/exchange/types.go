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
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

// Sender streams frames of one fragment to one node. Frames sent through
// one Sender arrive in order.
type Sender interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Receiver yields the frames every sender of a fragment addressed to the
// local node.
type Receiver interface {
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport is the view of the cluster network from one node.
type Transport interface {
	NewSender(ctx context.Context, fragmentID string, to string) (Sender, error)
	NewReceiver(ctx context.Context, fragmentID string) (Receiver, error)
}

type PartitionKind int

const (
	// Passthrough sends everything to the single destination.
	Passthrough PartitionKind = iota
	// Broadcast sends every batch to every destination.
	Broadcast
	// Hash routes each row to destination hash(key) mod d.
	Hash
	// RoundRobin sends whole batches to destinations in turn.
	RoundRobin
)

// Partitioner splits a batch across destinations. The result has one entry
// per destination, nil where that destination gets nothing.
type Partitioner interface {
	Partition(bat *batch.Batch) ([]*batch.Batch, error)
	Destinations() int
}

type FrameKind uint8

const (
	FrameData FrameKind = iota + 1
	FrameEnd
	FrameError
)

// Frame is the unit sent over a transport. Stream identifies the sending
// lane; each lane ends its stream with exactly one end or error frame.
type Frame struct {
	Kind   FrameKind
	Stream uuid.UUID
	Batch  *batch.Batch
	Err    error
}

// Codec encodes frames, optionally lz4 compressing the payload.
type Codec struct {
	Compress bool
}

type mailboxKey struct {
	fragment string
	node     string
}

type mailbox struct {
	ch     chan []byte
	done   chan struct{}
	failed chan struct{}
	once   sync.Once
	fail   sync.Once
	err    error
	// open senders and receivers, only changed inside MapOf.Compute
	refs int
}

// LocalHub connects the transports of nodes living in one process.
type LocalHub struct {
	bufferSize int
	mailboxes  *xsync.MapOf[mailboxKey, *mailbox]
	closing    chan struct{}
	closed     atomic.Bool
}

type localTransport struct {
	hub  *LocalHub
	node string
}

type localSender struct {
	hub    *LocalHub
	key    mailboxKey
	mb     *mailbox
	closed atomic.Bool
}

type localReceiver struct {
	hub    *LocalHub
	key    mailboxKey
	mb     *mailbox
	closed atomic.Bool
}
