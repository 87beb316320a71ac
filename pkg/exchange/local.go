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

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
)

// DefaultBufferSize is the number of frames a mailbox holds before senders
// block.
const DefaultBufferSize = 16

func NewLocalHub(bufferSize int) *LocalHub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &LocalHub{
		bufferSize: bufferSize,
		mailboxes:  xsync.NewMapOf[mailboxKey, *mailbox](),
		closing:    make(chan struct{}),
	}
}

// Node returns the transport of node.
func (h *LocalHub) Node(node string) Transport {
	return &localTransport{hub: h, node: node}
}

func (h *LocalHub) newMailbox() *mailbox {
	return &mailbox{
		ch:     make(chan []byte, h.bufferSize),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
}

func (h *LocalHub) mailbox(fragmentID, node string) *mailbox {
	mb, _ := h.mailboxes.LoadOrCompute(mailboxKey{fragment: fragmentID, node: node}, h.newMailbox)
	return mb
}

// acquire returns the mailbox of key and counts one more endpoint on it.
func (h *LocalHub) acquire(key mailboxKey) *mailbox {
	mb, _ := h.mailboxes.Compute(key, func(mb *mailbox, loaded bool) (*mailbox, bool) {
		if !loaded {
			mb = h.newMailbox()
		}
		mb.refs++
		return mb, false
	})
	return mb
}

// release drops one endpoint of key. The mailbox is removed with its last
// endpoint unless it still buffers frames no receiver has seen yet.
func (h *LocalHub) release(key mailboxKey) {
	h.mailboxes.Compute(key, func(mb *mailbox, loaded bool) (*mailbox, bool) {
		if !loaded {
			return mb, true
		}
		mb.refs--
		return mb, mb.refs <= 0 && (mb.receiverClosed() || len(mb.ch) == 0)
	})
}

func (mb *mailbox) receiverClosed() bool {
	select {
	case <-mb.done:
		return true
	default:
		return false
	}
}

// Streams returns the number of mailboxes currently held by the hub.
func (h *LocalHub) Streams() int {
	return h.mailboxes.Size()
}

// InjectFailure breaks the stream of fragmentID towards node: pending and
// later sends and receives return err.
func (h *LocalHub) InjectFailure(fragmentID, node string, err error) {
	if err == nil {
		err = moerr.NewBackendClosedNoCtx()
	}
	mb := h.mailbox(fragmentID, node)
	mb.fail.Do(func() {
		mb.err = err
		close(mb.failed)
	})
}

// Close fails every stream with a backend closed error.
func (h *LocalHub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.closing)
	}
}

func (t *localTransport) NewSender(ctx context.Context, fragmentID string, to string) (Sender, error) {
	if t.hub.closed.Load() {
		return nil, moerr.NewBackendClosed(ctx)
	}
	if fragmentID == "" || to == "" {
		return nil, moerr.NewInvalidInput(ctx, "sender of fragment %q to node %q", fragmentID, to)
	}
	key := mailboxKey{fragment: fragmentID, node: to}
	return &localSender{hub: t.hub, key: key, mb: t.hub.acquire(key)}, nil
}

func (t *localTransport) NewReceiver(ctx context.Context, fragmentID string) (Receiver, error) {
	if t.hub.closed.Load() {
		return nil, moerr.NewBackendClosed(ctx)
	}
	if fragmentID == "" {
		return nil, moerr.NewInvalidInput(ctx, "receiver without fragment")
	}
	key := mailboxKey{fragment: fragmentID, node: t.node}
	return &localReceiver{hub: t.hub, key: key, mb: t.hub.acquire(key)}, nil
}

// Send blocks while the mailbox is full. Frames for a receiver that was
// closed are dropped.
func (s *localSender) Send(ctx context.Context, data []byte) error {
	if s.closed.Load() {
		return moerr.NewStreamClosed(ctx)
	}
	select {
	case <-s.mb.failed:
		return s.mb.err
	case <-s.hub.closing:
		return moerr.NewBackendClosed(ctx)
	case <-s.mb.done:
		return nil
	default:
	}
	select {
	case s.mb.ch <- data:
		return nil
	case <-s.mb.done:
		return nil
	case <-s.mb.failed:
		return s.mb.err
	case <-s.hub.closing:
		return moerr.NewBackendClosed(ctx)
	case <-ctx.Done():
		return moerr.ConvertGoError(ctx, ctx.Err())
	}
}

func (s *localSender) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.hub.release(s.key)
	}
	return nil
}

func (r *localReceiver) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-r.mb.ch:
		return data, nil
	case <-r.mb.failed:
		return nil, r.mb.err
	case <-r.mb.done:
		return nil, moerr.NewStreamClosed(ctx)
	case <-r.hub.closing:
		return nil, moerr.NewBackendClosed(ctx)
	case <-ctx.Done():
		return nil, moerr.ConvertGoError(ctx, ctx.Err())
	}
}

// Close stops the stream, senders still sending are not blocked anymore.
func (r *localReceiver) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.mb.once.Do(func() {
			close(r.mb.done)
		})
		r.hub.release(r.key)
	}
	return nil
}

