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

package executor

import (
	"container/heap"
	"strings"
	"sync"
	"time"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/util/list"
)

func (p SchedulePolicy) String() string {
	switch p {
	case ScheduleFIFO:
		return "fifo"
	case ScheduleCPUTime:
		return "cpu-time"
	}
	return "unknown"
}

func ParseSchedulePolicy(s string) (SchedulePolicy, error) {
	switch strings.ToLower(s) {
	case "", "fifo":
		return ScheduleFIFO, nil
	case "cpu-time", "cputime":
		return ScheduleCPUTime, nil
	}
	return ScheduleFIFO, moerr.NewBadConfigNoCtx("unknown schedule policy %q", s)
}

func newRunQueue(policy SchedulePolicy) runQueue {
	if policy == ScheduleCPUTime {
		q := &priorityQueue{}
		q.cond = sync.NewCond(&q.mu)
		return q
	}
	q := &fifoQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

type fifoQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  list.Queue[*node]
	closed bool
}

func (q *fifoQueue) push(n *node) {
	q.mu.Lock()
	q.items.PushBack(n)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *fifoQueue) pop() (*node, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && q.items.Len() == 0 {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	return q.items.PopFront()
}

func (q *fifoQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *fifoQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type prioritizedNode struct {
	n       *node
	cpuTime time.Duration
	seq     uint64
}

type nodeHeap []prioritizedNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].cpuTime != h[j].cpuTime {
		return h[i].cpuTime < h[j].cpuTime
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(prioritizedNode)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type priorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  nodeHeap
	seq    uint64
	closed bool
}

func (q *priorityQueue) push(n *node) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, prioritizedNode{n: n, cpuTime: n.profile.CPUTime(), seq: q.seq})
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *priorityQueue) pop() (*node, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && len(q.items) == 0 {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	return heap.Pop(&q.items).(prioritizedNode).n, true
}

func (q *priorityQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *priorityQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
