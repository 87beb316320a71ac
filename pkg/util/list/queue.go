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

package list

// Queue is a FIFO queue on a growable ring buffer. The zero value is ready
// to use. It is not safe for concurrent use.
type Queue[E any] struct {
	buf  []E
	head int
	len  int
}

// Len returns the number of queued elements.
func (q *Queue[E]) Len() int { return q.len }

func (q *Queue[E]) PushBack(v E) {
	q.grow()
	q.buf[q.index(q.len)] = v
	q.len++
}

// PopFront removes and returns the oldest element, false if the queue is
// empty.
func (q *Queue[E]) PopFront() (E, bool) {
	var zero E
	if q.len == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.len--
	return v, true
}

func (q *Queue[E]) index(i int) int {
	return (q.head + i) % len(q.buf)
}

func (q *Queue[E]) grow() {
	if q.len < len(q.buf) {
		return
	}
	buf := make([]E, max(2*len(q.buf), 8))
	for i := 0; i < q.len; i++ {
		buf[i] = q.buf[q.index(i)]
	}
	q.buf, q.head = buf, 0
}
