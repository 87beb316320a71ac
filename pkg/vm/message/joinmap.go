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

package message

import (
	"bytes"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/axiomhq/hyperloglog"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
)

// RowRef addresses one build row.
type RowRef struct {
	Batch int32
	Row   int32
}

// JoinMap is the published build side of a hash join. It is never
// modified after publication and may be read by any number of probes.
type JoinMap struct {
	valid   atomic.Bool
	rowcnt  int64
	refCnt  int64
	keys    map[string][]RowRef
	batches []*batch.Batch
	ndv     uint64
}

func (jm *JoinMap) GetBatches() []*batch.Batch {
	if jm == nil {
		return nil
	}
	return jm.batches
}

func (jm *JoinMap) GetRowCount() int64 {
	if jm == nil {
		return 0
	}
	return jm.rowcnt
}

func (jm *JoinMap) GetRefCount() int64 {
	if jm == nil {
		return 0
	}
	return atomic.LoadInt64(&jm.refCnt)
}

// KeyNDV estimates the number of distinct build keys.
func (jm *JoinMap) KeyNDV() uint64 {
	return jm.ndv
}

// Lookup returns the build rows whose key encodes to key.
func (jm *JoinMap) Lookup(key []byte) []RowRef {
	return jm.keys[string(key)]
}

func (jm *JoinMap) IncRef(cnt int32) {
	atomic.AddInt64(&jm.refCnt, int64(cnt))
}

func (jm *JoinMap) IsValid() bool {
	return jm.valid.Load()
}

func (jm *JoinMap) FreeMemory() {
	jm.keys = nil
	jm.batches = nil
	jm.valid.Store(false)
}

func (jm *JoinMap) Free() {
	if atomic.AddInt64(&jm.refCnt, -1) != 0 {
		return
	}
	jm.FreeMemory()
}

func (jm *JoinMap) DebugString() string {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	if jm == nil {
		buf.WriteString("joinmap is nil \n")
		return buf.String()
	}
	buf.WriteString("joinmap rowcnt " + strconv.Itoa(int(jm.rowcnt)) + "\n")
	buf.WriteString("joinmap refcnt " + strconv.Itoa(int(jm.GetRefCount())) + "\n")
	buf.WriteString("joinmap ndv " + strconv.FormatUint(jm.ndv, 10) + "\n")
	return buf.String()
}

// JoinBuildState collects the build side of a hash join from a fixed number
// of builders. The last builder to finish publishes the JoinMap; from then
// on the state is read only.
type JoinBuildState struct {
	mu       sync.Mutex
	keyCols  []int32
	builders int
	probers  int
	done     int
	keys     map[string][]RowRef
	batches  []*batch.Batch
	rowcnt   int64
	sketch   *hyperloglog.Sketch
	buf      []byte

	// lanes constructed over the state, see AddBuilder and AddProber
	addedBuilders int
	addedProbers  int

	published atomic.Bool
	ready     chan struct{}
	jm        *JoinMap
	err       error
}

// NewJoinBuildState expects builders calls to BuilderDone before it
// publishes. The published map holds one reference per prober.
func NewJoinBuildState(builders, probers int, keyCols []int32) *JoinBuildState {
	return &JoinBuildState{
		keyCols:  keyCols,
		builders: builders,
		probers:  probers,
		keys:     make(map[string][]RowRef),
		sketch:   hyperloglog.New16(),
		ready:    make(chan struct{}),
	}
}

// AddBuilder registers a build lane constructed over s.
func (s *JoinBuildState) AddBuilder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addedBuilders++
}

// AddProber registers a probe lane constructed over s.
func (s *JoinBuildState) AddProber() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addedProbers++
}

// Validate fails when the lanes registered over s do not match the counts
// it was created with. A missing builder would leave probes waiting for a
// map that is never published.
func (s *JoinBuildState) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addedBuilders != s.builders {
		return moerr.NewPipelineConstructNoCtx("join build side expects %d builders, got %d", s.builders, s.addedBuilders)
	}
	if s.addedProbers != s.probers {
		return moerr.NewPipelineConstructNoCtx("join build side expects %d probers, got %d", s.probers, s.addedProbers)
	}
	return nil
}

func (s *JoinBuildState) KeyCols() []int32 {
	return s.keyCols
}

// AppendKey encodes the key of row of bat into buf. ok is false when any
// key column is NULL, such rows never match.
func AppendKey(buf []byte, bat *batch.Batch, keyCols []int32, row int) ([]byte, bool) {
	for _, col := range keyCols {
		vec := bat.Vecs[col]
		if vec.IsNull(row) {
			return buf, false
		}
		buf = vec.AppendRawKey(buf, row)
	}
	return buf, true
}

// Add takes ownership of bat and indexes its rows.
func (s *JoinBuildState) Add(bat *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published.Load() {
		return moerr.NewInvalidStateNoCtx("join build side already published")
	}
	if bat.IsEmpty() {
		return nil
	}
	for _, col := range s.keyCols {
		if int(col) >= len(bat.Vecs) {
			return moerr.NewOutOfRange(moerr.Context(), "column", "join key %d of %d", col, len(bat.Vecs))
		}
	}
	idx := int32(len(s.batches))
	s.batches = append(s.batches, bat)
	for i := 0; i < bat.RowCount(); i++ {
		var ok bool
		s.buf, ok = AppendKey(s.buf[:0], bat, s.keyCols, i)
		if !ok {
			continue
		}
		key := string(s.buf)
		s.keys[key] = append(s.keys[key], RowRef{Batch: idx, Row: int32(i)})
		s.sketch.Insert(s.buf)
	}
	s.rowcnt += int64(bat.RowCount())
	return nil
}

// BuilderDone reports one builder finished. The last one publishes.
func (s *JoinBuildState) BuilderDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published.Load() {
		return
	}
	s.done++
	if s.done < s.builders {
		return
	}
	jm := &JoinMap{
		rowcnt:  s.rowcnt,
		keys:    s.keys,
		batches: s.batches,
		ndv:     s.sketch.Estimate(),
	}
	jm.valid.Store(true)
	jm.IncRef(int32(s.probers))
	s.publishLocked(jm, nil)
}

// Fail publishes err instead of a map, so waiting probes do not hang.
func (s *JoinBuildState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published.Load() {
		return
	}
	if err == nil {
		err = moerr.NewInternalErrorNoCtx("join build failed")
	}
	s.publishLocked(nil, err)
}

func (s *JoinBuildState) publishLocked(jm *JoinMap, err error) {
	s.jm, s.err = jm, err
	s.keys, s.batches, s.sketch = nil, nil, nil
	s.published.Store(true)
	close(s.ready)
}

// Wait is closed once the state is published.
func (s *JoinBuildState) Wait() <-chan struct{} {
	return s.ready
}

func (s *JoinBuildState) IsPublished() bool {
	return s.published.Load()
}

// JoinMap returns the published map. It fails before publication.
func (s *JoinBuildState) JoinMap() (*JoinMap, error) {
	if !s.published.Load() {
		return nil, moerr.NewInvalidStateNoCtx("join build side read before it was published")
	}
	return s.jm, s.err
}
