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

package process

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
)

func NewProfile(pid int, name string) *Profile {
	return &Profile{PID: pid, Name: name}
}

func (p *Profile) AddCPUTime(d time.Duration) {
	p.cpuTime.Add(int64(d))
	p.callCount.Add(1)
}

func (p *Profile) AddWaitTime(d time.Duration) {
	p.waitTime.Add(int64(d))
}

func (p *Profile) CPUTime() time.Duration {
	return time.Duration(p.cpuTime.Load())
}

func (p *Profile) WaitTime() time.Duration {
	return time.Duration(p.waitTime.Load())
}

func (p *Profile) CallCount() int64 {
	return p.callCount.Load()
}

// StartStep returns a StepTracker for one step, Stop or StopWait records it.
func (p *Profile) StartStep() StepTracker {
	return StepTracker{p: p, start: time.Now()}
}

// Stop records the elapsed time as cpu time and returns it.
func (t StepTracker) Stop() time.Duration {
	d := time.Since(t.start)
	t.p.AddCPUTime(d)
	return d
}

// StopEvent records the time an evaluation took as cpu time. It counts a
// call only when the evaluation moved data between ports.
func (t StepTracker) StopEvent(moved bool) time.Duration {
	d := time.Since(t.start)
	t.p.cpuTime.Add(int64(d))
	if moved {
		t.p.callCount.Add(1)
	}
	return d
}

// StopWait records the elapsed time as wait time and returns it.
func (t StepTracker) StopWait() time.Duration {
	d := time.Since(t.start)
	t.p.AddWaitTime(d)
	return d
}

func (p *Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		ProcessorID:   p.PID,
		ProcessorName: p.Name,
		CPUTime:       p.CPUTime(),
		WaitTime:      p.WaitTime(),
		CallCount:     p.CallCount(),
	}
}

func (s ProfileSnapshot) String() string {
	return fmt.Sprintf("%s(%d) cpu=%v wait=%v calls=%d", s.ProcessorName, s.ProcessorID, s.CPUTime, s.WaitTime, s.CallCount)
}

func NewSharedProfiles() *SharedProfiles {
	return &SharedProfiles{profiles: make(map[int]*Profile)}
}

// Register creates the profile of processor pid. Registering the same id
// twice, or after the registry was drained, is an error.
func (sp *SharedProfiles) Register(pid int, name string) (*Profile, error) {
	sp.Lock()
	defer sp.Unlock()
	if sp.drained {
		return nil, moerr.NewInvalidStateNoCtx("profiles already drained")
	}
	if _, ok := sp.profiles[pid]; ok {
		return nil, moerr.NewInvalidStateNoCtx("duplicate profile for processor %d", pid)
	}
	p := NewProfile(pid, name)
	sp.profiles[pid] = p
	return p, nil
}

func (sp *SharedProfiles) Get(pid int) (*Profile, bool) {
	sp.RLock()
	defer sp.RUnlock()
	p, ok := sp.profiles[pid]
	return p, ok
}

func (sp *SharedProfiles) Len() int {
	sp.RLock()
	defer sp.RUnlock()
	return len(sp.profiles)
}

// Snapshot copies every profile, ordered by processor id.
func (sp *SharedProfiles) Snapshot() []ProfileSnapshot {
	sp.RLock()
	defer sp.RUnlock()
	return sp.snapshotLocked()
}

// Drain returns the final snapshot and empties the registry.
func (sp *SharedProfiles) Drain() []ProfileSnapshot {
	sp.Lock()
	defer sp.Unlock()
	snaps := sp.snapshotLocked()
	sp.profiles = make(map[int]*Profile)
	sp.drained = true
	return snaps
}

func (sp *SharedProfiles) snapshotLocked() []ProfileSnapshot {
	snaps := make([]ProfileSnapshot, 0, len(sp.profiles))
	for _, p := range sp.profiles {
		snaps = append(snaps, p.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ProcessorID < snaps[j].ProcessorID
	})
	return snaps
}

// String renders a snapshot list one processor per line.
func String(snaps []ProfileSnapshot) string {
	var buf bytes.Buffer
	for _, s := range snaps {
		buf.WriteString(s.String())
		buf.WriteString("\n")
	}
	return buf.String()
}
