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
	"sync"
	"sync/atomic"
	"time"
)

// Profile accumulates the time one processor spent in the run. Counters are
// nanoseconds and may be updated from any goroutine.
type Profile struct {
	PID  int
	Name string

	cpuTime   atomic.Int64
	waitTime  atomic.Int64
	callCount atomic.Int64
}

// ProfileSnapshot is a point in time copy of a Profile.
type ProfileSnapshot struct {
	ProcessorID   int           `json:"pid"`
	ProcessorName string        `json:"p_name"`
	CPUTime       time.Duration `json:"cpu_time"`
	WaitTime      time.Duration `json:"wait_time"`
	CallCount     int64         `json:"call_count,omitempty"`
}

// SharedProfiles is the profile registry of one query. It is created with
// the build result and filled when the executor assigns processor ids.
type SharedProfiles struct {
	sync.RWMutex
	profiles map[int]*Profile
	drained  bool
}

// StepTracker measures one step of a processor.
type StepTracker struct {
	p     *Profile
	start time.Time
}
