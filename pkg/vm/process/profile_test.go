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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProfileConcurrentAdd(t *testing.T) {
	p := NewProfile(1, "restrict")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				p.AddCPUTime(time.Nanosecond)
				p.AddWaitTime(2 * time.Nanosecond)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 8000*time.Nanosecond, p.CPUTime())
	require.Equal(t, 16000*time.Nanosecond, p.WaitTime())
	require.Equal(t, int64(8000), p.CallCount())
}

func TestTracker(t *testing.T) {
	p := NewProfile(0, "src")
	tr := p.StartStep()
	time.Sleep(time.Millisecond)
	d := tr.Stop()
	require.GreaterOrEqual(t, d, time.Millisecond)
	require.Equal(t, d, p.CPUTime())

	tr = p.StartStep()
	w := tr.StopWait()
	require.Equal(t, w, p.WaitTime())
	require.Equal(t, int64(1), p.CallCount())

	tr = p.StartStep()
	e := tr.StopEvent(false)
	require.Equal(t, d+e, p.CPUTime())
	require.Equal(t, int64(1), p.CallCount())
	tr = p.StartStep()
	tr.StopEvent(true)
	require.Equal(t, int64(2), p.CallCount())
}

func TestSharedProfiles(t *testing.T) {
	sp := NewSharedProfiles()
	p2, err := sp.Register(2, "sink")
	require.NoError(t, err)
	_, err = sp.Register(0, "source")
	require.NoError(t, err)
	_, err = sp.Register(2, "dup")
	require.Error(t, err)

	p2.AddCPUTime(5 * time.Microsecond)
	got, ok := sp.Get(2)
	require.True(t, ok)
	require.Same(t, p2, got)

	snaps := sp.Snapshot()
	require.Len(t, snaps, 2)
	require.Equal(t, 0, snaps[0].ProcessorID)
	require.Equal(t, "sink", snaps[1].ProcessorName)
	require.Equal(t, 5*time.Microsecond, snaps[1].CPUTime)
	require.Contains(t, String(snaps), "sink(2)")

	final := sp.Drain()
	require.Equal(t, snaps, final)
	require.Equal(t, 0, sp.Len())
	_, err = sp.Register(3, "late")
	require.Error(t, err)
}
