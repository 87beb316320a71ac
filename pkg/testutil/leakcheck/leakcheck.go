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

// Package leakcheck reports goroutines a test left behind, ignoring the
// scavengers of released ants pools which exit on their next tick.
package leakcheck

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
)

var ignoredTopFunctions = []string{
	"github.com/panjf2000/ants/v2.(*Pool).purgePeriodically",
}

const (
	retries  = 100
	interval = 50 * time.Millisecond
)

// AfterTest snapshots the running goroutines and returns a func that
// fails t if new ones are still alive after a grace period.
func AfterTest(t testing.TB) func() {
	orig := leaktest.GetInterestedGoroutines()
	return func() {
		if t.Failed() {
			return
		}
		if r := recover(); r != nil {
			panic(r)
		}
		var leaked []string
		for i := 0; i < retries; i++ {
			leaked = Leaked(orig)
			if len(leaked) == 0 {
				return
			}
			time.Sleep(interval)
		}
		sort.Strings(leaked)
		for _, g := range leaked {
			t.Errorf("Leaked goroutine: %v", g)
		}
	}
}

// Leaked returns the stacks of goroutines missing from orig.
func Leaked(orig map[int64]string) []string {
	var leaked []string
	for id, stack := range leaktest.GetInterestedGoroutines() {
		if _, ok := orig[id]; ok || ignored(stack) {
			continue
		}
		leaked = append(leaked, stack)
	}
	return leaked
}

func ignored(stack string) bool {
	lines := strings.SplitN(stack, "\n", 3)
	if len(lines) < 2 {
		return false
	}
	top := strings.TrimSpace(lines[1])
	for _, fn := range ignoredTopFunctions {
		if strings.HasPrefix(top, fn+"(") {
			return true
		}
	}
	return false
}
