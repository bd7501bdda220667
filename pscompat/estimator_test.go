// Copyright 2024 The pscompat Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pscompat

import (
	"testing"
	"time"
)

func TestDeadlineEstimatorBelowMinSamples(t *testing.T) {
	e := newDeadlineEstimator()
	for i := 0; i < minSamples-1; i++ {
		e.observe(5 * time.Minute)
	}
	if got := e.propose(); got != MinLease {
		t.Errorf("propose() with %d samples = %v, want MinLease %v", minSamples-1, got, MinLease)
	}
}

func TestDeadlineEstimatorPercentile(t *testing.T) {
	e := newDeadlineEstimator()
	// 100 samples from 1s to 100s; p99 should land near 99s.
	for i := 1; i <= 100; i++ {
		e.observe(time.Duration(i) * time.Second)
	}
	got := e.propose()
	want := 99 * time.Second
	if got != want {
		t.Errorf("propose() = %v, want %v", got, want)
	}
}

func TestDeadlineEstimatorClamp(t *testing.T) {
	e := newDeadlineEstimator()
	for i := 0; i < minSamples; i++ {
		e.observe(2 * time.Second) // below MinLease
	}
	if got := e.propose(); got != MinLease {
		t.Errorf("propose() = %v, want clamped MinLease %v", got, MinLease)
	}

	e2 := newDeadlineEstimator()
	for i := 0; i < minSamples; i++ {
		e2.observe(20 * time.Minute) // above MaxLease
	}
	if got := e2.propose(); got != MaxLease {
		t.Errorf("propose() = %v, want clamped MaxLease %v", got, MaxLease)
	}
}

func TestDeadlineEstimatorRingWraps(t *testing.T) {
	e := newDeadlineEstimator()
	for i := 0; i < maxSamples+50; i++ {
		e.observe(30 * time.Second)
	}
	if got := e.propose(); got != 30*time.Second {
		t.Errorf("propose() after wrap = %v, want 30s", got)
	}
}
