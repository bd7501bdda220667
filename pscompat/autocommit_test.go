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

	"go.uber.org/zap"

	"github.com/googleapis/pscompat/pscompat/driver"
)

func TestAutoCommitterFlushesAdmittedMessages(t *testing.T) {
	fd := &scriptedDriver{}
	cfg := Config{MaxPerRequestChanges: 10, AckRequestTimeout: time.Second}.withDefaults()
	ledger := newPendingLedger(10)
	ledger.admit([]*driver.Message{msg("A", "1"), msg("B", "2")}, time.Now(), time.Minute)

	pump := newDispatchPump(fd, cfg, zap.NewNop(), nil)
	ac := newAutoCommitter(ledger, newDeadlineEstimator(), pump, cfg, zap.NewNop())
	ac.commitAll()
	pump.shutdown(time.Second)

	fd.mu.Lock()
	defer fd.mu.Unlock()
	total := 0
	for _, b := range fd.acked {
		total += len(b)
	}
	if total != 2 {
		t.Fatalf("acked ids total = %d, want 2", total)
	}
	if ledger.outstandingCount() != 0 {
		t.Errorf("outstandingCount = %d, want 0", ledger.outstandingCount())
	}
}

func TestAutoCommitterResetDoesNotPanic(t *testing.T) {
	ledger := newPendingLedger(10)
	fd := &scriptedDriver{}
	cfg := Config{}.withDefaults()
	pump := newDispatchPump(fd, cfg, zap.NewNop(), nil)
	ac := newAutoCommitter(ledger, newDeadlineEstimator(), pump, cfg, zap.NewNop())
	ac.reset()
	ac.reset() // buffered channel of size 1: second reset must not block
}
