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

func TestLeaseRenewerExtendsNearExpiry(t *testing.T) {
	fd := &scriptedDriver{}
	cfg := Config{MaxPerRequestChanges: 10, AckRequestTimeout: time.Second, MaxAckExtensionPeriod: 300 * time.Second}.withDefaults()
	ledger := newPendingLedger(10)
	// Admitted with a 10s lease 9s ago: well within LeaseMargin (60s) of
	// expiry, so the very first tick must extend it.
	now := time.Now().Add(-9 * time.Second)
	ledger.admit([]*driver.Message{msg("A", "1")}, now, 10*time.Second)

	pump := newDispatchPump(fd, cfg, zap.NewNop(), nil)
	renewer := newLeaseRenewer(ledger, newDeadlineEstimator(), pump, cfg, zap.NewNop(), nil)
	renewer.tick()
	pump.shutdown(time.Second)

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if len(fd.modified) != 1 {
		t.Fatalf("modify-ack-deadline RPCs = %d, want 1", len(fd.modified))
	}
	if len(fd.modified[0].ids) != 1 || fd.modified[0].ids[0] != driver.AckID("A") {
		t.Errorf("modified ids = %v, want [A]", fd.modified[0].ids)
	}
	if fd.modified[0].deadline != MinLease {
		t.Errorf("proposed deadline = %v, want MinLease %v (estimator has no samples yet)", fd.modified[0].deadline, MinLease)
	}
}

func TestLeaseRenewerExpiresPastCap(t *testing.T) {
	fd := &scriptedDriver{}
	cfg := Config{MaxPerRequestChanges: 10, AckRequestTimeout: time.Second, MaxAckExtensionPeriod: 5 * time.Second}.withDefaults()
	ledger := newPendingLedger(10)
	now := time.Now()
	ledger.admit([]*driver.Message{msg("A", "1")}, now, 10*time.Second)
	ledger.applyExtension("A", 10*time.Second, now) // exceeds the 5s cap

	pump := newDispatchPump(fd, cfg, zap.NewNop(), nil)
	renewer := newLeaseRenewer(ledger, newDeadlineEstimator(), pump, cfg, zap.NewNop(), nil)
	renewer.tick()
	pump.shutdown(time.Second)

	if ledger.outstandingCount() != 0 {
		t.Fatalf("outstandingCount = %d, want 0 (message should have expired)", ledger.outstandingCount())
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if len(fd.modified) != 0 {
		t.Errorf("modify-ack-deadline RPCs = %d, want 0 for an expired message", len(fd.modified))
	}
}
