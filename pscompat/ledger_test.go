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

	"github.com/googleapis/pscompat/pscompat/driver"
)

func msg(ackID string, offset string) *driver.Message {
	return &driver.Message{AckID: ackID, OffsetAttr: offset, PublishTime: time.Unix(0, 0)}
}

func TestLedgerAdmitAndDrain(t *testing.T) {
	l := newPendingLedger(10)
	now := time.Now()
	envs, err := l.admit([]*driver.Message{msg("A", "10"), msg("B", "11")}, now, 10*time.Second)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("admit returned %d envelopes, want 2", len(envs))
	}
	if l.outstandingCount() != 2 {
		t.Fatalf("outstandingCount = %d, want 2", l.outstandingCount())
	}

	if n := l.requestAckAll(); n != 2 {
		t.Fatalf("requestAckAll = %d, want 2", n)
	}
	acks, nacks := l.drainTerminals()
	if len(nacks) != 0 {
		t.Fatalf("nacks = %v, want none", nacks)
	}
	if len(acks) != 2 {
		t.Fatalf("acks = %v, want 2 ids", acks)
	}
	if l.outstandingCount() != 0 {
		t.Fatalf("outstandingCount after drain = %d, want 0", l.outstandingCount())
	}
}

func TestLedgerUnparsableOffsetRejectsWholeBatch(t *testing.T) {
	l := newPendingLedger(10)
	_, err := l.admit([]*driver.Message{msg("A", "10"), msg("B", "xyz")}, time.Now(), time.Second)
	if err == nil {
		t.Fatal("admit with unparsable offset: got nil error")
	}
	if l.outstandingCount() != 0 {
		t.Fatalf("outstandingCount after failed admit = %d, want 0", l.outstandingCount())
	}
}

func TestLedgerNegativeOffsetIsUnparsable(t *testing.T) {
	l := newPendingLedger(10)
	if _, err := l.admit([]*driver.Message{msg("A", "-1")}, time.Now(), time.Second); err == nil {
		t.Fatal("admit with negative offset: got nil error")
	}
}

func TestLedgerMissingOffsetDefaultsToZero(t *testing.T) {
	l := newPendingLedger(10)
	envs, err := l.admit([]*driver.Message{msg("A", "")}, time.Now(), time.Second)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if envs[0].offset != 0 {
		t.Errorf("offset = %d, want 0", envs[0].offset)
	}
}

func TestLedgerCapacityExceeded(t *testing.T) {
	l := newPendingLedger(2)
	if _, err := l.admit([]*driver.Message{msg("A", "1"), msg("B", "2"), msg("C", "3")}, time.Now(), time.Second); err == nil {
		t.Fatal("admit over capacity: got nil error")
	}
	if l.outstandingCount() != 0 {
		t.Fatalf("outstandingCount after rejected admit = %d, want 0", l.outstandingCount())
	}
}

func TestLedgerRequestAckBeforePartialOffset(t *testing.T) {
	l := newPendingLedger(10)
	l.admit([]*driver.Message{msg("A", "5"), msg("B", "7"), msg("C", "9"), msg("D", "12")}, time.Now(), time.Second)
	n := l.requestAckBefore(9)
	if n != 3 {
		t.Fatalf("requestAckBefore(9) = %d, want 3", n)
	}
	acks, _ := l.drainTerminals()
	if len(acks) != 3 {
		t.Fatalf("acks = %v, want 3", acks)
	}
	if l.outstandingCount() != 1 {
		t.Fatalf("outstandingCount = %d, want 1 (offset 12 remains)", l.outstandingCount())
	}
}

func TestLedgerUnknownAckIDIsSkippedNotFailed(t *testing.T) {
	l := newPendingLedger(10)
	l.admit([]*driver.Message{msg("A", "1")}, time.Now(), time.Second)
	unknown := l.requestAck([]driver.AckID{"A", "does-not-exist"})
	if unknown != 1 {
		t.Fatalf("unknown = %d, want 1", unknown)
	}
}

func TestLedgerSnapshotExtensionsAndExpiry(t *testing.T) {
	l := newPendingLedger(10)
	now := time.Now()
	// A lease 10s longer than LeaseMargin starts outside the margin.
	l.admit([]*driver.Message{msg("A", "1")}, now, LeaseMargin+10*time.Second)

	// Not yet near expiry: no extension needed.
	need, expired := l.snapshotExtensions(now, LeaseMargin, 300*time.Second)
	if len(need) != 0 || len(expired) != 0 {
		t.Fatalf("immediately after admit: need=%v expired=%v, want both empty", need, expired)
	}

	// 11s later the lease has 59s left, within LeaseMargin: needs extension.
	later := now.Add(11 * time.Second)
	need, expired = l.snapshotExtensions(later, LeaseMargin, 300*time.Second)
	if len(need) != 1 || len(expired) != 0 {
		t.Fatalf("within margin: need=%v expired=%v, want 1 need, 0 expired", need, expired)
	}
	l.applyExtension("A", 10*time.Second, later)

	// Drive extensionsUsed past the cap.
	l.applyExtension("A", 300*time.Second, later)
	need, expired = l.snapshotExtensions(later, LeaseMargin, 300*time.Second)
	if len(need) != 0 || len(expired) != 1 {
		t.Fatalf("past cap: need=%v expired=%v, want 0 need, 1 expired", need, expired)
	}
	if l.outstandingCount() != 0 {
		t.Fatalf("outstandingCount after expiry = %d, want 0", l.outstandingCount())
	}
}
