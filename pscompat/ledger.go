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
	"strconv"
	"sync"
	"time"

	"github.com/googleapis/pscompat/pscompat/driver"
)

// envState is the lifecycle state of a single envelope. Transitions are
// monotone: OUTSTANDING -> {ackPending, nackPending, expired};
// ackPending -> acked. There is no transition back.
type envState int

const (
	envOutstanding envState = iota
	envAckPending
	envNackPending
	envAcked
	envExpired
)

// envelope is a message held by pendingLedger between admission and a
// terminal state. It is owned exclusively by the ledger; nothing outside
// this file mutates it.
type envelope struct {
	ackID           driver.AckID
	body            []byte
	key             []byte
	offset          int64
	publishTime     time.Time
	admitTime       time.Time
	currentDeadline time.Time
	extensionsUsed  time.Duration
	state           envState
}

// pendingLedger holds every outstanding message for one subscription. All
// mutation happens under mu; no method ever blocks on I/O, so callers may
// freely interleave it with dispatching RPCs.
type pendingLedger struct {
	mu             sync.Mutex
	byAckID        map[driver.AckID]*envelope
	maxOutstanding int
}

func newPendingLedger(maxOutstanding int) *pendingLedger {
	return &pendingLedger{
		byAckID:        make(map[driver.AckID]*envelope),
		maxOutstanding: maxOutstanding,
	}
}

// parseOffset implements the "offset" attribute convention: absent means 0,
// anything that doesn't parse as a non-negative base-10 int64 is fatal. A
// negative value is treated as unparsable too, resolved conservatively.
func parseOffset(attr string) (int64, error) {
	if attr == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(attr, 10, 64)
	if err != nil || n < 0 {
		return 0, errUnparsableOffset(attr)
	}
	return n, nil
}

// admit stores a freshly pulled batch. It fails with errCapacityExceeded if
// admitting all of msgs would push outstanding count past
// maxOutstanding, and with errUnparsableOffset if any message's offset
// attribute is malformed — in both cases nothing in msgs is admitted, so a
// rejected message is never partially visible to callers.
func (l *pendingLedger) admit(msgs []*driver.Message, now time.Time, initialLease time.Duration) ([]*envelope, error) {
	offsets := make([]int64, len(msgs))
	for i, m := range msgs {
		off, err := parseOffset(m.OffsetAttr)
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.byAckID)+len(msgs) > l.maxOutstanding {
		return nil, errCapacityExceeded()
	}
	envs := make([]*envelope, len(msgs))
	for i, m := range msgs {
		e := &envelope{
			ackID:           m.AckID,
			body:            m.Body,
			key:             m.Key,
			offset:          offsets[i],
			publishTime:     m.PublishTime,
			admitTime:       now,
			currentDeadline: now.Add(initialLease),
			state:           envOutstanding,
		}
		l.byAckID[m.AckID] = e
		envs[i] = e
	}
	return envs, nil
}

// requestAck transitions the given OUTSTANDING envelopes to ackPending.
// Unknown ack ids are counted and skipped rather than treated as failures —
// they are ordinary recovery from a duplicate or already-terminal ack.
func (l *pendingLedger) requestAck(ackIDs []driver.AckID) (unknown int) {
	return l.transition(ackIDs, envAckPending)
}

// requestNack transitions the given OUTSTANDING envelopes to nackPending.
func (l *pendingLedger) requestNack(ackIDs []driver.AckID) (unknown int) {
	return l.transition(ackIDs, envNackPending)
}

func (l *pendingLedger) transition(ackIDs []driver.AckID, to envState) (unknown int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ackIDs {
		e, ok := l.byAckID[id]
		if !ok || e.state != envOutstanding {
			unknown++
			continue
		}
		e.state = to
	}
	return unknown
}

// requestAckAll transitions every currently OUTSTANDING envelope to
// ackPending and returns how many were affected. Used by Commit(sync,
// unbounded) and by AutoCommitter.
func (l *pendingLedger) requestAckAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.byAckID {
		if e.state == envOutstanding {
			e.state = envAckPending
			n++
		}
	}
	return n
}

// requestAckBefore transitions every OUTSTANDING envelope with
// offset <= offset to ackPending. Because synthetic offsets are
// producer-assigned and not monotone, this is necessarily a linear scan.
func (l *pendingLedger) requestAckBefore(offset int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.byAckID {
		if e.state == envOutstanding && e.offset <= offset {
			e.state = envAckPending
			n++
		}
	}
	return n
}

// snapshotExtensions returns the ack ids of OUTSTANDING envelopes whose
// lease is within margin of expiry and still under the extension cap
// (needExtension), and removes (transitioning to expired, then deleting)
// any OUTSTANDING envelope that has exhausted maxExtension.
func (l *pendingLedger) snapshotExtensions(now time.Time, margin, maxExtension time.Duration) (needExtension, expired []driver.AckID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.byAckID {
		if e.state != envOutstanding {
			continue
		}
		if e.extensionsUsed >= maxExtension {
			e.state = envExpired
			expired = append(expired, id)
			delete(l.byAckID, id)
			continue
		}
		if e.currentDeadline.Sub(now) < margin {
			needExtension = append(needExtension, id)
		}
	}
	return needExtension, expired
}

// applyExtension records that ackID's lease was just extended by d,
// updating its deadline and cumulative extension usage. Called by
// LeaseRenewer after it has queued the corresponding MODIFY intent.
func (l *pendingLedger) applyExtension(ackID driver.AckID, d time.Duration, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byAckID[ackID]; ok && e.state == envOutstanding {
		e.currentDeadline = now.Add(d)
		e.extensionsUsed += d
	}
}

// ackedMessage is one message leaving the ledger via an ack, paired with
// the time it was admitted so the caller can feed the admit-to-commit
// latency back into the DeadlineEstimator.
type ackedMessage struct {
	ackID     driver.AckID
	admitTime time.Time
}

// drainTerminals collects every envelope in a terminal-bound state
// (ackPending, nackPending, or a not-yet-swept expired) and removes it from
// the ledger. ackPending/nackPending ids are returned for dispatch; expired
// ids are simply dropped, since no ack is ever sent for them.
func (l *pendingLedger) drainTerminals() (acks []ackedMessage, nacks []driver.AckID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.byAckID {
		switch e.state {
		case envAckPending:
			acks = append(acks, ackedMessage{ackID: id, admitTime: e.admitTime})
			delete(l.byAckID, id)
		case envNackPending:
			nacks = append(nacks, id)
			delete(l.byAckID, id)
		case envExpired:
			delete(l.byAckID, id)
		}
	}
	return acks, nacks
}

// outstandingCount returns the number of envelopes still held, in any
// state — used to size the capacity check and to report metrics.
func (l *pendingLedger) outstandingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byAckID)
}
