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
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/googleapis/pscompat/internal/metrics"
	"github.com/googleapis/pscompat/pscompat/driver"
)

// Subscriber is the runtime behind a single topic subscription: it owns a
// PendingLedger, DispatchPump, LeaseRenewer, PullLoop, and (optionally) an
// AutoCommitter, none of which are shared with any other Subscriber.
type Subscriber struct {
	name string // the server-side subscription resource name
	sub  driver.Subscription
	cfg  Config
	log  *zap.Logger

	ledger  *pendingLedger
	est     *deadlineEstimator
	pump    *dispatchPump
	renewer *leaseRenewer
	puller  *pullLoop
	auto    *autoCommitter // nil unless cfg.AutoCommit
	metrics *metrics.Registry

	mu       sync.Mutex
	st       state
	fatalErr error
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSubscriber constructs a Subscriber bound to an already-open
// subscription. Acquiring that subscription (naming, NotFound/create
// handling) is driver.SubscriptionMaker's job, not this constructor's.
func NewSubscriber(name string, sub driver.Subscription, cfg Config, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	reg := metrics.NewRegistry(name)
	ledger := newPendingLedger(cfg.MaxPullRecords * 2)
	est := newDeadlineEstimator()
	pump := newDispatchPump(sub, cfg, log, reg)

	s := &Subscriber{
		name:    name,
		sub:     sub,
		cfg:     cfg,
		log:     log,
		ledger:  ledger,
		est:     est,
		pump:    pump,
		renewer: newLeaseRenewer(ledger, est, pump, cfg, log, reg),
		puller:  newPullLoop(sub, ledger, est, cfg, log, reg),
		metrics: reg,
		st:      stateNew,
	}
	if cfg.AutoCommit {
		s.auto = newAutoCommitter(ledger, est, pump, cfg, log)
	}
	return s
}

// Subscription returns the server-side subscription resource name, opaque
// to the core beyond being an identifier.
func (s *Subscriber) Subscription() string { return s.name }

// State reports the current lifecycle state.
func (s *Subscriber) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.String()
}

// StartAsync transitions NEW -> STARTING -> RUNNING and spawns the
// background tasks (LeaseRenewer, PullLoop, and, if configured,
// AutoCommitter).
func (s *Subscriber) StartAsync() error {
	s.mu.Lock()
	if s.st != stateNew {
		s.mu.Unlock()
		return fmt.Errorf("pscompat: StartAsync called in state %s, want NEW", s.st)
	}
	s.st = stateStarting
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.puller.run(ctx) }()
	go func() { defer s.wg.Done(); s.renewer.run(ctx) }()
	if s.auto != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.auto.run(ctx) }()
	}

	s.mu.Lock()
	s.st = stateRunning
	s.mu.Unlock()
	return nil
}

// StopAsync transitions RUNNING -> STOPPING -> TERMINATED: it cancels the
// background tasks, waits for them to return, then drains outstanding ack
// intents with a bounded deadline. The cancellation also aborts any
// in-flight pull RPC; that RPC is not allowed to run to completion.
func (s *Subscriber) StopAsync() error {
	s.mu.Lock()
	if s.st != stateRunning {
		s.mu.Unlock()
		return fmt.Errorf("pscompat: StopAsync called in state %s, want RUNNING", s.st)
	}
	s.st = stateStopping
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.pump.shutdown(drainDeadline)

	s.mu.Lock()
	s.st = stateTerminated
	s.mu.Unlock()
	return nil
}

// markFailed records a terminal background error and transitions the
// Subscriber to FAILED; it is surfaced on the next caller-facing call.
func (s *Subscriber) markFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.st = stateFailed
}

func (s *Subscriber) checkFailed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateFailed {
		return s.fatalErr
	}
	return nil
}

// Pull blocks up to timeout and returns an ordered batch of not-yet-acked
// records.
func (s *Subscriber) Pull(timeout time.Duration) ([]*Record, error) {
	if err := s.checkFailed(); err != nil {
		return nil, err
	}
	recs, err := s.puller.pull(timeout)
	if err != nil {
		s.markFailed(err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetOutstanding(s.ledger.outstandingCount())
	}
	return recs, nil
}

// Commit marks every currently-admitted message for ack. When sync, it
// blocks until the DispatchPump has reported completion for every ack id
// in scope.
func (s *Subscriber) Commit(sync bool) error {
	s.ledger.requestAckAll()
	return s.flushAndMaybeWait(sync)
}

// CommitBefore is Commit restricted to messages with synthetic offset <=
// offset.
func (s *Subscriber) CommitBefore(sync bool, offset int64) error {
	s.ledger.requestAckBefore(offset)
	return s.flushAndMaybeWait(sync)
}

func (s *Subscriber) flushAndMaybeWait(sync bool) error {
	acks, nacks := s.ledger.drainTerminals()
	waiters := make([]<-chan error, 0, len(acks)+len(nacks))
	now := time.Now()
	for _, a := range acks {
		s.est.observe(now.Sub(a.admitTime))
		waiters = append(waiters, s.pump.submitNoWait(intent{kind: intentAck, ackID: a.ackID}))
	}
	for _, id := range nacks {
		waiters = append(waiters, s.pump.submitNoWait(intent{kind: intentNack, ackID: id}))
	}
	if s.auto != nil {
		s.auto.reset()
	}
	if !sync {
		return nil
	}
	for _, c := range waiters {
		<-c
	}
	return nil
}

// Pause suppresses new pull RPCs without discarding already-admitted
// records still waiting in the Available buffer.
func (s *Subscriber) Pause()  { s.puller.setPaused(true) }
func (s *Subscriber) Resume() { s.puller.setPaused(false) }

// Seek issues a direct seek RPC against the backing subscription. The
// lazy-apply behavior (remembering seeks and applying them on the next
// poll) is a façade concern layered by package compat, not this core.
func (s *Subscriber) Seek(ctx context.Context, t time.Time) error {
	return s.sub.Seek(ctx, t)
}

// MetricsSnapshot returns the current metric values for this subscriber.
func (s *Subscriber) MetricsSnapshot() (map[string]float64, error) {
	return s.metrics.Snapshot()
}
