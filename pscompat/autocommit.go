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
	"time"

	"go.uber.org/zap"
)

// autoCommitter periodically acks every currently-admitted message, for
// callers that opt into AutoCommit instead of calling Commit themselves. A
// manual Commit call resets the period via reset, on the rationale that
// callers who commit by hand have already done the auto-committer's job
// for this cycle.
type autoCommitter struct {
	ledger *pendingLedger
	est    *deadlineEstimator
	pump   *dispatchPump
	cfg    Config
	log    *zap.Logger

	resetCh chan struct{}
}

func newAutoCommitter(ledger *pendingLedger, est *deadlineEstimator, pump *dispatchPump, cfg Config, log *zap.Logger) *autoCommitter {
	return &autoCommitter{
		ledger:  ledger,
		est:     est,
		pump:    pump,
		cfg:     cfg,
		log:     log,
		resetCh: make(chan struct{}, 1),
	}
}

// reset restarts the committer's period, called when the caller issues a
// manual Commit.
func (a *autoCommitter) reset() {
	select {
	case a.resetCh <- struct{}{}:
	default:
	}
}

func (a *autoCommitter) run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.AutoCommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.resetCh:
			ticker.Reset(a.cfg.AutoCommitInterval)
		case <-ticker.C:
			a.commitAll()
		}
	}
}

func (a *autoCommitter) commitAll() {
	a.ledger.requestAckAll()
	acks, nacks := a.ledger.drainTerminals()
	now := time.Now()
	for _, ack := range acks {
		a.est.observe(now.Sub(ack.admitTime))
		a.pump.submitNoWait(intent{kind: intentAck, ackID: ack.ackID})
	}
	for _, id := range nacks {
		a.pump.submitNoWait(intent{kind: intentNack, ackID: id})
	}
	if len(acks) > 0 {
		a.log.Debug("auto-committed", zap.Int("count", len(acks)))
	}
}
