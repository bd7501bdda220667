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

	"github.com/googleapis/pscompat/internal/metrics"
)

// leaseRenewer is a periodic task, ticking at LeaseMargin/2, that keeps
// outstanding messages' server-side leases from expiring before the caller
// has had a chance to ack them.
type leaseRenewer struct {
	ledger    *pendingLedger
	estimator *deadlineEstimator
	pump      *dispatchPump
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Registry
}

func newLeaseRenewer(ledger *pendingLedger, est *deadlineEstimator, pump *dispatchPump, cfg Config, log *zap.Logger, m *metrics.Registry) *leaseRenewer {
	return &leaseRenewer{ledger: ledger, estimator: est, pump: pump, cfg: cfg, log: log, metrics: m}
}

// run ticks until ctx is done. On shutdown the final tick is skipped — the
// caller (Subscriber.StopAsync) is responsible for draining the dispatch
// pump's final batch of acks separately.
func (r *leaseRenewer) run(ctx context.Context) {
	ticker := time.NewTicker(LeaseMargin / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *leaseRenewer) tick() {
	d := r.estimator.propose()
	now := time.Now()
	needExtension, expired := r.ledger.snapshotExtensions(now, LeaseMargin, r.cfg.MaxAckExtensionPeriod)

	for _, id := range expired {
		r.log.Warn("message exceeded max ack extension period, abandoning to redelivery", zap.Any("ack_id", id))
	}

	for _, id := range needExtension {
		r.pump.submitNoWait(intent{kind: intentModify, ackID: id, deadline: d})
		r.ledger.applyExtension(id, d, now)
	}
	if len(needExtension) > 0 && r.metrics != nil {
		r.metrics.IncLeaseExtensions(len(needExtension))
	}
}
