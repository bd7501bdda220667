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
	"reflect"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/googleapis/pscompat/internal/gcerr"
	"github.com/googleapis/pscompat/internal/metrics"
	"github.com/googleapis/pscompat/internal/retry"
	"github.com/googleapis/pscompat/pscompat/batcher"
	"github.com/googleapis/pscompat/pscompat/driver"
)

type intentKind int

const (
	intentAck intentKind = iota
	intentNack
	intentModify
)

func (k intentKind) String() string {
	switch k {
	case intentAck:
		return "ack"
	case intentNack:
		return "nack"
	case intentModify:
		return "modify"
	default:
		return "unknown"
	}
}

// intent is one item on the DispatchPump's inbound queue: a request to ack,
// nack, or extend the lease of a single ack id. Completion is reported
// through the channel batcher.Add/AddNoWait returns, not on this struct.
type intent struct {
	kind     intentKind
	ackID    driver.AckID
	deadline time.Duration // only meaningful for intentModify
}

// dispatchPump batches ack/modify-ack intents into size-capped RPCs,
// retrying RETRIABLE failures with backoff and dropping FATAL ones (the
// server's own deadline will eventually redeliver). It never serializes
// distinct batches: up to maxInFlightBatches may be in flight at once.
type dispatchPump struct {
	sub     driver.Subscription
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Registry
	b       *batcher.Batcher
}

func newDispatchPump(sub driver.Subscription, cfg Config, log *zap.Logger, m *metrics.Registry) *dispatchPump {
	p := &dispatchPump{sub: sub, cfg: cfg, log: log, metrics: m}
	p.b = batcher.New(reflect.TypeOf(intent{}), &batcher.Options{
		MaxHandlers:  maxInFlightBatches,
		MinBatchSize: cfg.MaxPerRequestChanges,
		MaxBatchSize: cfg.MaxPerRequestChanges,
		MaxDelay:     coalesceWindow,
	}, p.handle)
	return p
}

// submit enqueues in and blocks until its RPC has completed (successfully
// or unrecoverably) or ctx is done.
func (p *dispatchPump) submit(ctx context.Context, in intent) error {
	return p.b.Add(ctx, in)
}

// submitNoWait enqueues in and returns a channel that will receive its
// completion, without blocking the caller.
func (p *dispatchPump) submitNoWait(in intent) <-chan error {
	return p.b.AddNoWait(in)
}

// shutdown waits for every in-flight and queued intent to complete, or
// until deadline elapses, whichever comes first. Intents still queued past
// the deadline are abandoned to server-side redelivery.
func (p *dispatchPump) shutdown(deadline time.Duration) {
	done := make(chan struct{})
	go func() {
		p.b.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(deadline):
		p.log.Warn("dispatch pump drain deadline exceeded; abandoning remaining intents")
	}
}

// handle is the Batcher's handler: it groups a batch by kind (and, for
// modify intents, by deadline, since a single ModifyAckDeadline RPC applies
// one deadline to every id it carries) and dispatches each group
// concurrently via an errgroup.
func (p *dispatchPump) handle(items any) error {
	ins := items.([]intent)

	var acks, nacks []driver.AckID
	modifyGroups := map[time.Duration][]driver.AckID{}
	for _, in := range ins {
		switch in.kind {
		case intentAck:
			acks = append(acks, in.ackID)
		case intentNack:
			nacks = append(nacks, in.ackID)
		case intentModify:
			modifyGroups[in.deadline] = append(modifyGroups[in.deadline], in.ackID)
		}
	}

	var g errgroup.Group
	if len(acks) > 0 {
		ids := acks
		g.Go(func() error { return p.call("ack", func(ctx context.Context) error { return p.sub.SendAcks(ctx, ids) }) })
	}
	if len(nacks) > 0 {
		ids := nacks
		g.Go(func() error { return p.call("nack", func(ctx context.Context) error { return p.sub.SendNacks(ctx, ids) }) })
	}
	for d, ids := range modifyGroups {
		d, ids := d, ids
		g.Go(func() error {
			return p.call("modify", func(ctx context.Context) error {
				return p.sub.ModifyAckDeadlines(ctx, ids, d)
			})
		})
	}
	// call never returns a non-nil error: a FATAL RPC result is logged and
	// the batch dropped rather than propagated. Every waiter in this batch
	// is therefore completed with nil regardless of which groups
	// succeeded — commit(sync) only needs to know the batch reached a
	// terminal outcome, not which one.
	return g.Wait()
}

// call retries f against the subscription's RETRIABLE-ness classification
// with exponential backoff and full jitter, bounded by cfg.AckRequestTimeout
// per attempt. Non-retryable (FATAL) errors are logged and swallowed: the
// batch is dropped, and the server's own ack deadline will redeliver.
func (p *dispatchPump) call(kind string, f func(ctx context.Context) error) error {
	bo := gax.Backoff{Initial: p.cfg.RetryBackoff, Max: 60 * time.Second, Multiplier: 2}
	err := retry.Call(context.Background(), bo, p.sub.IsRetryable, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AckRequestTimeout)
		defer cancel()
		return f(ctx)
	})
	if err != nil {
		classified := gcerr.New(p.sub.ErrorCode(err), err, 1, "dispatch")
		p.log.Warn("dispatch RPC failed, dropping batch", zap.String("kind", kind), zap.Error(classified))
		if p.metrics != nil {
			p.metrics.IncAckResult(kind, "error")
		}
		return nil // FATAL: drop, don't propagate.
	}
	if p.metrics != nil {
		p.metrics.IncAckResult(kind, "ok")
	}
	return nil
}
