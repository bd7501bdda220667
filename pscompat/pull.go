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
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/googleapis/pscompat/internal/gcerr"
	"github.com/googleapis/pscompat/internal/metrics"
	"github.com/googleapis/pscompat/pscompat/driver"
)

// Record is a single message surfaced to the caller from Pull. It is not
// yet acknowledged: it remains outstanding in the ledger until Commit or
// CommitBefore requests its ack.
type Record struct {
	Body        []byte
	Key         []byte // nil if the message carried no key attribute
	Offset      int64
	PublishTime time.Time
}

// pullLoop maintains the buffer of admitted-but-unread records: it runs
// independently of the caller, replenishing a bounded channel by issuing
// pull RPCs whenever the ledger has room.
type pullLoop struct {
	sub       driver.Subscription
	ledger    *pendingLedger
	estimator *deadlineEstimator
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Registry

	buf chan *Record

	mu      sync.Mutex
	lastErr error
	paused  bool
}

func newPullLoop(sub driver.Subscription, ledger *pendingLedger, est *deadlineEstimator, cfg Config, log *zap.Logger, m *metrics.Registry) *pullLoop {
	return &pullLoop{
		sub:       sub,
		ledger:    ledger,
		estimator: est,
		cfg:       cfg,
		log:       log,
		metrics:   m,
		buf:       make(chan *Record, cfg.MaxPullRecords*2),
	}
}

// setPaused suppresses new pull RPCs without discarding anything already
// admitted. Already-buffered records are still returned by pull().
func (pl *pullLoop) setPaused(paused bool) {
	pl.mu.Lock()
	pl.paused = paused
	pl.mu.Unlock()
}

func (pl *pullLoop) isPaused() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.paused
}

func (pl *pullLoop) setLastErr(err error) {
	pl.mu.Lock()
	pl.lastErr = err
	pl.mu.Unlock()
}

func (pl *pullLoop) getLastErr() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.lastErr
}

// run is the loop's goroutine body. It returns when ctx is done or a FATAL
// pull error is encountered.
func (pl *pullLoop) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if pl.isPaused() || pl.ledger.outstandingCount()+pl.cfg.MaxPullRecords > pl.cfg.MaxPullRecords*2 {
			// Either explicitly paused, or admitting a full batch could
			// exceed the ledger's capacity bound: back off and let the
			// caller drain via commit before pulling more.
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		start := time.Now()
		pullCtx, cancel := context.WithTimeout(ctx, pl.cfg.AckRequestTimeout)
		msgs, err := pl.sub.ReceiveBatch(pullCtx, pl.cfg.MaxPullRecords)
		cancel()
		if pl.metrics != nil {
			pl.metrics.ObservePullLatency(time.Since(start))
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if pl.sub.IsRetryable(err) {
				pl.log.Warn("transient pull failure, retrying", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(pl.cfg.RetryBackoff):
				}
				continue
			}
			classified := gcerr.New(pl.sub.ErrorCode(err), err, 1, "pull")
			pl.log.Error("fatal pull failure", zap.Error(classified))
			pl.setLastErr(classified)
			return
		}
		if len(msgs) == 0 {
			continue
		}

		now := time.Now()
		envs, err := pl.ledger.admit(msgs, now, pl.estimator.propose())
		if err != nil {
			// Unparsable offset or a capacity race: the messages are left
			// unacknowledged, so the server will redeliver them. The
			// error is fatal on the pull path only for UNPARSABLE_OFFSET;
			// a capacity race just means try again next tick.
			pl.log.Warn("admit failed, messages will be redelivered", zap.Error(err))
			var ge *gcerr.Error
			if errors.As(err, &ge) && ge.Code == gcerr.ResourceExhausted {
				continue
			}
			pl.setLastErr(err)
			continue
		}
		if pl.metrics != nil {
			pl.metrics.SetOutstanding(pl.ledger.outstandingCount())
		}
		for _, e := range envs {
			select {
			case pl.buf <- &Record{Body: e.body, Key: e.key, Offset: e.offset, PublishTime: e.publishTime}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// pull returns up to MaxPullRecords immediately if available, else waits up
// to timeout for at least one record, returning an empty (not erroneous)
// batch on timeout.
func (pl *pullLoop) pull(timeout time.Duration) ([]*Record, error) {
	if err := pl.getLastErr(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var batch []*Record
	select {
	case r := <-pl.buf:
		batch = append(batch, r)
	case <-timer.C:
		return nil, nil
	}

drain:
	for len(batch) < pl.cfg.MaxPullRecords {
		select {
		case r := <-pl.buf:
			batch = append(batch, r)
		default:
			break drain
		}
	}
	return batch, nil
}
