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

	"github.com/googleapis/pscompat/gcerrors"
	"github.com/googleapis/pscompat/pscompat/driver"
)

// scriptedStep is one scripted response to ReceiveBatch.
type scriptedStep struct {
	msgs []*driver.Message
	err  error
}

type modifyCall struct {
	ids      []driver.AckID
	deadline time.Duration
}

// scriptedDriver is a fake driver.Subscription, in the style of
// pubsub/sub_test.go's scriptedSub: a queue of scripted ReceiveBatch
// results, plus recorders for every outbound call so tests can assert on
// exactly what pscompat sent.
type scriptedDriver struct {
	mu sync.Mutex

	steps []scriptedStep // consumed in order by ReceiveBatch

	acked    [][]driver.AckID
	nacked   [][]driver.AckID
	modified []modifyCall
	seeks    []time.Time

	retryableErr error // errors equal (==) to this are retryable
	nackErr      error // returned by every SendNacks call, after recording it
}

func (f *scriptedDriver) ReceiveBatch(ctx context.Context, maxMessages int) ([]*driver.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return nil, nil
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.msgs, s.err
}

func (f *scriptedDriver) SendAcks(ctx context.Context, ackIDs []driver.AckID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]driver.AckID(nil), ackIDs...)
	f.acked = append(f.acked, cp)
	return nil
}

func (f *scriptedDriver) SendNacks(ctx context.Context, ackIDs []driver.AckID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]driver.AckID(nil), ackIDs...)
	f.nacked = append(f.nacked, cp)
	return f.nackErr
}

func (f *scriptedDriver) ModifyAckDeadlines(ctx context.Context, ackIDs []driver.AckID, deadline time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]driver.AckID(nil), ackIDs...)
	f.modified = append(f.modified, modifyCall{cp, deadline})
	return nil
}

func (f *scriptedDriver) Seek(ctx context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, t)
	return nil
}

func (f *scriptedDriver) IsRetryable(err error) bool {
	return f.retryableErr != nil && errors.Is(err, f.retryableErr)
}

func (f *scriptedDriver) ErrorCode(err error) gcerrors.ErrorCode {
	if err == nil {
		return gcerrors.OK
	}
	return gcerrors.Unknown
}

func (f *scriptedDriver) Close() error { return nil }

var _ driver.Subscription = (*scriptedDriver)(nil)
