// Copyright 2018 The Go Cloud Development Kit Authors
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

// Package batcher supports batching of items. Create a Batcher with a
// handler and add items to it. Items are accumulated while handler calls
// are in progress; when the handler returns, it will be called again with
// items accumulated since the last call. Multiple concurrent calls to the
// handler are supported.
//
// Unlike a plain size-triggered batcher, a Batcher also honors a MaxDelay:
// once the first item of a new batch arrives, the batch is handed to the
// handler after MaxDelay elapses even if MinBatchSize was never reached.
// This is what lets DispatchPump coalesce ack/modify-ack intents over a
// short window instead of waiting indefinitely for the batch to fill.
package batcher

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// Split determines how to split n (representing n items) into batches based
// on opts. It returns a slice of batch sizes.
func Split(n int, opts *Options) []int {
	o := newOptionsWithDefaults(opts)
	if n < o.MinBatchSize {
		return nil
	}
	if o.MaxBatchSize == 0 {
		return []int{n}
	}
	var batches []int
	for n >= o.MinBatchSize && len(batches) < o.MaxHandlers {
		b := o.MaxBatchSize
		if b > n {
			b = n
		}
		batches = append(batches, b)
		n -= b
	}
	return batches
}

// A Batcher batches items.
type Batcher struct {
	opts          Options
	handler       func(any) error
	itemSliceZero reflect.Value
	wg            sync.WaitGroup

	mu        sync.Mutex
	pending   []waiter
	nHandlers int
	timer     *time.Timer
	shutdown  bool
}

// ErrMessageTooLarge is returned when an item exceeds MaxBatchByteSize.
var ErrMessageTooLarge = errors.New("batcher: message too large")

type sizableItem interface {
	ByteSize() int
}

type waiter struct {
	item any
	errc chan error
}

// Options sets options for Batcher.
type Options struct {
	// Maximum number of concurrent handlers. Defaults to 1.
	MaxHandlers int
	// Minimum size of a batch. Defaults to 1.
	MinBatchSize int
	// Maximum size of a batch. 0 means no limit.
	MaxBatchSize int
	// Maximum bytesize of a batch. 0 means no limit.
	MaxBatchByteSize int
	// If non-zero, a batch below MinBatchSize is still dispatched once this
	// much time has passed since its oldest item arrived.
	MaxDelay time.Duration
}

func newOptionsWithDefaults(opts *Options) Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.MaxHandlers == 0 {
		o.MaxHandlers = 1
	}
	if o.MinBatchSize == 0 {
		o.MinBatchSize = 1
	}
	return o
}

// New creates a new Batcher.
//
// itemType is the type that will be batched. If itemType is T, the argument
// to handler is of type []T.
func New(itemType reflect.Type, opts *Options, handler func(any) error) *Batcher {
	return &Batcher{
		opts:          newOptionsWithDefaults(opts),
		handler:       handler,
		itemSliceZero: reflect.Zero(reflect.SliceOf(itemType)),
	}
}

// Add adds an item to the batcher. It blocks until the handler has
// processed the item and reports the error the handler returned.
func (b *Batcher) Add(ctx context.Context, item any) error {
	c := b.AddNoWait(item)
	select {
	case err := <-c:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddNoWait adds an item to the batcher and returns immediately.
func (b *Batcher) AddNoWait(item any) <-chan error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := make(chan error, 1)
	if b.shutdown {
		c <- errors.New("batcher: shut down")
		return c
	}
	if b.opts.MaxBatchByteSize > 0 {
		if sizable, ok := item.(sizableItem); ok {
			if sizable.ByteSize() > b.opts.MaxBatchByteSize {
				c <- ErrMessageTooLarge
				return c
			}
		}
	}

	wasEmpty := len(b.pending) == 0
	b.pending = append(b.pending, waiter{item, c})
	if wasEmpty && b.opts.MaxDelay > 0 {
		b.timer = time.AfterFunc(b.opts.MaxDelay, b.flushOnTimer)
	}
	if b.nHandlers < b.opts.MaxHandlers {
		if batch := b.nextBatchLocked(true); batch != nil {
			b.wg.Add(1)
			go func() {
				b.callHandler(batch)
				b.wg.Done()
			}()
			b.nHandlers++
		}
	}
	return c
}

// flushOnTimer forces a batch below MinBatchSize out once MaxDelay elapses.
func (b *Batcher) flushOnTimer() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	if b.nHandlers >= b.opts.MaxHandlers {
		// Every handler is busy; try again after another MaxDelay.
		b.timer = time.AfterFunc(b.opts.MaxDelay, b.flushOnTimer)
		b.mu.Unlock()
		return
	}
	batch := b.nextBatchLocked(false)
	if batch == nil {
		b.mu.Unlock()
		return
	}
	b.nHandlers++
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		b.callHandler(batch)
		b.wg.Done()
	}()
}

// nextBatchLocked returns the batch to process, and updates b.pending.
// b.mu must be held. When respectMinBatchSize is true, nil is returned
// unless there are at least MinBatchSize pending items; the timer path
// calls this with false to force partial batches out.
func (b *Batcher) nextBatchLocked(respectMinBatchSize bool) []waiter {
	if respectMinBatchSize && len(b.pending) < b.opts.MinBatchSize {
		return nil
	}
	if len(b.pending) == 0 {
		return nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	if b.opts.MaxBatchByteSize == 0 && (b.opts.MaxBatchSize == 0 || len(b.pending) <= b.opts.MaxBatchSize) {
		batch := b.pending
		b.pending = nil
		return batch
	}

	batch := make([]waiter, 0, len(b.pending))
	batchByteSize := 0
	for _, msg := range b.pending {
		itemByteSize := 0
		if sizable, ok := msg.item.(sizableItem); ok {
			itemByteSize = sizable.ByteSize()
		}
		reachedMaxSize := b.opts.MaxBatchSize > 0 && len(batch)+1 > b.opts.MaxBatchSize
		reachedMaxByteSize := b.opts.MaxBatchByteSize > 0 && batchByteSize+itemByteSize > b.opts.MaxBatchByteSize
		if reachedMaxSize || reachedMaxByteSize {
			break
		}
		batch = append(batch, msg)
		batchByteSize += itemByteSize
	}
	b.pending = b.pending[len(batch):]
	if len(b.pending) > 0 && b.opts.MaxDelay > 0 {
		b.timer = time.AfterFunc(b.opts.MaxDelay, b.flushOnTimer)
	}
	return batch
}

func (b *Batcher) callHandler(batch []waiter) {
	for batch != nil {
		items := b.itemSliceZero
		for _, m := range batch {
			items = reflect.Append(items, reflect.ValueOf(m.item))
		}
		err := b.handler(items.Interface())
		for _, m := range batch {
			m.errc <- err
		}
		b.mu.Lock()
		batch = b.nextBatchLocked(!b.shutdown)
		if batch == nil {
			b.nHandlers--
		}
		b.mu.Unlock()
	}
}

// Shutdown waits for all active calls to Add to finish, then returns.
// After Shutdown is called, all subsequent calls to Add fail. Any batch
// still pending below MinBatchSize — waiting only on its MaxDelay timer —
// is flushed immediately rather than abandoned, since that timer is about
// to be cancelled.
func (b *Batcher) Shutdown() {
	b.mu.Lock()
	b.shutdown = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	for b.nHandlers < b.opts.MaxHandlers {
		batch := b.nextBatchLocked(false)
		if batch == nil {
			break
		}
		b.nHandlers++
		b.wg.Add(1)
		go func() {
			b.callHandler(batch)
			b.wg.Done()
		}()
	}
	b.mu.Unlock()
	b.wg.Wait()
}
