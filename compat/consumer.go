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

// Package compat is the Kafka-consumer-shaped façade over package pscompat:
// one Subscriber per subscribed topic, round-robin polling across them, and
// the group bookkeeping (pause sets, lazy seeks, synthetic partitions) that
// a caller migrating off a partitioned-log consumer API expects to find.
package compat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/googleapis/pscompat/pscompat"
	"github.com/googleapis/pscompat/pscompat/driver"
)

// ErrUnsupported is returned by operations the remote service has no
// concept of, matching the original UnsupportedOperationException.
var ErrUnsupported = errors.New("compat: operation not supported by this adapter")

// ErrWakeup is returned by a blocked or about-to-block Poll call after
// Wakeup is called, matching the original's WakeupException.
var ErrWakeup = errors.New("compat: consumer woken up")

// Config configures a Consumer. GroupID and ProjectID combine with a
// subscribed topic to form the server-side subscription name
// (projects/<ProjectID>/subscriptions/<topic>_<GroupID>).
type Config struct {
	GroupID                   string
	ProjectID                 string
	AllowSubscriptionCreation bool
	AllowSubscriptionDeletion bool
	Subscriber                pscompat.Config
}

// PartitionInfo describes the single synthetic partition (id 0) a
// Pub/Sub-backed topic presents.
type PartitionInfo struct {
	Topic     string
	Partition int
}

// Record is a delivered message tagged with the topic it came from; unlike
// pscompat.Record, which speaks about exactly one subscription, a Consumer
// may poll several at once.
type Record struct {
	Topic       string
	Body        []byte
	Key         []byte
	Offset      int64
	PublishTime time.Time
}

type seekKind int

const (
	seekNone seekKind = iota
	seekBeginning
	seekEnd
	seekTime
)

type lazySeek struct {
	kind seekKind
	at   time.Time
}

// Consumer is the façade entry point. It is not safe for concurrent Poll
// calls from multiple goroutines, matching the original's single-threaded
// access contract; Pause/Resume/Commit/Seek* may be called concurrently
// with Poll.
type Consumer struct {
	cfg   Config
	maker driver.SubscriptionMaker
	log   *zap.Logger

	mu        sync.Mutex
	subs      map[string]*pscompat.Subscriber
	order     []string
	nextIdx   int
	paused    map[string]bool
	lazySeeks map[string]lazySeek

	wakeup chan struct{}
}

// NewConsumer constructs a Consumer. It does not itself open any
// subscription; call Subscribe or Assign first.
func NewConsumer(cfg Config, maker driver.SubscriptionMaker, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		cfg:       cfg,
		maker:     maker,
		log:       log,
		subs:      make(map[string]*pscompat.Subscriber),
		paused:    make(map[string]bool),
		lazySeeks: make(map[string]lazySeek),
		wakeup:    make(chan struct{}, 1),
	}
}

func (c *Consumer) subscriptionName(topic string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s_%s", c.cfg.ProjectID, topic, c.cfg.GroupID)
}

// Subscribe opens one Subscriber per topic and starts it, using the
// group-coordinated subscription name. Subsequent calls add to, rather
// than replace, the current assignment.
func (c *Consumer) Subscribe(topics []string) error {
	return c.attach(topics)
}

// Assign is the direct-partition-style counterpart to Subscribe. Because
// the remote service exposes only the single synthetic partition 0 per
// topic, Assign and Subscribe wire up identically here; the distinction
// this method preserves is purely the caller-facing API shape.
func (c *Consumer) Assign(topics []string) error {
	return c.attach(topics)
}

func (c *Consumer) attach(topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	for _, topic := range topics {
		if _, ok := c.subs[topic]; ok {
			continue
		}
		name := c.subscriptionName(topic)
		deadline := c.cfg.Subscriber.CreatedSubscriptionDeadline
		if deadline <= 0 {
			deadline = 10 * time.Second
		}
		sub, err := c.maker.OpenSubscription(ctx, name, topic, c.cfg.AllowSubscriptionCreation, deadline)
		if err != nil {
			return fmt.Errorf("compat: subscribe %s: %w", topic, err)
		}
		s := pscompat.NewSubscriber(name, sub, c.cfg.Subscriber, c.log)
		if err := s.StartAsync(); err != nil {
			return fmt.Errorf("compat: start subscriber for %s: %w", topic, err)
		}
		c.subs[topic] = s
		c.order = append(c.order, topic)
	}
	return nil
}

// Poll round-robins across assigned, non-paused topics starting at a
// rotating index, giving each an equal share of timeout, and returns the
// first non-empty batch. If a full cycle yields nothing, it returns an
// empty slice (not an error) — the caller is expected to poll again.
//
// A pending Wakeup call aborts Poll at the next per-topic iteration
// boundary, returning ErrWakeup; it cannot interrupt a single in-flight
// per-topic pull, matching the granularity at which this adapter can
// observe the wakeup signal.
func (c *Consumer) Poll(timeout time.Duration) ([]Record, error) {
	select {
	case <-c.wakeup:
		return nil, ErrWakeup
	default:
	}

	c.mu.Lock()
	c.applyLazySeeksLocked()
	order := append([]string(nil), c.order...)
	start := c.nextIdx
	c.mu.Unlock()

	if len(order) == 0 {
		return nil, nil
	}
	perTopic := timeout / time.Duration(len(order))
	if perTopic <= 0 {
		perTopic = time.Millisecond
	}

	i := start
	for n := 0; n < len(order); n++ {
		select {
		case <-c.wakeup:
			return nil, ErrWakeup
		default:
		}

		topic := order[i%len(order)]
		i++

		c.mu.Lock()
		paused := c.paused[topic]
		sub := c.subs[topic]
		c.mu.Unlock()
		if paused || sub == nil {
			continue
		}

		recs, err := sub.Pull(perTopic)
		if err != nil {
			return nil, fmt.Errorf("compat: poll %s: %w", topic, err)
		}
		if len(recs) > 0 {
			c.mu.Lock()
			c.nextIdx = i % len(order)
			c.mu.Unlock()
			out := make([]Record, len(recs))
			for j, r := range recs {
				out[j] = Record{Topic: topic, Body: r.Body, Key: r.Key, Offset: r.Offset, PublishTime: r.PublishTime}
			}
			return out, nil
		}
	}
	c.mu.Lock()
	c.nextIdx = i % len(order)
	c.mu.Unlock()
	return nil, nil
}

func (c *Consumer) applyLazySeeksLocked() {
	if len(c.lazySeeks) == 0 {
		return
	}
	ctx := context.Background()
	for topic, seek := range c.lazySeeks {
		sub, ok := c.subs[topic]
		if !ok {
			continue
		}
		var at time.Time
		switch seek.kind {
		case seekBeginning:
			at = time.Unix(0, 0)
		case seekEnd:
			at = time.Now()
		case seekTime:
			at = seek.at
		default:
			continue
		}
		if err := sub.Seek(ctx, at); err != nil {
			c.log.Warn("lazy seek failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	c.lazySeeks = make(map[string]lazySeek)
}

// Commit acks every admitted message across all assigned topics.
func (c *Consumer) Commit(sync bool) error {
	c.mu.Lock()
	subs := make([]*pscompat.Subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Commit(sync); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CommitOffset acks messages on topic with synthetic offset <= offset.
func (c *Consumer) CommitOffset(sync bool, topic string, offset int64) error {
	c.mu.Lock()
	s, ok := c.subs[topic]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("compat: commit offset: topic %q not assigned", topic)
	}
	return s.CommitBefore(sync, offset)
}

// Pause suppresses polling of the given topics: Poll skips them entirely.
// The underlying Subscriber is not paused and keeps admitting messages; Poll
// returns them once the topic is resumed.
func (c *Consumer) Pause(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.paused[t] = true
	}
}

// Resume re-enables polling of the given topics.
func (c *Consumer) Resume(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.paused, t)
	}
}

// Paused returns the currently paused topics.
func (c *Consumer) Paused() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.paused))
	for t := range c.paused {
		out = append(out, t)
	}
	return out
}

// Wakeup aborts a blocked or about-to-start Poll call with ErrWakeup. It is
// safe to call from any goroutine, including before Poll is ever called:
// the signal is latched and consumed by the next Poll. Matches the
// original's thread-safe interrupt contract, used to break a consumer
// thread out of a long poll from a shutdown handler.
func (c *Consumer) Wakeup() {
	select {
	case c.wakeup <- struct{}{}:
	default:
	}
}

// Assignment returns the synthetic partitions currently assigned across
// all subscribed topics.
func (c *Consumer) Assignment() []PartitionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PartitionInfo, len(c.order))
	for i, t := range c.order {
		out[i] = PartitionInfo{Topic: t, Partition: 0}
	}
	return out
}

// Subscription returns the set of topics this Consumer is subscribed to.
func (c *Consumer) Subscription() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// SeekToBeginning queues a seek-to-epoch for the given topics, applied at
// the top of the next Poll.
func (c *Consumer) SeekToBeginning(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.lazySeeks[t] = lazySeek{kind: seekBeginning}
	}
}

// SeekToEnd queues a seek-to-now for the given topics.
func (c *Consumer) SeekToEnd(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		c.lazySeeks[t] = lazySeek{kind: seekEnd}
	}
}

// Seek queues a seek-to-timestamp for topic.
func (c *Consumer) Seek(topic string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lazySeeks[topic] = lazySeek{kind: seekTime, at: at}
}

// ListTopics returns the single synthetic partition for every assigned
// topic.
func (c *Consumer) ListTopics() map[string][]PartitionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]PartitionInfo, len(c.order))
	for _, t := range c.order {
		out[t] = []PartitionInfo{{Topic: t, Partition: 0}}
	}
	return out
}

// PartitionsFor returns the single synthetic partition for topic.
func (c *Consumer) PartitionsFor(topic string) []PartitionInfo {
	return []PartitionInfo{{Topic: topic, Partition: 0}}
}

// Metrics returns a snapshot of every assigned topic's metrics, with keys
// prefixed by the topic name.
func (c *Consumer) Metrics() map[string]float64 {
	c.mu.Lock()
	subs := make(map[string]*pscompat.Subscriber, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	out := make(map[string]float64)
	for topic, s := range subs {
		snap, err := s.MetricsSnapshot()
		if err != nil {
			c.log.Warn("metrics snapshot failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		for k, v := range snap {
			out[topic+"."+k] = v
		}
	}
	return out
}

// Position reports the durable committed offset for topic, which this
// adapter does not track: the remote service has no native offset
// concept, and the synthetic one is not guaranteed monotone.
func (c *Consumer) Position(topic string) (int64, error) {
	return 0, ErrUnsupported
}

// Committed is Position's synonym in Kafka-consumer APIs.
func (c *Consumer) Committed(topic string) (int64, error) {
	return 0, ErrUnsupported
}

// Close stops every Subscriber and, if configured, deletes their backing
// subscriptions.
func (c *Consumer) Close() error {
	return c.Unsubscribe()
}

// Unsubscribe stops every assigned Subscriber and resets all façade state
// (pauses, lazy seeks, round-robin position). If
// Config.AllowSubscriptionDeletion is set, it also fires a best-effort,
// fire-and-forget DeleteSubscription per topic: the result is logged, not
// awaited or returned, matching the original's detached delete callback.
func (c *Consumer) Unsubscribe() error {
	c.mu.Lock()
	subs := c.subs
	names := make([]string, 0, len(c.order))
	for _, t := range c.order {
		if s, ok := c.subs[t]; ok {
			names = append(names, s.Subscription())
		}
	}
	c.subs = make(map[string]*pscompat.Subscriber)
	c.order = nil
	c.paused = make(map[string]bool)
	c.lazySeeks = make(map[string]lazySeek)
	c.nextIdx = 0
	c.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.StopAsync(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.cfg.AllowSubscriptionDeletion {
		for _, name := range names {
			name := name
			go func() {
				if err := c.maker.DeleteSubscription(context.Background(), name); err != nil {
					c.log.Warn("failed to delete subscription on unsubscribe", zap.String("subscription", name), zap.Error(err))
				}
			}()
		}
	}
	return errors.Join(errs...)
}
