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

import "time"

// Fixed bounds from the lease-extension design; these are not configurable
// because they describe the estimator's own behavior, not the caller's
// workload.
const (
	// MinLease is the shortest lease duration DeadlineEstimator will ever
	// propose.
	MinLease = 10 * time.Second
	// MaxLease is the longest lease duration DeadlineEstimator will ever
	// propose.
	MaxLease = 600 * time.Second
	// LeaseMargin is how far ahead of expiry a message's lease must be
	// renewed. LeaseRenewer ticks at LeaseMargin/2.
	LeaseMargin = 60 * time.Second
	// coalesceWindow bounds how long DispatchPump waits to fill a batch
	// below MaxPerRequestChanges before sending it anyway.
	coalesceWindow = 100 * time.Millisecond
	// drainDeadline bounds how long StopAsync waits for outstanding acks
	// to flush before abandoning them to server-side redelivery.
	drainDeadline = 30 * time.Second
	// maxInFlightBatches is the maximum number of concurrent ack/modify-ack
	// RPC batches DispatchPump may have outstanding at once.
	maxInFlightBatches = 4
)

// Config holds the tunables of a single subscriber. The zero Config is not
// usable directly; call Config.withDefaults (done automatically by
// NewSubscriber) to fill in the defaults below.
type Config struct {
	// AutoCommit, when true, starts an AutoCommitter that periodically
	// acks every currently-admitted message.
	AutoCommit bool
	// AutoCommitInterval is the AutoCommitter's period. Defaults to 5s.
	AutoCommitInterval time.Duration
	// MaxPullRecords is the maximum number of messages requested per pull
	// RPC and returned per Pull call. Defaults to 500.
	MaxPullRecords int
	// MaxAckExtensionPeriod is the hard cap on how long the client will
	// keep extending a message's lease before giving up on it. Defaults
	// to 10 minutes.
	MaxAckExtensionPeriod time.Duration
	// MaxPerRequestChanges is the maximum number of ack ids in a single
	// acknowledge/modify-ack-deadline RPC. Defaults to 1000 (the GCP
	// Pub/Sub service limit at the time of writing).
	MaxPerRequestChanges int
	// RetryBackoff is the base delay for exponential backoff on transient
	// RPC failures. Defaults to 100ms.
	RetryBackoff time.Duration
	// AckRequestTimeout bounds each individual pull/ack/modify-ack RPC.
	// Defaults to 60s.
	AckRequestTimeout time.Duration
	// CreatedSubscriptionDeadline is the initial server-side ack deadline
	// used if the subscriber auto-creates its subscription. Defaults to
	// 10s.
	CreatedSubscriptionDeadline time.Duration
	// AllowSubscriptionCreation permits auto-creating the subscription on
	// NotFound from GetSubscription.
	AllowSubscriptionCreation bool
}

func (c Config) withDefaults() Config {
	if c.AutoCommitInterval <= 0 {
		c.AutoCommitInterval = 5 * time.Second
	}
	if c.MaxPullRecords <= 0 {
		c.MaxPullRecords = 500
	}
	if c.MaxAckExtensionPeriod <= 0 {
		c.MaxAckExtensionPeriod = 10 * time.Minute
	}
	if c.MaxPerRequestChanges <= 0 {
		c.MaxPerRequestChanges = 1000
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.AckRequestTimeout <= 0 {
		c.AckRequestTimeout = 60 * time.Second
	}
	if c.CreatedSubscriptionDeadline <= 0 {
		c.CreatedSubscriptionDeadline = 10 * time.Second
	}
	return c
}
