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

// Package driver defines the narrow RPC surface that package pscompat
// requires of a backing subscription service. A concrete implementation
// (see pscompat/gcppubsub) adapts the wire-level client stubs to this
// interface; pscompat itself never speaks gRPC or knows about proto types.
package driver

import (
	"context"
	"time"

	"github.com/googleapis/pscompat/gcerrors"
)

// AckID is an opaque token identifying a single message delivery within a
// subscription. It is only ever compared, stored, and passed back to the
// driver; pscompat never interprets its contents.
type AckID any

// Message is a single delivered message together with the metadata pscompat
// needs to fabricate a Kafka-shaped envelope: a key (from the "key"
// attribute, the base64 decoding of which is the driver's responsibility),
// a synthetic offset (from the "offset" attribute), and the server publish
// time.
type Message struct {
	AckID AckID

	// Body is the opaque message payload.
	Body []byte

	// Key is the decoded key bytes, or nil if the message carried no "key"
	// attribute.
	Key []byte

	// OffsetAttr is the raw, unparsed value of the "offset" attribute, or
	// "" if absent. pscompat parses this so the offset error semantics
	// (absent -> 0, unparsable -> fatal) live in exactly one place, not
	// inside each driver implementation.
	OffsetAttr string

	// PublishTime is the server-assigned publish timestamp.
	PublishTime time.Time
}

// Subscription is the RPC surface pscompat's core depends on for a single
// subscription. All methods must be safe for concurrent use.
type Subscription interface {
	// ReceiveBatch returns up to maxMessages available messages, blocking
	// until at least one is available, ctx is Done, or the driver decides
	// to return an empty batch (e.g. after its own poll timeout).
	ReceiveBatch(ctx context.Context, maxMessages int) ([]*Message, error)

	// SendAcks acknowledges the given ack ids. It must not return until
	// the RPC has completed or failed; callers are responsible for
	// retrying on retryable errors.
	SendAcks(ctx context.Context, ackIDs []AckID) error

	// SendNacks is equivalent to ModifyAckDeadlines(ctx, ackIDs, 0).
	SendNacks(ctx context.Context, ackIDs []AckID) error

	// ModifyAckDeadlines extends (or, with a zero deadline, nacks) the
	// lease on the given ack ids.
	ModifyAckDeadlines(ctx context.Context, ackIDs []AckID, deadline time.Duration) error

	// Seek moves the subscription's delivery cursor to the given time.
	Seek(ctx context.Context, t time.Time) error

	// IsRetryable reports whether err, returned from one of this
	// Subscription's methods, should be retried with backoff rather than
	// surfaced as a terminal failure.
	IsRetryable(err error) bool

	// ErrorCode classifies err, returned from one of this Subscription's
	// methods, into the portable error taxonomy so callers can branch on
	// category instead of a backend-specific error type.
	ErrorCode(err error) gcerrors.ErrorCode

	// Close releases resources held by the Subscription.
	Close() error
}

// SubscriptionMaker opens (and, if necessary, creates) the named
// subscription, handling the naming convention and the
// NOT_FOUND-on-get-subscription fallback to creation.
type SubscriptionMaker interface {
	// OpenSubscription returns the Subscription for name
	// ("projects/<project>/subscriptions/<topic>_<group_id>"). If it does
	// not exist and allowCreate is true, it is created bound to topic
	// with the given initial ack deadline; otherwise a NotFound error is
	// returned.
	OpenSubscription(ctx context.Context, name, topic string, allowCreate bool, initialAckDeadline time.Duration) (Subscription, error)

	// DeleteSubscription deletes the named subscription.
	DeleteSubscription(ctx context.Context, name string) error
}
