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

// Package gcppubsub is the concrete pscompat/driver.Subscription backed by
// GCP Pub/Sub's raw SubscriberClient. It owns everything the core
// (package pscompat) is deliberately ignorant of: gRPC dialing, proto wire
// types, subscription naming, and the NOT_FOUND/create-subscription flow.
package gcppubsub

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	raw "cloud.google.com/go/pubsub/apiv1"
	pb "cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/google/wire"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/googleapis/pscompat/gcerrors"
	"github.com/googleapis/pscompat/internal/gcerr"
	"github.com/googleapis/pscompat/internal/useragent"
	"github.com/googleapis/pscompat/pscompat/driver"
)

var endPoint = "pubsub.googleapis.com:443"

// pubsubScopes is the OAuth2 scope needed for the Pub/Sub API.
var pubsubScopes = []string{"https://www.googleapis.com/auth/pubsub"}

// Set holds Wire providers for this package.
var Set = wire.NewSet(
	Dial,
	SubscriberClient,
	wire.Struct(new(Maker), "Client", "ProjectID"),
)

// Dial opens a gRPC connection to the GCP Pub/Sub API, or to the emulator
// named by the PUBSUB_EMULATOR_HOST environment variable if set.
//
// The second return value is a function that releases the connection.
func Dial(ctx context.Context) (*grpc.ClientConn, func(), error) {
	if e := os.Getenv("PUBSUB_EMULATOR_HOST"); e != "" {
		conn, err := grpc.NewClient(e,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			useragent.GRPCDialOption("pubsub"))
		if err != nil {
			return nil, nil, fmt.Errorf("gcppubsub: dial emulator %s: %w", e, err)
		}
		return conn, func() { conn.Close() }, nil
	}

	ts, err := google.DefaultTokenSource(ctx, pubsubScopes...)
	if err != nil {
		return nil, nil, fmt.Errorf("gcppubsub: default credentials: %w", err)
	}
	conn, err := grpc.NewClient(endPoint,
		grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")),
		grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: ts}),
		// GCP Pub/Sub messages run up to 10MB; the proto response envelope
		// adds a bit on top, so ask gRPC for headroom above its 4MB default.
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(1024*1024*11)),
		useragent.GRPCDialOption("pubsub"))
	if err != nil {
		return nil, nil, fmt.Errorf("gcppubsub: dial: %w", err)
	}
	return conn, func() { conn.Close() }, nil
}

// SubscriberClient returns a *raw.SubscriberClient bound to conn, for use by
// Maker and the subscription type in this package.
func SubscriberClient(ctx context.Context, conn *grpc.ClientConn) (*raw.SubscriberClient, error) {
	return raw.NewSubscriberClient(ctx, option.WithGRPCConn(conn))
}

// TokenSourceFromJSON is a convenience wrapper for callers that hold a
// service account key instead of ambient default credentials.
func TokenSourceFromJSON(ctx context.Context, jsonKey []byte) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(jsonKey, pubsubScopes...)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx), nil
}

// Maker implements driver.SubscriptionMaker against a single GCP project.
type Maker struct {
	Client    *raw.SubscriberClient
	ProjectID string
	Log       *zap.Logger
}

// subscriptionName builds the server-side resource name following the
// convention projects/<project>/subscriptions/<topic>_<group_id>.
func subscriptionName(projectID, topic, groupID string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s_%s", projectID, topic, groupID)
}

// topicName builds the server-side topic resource name.
func topicName(projectID, topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topic)
}

// OpenSubscription resolves name to a live subscription. On NOT_FOUND it
// creates one bound to topic if allowCreate is set; otherwise it surfaces
// the NotFound error.
func (m *Maker) OpenSubscription(ctx context.Context, name, topic string, allowCreate bool, initialAckDeadline time.Duration) (driver.Subscription, error) {
	_, err := m.Client.GetSubscription(ctx, &pb.GetSubscriptionRequest{Subscription: name})
	if err != nil {
		if status.Code(err) != codes.NotFound {
			return nil, fmt.Errorf("gcppubsub: get subscription %s: %w", name, err)
		}
		if !allowCreate {
			return nil, fmt.Errorf("gcppubsub: subscription %s not found and creation disallowed: %w", name, err)
		}
		_, cerr := m.Client.CreateSubscription(ctx, &pb.Subscription{
			Name:               name,
			Topic:              topicName(m.ProjectID, topic),
			AckDeadlineSeconds: int32(initialAckDeadline.Seconds()),
		})
		if cerr != nil {
			return nil, fmt.Errorf("gcppubsub: create subscription %s: %w", name, cerr)
		}
	}
	return &subscription{client: m.Client, path: name}, nil
}

// DeleteSubscription deletes the named subscription. Callers that want
// fire-and-forget unsubscribe semantics should call this from their own
// goroutine without waiting on the result.
func (m *Maker) DeleteSubscription(ctx context.Context, name string) error {
	return m.Client.DeleteSubscription(ctx, &pb.DeleteSubscriptionRequest{Subscription: name})
}

type subscription struct {
	client *raw.SubscriberClient
	path   string
}

// ReceiveBatch implements driver.Subscription.
func (s *subscription) ReceiveBatch(ctx context.Context, maxMessages int) ([]*driver.Message, error) {
	resp, err := s.client.Pull(ctx, &pb.PullRequest{
		Subscription: s.path,
		MaxMessages:  int32(maxMessages),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.ReceivedMessages) == 0 {
		return nil, nil
	}

	ms := make([]*driver.Message, 0, len(resp.ReceivedMessages))
	for _, rm := range resp.ReceivedMessages {
		pm := rm.Message
		var key []byte
		if raw, ok := pm.Attributes["key"]; ok {
			k, err := base64.StdEncoding.DecodeString(raw)
			if err == nil {
				key = k
			}
		}
		ms = append(ms, &driver.Message{
			AckID:       rm.AckId,
			Body:        pm.Data,
			Key:         key,
			OffsetAttr:  pm.Attributes["offset"],
			PublishTime: pm.PublishTime.AsTime(),
		})
	}
	return ms, nil
}

// SendAcks implements driver.Subscription.
func (s *subscription) SendAcks(ctx context.Context, ids []driver.AckID) error {
	return s.client.Acknowledge(ctx, &pb.AcknowledgeRequest{
		Subscription: s.path,
		AckIds:       toStrings(ids),
	})
}

// SendNacks implements driver.Subscription as ModifyAckDeadlines(ids, 0).
func (s *subscription) SendNacks(ctx context.Context, ids []driver.AckID) error {
	return s.ModifyAckDeadlines(ctx, ids, 0)
}

// ModifyAckDeadlines implements driver.Subscription.
func (s *subscription) ModifyAckDeadlines(ctx context.Context, ids []driver.AckID, deadline time.Duration) error {
	return s.client.ModifyAckDeadline(ctx, &pb.ModifyAckDeadlineRequest{
		Subscription:       s.path,
		AckIds:             toStrings(ids),
		AckDeadlineSeconds: int32(deadline.Seconds()),
	})
}

// Seek implements driver.Subscription via the server's seek-by-time RPC.
func (s *subscription) Seek(ctx context.Context, t time.Time) error {
	_, err := s.client.Seek(ctx, &pb.SeekRequest{
		Subscription: s.path,
		Target: &pb.SeekRequest_Time{
			Time: timestamppb.New(t),
		},
	})
	return err
}

// IsRetryable implements driver.Subscription. The gax-wrapped raw client
// already retries most codes on its own; this path only needs to say yes
// for the ones the client library does not retry internally, plus the
// backoff-worthy ones that surface up to the retry.Call wrapper.
func (s *subscription) IsRetryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// ErrorCode implements driver.Subscription, classifying err through the
// gRPC status code it carries.
func (s *subscription) ErrorCode(err error) gcerrors.ErrorCode {
	return gcerr.GRPCCode(err)
}

// Close implements driver.Subscription.
func (s *subscription) Close() error { return nil }

func toStrings(ids []driver.AckID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i], _ = id.(string)
	}
	return out
}
