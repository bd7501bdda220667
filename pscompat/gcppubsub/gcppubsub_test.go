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

package gcppubsub

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/googleapis/pscompat/gcerrors"
	"github.com/googleapis/pscompat/pscompat/driver"
)

func TestSubscriptionName(t *testing.T) {
	got := subscriptionName("myproj", "orders", "billing")
	want := "projects/myproj/subscriptions/orders_billing"
	if got != want {
		t.Errorf("subscriptionName = %q, want %q", got, want)
	}
}

func TestTopicName(t *testing.T) {
	got := topicName("myproj", "orders")
	want := "projects/myproj/topics/orders"
	if got != want {
		t.Errorf("topicName = %q, want %q", got, want)
	}
}

func TestToStrings(t *testing.T) {
	ids := []driver.AckID{"A", "B", "C"}
	got := toStrings(ids)
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("len(toStrings) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsRetryable(t *testing.T) {
	s := &subscription{}
	cases := []struct {
		err  error
		want bool
	}{
		{status.Error(codes.Unavailable, "unavail"), true},
		{status.Error(codes.DeadlineExceeded, "deadline"), true},
		{status.Error(codes.ResourceExhausted, "quota"), true},
		{status.Error(codes.PermissionDenied, "denied"), false},
		{status.Error(codes.InvalidArgument, "bad"), false},
		{errors.New("not a status error"), false},
	}
	for _, c := range cases {
		if got := s.IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	s := &subscription{}
	cases := []struct {
		err  error
		want gcerrors.ErrorCode
	}{
		{status.Error(codes.NotFound, "missing"), gcerrors.NotFound},
		{status.Error(codes.PermissionDenied, "denied"), gcerrors.PermissionDenied},
		{status.Error(codes.DeadlineExceeded, "deadline"), gcerrors.DeadlineExceeded},
		{errors.New("not a status error"), gcerrors.Unknown},
	}
	for _, c := range cases {
		if got := s.ErrorCode(c.err); got != c.want {
			t.Errorf("ErrorCode(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
