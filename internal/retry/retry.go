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

// Package retry provides retry logic for pscompat's RPCs to the backing
// service, with exponential backoff and full jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	gax "github.com/googleapis/gax-go/v2"
)

// Call calls f, retrying it with exponential backoff plus jitter as long as
// isRetryable(err) is true for the error f returns, or until ctx is Done.
//
// bo describes the backoff parameters. If bo is the zero value, gax's
// defaults are used.
//
// If f never returns a nil or non-retryable error before ctx is Done, Call
// returns a *ContextError wrapping ctx.Err() and the last error from f.
func Call(ctx context.Context, bo gax.Backoff, isRetryable func(error) bool, f func() error) error {
	return call(ctx, bo, isRetryable, f, gax.Sleep)
}

// call is Call with the sleep function injected, for testing.
func call(ctx context.Context, bo gax.Backoff, isRetryable func(error) bool, f func() error, sleep func(context.Context, time.Duration) error) error {
	if ctx.Err() != nil {
		return &ContextError{CtxErr: ctx.Err()}
	}
	for {
		err := f()
		if err == nil || !isRetryable(err) {
			return err
		}
		if sleepErr := sleep(ctx, bo.Pause()); sleepErr != nil {
			return &ContextError{CtxErr: sleepErr, FuncErr: err}
		}
	}
}

// A ContextError is returned when a retry loop ends because the context was
// done (cancelled or past its deadline) while waiting to retry.
type ContextError struct {
	// CtxErr is the error returned by the context (ctx.Err(), or the error
	// from a custom sleep function).
	CtxErr error
	// FuncErr is the last error returned by the retried function, if any.
	FuncErr error
}

func (e *ContextError) Error() string {
	if e.FuncErr == nil {
		return e.CtxErr.Error()
	}
	return fmt.Sprintf("%v; last error: %v", e.CtxErr, e.FuncErr)
}

// Unwrap lets errors.Is/As see through a ContextError to either the context
// error or the last function error, whichever matches first.
func (e *ContextError) Unwrap() error {
	return &wrapped2{e.CtxErr, e.FuncErr}
}

// wrapped2 implements errors.Is/As against two candidate errors.
type wrapped2 struct {
	a, b error
}

func (w *wrapped2) Error() string {
	return fmt.Sprintf("%v / %v", w.a, w.b)
}

func (w *wrapped2) Is(target error) bool {
	return errors.Is(w.a, target) || (w.b != nil && errors.Is(w.b, target))
}

func (w *wrapped2) As(target any) bool {
	return errors.As(w.a, target) || (w.b != nil && errors.As(w.b, target))
}
