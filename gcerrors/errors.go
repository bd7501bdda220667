// Copyright 2019 The Go Cloud Authors
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

// Package gcerrors provides support for getting error codes from
// errors returned by pscompat packages.
package gcerrors

import (
	"context"
	"errors"

	"github.com/googleapis/pscompat/internal/gcerr"
)

// An ErrorCode describes the error's category. Programs should act upon an error's
// code, not its message.
type ErrorCode = gcerr.ErrorCode

const (
	// Returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = gcerr.OK

	// The error could not be categorized.
	Unknown ErrorCode = gcerr.Unknown

	// The resource was not found.
	NotFound ErrorCode = gcerr.NotFound

	// The resource exists, but it should not.
	AlreadyExists ErrorCode = gcerr.AlreadyExists

	// a value given to a pscompat API is incorrect.
	InvalidArgument ErrorCode = gcerr.InvalidArgument

	// Something unexpected happened. Internal errors always indicate
	// bugs here (or possibly the underlying provider).
	Internal ErrorCode = gcerr.Internal

	// The feature is not implemented.
	Unimplemented ErrorCode = gcerr.Unimplemented

	// The caller cancelled the operation.
	Canceled ErrorCode = gcerr.Canceled

	// The operation did not finish before its deadline.
	DeadlineExceeded ErrorCode = gcerr.DeadlineExceeded

	// The caller hit a quota or throttling limit.
	ResourceExhausted ErrorCode = gcerr.ResourceExhausted

	// The underlying service is transiently unreachable.
	Unavailable ErrorCode = gcerr.Unavailable

	// The caller does not have permission to execute the operation.
	PermissionDenied ErrorCode = gcerr.PermissionDenied

	// The request does not have valid authentication credentials.
	Unauthenticated ErrorCode = gcerr.Unauthenticated

	// The system is not in a state required for the operation's execution.
	FailedPrecondition ErrorCode = gcerr.FailedPrecondition
)

// Code returns the ErrorCode of err if it is, or wraps, a *gcerr.Error.
// It special-cases the context package's sentinel errors, since most
// blocking pscompat operations return them directly rather than wrapping
// them in a *gcerr.Error. It returns Unknown for any other non-nil error,
// and OK if err is nil.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *gcerr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded
	default:
		return Unknown
	}
}
