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

// Package gcerr provides a common error type for pscompat packages.
package gcerr

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// An ErrorCode describes the error's category.
type ErrorCode int

const (
	// OK is returned by Code on a nil error. It is not a valid code for an
	// error.
	OK ErrorCode = 0

	// Unknown means the error could not be categorized.
	Unknown ErrorCode = 1

	// NotFound means the resource was not found.
	NotFound ErrorCode = 2

	// AlreadyExists means the resource exists, but it should not.
	AlreadyExists ErrorCode = 3

	// InvalidArgument means a value given to an API is incorrect.
	InvalidArgument ErrorCode = 4

	// Internal means something unexpected happened. Internal errors always
	// indicate bugs here (or possibly the underlying provider).
	Internal ErrorCode = 5

	// Unimplemented means the feature is not implemented.
	Unimplemented ErrorCode = 6

	// Canceled means the caller cancelled the operation.
	Canceled ErrorCode = 7

	// DeadlineExceeded means the operation did not finish before its
	// deadline.
	DeadlineExceeded ErrorCode = 8

	// ResourceExhausted means the caller has hit a quota or throttling limit.
	ResourceExhausted ErrorCode = 9

	// Unavailable means the underlying service is transiently unreachable.
	Unavailable ErrorCode = 10

	// PermissionDenied means the caller does not have permission to execute
	// the requested operation.
	PermissionDenied ErrorCode = 11

	// Unauthenticated means the request does not have valid authentication
	// credentials.
	Unauthenticated ErrorCode = 12

	// FailedPrecondition means the system is not in a state required for the
	// operation's execution.
	FailedPrecondition ErrorCode = 13
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidArgument:
		return "InvalidArgument"
	case Internal:
		return "Internal"
	case Unimplemented:
		return "Unimplemented"
	case Canceled:
		return "Canceled"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Unavailable:
		return "Unavailable"
	case PermissionDenied:
		return "PermissionDenied"
	case Unauthenticated:
		return "Unauthenticated"
	case FailedPrecondition:
		return "FailedPrecondition"
	default:
		return "code(" + fmt.Sprint(int(c)) + ")"
	}
}

// Error describes an error raised by a pscompat package.
type Error struct {
	Code  ErrorCode
	msg   string
	frame string
	err   error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("code=%v", e.Code)
	}
	return fmt.Sprintf("%s (code=%v)", e.msg, e.Code)
}

// Unwrap returns the error underlying the receiver, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// New returns a new error with the given code, underlying error and message.
// Pass 1 for callDepth if New is called from the function raising the error;
// pass 2 if it is called from a helper invoked by that function; and so on.
func New(c ErrorCode, err error, callDepth int, msg string) *Error {
	return &Error{
		Code:  c,
		msg:   msg,
		frame: caller(callDepth + 1),
		err:   err,
	}
}

// Newf uses format and args to format a message, then calls New.
func Newf(c ErrorCode, err error, format string, args ...any) *Error {
	return New(c, err, 2, fmt.Sprintf(format, args...))
}

func caller(depth int) string {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// GRPCCode extracts the gRPC status code of err and converts it into an
// ErrorCode. It returns Unknown if err did not originate from a gRPC call.
func GRPCCode(err error) ErrorCode {
	switch status.Code(err) {
	case codes.NotFound:
		return NotFound
	case codes.AlreadyExists:
		return AlreadyExists
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.Internal:
		return Internal
	case codes.Unimplemented:
		return Unimplemented
	case codes.Canceled:
		return Canceled
	case codes.DeadlineExceeded:
		return DeadlineExceeded
	case codes.ResourceExhausted:
		return ResourceExhausted
	case codes.Unavailable:
		return Unavailable
	case codes.PermissionDenied:
		return PermissionDenied
	case codes.Unauthenticated:
		return Unauthenticated
	case codes.FailedPrecondition:
		return FailedPrecondition
	default:
		return Unknown
	}
}

// DoNotWrap reports whether err should be returned as-is from a pscompat API
// instead of being wrapped in an *Error, because it is a sentinel the caller
// is expected to compare against: context.Canceled or
// context.DeadlineExceeded, possibly wrapped.
func DoNotWrap(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
