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

import "github.com/googleapis/pscompat/internal/gcerr"

// errUnparsableOffset is returned from Pull when a delivered message's
// "offset" attribute is not a base-10, non-negative 64-bit integer. This is
// fatal: a negative offset is treated the same as any other unparsable
// value, resolved conservatively.
func errUnparsableOffset(attr string) *gcerr.Error {
	return gcerr.Newf(gcerr.InvalidArgument, nil, "unparsable offset attribute %q", attr)
}

// errCapacityExceeded is returned from admit when admitting the batch would
// push the ledger past 2x MaxPullRecords outstanding messages.
func errCapacityExceeded() *gcerr.Error {
	return gcerr.New(gcerr.ResourceExhausted, nil, 1, "pending ledger capacity exceeded")
}

// state is the Subscriber's lifecycle state.
type state int

const (
	stateNew state = iota
	stateStarting
	stateRunning
	stateStopping
	stateTerminated
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "NEW"
	case stateStarting:
		return "STARTING"
	case stateRunning:
		return "RUNNING"
	case stateStopping:
		return "STOPPING"
	case stateTerminated:
		return "TERMINATED"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
