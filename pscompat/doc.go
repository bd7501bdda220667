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

// Package pscompat implements the subscriber runtime that pulls, leases,
// and acknowledges messages against a single subscription of a backing
// pub/sub service (see the driver subpackage for the RPC surface it
// requires). It presents a partitioned-log-style consumer operation set —
// a blocking Pull, synchronous and asynchronous Commit, and offset-bounded
// CommitBefore — on top of a service that only knows about per-message ack
// ids and server-managed lease deadlines.
//
// Package compat, one level up, layers the Kafka-consumer-shaped façade
// (topic assignment, round-robin polling across topics, pause/resume, lazy
// seeks) on top of one Subscriber per topic; this package never imports it.
package pscompat
