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

// Package metrics collects Prometheus counters and histograms for a
// pscompat subscriber. It gives compat.Consumer.Metrics a real source to
// report instead of the always-empty map the original Kafka-compat layer
// returned.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the collectors for one subscriber. Each Subscriber owns
// its own Registry so metrics from distinct topics don't collide.
type Registry struct {
	reg *prometheus.Registry

	outstanding  prometheus.Gauge
	ackResults   *prometheus.CounterVec
	pullLatency  prometheus.Histogram
	leaseExtends prometheus.Counter
}

// NewRegistry creates a Registry labeled with subscription, the subscriber's
// server-side subscription name.
func NewRegistry(subscription string) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"subscription": subscription}

	r := &Registry{
		reg: reg,
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pscompat_outstanding_messages",
			Help:        "Number of messages currently held by the pending ledger.",
			ConstLabels: labels,
		}),
		ackResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pscompat_ack_results_total",
			Help:        "Count of ack/nack/modify-ack RPC outcomes by kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		pullLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pscompat_pull_latency_seconds",
			Help:        "Latency of pull RPCs issued by PullLoop.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		leaseExtends: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pscompat_lease_extensions_total",
			Help:        "Count of lease extensions issued by LeaseRenewer.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(r.outstanding, r.ackResults, r.pullLatency, r.leaseExtends)
	return r
}

// SetOutstanding records the current ledger size.
func (r *Registry) SetOutstanding(n int) { r.outstanding.Set(float64(n)) }

// IncAckResult records one RPC outcome for the given intent kind
// ("ack", "nack", or "modify") and result ("ok" or "error").
func (r *Registry) IncAckResult(kind, result string) { r.ackResults.WithLabelValues(kind, result).Inc() }

// ObservePullLatency records how long one pull RPC took.
func (r *Registry) ObservePullLatency(d time.Duration) { r.pullLatency.Observe(d.Seconds()) }

// IncLeaseExtensions records that n messages had their lease extended in one
// LeaseRenewer tick.
func (r *Registry) IncLeaseExtensions(n int) { r.leaseExtends.Add(float64(n)) }

// Snapshot gathers the current metric families, keyed by metric name, for
// compat.Consumer.Metrics to render in its simplified textual form.
func (r *Registry) Snapshot() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, f := range families {
		var total float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				total += m.GetHistogram().GetSampleSum()
			}
		}
		out[f.GetName()] = total
	}
	return out, nil
}
