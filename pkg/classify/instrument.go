/*
 * Copyright (C) 2023 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package classify

import (
	"github.com/prometheus/client_golang/prometheus"

	operationalMetrics "github.com/netobserv/tuple-classifier/pkg/operational/metrics"
)

// Instrumentation bundles the classifier's operational counters. It is
// observation only: the classifier consults it for nothing and runs the
// same with or without it.
type Instrumentation struct {
	PacketsClassified prometheus.Counter
	NodeVisits        prometheus.Counter
	WRSProbes         prometheus.Counter
	OverflowProbes    prometheus.Counter
	Inserts           prometheus.Counter
	Deletes           prometheus.Counter
	PendingFlushes    prometheus.Counter
	OverflowRules     prometheus.Gauge
}

// NewInstrumentation registers the classifier counters with the default
// prometheus registry.
func NewInstrumentation() *Instrumentation {
	return &Instrumentation{
		PacketsClassified: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_packets_classified",
			Help: "Number of packets classified",
		}),
		NodeVisits: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_node_visits",
			Help: "Number of tree nodes visited during classification",
		}),
		WRSProbes: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_wrs_probes",
			Help: "Number of wildcard side storage probes",
		}),
		OverflowProbes: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_overflow_probes",
			Help: "Number of overflow container probes",
		}),
		Inserts: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_rule_inserts",
			Help: "Number of rule insert operations",
		}),
		Deletes: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_rule_deletes",
			Help: "Number of rule delete operations",
		}),
		PendingFlushes: operationalMetrics.NewCounter(prometheus.CounterOpts{
			Name: "classifier_pending_delete_flushes",
			Help: "Number of pending delete queue flushes",
		}),
		OverflowRules: operationalMetrics.NewGauge(prometheus.GaugeOpts{
			Name: "classifier_overflow_rules",
			Help: "Current number of rules held by the overflow container",
		}),
	}
}
