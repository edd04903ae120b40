/*
 * Copyright (C) 2022 IBM, Inc.
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

package operationalMetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistrationAndDocumentation(t *testing.T) {
	counter := NewCounter(prometheus.CounterOpts{
		Name: "test_records_processed",
		Help: "Number of records processed",
	})
	gauge := NewGauge(prometheus.GaugeOpts{
		Name: "test_records_pending",
		Help: "Number of records pending",
	})

	counter.Inc()
	gauge.Set(5)
	require.Equal(t, float64(1), testutil.ToFloat64(counter))
	require.Equal(t, float64(5), testutil.ToFloat64(gauge))

	doc := GetDocumentation()
	require.Contains(t, doc, "test_records_processed")
	require.Contains(t, doc, "Number of records processed")
	require.Contains(t, doc, "counter")
	require.Contains(t, doc, "test_records_pending")
	require.Contains(t, doc, "gauge")
}
