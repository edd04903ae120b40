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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrumentationObserves(t *testing.T) {
	instr := NewInstrumentation()

	wild := newWildRule(0, 3)
	specific := withPrefix(newWildRule(1, 7), FieldSrcIP, ipv4(10, 0, 0, 0), 8)

	c := NewClassifier(testConfig())
	c.SetInstrumentation(instr)
	c.Construct([]Rule{wild, specific})

	require.Equal(t, float64(1), testutil.ToFloat64(instr.OverflowRules))

	inside := Packet{ipv4(10, 1, 1, 1), 0, 0, 0, 0}
	want := c.Classify(inside)
	require.Equal(t, float64(1), testutil.ToFloat64(instr.PacketsClassified))
	require.Positive(t, testutil.ToFloat64(instr.OverflowProbes))

	require.True(t, c.Insert(newWildRule(2, 9)))
	require.Equal(t, float64(1), testutil.ToFloat64(instr.Inserts))
	require.Equal(t, float64(2), testutil.ToFloat64(instr.OverflowRules))

	require.True(t, c.Delete(newWildRule(2, 9)))
	require.Equal(t, float64(1), testutil.ToFloat64(instr.Deletes))
	require.Equal(t, float64(1), testutil.ToFloat64(instr.OverflowRules))

	// The counters observe; they never change results.
	require.Equal(t, want, c.Classify(inside))
}
