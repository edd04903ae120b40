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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverflowInsertRemove(t *testing.T) {
	o := newOverflowContainer(10000)
	o.insert(newWildRule(1, 5))
	o.insert(newWildRule(2, 15000))
	o.insert(newWildRule(3, 15001))

	require.Equal(t, 3, o.size())
	require.Equal(t, 15001, o.maxPriority())

	require.True(t, o.remove(3))
	require.False(t, o.remove(3))
	require.Equal(t, 2, o.size())
	require.Equal(t, 15000, o.maxPriority())

	require.True(t, o.remove(2))
	require.True(t, o.remove(1))
	require.Equal(t, -1, o.maxPriority())
}

func TestOverflowSearchPrunes(t *testing.T) {
	o := newOverflowContainer(10000)
	narrow := withPrefix(newWildRule(0, 25000), FieldSrcIP, ipv4(10, 0, 0, 0), 8)
	o.insert(narrow)
	o.insert(newWildRule(1, 7))

	inside := Packet{ipv4(10, 1, 1, 1), 0, 0, 0, 0}
	outside := Packet{ipv4(192, 168, 0, 1), 0, 0, 0, 0}

	require.Equal(t, 25000, o.search(inside, -1))
	require.Equal(t, 7, o.search(outside, -1))
	// currentBest above everything held: nothing to find.
	require.Equal(t, 30000, o.search(inside, 30000))
}

func TestOverflowLazySortOnce(t *testing.T) {
	o := newOverflowContainer(10000)
	for i := 0; i < 10; i++ {
		o.insert(newWildRule(i, i*3%10))
	}

	p := Packet{1, 2, 3, 4, 5}
	before := o.sortCount
	best := o.search(p, -1)
	afterFirst := o.sortCount
	require.Greater(t, afterFirst, before)

	// Unchanged container: same result, no further sorting.
	require.Equal(t, best, o.search(p, -1))
	require.Equal(t, afterFirst, o.sortCount)

	o.insert(newWildRule(99, 4))
	o.search(p, -1)
	require.Greater(t, o.sortCount, afterFirst)
}

func TestOverflowOptimizePreservesContent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	o := newOverflowContainer(10000)
	for i := 0; i < 350; i++ {
		o.insert(newWildRule(i, rng.Intn(100000)))
	}

	wantMax := o.maxPriority()
	o.optimize()

	require.Equal(t, 350, o.size())
	require.Equal(t, wantMax, o.maxPriority())
	// 350 rules re-layer into 3 bands.
	require.Len(t, o.layers, 3)

	p := Packet{0, 0, 0, 0, 0}
	require.Equal(t, wantMax, o.search(p, -1))

	// Removal by id still works after re-layering.
	require.True(t, o.remove(17))
	require.Equal(t, 349, o.size())
}
