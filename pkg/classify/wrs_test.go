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

	"github.com/stretchr/testify/require"
)

func TestWildcardStoreCapacity(t *testing.T) {
	w := newWildcardStore(2)
	require.True(t, w.add(newWildRule(0, 10)))
	require.True(t, w.add(newWildRule(1, 20)))
	require.False(t, w.add(newWildRule(2, 30)))
	require.Equal(t, 2, w.size())
	require.False(t, w.hasCapacity())
}

func TestWildcardStoreLazySort(t *testing.T) {
	w := newWildcardStore(4)
	w.add(newWildRule(0, 5))
	w.add(newWildRule(1, 30))
	w.add(newWildRule(2, 10))

	require.False(t, w.sorted)
	require.Equal(t, 30, w.maxPriority())
	require.True(t, w.sorted)

	got := w.sortedRules()
	require.Equal(t, []int{30, 10, 5}, []int{got[0].Priority, got[1].Priority, got[2].Priority})
}

func TestWildcardStoreRemove(t *testing.T) {
	w := newWildcardStore(4)
	w.add(newWildRule(7, 5))
	w.add(newWildRule(8, 9))

	require.True(t, w.remove(7))
	require.False(t, w.remove(7))
	require.Equal(t, 1, w.size())
	require.Equal(t, 9, w.maxPriority())

	require.True(t, w.remove(8))
	require.Equal(t, -1, w.maxPriority())
}

func TestWildcardStoreSearchHighestPriority(t *testing.T) {
	w := newWildcardStore(4)
	narrow := withPrefix(newWildRule(0, 50), FieldSrcIP, ipv4(10, 0, 0, 0), 8)
	w.add(narrow)
	w.add(newWildRule(1, 20))

	inside := Packet{ipv4(10, 9, 9, 9), 0, 0, 0, 0}
	outside := Packet{ipv4(11, 0, 0, 1), 0, 0, 0, 0}
	require.Equal(t, 50, w.searchHighestPriority(inside))
	require.Equal(t, 20, w.searchHighestPriority(outside))

	w.clear()
	require.Equal(t, -1, w.searchHighestPriority(inside))
}
