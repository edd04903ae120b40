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

func TestEnumeratePartitionOptions(t *testing.T) {
	options := enumeratePartitionOptions(4)
	// Non-decreasing 4-tuples over {-1,0,1,2,3,4}: C(9,4).
	require.Len(t, options, 126)

	seen := make(map[[4]int]bool)
	for _, opt := range options {
		require.Len(t, opt, 4)
		var key [4]int
		for i, f := range opt {
			require.GreaterOrEqual(t, f, -1)
			require.Less(t, f, NumFields)
			if i > 0 {
				require.GreaterOrEqual(t, f, opt[i-1])
			}
			key[i] = f
		}
		require.False(t, seen[key], "duplicate option %v", opt)
		seen[key] = true
	}
}

func TestCalculateLocations(t *testing.T) {
	r := newWildRule(0, 1)
	r = withPrefix(r, FieldSrcIP, ipv4(0b10100000, 0, 0, 0), 4)

	opt := []int{FieldSrcIP, FieldSrcIP, -1}
	bit := []int{0, 2, -1}

	// Bits 0 and 2 of 0b1010... are 1 and 1.
	require.Equal(t, 3, calculateRuleLocation(&r, opt, bit))

	// A wildcard on any selected bit refuses a location.
	require.Equal(t, -1, calculateRuleLocation(&r, opt, []int{0, 5, -1}))

	p := Packet{0b1010 << 28, 0, 0, 0, 0}
	require.Equal(t, 3, calculatePacketLocation(p, opt, bit))
	require.Equal(t, calculateRuleLocation(&r, opt, bit), calculatePacketLocation(p, opt, bit))

	// Exhausted slots contribute nothing on either side.
	require.Equal(t, 0, calculatePacketLocation(p, []int{-1, -1, -1}, []int{-1, -1, -1}))
}

func TestSelectBitsSkipsAgreeingBits(t *testing.T) {
	// Both rules share the first three src bits and diverge on the fourth.
	r0 := withPrefix(newWildRule(0, 1), FieldSrcIP, ipv4(0b10110000, 0, 0, 0), 8)
	r1 := withPrefix(newWildRule(1, 0), FieldSrcIP, ipv4(0b10100000, 0, 0, 0), 8)

	b := &treeBuilder{maxBits: 1, options: enumeratePartitionOptions(1)}
	node := newTreeNode([]Rule{r0, r1}, 1, false)

	bit := b.selectBits(node, []int{FieldSrcIP})
	require.Equal(t, []int{3}, bit)
}

func TestSelectBitsExhaustsWildcardField(t *testing.T) {
	rules := []Rule{newWildRule(0, 1), newWildRule(1, 0)}
	b := &treeBuilder{maxBits: 1, options: enumeratePartitionOptions(1)}
	node := newTreeNode(rules, 1, false)

	bit := b.selectBits(node, []int{FieldDstIP})
	require.Equal(t, []int{-1}, bit)
}

func TestBuilderLeafInvariants(t *testing.T) {
	rules := make([]Rule, 0, 64)
	for i := 0; i < 64; i++ {
		r := newWildRule(i, 64-1-i)
		r = withPrefix(r, FieldSrcIP, uint32(i)<<26, 8)
		r = withPrefix(r, FieldDstIP, uint32(i*7%64)<<26, 8)
		rules = append(rules, r)
	}

	b := &treeBuilder{
		maxBits:            2,
		maxLevel:           4,
		binth:              8,
		wrsThreshold:       4,
		highPriorityCutoff: 80000,
		options:            enumeratePartitionOptions(2),
	}
	root := b.build(rules)

	placed := 0
	var walk func(n *treeNode)
	walk = func(n *treeNode) {
		if n.isLeaf {
			placed += len(n.classifier)
			// Leaf order: priority descending, cached max agrees.
			for i := 1; i < len(n.classifier); i++ {
				require.GreaterOrEqual(t, n.classifier[i-1].Priority, n.classifier[i].Priority)
			}
			if len(n.classifier) > 0 {
				require.Equal(t, n.classifier[0].Priority, n.maxLeafPriority)
			} else {
				require.Equal(t, -1, n.maxLeafPriority)
			}
			return
		}
		if n.wrs != nil {
			placed += n.wrs.size()
			for i := range n.wrs.sortedRules() {
				require.True(t, ruleHasWildcardBit(&n.wrs.rules[i], n.opt, n.bit))
			}
		}
		for loc, child := range n.children {
			if child == nil {
				continue
			}
			require.Equal(t, n.depth+1, child.depth)
			walk(child)
			// Bit-pattern consistency: every rule below children[loc]
			// projects onto loc at this node.
			var check func(m *treeNode)
			check = func(m *treeNode) {
				for i := range m.classifier {
					require.Equal(t, loc, calculateRuleLocation(&m.classifier[i], n.opt, n.bit))
				}
				if m.wrs != nil {
					for i := range m.wrs.rules {
						require.Equal(t, loc, calculateRuleLocation(&m.wrs.rules[i], n.opt, n.bit))
					}
				}
				for _, mc := range m.children {
					if mc != nil {
						check(mc)
					}
				}
			}
			check(child)
		}
	}
	walk(root)

	// Routing completeness: placed + kicked conserves the input.
	require.Equal(t, len(rules), placed+len(b.kicked))
}

func TestBuilderKicksFullyWildcardRules(t *testing.T) {
	rules := []Rule{
		newWildRule(0, 2),
		withPrefix(newWildRule(1, 1), FieldSrcIP, ipv4(10, 0, 0, 0), 8),
		newWildRule(2, 0),
	}
	b := &treeBuilder{
		maxBits:            2,
		maxLevel:           4,
		binth:              8,
		wrsThreshold:       4,
		highPriorityCutoff: 80000,
		options:            enumeratePartitionOptions(2),
	}
	root := b.build(rules)

	require.Equal(t, 1, countTreeRules(root))
	require.Len(t, b.kicked, 2)
	for _, r := range b.kicked {
		require.Contains(t, []int{0, 2}, r.ID)
	}
}

func TestDynamicLeafCapacity(t *testing.T) {
	table := []struct {
		name      string
		binth     int
		remaining int
		treeIndex int
		want      int
	}{
		{name: "first tree large set", binth: 8, remaining: 100000, treeIndex: 0, want: 24},
		{name: "first tree small set", binth: 8, remaining: 5000, treeIndex: 0, want: 16},
		{name: "second tree", binth: 8, remaining: 5000, treeIndex: 1, want: 12},
		{name: "late tree capped", binth: 8, remaining: 5000, treeIndex: 9, want: 20},
		{name: "residue raises capacity", binth: 8, remaining: 20, treeIndex: 1, want: 20},
	}
	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, dynamicLeafCapacity(test.binth, test.remaining, test.treeIndex))
		})
	}
}
