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

// enumeratePartitionOptions precomputes every non-decreasing tuple of
// length maxBits over {-1, 0..NumFields-1}. -1 marks an unused slot. The
// non-decreasing constraint deduplicates symmetric field choices.
func enumeratePartitionOptions(maxBits int) [][]int {
	options := make([][]int, 0, NumFields+1)
	for f := -1; f < NumFields; f++ {
		options = append(options, []int{f})
	}
	for len(options[0]) < maxBits {
		var next [][]int
		for _, opt := range options {
			for f := opt[len(opt)-1]; f < NumFields; f++ {
				grown := make([]int, len(opt), len(opt)+1)
				copy(grown, opt)
				next = append(next, append(grown, f))
			}
		}
		options = next
	}
	return options
}

// calculateRuleLocation concatenates the rule's values on the selected bits
// MSB-first into a child index, or returns -1 when the rule is wildcard on
// any selected bit.
func calculateRuleLocation(r *Rule, opt, bit []int) int {
	loc := 0
	for i := range opt {
		if opt[i] == -1 || bit[i] == -1 {
			continue
		}
		t := r.Getbit(opt[i], bit[i])
		if t == -1 {
			return -1
		}
		loc = loc<<1 + t
	}
	return loc
}

// calculatePacketLocation is the packet-side counterpart of
// calculateRuleLocation. Packets have no wildcards, so it always lands on a
// child index.
func calculatePacketLocation(p Packet, opt, bit []int) int {
	loc := 0
	for i := range opt {
		if opt[i] == -1 || bit[i] == -1 {
			continue
		}
		loc <<= 1
		if p[opt[i]]>>(fieldWidth[opt[i]]-1-bit[i])&1 != 0 {
			loc++
		}
	}
	return loc
}

func ruleHasWildcardBit(r *Rule, opt, bit []int) bool {
	for i := range opt {
		if opt[i] == -1 || bit[i] == -1 {
			continue
		}
		if r.Getbit(opt[i], bit[i]) == -1 {
			return true
		}
	}
	return false
}

// treeBuilder builds one tree of the forest. Rules the tree refuses are
// accumulated in kicked and cascade to the next tree.
type treeBuilder struct {
	maxBits            int
	maxLevel           int
	binth              int // dynamic leaf capacity for this tree
	wrsThreshold       int
	highPriorityCutoff int
	options            [][]int

	kicked []Rule
}

// selectBits picks, for each used slot of opt, the first bit position at or
// after the node's left pointer where the node's rules disagree (both 0 and
// 1 occur). A field on which every remaining rule is wildcard is exhausted
// and yields -1.
func (b *treeBuilder) selectBits(node *treeNode, opt []int) []int {
	left := node.left
	bit := make([]int, 0, len(opt))
	for _, f := range opt {
		if f == -1 || left[f] == -1 {
			bit = append(bit, -1)
			continue
		}
		for {
			oneFlag, zeroFlag, wildcardFlag := false, false, true
			for i := range node.classifier {
				t := node.classifier[i].Getbit(f, left[f])
				if t == -1 {
					continue
				}
				wildcardFlag = false
				if t == 1 {
					oneFlag = true
				} else {
					zeroFlag = true
				}
				if oneFlag && zeroFlag {
					break
				}
			}
			if oneFlag && zeroFlag {
				break
			}
			if wildcardFlag {
				left[f] = -1
				break
			}
			left[f]++
		}
		bit = append(bit, left[f])
		if left[f] != -1 {
			left[f]++
		}
	}
	return bit
}

// fullyWildcard reports a rule with no concrete bit in any field. No tree
// can discriminate such a rule; it belongs in the overflow container.
func fullyWildcard(r *Rule) bool {
	for i := 0; i < NumFields; i++ {
		if r.PrefixLen[i] > 0 {
			return false
		}
	}
	return true
}

// build grows the tree breadth-first, at each node scoring every partition
// option by its worst bucket plus the rules it would kick, and splitting on
// the best one.
func (b *treeBuilder) build(rules []Rule) *treeNode {
	usable := make([]Rule, 0, len(rules))
	for i := range rules {
		if fullyWildcard(&rules[i]) {
			b.kicked = append(b.kicked, rules[i])
		} else {
			usable = append(usable, rules[i])
		}
	}

	root := newTreeNode(usable, 1, false)
	queue := []*treeNode{root}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.depth == b.maxLevel || len(node.classifier) <= b.binth {
			b.sealLeaf(node, b.binth+max(0, (b.maxLevel-node.depth)*3))
			continue
		}

		nrules := len(node.classifier)
		minScore, minKicked := nrules, nrules
		bestOpt := b.options[0]
		bestBit := b.selectBits(node, b.options[0])

		buckets := make([]int, 1<<b.maxBits)
		for _, opt := range b.options {
			for i := range buckets {
				buckets[i] = 0
			}
			nKicked := 0
			bit := b.selectBits(node, opt)

			for i := range node.classifier {
				loc := calculateRuleLocation(&node.classifier[i], opt, bit)
				if loc == -1 {
					nKicked++
				} else {
					buckets[loc]++
				}
			}

			score := 0
			for _, n := range buckets {
				if n+nKicked > score {
					score = n + nKicked
				}
			}
			if score < minScore || (score == minScore && nKicked <= minKicked) {
				minScore = score
				minKicked = nKicked
				bestOpt = opt
				bestBit = bit
			}
		}

		if allUnused(bestOpt) {
			// No useful split exists. Unlike the regular leaf path, the
			// trim allowance grows with depth: the node is stuck here.
			b.sealLeaf(node, b.binth+node.depth*2)
			continue
		}

		node.opt = bestOpt
		node.bit = bestBit

		var normalRules, wildcardRules []Rule
		for i := range node.classifier {
			if ruleHasWildcardBit(&node.classifier[i], bestOpt, bestBit) {
				wildcardRules = append(wildcardRules, node.classifier[i])
			} else {
				normalRules = append(normalRules, node.classifier[i])
			}
		}

		b.placeWildcardRules(node, wildcardRules)

		childRules := make([][]Rule, 1<<b.maxBits)
		for i := range normalRules {
			loc := calculateRuleLocation(&normalRules[i], bestOpt, bestBit)
			if loc == -1 {
				b.kicked = append(b.kicked, normalRules[i])
			} else {
				childRules[loc] = append(childRules[loc], normalRules[i])
			}
		}

		childLeft := node.left
		for i := range bestOpt {
			if bestOpt[i] == -1 {
				continue
			}
			childLeft[bestOpt[i]] = bestBit[i]
		}

		node.classifier = nil
		node.children = make([]*treeNode, 1<<b.maxBits)
		for i, sub := range childRules {
			if len(sub) == 0 {
				continue
			}
			child := newTreeNode(sub, node.depth+1, false)
			child.left = childLeft
			node.children[i] = child
			queue = append(queue, child)
		}
	}
	return root
}

// sealLeaf turns the node into a leaf, kicking the lowest-priority rules
// beyond maxAllowed.
func (b *treeBuilder) sealLeaf(node *treeNode, maxAllowed int) {
	node.isLeaf = true
	if len(node.classifier) > 0 {
		sortRulesByPriority(node.classifier)
	}
	for len(node.classifier) > maxAllowed {
		b.kicked = append(b.kicked, node.classifier[len(node.classifier)-1])
		node.classifier = node.classifier[:len(node.classifier)-1]
	}
	node.updateMaxLeafPriority()
}

// placeWildcardRules routes the rules wildcard on the node's selected bits:
// into freshly created side storage when there are enough of them, to the
// kicked list otherwise. A cluster of very-high-priority wildcards lowers
// the bar, since kicking those far down the cascade hurts every lookup.
func (b *treeBuilder) placeWildcardRules(node *treeNode, wildcardRules []Rule) {
	if len(wildcardRules) == 0 {
		return
	}

	highPriority := 0
	for i := range wildcardRules {
		if wildcardRules[i].Priority > b.highPriorityCutoff {
			highPriority++
		}
	}

	threshold := b.wrsThreshold
	if float64(highPriority) > float64(len(wildcardRules))*0.3 {
		threshold = max(threshold/2, 1)
	}

	if len(wildcardRules) >= threshold {
		capacity := len(wildcardRules)
		if c := int(float64(b.binth) * 1.3); c < capacity {
			capacity = c
		}
		if capacity > 15 {
			capacity = 15
		}

		if capacity >= threshold {
			node.createWRS(len(wildcardRules), capacity)
			if node.wrs != nil {
				sorted := append([]Rule(nil), wildcardRules...)
				sortRulesByPriority(sorted)
				for i := range sorted {
					if !node.wrs.add(sorted[i]) {
						b.kicked = append(b.kicked, sorted[i])
					}
				}
				node.updateWRSMaxPriority()
				return
			}
		}
	}

	b.kicked = append(b.kicked, wildcardRules...)
}

func allUnused(opt []int) bool {
	for _, f := range opt {
		if f != -1 {
			return false
		}
	}
	return true
}

// dynamicLeafCapacity scales the base binth per tree: the first trees get
// aggressive capacity to absorb the bulk of the rule set, later trees grow
// gently so the tail distributes evenly.
func dynamicLeafCapacity(binth, remainingRules, treeIndex int) int {
	var capacity int
	if treeIndex == 0 {
		if remainingRules > 90000 {
			capacity = binth * 3
		} else {
			capacity = binth * 2
		}
	} else {
		multiplier := 1.3 + float64(treeIndex)*0.2
		if multiplier > 2.5 {
			multiplier = 2.5
		}
		capacity = int(float64(binth) * multiplier)
	}
	if remainingRules < capacity*2 && remainingRules > capacity {
		capacity = remainingRules
	}
	return capacity
}
