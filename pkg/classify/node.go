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

// treeNode is one node of a decision tree. Interior nodes carry the chosen
// partition (opt, bit) and a sparse children array indexed by the bit
// pattern; leaves carry the priority-descending classifier slice. During
// construction an interior node temporarily holds its rules in classifier
// until they are distributed to children.
//
// There is no parent link: searches remember the downward path explicitly.
type treeNode struct {
	classifier []Rule
	depth      int
	isLeaf     bool

	// opt[i] is a field index or -1 for an unused slot; bit[i] is the bit
	// position within that field, or -1 when the field was exhausted.
	opt []int
	bit []int

	children []*treeNode

	// left[f] is the next bit of field f available for partitioning on the
	// path from the root; -1 once the field is exhausted.
	left [NumFields]int

	wrs            *wildcardStore
	maxWRSPriority int

	maxLeafPriority int
}

func newTreeNode(rules []Rule, depth int, leaf bool) *treeNode {
	n := &treeNode{
		classifier:      append([]Rule(nil), rules...),
		depth:           depth,
		isLeaf:          leaf,
		maxWRSPriority:  -1,
		maxLeafPriority: -1,
	}
	if len(n.classifier) > 0 {
		sortRulesByPriority(n.classifier)
		if leaf {
			n.maxLeafPriority = n.classifier[0].Priority
		}
	}
	return n
}

// createWRS attaches side storage when the node sits at a useful depth.
// Nodes too close to the root would capture too many rules, nodes too deep
// too few.
func (n *treeNode) createWRS(wildcardCount, capacity int) {
	if n.wrs == nil && wildcardCount >= capacity && n.depth >= 2 && n.depth <= 6 {
		n.wrs = newWildcardStore(capacity)
		n.maxWRSPriority = -1
	}
}

func (n *treeNode) updateWRSMaxPriority() {
	if n.wrs != nil {
		n.maxWRSPriority = n.wrs.maxPriority()
	} else {
		n.maxWRSPriority = -1
	}
}

func (n *treeNode) updateMaxLeafPriority() {
	if n.isLeaf && len(n.classifier) > 0 {
		n.maxLeafPriority = n.classifier[0].Priority
	} else {
		n.maxLeafPriority = -1
	}
}

// maxDepth is the deepest depth value reachable from this node.
func (n *treeNode) maxDepth() int {
	deepest := n.depth
	for _, child := range n.children {
		if child != nil {
			if d := child.maxDepth(); d > deepest {
				deepest = d
			}
		}
	}
	return deepest
}
