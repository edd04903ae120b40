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
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/netobserv/tuple-classifier/pkg/api"
)

var log = logrus.WithField("component", "classify")

// maxSearchDepth bounds the per-tree path stack. Deeper traversals are
// truncated rather than followed.
const maxSearchDepth = 32

// LocationKind tags where a rule currently lives.
type LocationKind uint8

const (
	// LocationAbsent means the rule id is not in the classifier.
	LocationAbsent LocationKind = iota
	// LocationTree means the rule lives in the tree named by Location.Tree.
	LocationTree
	// LocationOverflow means the rule lives in the overflow container.
	LocationOverflow
)

// Location records which structure holds a rule id.
type Location struct {
	Kind LocationKind
	Tree uint16
}

type treeOrder struct {
	maxPri int
	index  int
}

// Classifier is the decision-tree forest. One instance is owned by one
// caller; mutating operations require external synchronization when shared.
type Classifier struct {
	cfg api.ClassifierConfig

	roots           []*treeNode
	maxPri          []int
	treeSearchOrder []treeOrder

	overflow            overflowContainer
	overflowMaxPriority int

	// ruleLocations is indexed by rule id; ids seen at construction size
	// it, inserts of larger ids grow it.
	ruleLocations []Location
	maxRuleID     int

	updates updateBuffer

	partitionOptions [][]int

	instr *Instrumentation
}

// NewClassifier returns an empty classifier. Call Construct before
// Classify.
func NewClassifier(cfg api.ClassifierConfig) *Classifier {
	return &Classifier{
		cfg:                 cfg,
		overflow:            newOverflowContainer(cfg.LayerWidth),
		overflowMaxPriority: -1,
		partitionOptions:    enumeratePartitionOptions(cfg.MaxBits),
		updates:             newUpdateBuffer(),
	}
}

// SetInstrumentation attaches optional operational counters. Pass nil to
// disable. Instrumentation is pure observation and never affects results.
func (c *Classifier) SetInstrumentation(instr *Instrumentation) {
	c.instr = instr
}

// RecommendedWRSThreshold derives a wildcard-storage threshold from the
// rule count and leaf capacity when the caller did not pick one.
func RecommendedWRSThreshold(ruleCount, binth int) int {
	threshold := 20
	if ruleCount < 10001 {
		threshold = 90
	}
	switch {
	case binth >= 32:
		threshold *= 2
	case binth >= 16:
		threshold = threshold * 3 / 2
	}
	return threshold
}

// Construct builds the forest from the rule set. Trees are built one after
// another, each feeding the rules it kicked to the next; the residue after
// the last tree lands in the overflow container. Construct must be called
// once, on a fresh instance.
func (c *Classifier) Construct(rules []Rule) {
	if c.cfg.WRSThreshold == 0 {
		c.cfg.WRSThreshold = RecommendedWRSThreshold(len(rules), c.cfg.Binth)
	}

	c.maxRuleID = 0
	for i := range rules {
		if rules[i].ID > c.maxRuleID {
			c.maxRuleID = rules[i].ID
		}
	}
	c.ruleLocations = make([]Location, c.maxRuleID+1)

	curr := append([]Rule(nil), rules...)
	sortRulesByPriority(curr)

	for len(curr) > 0 && len(c.roots) < c.cfg.MaxTrees-1 {
		if len(c.roots) >= c.cfg.MaxTrees/2 && len(curr) <= c.cfg.Binth*3 {
			// The residue is small; the overflow container absorbs it
			// cheaper than more trees would.
			break
		}

		treeIndex := len(c.roots)
		builder := &treeBuilder{
			maxBits:            c.cfg.MaxBits,
			maxLevel:           c.cfg.MaxLevel,
			binth:              dynamicLeafCapacity(c.cfg.Binth, len(curr), treeIndex),
			wrsThreshold:       max(c.cfg.WRSThreshold/2, 2),
			highPriorityCutoff: c.cfg.HighPriorityCutoff,
			options:            c.partitionOptions,
		}

		root := builder.build(curr)
		if countTreeRules(root) == 0 {
			// The tree absorbed nothing, so another round cannot make
			// progress either; everything left belongs to the overflow
			// container.
			break
		}
		c.roots = append(c.roots, root)
		c.maxPri = append(c.maxPri, treeMaxPriority(root))

		kicked := make(map[int]bool, len(builder.kicked))
		for i := range builder.kicked {
			kicked[builder.kicked[i].ID] = true
		}
		for i := range curr {
			if !kicked[curr[i].ID] {
				c.setLocation(curr[i].ID, Location{Kind: LocationTree, Tree: uint16(treeIndex)})
			}
		}

		curr = builder.kicked
		sortRulesByPriority(curr)
	}

	if len(curr) > 0 {
		c.overflow.clear()
		for i := range curr {
			c.overflow.insert(curr[i])
			c.setLocation(curr[i].ID, Location{Kind: LocationOverflow})
		}
		c.overflowMaxPriority = c.overflow.maxPriority()
	}

	total := c.overflow.size()
	for _, root := range c.roots {
		total += countTreeRules(root)
	}
	if total != len(rules) {
		log.Warnf("rule count mismatch after construction: loaded %d, placed %d", len(rules), total)
	}

	if len(c.roots) > 3 {
		c.mergeTrees()
	}

	c.buildTreeSearchOrder()

	if c.overflow.size() > 1000 {
		c.overflow.optimize()
		c.overflowMaxPriority = c.overflow.maxPriority()
	}
	c.noteOverflowSize()
}

// noteOverflowSize reflects the overflow occupancy into the optional gauge.
func (c *Classifier) noteOverflowSize() {
	if c.instr != nil {
		c.instr.OverflowRules.Set(float64(c.overflow.size()))
	}
}

// Classify returns the priority of the highest-priority rule matching p, or
// -1 when no rule matches.
func (c *Classifier) Classify(p Packet) int {
	best := -1

	// A very-high-priority overflow rule would defeat most tree pruning, so
	// probe the container first and let its result prune the trees instead.
	searchedOverflow := false
	if c.overflow.size() > 0 && c.overflowMaxPriority > c.cfg.HighPriorityCutoff {
		best = c.overflow.search(p, best)
		searchedOverflow = true
		if c.instr != nil {
			c.instr.OverflowProbes.Inc()
		}
	}

	for _, order := range c.treeSearchOrder {
		if best >= order.maxPri && best-order.maxPri > c.cfg.TreePruneSlack {
			continue
		}
		if r := c.searchTree(c.roots[order.index], p, best); r > best {
			best = r
		}
	}

	if !searchedOverflow && c.overflow.size() > 0 {
		best = c.overflow.search(p, best)
		if c.instr != nil {
			c.instr.OverflowProbes.Inc()
		}
	}

	if c.instr != nil {
		c.instr.PacketsClassified.Inc()
	}
	return best
}

type pathEntry struct {
	node     *treeNode
	checkWRS bool
	wrsPri   int
}

// searchTree runs the two-phase search: descend to the leaf following the
// packet's bit pattern, scan the leaf, then revisit the path's side storage
// deepest-first where its cached priority still beats the best.
func (c *Classifier) searchTree(root *treeNode, p Packet, currentBest int) int {
	if root == nil {
		return -1
	}

	var stack [maxSearchDepth]pathEntry
	depth := 0
	nodeVisits := 0

	current := root
	for current != nil && !current.isLeaf && depth < maxSearchDepth-1 {
		check := current.wrs != nil && current.wrs.size() > 0 &&
			current.maxWRSPriority > currentBest
		stack[depth] = pathEntry{node: current, checkWRS: check, wrsPri: current.maxWRSPriority}
		depth++
		nodeVisits++

		loc := calculatePacketLocation(p, current.opt, current.bit)
		if loc >= len(current.children) || current.children[loc] == nil {
			current = nil
			break
		}
		current = current.children[loc]
	}

	best := -1
	if current != nil && current.isLeaf {
		best = searchLeaf(current, p, currentBest)
	}

	for i := depth - 1; i >= 0; i-- {
		if stack[i].checkWRS && stack[i].wrsPri > best {
			if c.instr != nil {
				c.instr.WRSProbes.Inc()
			}
			if r := stack[i].node.wrs.searchHighestPriority(p); r > best {
				best = r
			}
		}
	}

	if c.instr != nil {
		c.instr.NodeVisits.Add(float64(nodeVisits))
	}
	return best
}

// searchLeaf scans a priority-descending leaf and returns the first match
// beating currentBest, or -1.
func searchLeaf(leaf *treeNode, p Packet, currentBest int) int {
	if leaf == nil || len(leaf.classifier) == 0 {
		return -1
	}
	if leaf.maxLeafPriority >= 0 && leaf.maxLeafPriority <= currentBest {
		return -1
	}
	for i := range leaf.classifier {
		if leaf.classifier[i].Priority <= currentBest {
			return -1
		}
		if leaf.classifier[i].MatchesPacket(p) {
			return leaf.classifier[i].Priority
		}
	}
	return -1
}

// treeMaxPriority scans a whole tree, leaves and side storage included.
func treeMaxPriority(root *treeNode) int {
	if root == nil {
		return -1
	}
	maxPri := -1
	queue := []*treeNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.isLeaf && len(node.classifier) > 0 && node.classifier[0].Priority > maxPri {
			maxPri = node.classifier[0].Priority
		}
		if node.wrs != nil && node.wrs.size() > 0 {
			if p := node.wrs.maxPriority(); p > maxPri {
				maxPri = p
			}
		}
		for _, child := range node.children {
			if child != nil {
				queue = append(queue, child)
			}
		}
	}
	return maxPri
}

func countTreeRules(root *treeNode) int {
	if root == nil {
		return 0
	}
	count := 0
	queue := []*treeNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.isLeaf {
			count += len(node.classifier)
		}
		if node.wrs != nil {
			count += node.wrs.size()
		}
		for _, child := range node.children {
			if child != nil {
				queue = append(queue, child)
			}
		}
	}
	return count
}

func extractTreeRules(root *treeNode, rules []Rule) []Rule {
	if root == nil {
		return rules
	}
	queue := []*treeNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.isLeaf {
			rules = append(rules, node.classifier...)
		}
		if node.wrs != nil {
			rules = append(rules, node.wrs.sortedRules()...)
		}
		for _, child := range node.children {
			if child != nil {
				queue = append(queue, child)
			}
		}
	}
	return rules
}

// mergeTrees keeps the largest trees and dissolves the rest into the
// overflow container. Many small trees cost a root visit each on every
// lookup; the overflow container prunes cheaper.
func (c *Classifier) mergeTrees() {
	if len(c.roots) <= 3 {
		return
	}

	sizes := make([]treeOrder, len(c.roots))
	for i, root := range c.roots {
		sizes[i] = treeOrder{maxPri: countTreeRules(root), index: i}
	}
	sortTreeOrder(sizes)

	keep := max(len(c.roots)*3/4, 3)

	newRoots := make([]*treeNode, 0, keep)
	newMaxPri := make([]int, 0, keep)
	remap := make([]int, len(c.roots))
	for i := range remap {
		remap[i] = -1
	}
	for i := 0; i < keep && i < len(sizes); i++ {
		idx := sizes[i].index
		remap[idx] = len(newRoots)
		newRoots = append(newRoots, c.roots[idx])
		newMaxPri = append(newMaxPri, c.maxPri[idx])
	}

	for i := keep; i < len(sizes); i++ {
		idx := sizes[i].index
		for _, r := range extractTreeRules(c.roots[idx], nil) {
			c.overflow.insert(r)
			c.setLocation(r.ID, Location{Kind: LocationOverflow})
		}
	}

	// Surviving trees changed index; retarget the location records.
	for id := range c.ruleLocations {
		loc := c.ruleLocations[id]
		if loc.Kind == LocationTree {
			if n := remap[loc.Tree]; n >= 0 {
				c.ruleLocations[id].Tree = uint16(n)
			}
		}
	}

	c.roots = newRoots
	c.maxPri = newMaxPri
	c.overflowMaxPriority = c.overflow.maxPriority()

	if c.overflow.size() > 500 {
		c.overflow.optimize()
		c.overflowMaxPriority = c.overflow.maxPriority()
	}
}

// sortTreeOrder orders entries by maxPri descending, index descending on
// ties, matching the search-order convention.
func sortTreeOrder(orders []treeOrder) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].maxPri != orders[j].maxPri {
			return orders[i].maxPri > orders[j].maxPri
		}
		return orders[i].index > orders[j].index
	})
}

func (c *Classifier) buildTreeSearchOrder() {
	c.treeSearchOrder = c.treeSearchOrder[:0]
	for i := range c.roots {
		c.treeSearchOrder = append(c.treeSearchOrder, treeOrder{maxPri: c.maxPri[i], index: i})
	}
	sortTreeOrder(c.treeSearchOrder)
}

func (c *Classifier) setLocation(id int, loc Location) {
	for id >= len(c.ruleLocations) {
		c.ruleLocations = append(c.ruleLocations, Location{})
	}
	c.ruleLocations[id] = loc
}

func (c *Classifier) location(id int) Location {
	if id < 0 || id >= len(c.ruleLocations) {
		return Location{}
	}
	return c.ruleLocations[id]
}

// NumTables counts the search structures a lookup may visit: the trees plus
// the overflow container when occupied.
func (c *Classifier) NumTables() int {
	n := len(c.roots)
	if c.overflow.size() > 0 {
		n++
	}
	return n
}

// GetOverflowRuleCount returns the number of rules in the overflow
// container.
func (c *Classifier) GetOverflowRuleCount() int {
	return c.overflow.size()
}
