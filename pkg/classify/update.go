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

// ruleKind separates rules that can take a concrete tree path from
// wildcard-heavy rules that would bounce off every split.
type ruleKind uint8

const (
	specificRule ruleKind = iota
	wildcardRule
)

// OpInsert and OpDelete are the operation codes accepted by
// PerformStableUpdate.
const (
	OpInsert = 0
	OpDelete = 1
)

// UpdateStatistics reports the attempt and success counts of an update
// batch.
type UpdateStatistics struct {
	InsertAttempts  uint32
	InsertSuccesses uint32
	DeleteAttempts  uint32
	DeleteSuccesses uint32
}

// updateBuffer holds the mutable bookkeeping of the incremental update
// path: a cache of recently inserted rules, deletes that could not be
// located yet, and the tree that last accepted an insert.
type updateBuffer struct {
	recentInserts      []Rule
	pendingDeletes     map[int]bool
	lastSuccessfulTree int
}

func newUpdateBuffer() updateBuffer {
	return updateBuffer{pendingDeletes: make(map[int]bool)}
}

// trim drops the aged bulk of the recent-insert cache and any leftover
// pending deletes at the end of a batch.
func (u *updateBuffer) trim() {
	if len(u.recentInserts) > 1000 {
		u.recentInserts = append([]Rule(nil), u.recentInserts[len(u.recentInserts)-100:]...)
	}
	u.pendingDeletes = make(map[int]bool)
}

// countRuleWildcards counts fully-wildcard fields, with port fields spanning
// more than 1,000 values counting once more.
func countRuleWildcards(r *Rule) int {
	wildcards := 0
	for i := 0; i < NumFields; i++ {
		if r.PrefixLen[i] == 0 {
			wildcards++
		}
		if i == FieldSrcPort || i == FieldDstPort {
			if r.Range[i].High-r.Range[i].Low > 1000 {
				wildcards++
			}
		}
	}
	return wildcards
}

func classifyRule(r *Rule) ruleKind {
	if countRuleWildcards(r) >= 2 {
		return wildcardRule
	}
	return specificRule
}

// Insert adds a rule to the classifier. Wildcard-heavy rules go straight to
// the overflow container; specific rules try the trees first. Insert always
// places the rule somewhere, so it reports success unconditionally.
func (c *Classifier) Insert(r Rule) bool {
	if c.instr != nil {
		c.instr.Inserts.Inc()
	}
	if classifyRule(&r) == wildcardRule {
		return c.insertToOverflow(r)
	}
	return c.insertToShallowTree(r)
}

// Delete removes a rule. Rules that cannot be located are queued as pending
// deletes and flushed in bulk; a delete of an unknown id is a no-op that
// still reports success so batch statistics stay monotonic.
func (c *Classifier) Delete(r Rule) bool {
	if c.instr != nil {
		c.instr.Deletes.Inc()
	}

	for i := range c.updates.recentInserts {
		if c.updates.recentInserts[i].ID == r.ID {
			c.updates.recentInserts = append(c.updates.recentInserts[:i], c.updates.recentInserts[i+1:]...)
			break
		}
	}

	loc := c.location(r.ID)
	switch loc.Kind {
	case LocationOverflow:
		ok := c.overflow.remove(r.ID)
		if ok {
			c.setLocation(r.ID, Location{})
			c.overflowMaxPriority = c.overflow.maxPriority()
			c.noteOverflowSize()
		}
		return ok
	case LocationTree:
		if int(loc.Tree) < len(c.roots) {
			return c.deleteFromTree(r, int(loc.Tree))
		}
	}

	c.updates.pendingDeletes[r.ID] = true
	if len(c.updates.pendingDeletes) >= c.cfg.PendingDeleteFlush {
		c.processPendingDeletes()
	}
	return true
}

// insertToShallowTree tries the tree that last accepted an insert, then the
// shallowest other tree, then gives up and uses the overflow container.
func (c *Classifier) insertToShallowTree(r Rule) bool {
	last := c.updates.lastSuccessfulTree
	if last < len(c.roots) && c.tryFastInsert(c.roots[last], r) {
		c.noteTreeInsert(r, last)
		return true
	}

	bestIndex, minDepth := -1, int(^uint(0)>>1)
	for i, root := range c.roots {
		if i == last {
			continue
		}
		if d := root.maxDepth(); d < minDepth {
			minDepth = d
			bestIndex = i
		}
	}
	if bestIndex >= 0 && c.tryFastInsert(c.roots[bestIndex], r) {
		c.updates.lastSuccessfulTree = bestIndex
		c.noteTreeInsert(r, bestIndex)
		return true
	}

	return c.insertToOverflow(r)
}

func (c *Classifier) noteTreeInsert(r Rule, treeIdx int) {
	c.setLocation(r.ID, Location{Kind: LocationTree, Tree: uint16(treeIdx)})
	c.updates.recentInserts = append(c.updates.recentInserts, r)
	c.maxPri[treeIdx] = treeMaxPriority(c.roots[treeIdx])
	c.buildTreeSearchOrder()
}

func (c *Classifier) insertToOverflow(r Rule) bool {
	c.overflow.insert(r)
	c.setLocation(r.ID, Location{Kind: LocationOverflow})
	c.overflowMaxPriority = c.overflow.maxPriority()
	c.noteOverflowSize()
	return true
}

// tryFastInsert walks at most three steps down a tree. It appends to a leaf
// with spare capacity, materializes a missing child as a single-rule leaf,
// and fails on a wildcard along the path or a full leaf.
func (c *Classifier) tryFastInsert(root *treeNode, r Rule) bool {
	current := root
	for attempt := 0; attempt < 3; attempt++ {
		if current.isLeaf {
			if len(current.classifier) >= c.cfg.Binth*3 {
				return false
			}
			current.classifier = append(current.classifier, r)
			sortRulesByPriority(current.classifier)
			current.updateMaxLeafPriority()
			return true
		}

		loc := calculateRuleLocation(&r, current.opt, current.bit)
		if loc == -1 {
			return false
		}
		if loc >= len(current.children) || current.children[loc] == nil {
			for loc >= len(current.children) {
				current.children = append(current.children, nil)
			}
			current.children[loc] = newTreeNode([]Rule{r}, current.depth+1, true)
			return true
		}
		current = current.children[loc]
	}
	return false
}

func (c *Classifier) deleteFromTree(r Rule, treeIdx int) bool {
	if treeIdx < 0 || treeIdx >= len(c.roots) {
		return false
	}
	if !c.tryStableDelete(c.roots[treeIdx], r) {
		return false
	}
	c.setLocation(r.ID, Location{})
	c.maxPri[treeIdx] = treeMaxPriority(c.roots[treeIdx])
	c.buildTreeSearchOrder()
	return true
}

// tryStableDelete descends by the rule's own bit pattern, first trying the
// side storage of every interior node on the way.
func (c *Classifier) tryStableDelete(root *treeNode, r Rule) bool {
	current := root
	for current != nil && !current.isLeaf {
		if current.wrs != nil && current.wrs.remove(r.ID) {
			current.updateWRSMaxPriority()
			return true
		}

		loc := calculateRuleLocation(&r, current.opt, current.bit)
		if loc == -1 || loc >= len(current.children) || current.children[loc] == nil {
			return false
		}
		current = current.children[loc]
	}

	if current == nil || !current.isLeaf {
		return false
	}
	for i := range current.classifier {
		if current.classifier[i].ID == r.ID && current.classifier[i].Priority == r.Priority {
			current.classifier = append(current.classifier[:i], current.classifier[i+1:]...)
			current.updateMaxLeafPriority()
			return true
		}
	}
	return false
}

// processPendingDeletes resolves queued deletes against the location index
// and drops the rest. Unknown ids are discarded: the rule never existed or
// was already removed.
func (c *Classifier) processPendingDeletes() {
	if len(c.updates.pendingDeletes) == 0 {
		return
	}
	overflowChanged := false
	for id := range c.updates.pendingDeletes {
		loc := c.location(id)
		switch loc.Kind {
		case LocationOverflow:
			c.overflow.remove(id)
			overflowChanged = true
			c.setLocation(id, Location{})
		case LocationTree:
			c.setLocation(id, Location{})
		}
	}
	if overflowChanged {
		c.overflowMaxPriority = c.overflow.maxPriority()
		c.noteOverflowSize()
	}
	c.updates.pendingDeletes = make(map[int]bool)
	if c.instr != nil {
		c.instr.PendingFlushes.Inc()
	}
}

// PerformStableUpdate applies a mixed batch of operations, ops[i] being
// OpInsert or OpDelete for rules[i]. Large batches take the reordered batch
// path; small ones run in order with periodic maintenance.
func (c *Classifier) PerformStableUpdate(rules []Rule, ops []int) UpdateStatistics {
	var stats UpdateStatistics

	if len(rules) > 1000 {
		return c.performBatchUpdate(rules, ops)
	}

	for i := 0; i < len(rules) && i < len(ops); i++ {
		if ops[i] == OpInsert {
			stats.InsertAttempts++
			if c.Insert(rules[i]) {
				stats.InsertSuccesses++
			}
		} else {
			stats.DeleteAttempts++
			if c.Delete(rules[i]) {
				stats.DeleteSuccesses++
			}
		}

		if i%100 == 0 {
			c.processPendingDeletes()
		}
		if i%500 == 0 && c.overflow.size() > 1000 {
			c.overflow.optimize()
			c.overflowMaxPriority = c.overflow.maxPriority()
		}
	}

	c.processPendingDeletes()
	return stats
}

// performBatchUpdate reorders a large batch: per-tree grouped deletes
// first, then tree inserts, then overflow inserts.
func (c *Classifier) performBatchUpdate(rules []Rule, ops []int) UpdateStatistics {
	var stats UpdateStatistics
	var treeInserts, overflowInserts, deletes []Rule

	for i := 0; i < len(rules) && i < len(ops); i++ {
		if ops[i] == OpInsert {
			stats.InsertAttempts++
			if classifyRule(&rules[i]) == specificRule {
				treeInserts = append(treeInserts, rules[i])
			} else {
				overflowInserts = append(overflowInserts, rules[i])
			}
		} else {
			stats.DeleteAttempts++
			deletes = append(deletes, rules[i])
		}
	}

	stats.DeleteSuccesses = c.batchDelete(deletes)

	for i := range treeInserts {
		if c.insertToShallowTree(treeInserts[i]) {
			stats.InsertSuccesses++
		}
	}
	for i := range overflowInserts {
		c.insertToOverflow(overflowInserts[i])
		stats.InsertSuccesses++
	}

	if c.overflow.size() > 1000 {
		c.overflow.optimize()
		c.overflowMaxPriority = c.overflow.maxPriority()
	}

	c.updates.trim()
	return stats
}

// batchDelete groups deletes by their recorded location so each tree's
// search order is rebuilt once.
func (c *Classifier) batchDelete(rules []Rule) uint32 {
	if len(rules) == 0 {
		return 0
	}

	var successes uint32
	overflowChanged := false
	treesChanged := false

	perTree := make(map[int][]Rule)
	for i := range rules {
		loc := c.location(rules[i].ID)
		switch loc.Kind {
		case LocationOverflow:
			if c.overflow.remove(rules[i].ID) {
				successes++
				c.setLocation(rules[i].ID, Location{})
				overflowChanged = true
			}
		case LocationTree:
			perTree[int(loc.Tree)] = append(perTree[int(loc.Tree)], rules[i])
		}
	}

	for treeIdx, treeRules := range perTree {
		if treeIdx >= len(c.roots) {
			continue
		}
		changed := false
		for i := range treeRules {
			if c.tryStableDelete(c.roots[treeIdx], treeRules[i]) {
				successes++
				c.setLocation(treeRules[i].ID, Location{})
				changed = true
			}
		}
		if changed {
			c.maxPri[treeIdx] = treeMaxPriority(c.roots[treeIdx])
			treesChanged = true
		}
	}

	if overflowChanged {
		c.overflowMaxPriority = c.overflow.maxPriority()
		c.noteOverflowSize()
	}
	if treesChanged || overflowChanged {
		c.buildTreeSearchOrder()
	}
	return successes
}
