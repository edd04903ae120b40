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

import "unsafe"

// Approximate per-record sizes used by the memory accounting.
var (
	ruleSize        = int(unsafe.Sizeof(Rule{}))
	nodeSize        = int(unsafe.Sizeof(treeNode{}))
	ptrSize         = int(unsafe.Sizeof(uintptr(0)))
	layerHeaderSize = int(unsafe.Sizeof(priorityLayer{}))
	mapEntrySize    = int(unsafe.Sizeof(int(0)) * 2)
	locationSize    = int(unsafe.Sizeof(Location{}))
)

// MemSizeBytes estimates the memory footprint of the whole classifier:
// nodes, child pointer arrays, stored rules, side storage, the overflow
// container and the location index.
func (c *Classifier) MemSizeBytes() int {
	nodes, rules, ptrs, wrsNodes := 0, 0, 0, 0

	for _, root := range c.roots {
		queue := []*treeNode{root}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			nodes++

			if node.wrs != nil {
				wrsNodes++
				rules += node.wrs.size()
			}
			if node.isLeaf {
				rules += len(node.classifier)
				continue
			}
			ptrs += len(node.children)
			for _, child := range node.children {
				if child != nil {
					queue = append(queue, child)
				}
			}
		}
	}

	total := nodes*nodeSize + rules*ruleSize + ptrs*ptrSize + wrsNodes*nodeSize
	total += len(c.ruleLocations) * locationSize
	total += c.overflow.memSizeBytes()
	return total
}

// AverageLeafDepth is the mean depth over every leaf of every tree.
func (c *Classifier) AverageLeafDepth() float64 {
	sumDepth, leaves := 0, 0
	for _, root := range c.roots {
		if root == nil {
			continue
		}
		queue := []*treeNode{root}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			if node.isLeaf {
				sumDepth += node.depth
				leaves++
			}
			for _, child := range node.children {
				if child != nil {
					queue = append(queue, child)
				}
			}
		}
	}
	if leaves == 0 {
		return 0
	}
	return float64(sumDepth) / float64(leaves)
}

// AverageNodeBalance scores how evenly interior nodes split their rules:
// 1 is a perfect split, values near 0 mean one child took everything.
// Interior nodes with fewer than two children are not scored.
func (c *Classifier) AverageNodeBalance() float64 {
	scored := 0
	sumBalance := 0.0

	for _, root := range c.roots {
		if root == nil {
			continue
		}
		queue := []*treeNode{root}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			if !node.isLeaf {
				var sizes []int
				for _, child := range node.children {
					if child != nil {
						sizes = append(sizes, countTreeRules(child))
					}
				}
				if len(sizes) >= 2 {
					sum, minSize, maxSize := 0, sizes[0], sizes[0]
					for _, v := range sizes {
						sum += v
						if v < minSize {
							minSize = v
						}
						if v > maxSize {
							maxSize = v
						}
					}
					sumBalance += 1 - float64(maxSize-minSize)/float64(max(sum, 1))
					scored++
				}
			}
			for _, child := range node.children {
				if child != nil {
					queue = append(queue, child)
				}
			}
		}
	}
	if scored == 0 {
		return 0
	}
	return sumBalance / float64(scored)
}

// ForestStats aggregates structural counters over the whole forest.
type ForestStats struct {
	Trees          int
	Nodes          int
	Leaves         int
	Rules          int
	WRSNodes       int
	WRSRules       int
	MaxWRSPerNode  int
	OverflowRules  int
	AvgLeafDepth   float64
	AvgNodeBalance float64
	MemBytes       int
	PendingDeletes int
	RecentInserts  int
	TreeRuleCounts []int
}

// Stats walks the forest and returns its structural counters. Intended for
// reporting after construction or large update batches.
func (c *Classifier) Stats() ForestStats {
	stats := ForestStats{
		Trees:          len(c.roots),
		OverflowRules:  c.overflow.size(),
		AvgLeafDepth:   c.AverageLeafDepth(),
		AvgNodeBalance: c.AverageNodeBalance(),
		MemBytes:       c.MemSizeBytes(),
		PendingDeletes: len(c.updates.pendingDeletes),
		RecentInserts:  len(c.updates.recentInserts),
	}

	for _, root := range c.roots {
		stats.TreeRuleCounts = append(stats.TreeRuleCounts, countTreeRules(root))
		queue := []*treeNode{root}
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			stats.Nodes++
			if node.isLeaf {
				stats.Leaves++
				stats.Rules += len(node.classifier)
			}
			if node.wrs != nil {
				stats.WRSNodes++
				stats.WRSRules += node.wrs.size()
				if node.wrs.size() > stats.MaxWRSPerNode {
					stats.MaxWRSPerNode = node.wrs.size()
				}
			}
			for _, child := range node.children {
				if child != nil {
					queue = append(queue, child)
				}
			}
		}
	}
	stats.Rules += stats.WRSRules + stats.OverflowRules
	return stats
}
