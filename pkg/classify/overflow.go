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

// priorityLayer holds the overflow rules of one priority window. A layer is
// sorted lazily: mutations mark it dirty, the next search sorts it.
type priorityLayer struct {
	minPriority int
	maxPriority int
	rules       []Rule
	sorted      bool
}

// overflowContainer catches the rules no tree could absorb: wildcard-heavy
// rules and construction residue. Rules are grouped into priority layers so
// a search can skip whole windows once the running best passes them.
type overflowContainer struct {
	layers      []priorityLayer
	ruleToLayer map[int]int
	layerWidth  int

	// sortCount tracks lazy layer sorts. Observation only, used to verify
	// that searching an unchanged container never re-sorts.
	sortCount uint64
}

func newOverflowContainer(layerWidth int) overflowContainer {
	return overflowContainer{
		ruleToLayer: make(map[int]int),
		layerWidth:  layerWidth,
	}
}

func (o *overflowContainer) insert(r Rule) {
	idx := r.Priority / o.layerWidth
	for idx >= len(o.layers) {
		n := len(o.layers)
		o.layers = append(o.layers, priorityLayer{
			minPriority: n * o.layerWidth,
			maxPriority: -1,
		})
	}
	layer := &o.layers[idx]
	layer.rules = append(layer.rules, r)
	if r.Priority > layer.maxPriority {
		layer.maxPriority = r.Priority
	}
	layer.sorted = false
	o.ruleToLayer[r.ID] = idx
}

func (o *overflowContainer) remove(id int) bool {
	idx, ok := o.ruleToLayer[id]
	if !ok || idx >= len(o.layers) {
		return false
	}
	layer := &o.layers[idx]
	for i := range layer.rules {
		if layer.rules[i].ID != id {
			continue
		}
		layer.rules = append(layer.rules[:i], layer.rules[i+1:]...)
		layer.sorted = false
		layer.maxPriority = -1
		for j := range layer.rules {
			if layer.rules[j].Priority > layer.maxPriority {
				layer.maxPriority = layer.rules[j].Priority
			}
		}
		delete(o.ruleToLayer, id)
		return true
	}
	return false
}

// search scans layers from the highest priority window down, skipping
// layers whose cached maximum cannot beat currentBest. Returns the best
// priority found, never less than currentBest.
func (o *overflowContainer) search(p Packet, currentBest int) int {
	best := currentBest
	for i := len(o.layers) - 1; i >= 0; i-- {
		layer := &o.layers[i]
		if len(layer.rules) == 0 || layer.maxPriority <= best {
			continue
		}
		if !layer.sorted {
			sortRulesByPriority(layer.rules)
			layer.sorted = true
			o.sortCount++
		}
		for j := range layer.rules {
			if layer.rules[j].Priority <= best {
				break
			}
			if layer.rules[j].MatchesPacket(p) {
				best = layer.rules[j].Priority
				break
			}
		}
	}
	return best
}

func (o *overflowContainer) size() int {
	total := 0
	for i := range o.layers {
		total += len(o.layers[i].rules)
	}
	return total
}

func (o *overflowContainer) clear() {
	o.layers = nil
	o.ruleToLayer = make(map[int]int)
}

// maxPriority is the highest priority held anywhere in the container, -1
// when empty.
func (o *overflowContainer) maxPriority() int {
	maxPri := -1
	for i := range o.layers {
		if len(o.layers[i].rules) > 0 && o.layers[i].maxPriority > maxPri {
			maxPri = o.layers[i].maxPriority
		}
	}
	return maxPri
}

// optimize re-layers the container into equal-sized priority bands so that
// the high layers stay small and selective after many fixed-window inserts
// landed in the same window.
func (o *overflowContainer) optimize() {
	var all []Rule
	for i := range o.layers {
		all = append(all, o.layers[i].rules...)
	}
	if len(all) == 0 {
		return
	}
	sortRulesByPriority(all)

	numLayers := len(all) / 100
	if numLayers < 1 {
		numLayers = 1
	} else if numLayers > 10 {
		numLayers = 10
	}
	perLayer := len(all) / numLayers

	o.layers = make([]priorityLayer, 0, numLayers)
	o.ruleToLayer = make(map[int]int, len(all))

	// all is descending, so reverse the band order to keep the
	// highest-priority rules in the last layer, where search starts.
	for i, r := range all {
		band := i / perLayer
		if band > numLayers-1 {
			band = numLayers - 1
		}
		idx := numLayers - 1 - band
		for idx >= len(o.layers) {
			o.layers = append(o.layers, priorityLayer{minPriority: -1, maxPriority: -1, sorted: true})
		}
		layer := &o.layers[idx]
		layer.rules = append(layer.rules, r)
		if r.Priority > layer.maxPriority {
			layer.maxPriority = r.Priority
		}
		if layer.minPriority == -1 || r.Priority < layer.minPriority {
			layer.minPriority = r.Priority
		}
		o.ruleToLayer[r.ID] = idx
	}
}

// memSizeBytes approximates the container's memory footprint.
func (o *overflowContainer) memSizeBytes() int {
	mem := 0
	for i := range o.layers {
		mem += len(o.layers[i].rules)*ruleSize + layerHeaderSize
	}
	mem += len(o.ruleToLayer) * mapEntrySize
	return mem
}
