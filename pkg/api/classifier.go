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

package api

// ClassifierConfig holds the construction and search tunables of the
// decision-tree forest. The zero value is not usable; start from
// DefaultClassifierConfig and override fields as needed.
type ClassifierConfig struct {
	MaxBits      int `yaml:"maxBits,omitempty" json:"maxBits,omitempty" doc:"number of partition bits consumed per tree level"`
	MaxLevel     int `yaml:"maxLevel,omitempty" json:"maxLevel,omitempty" doc:"maximum tree depth"`
	Binth        int `yaml:"binth,omitempty" json:"binth,omitempty" doc:"base leaf capacity; trees scale it per tree index"`
	MaxTrees     int `yaml:"maxTrees,omitempty" json:"maxTrees,omitempty" doc:"maximum number of trees in the forest"`
	WRSThreshold int `yaml:"wrsThreshold,omitempty" json:"wrsThreshold,omitempty" doc:"wildcard side storage threshold; a split needs at least half this many wildcard rules (fewer when most are high priority) before the node gets side storage; 0 derives it from the rule count and binth"`

	// The following were hard-coded in earlier revisions and are kept
	// configurable because they are empirically tuned.
	HighPriorityCutoff int `yaml:"highPriorityCutoff,omitempty" json:"highPriorityCutoff,omitempty" doc:"priority above which the overflow container is probed before the trees"`
	TreePruneSlack     int `yaml:"treePruneSlack,omitempty" json:"treePruneSlack,omitempty" doc:"slack applied when pruning trees by cached max priority"`
	PendingDeleteFlush int `yaml:"pendingDeleteFlush,omitempty" json:"pendingDeleteFlush,omitempty" doc:"queued unresolved deletes are flushed at this size"`
	LayerWidth         int `yaml:"layerWidth,omitempty" json:"layerWidth,omitempty" doc:"priority window covered by one overflow layer"`
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MaxBits:            4,
		MaxLevel:           6,
		Binth:              8,
		MaxTrees:           32,
		WRSThreshold:       0,
		HighPriorityCutoff: 80000,
		TreePruneSlack:     500,
		PendingDeleteFlush: 50,
		LayerWidth:         10000,
	}
}
