/*
 * Copyright (C) 2021 IBM, Inc.
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

package config

import (
	"fmt"

	"github.com/netobserv/tuple-classifier/pkg/api"
)

// Options is everything the command line and environment configure.
type Options struct {
	Rules      string
	Trace      string
	LogLevel   string
	Classifier api.ClassifierConfig
	Bench      Bench
	Metrics    Metrics
}

// Bench configures the measurement harness.
type Bench struct {
	Trials      int
	UpdateCount int
	Seed        int64
}

// Metrics configures the optional prometheus endpoint; port 0 disables it.
type Metrics struct {
	Port int
}

// Validate rejects option combinations the run loop cannot work with.
func (o *Options) Validate() error {
	if o.Rules == "" {
		return fmt.Errorf("a rule file is required")
	}
	if o.Classifier.MaxBits < 1 || o.Classifier.MaxBits > 8 {
		return fmt.Errorf("maxBits %d out of range [1,8]", o.Classifier.MaxBits)
	}
	if o.Classifier.MaxTrees < 2 {
		return fmt.Errorf("maxTrees %d must be at least 2", o.Classifier.MaxTrees)
	}
	if o.Classifier.Binth < 1 {
		return fmt.Errorf("binth %d must be positive", o.Classifier.Binth)
	}
	if o.Classifier.MaxLevel < 1 {
		return fmt.Errorf("maxLevel %d must be positive", o.Classifier.MaxLevel)
	}
	return nil
}
