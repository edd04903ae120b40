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

package benchmark

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/netobserv/tuple-classifier/pkg/api"
	"github.com/netobserv/tuple-classifier/pkg/classify"
	"github.com/netobserv/tuple-classifier/pkg/ruleio"
)

var log = logrus.WithField("component", "benchmark")

// Options controls a benchmark run.
type Options struct {
	// Trials is how many times the whole trace is classified.
	Trials int
	// UpdateCount bounds the random insert/delete pass; 0 uses the whole
	// rule set.
	UpdateCount int
	// Seed feeds the random operation choice so runs are reproducible.
	Seed int64
	// Instr, when set, is attached to the classifier under measurement.
	Instr *classify.Instrumentation
}

// Report carries the measurements of one benchmark run.
type Report struct {
	RuleCount   int
	PacketCount int

	ConstructionTime time.Duration
	MemBytes         int
	NumTables        int
	AvgLeafDepth     float64
	AvgNodeBalance   float64
	OverflowRules    int

	ClassificationTime time.Duration
	PacketsClassified  int
	Misses             int

	UpdateTime  time.Duration
	UpdateStats classify.UpdateStatistics
}

// Runner drives construction, classification and update passes against one
// classifier, timing each phase. The clock is injectable so tests can use a
// mock.
type Runner struct {
	clock clock.Clock
}

func NewRunner() *Runner {
	return &Runner{clock: clock.New()}
}

func NewRunnerWithClock(c clock.Clock) *Runner {
	return &Runner{clock: c}
}

// Run builds a classifier from the rules, replays the trace opts.Trials
// times with miss accounting against the expected ids, then applies a
// random insert/delete pass over a prefix of the rule set.
func (r *Runner) Run(cfg api.ClassifierConfig, rules []classify.Rule, trace []ruleio.TraceEntry, opts Options) *Report {
	report := &Report{
		RuleCount:   len(rules),
		PacketCount: len(trace),
	}
	if opts.Trials <= 0 {
		opts.Trials = 1
	}

	c := classify.NewClassifier(cfg)
	if opts.Instr != nil {
		c.SetInstrumentation(opts.Instr)
	}

	start := r.clock.Now()
	c.Construct(rules)
	report.ConstructionTime = r.clock.Since(start)

	report.MemBytes = c.MemSizeBytes()
	report.NumTables = c.NumTables()
	report.AvgLeafDepth = c.AverageLeafDepth()
	report.AvgNodeBalance = c.AverageNodeBalance()
	report.OverflowRules = c.GetOverflowRuleCount()

	log.Debugf("constructed %d tables from %d rules in %s", report.NumTables, report.RuleCount, report.ConstructionTime)

	for trial := 0; trial < opts.Trials; trial++ {
		start = r.clock.Now()
		for i := range trace {
			best := c.Classify(trace[i].Packet)
			report.PacketsClassified++
			if missed(best, report.RuleCount, trace[i].ExpectedRule) {
				report.Misses++
			}
		}
		report.ClassificationTime += r.clock.Since(start)
	}

	updateCount := opts.UpdateCount
	if updateCount <= 0 || updateCount > len(rules) {
		updateCount = len(rules)
	}
	if updateCount > 0 {
		rng := rand.New(rand.NewSource(opts.Seed))
		ops := make([]int, updateCount)
		for i := range ops {
			ops[i] = rng.Intn(2)
		}
		updateRules := rules[:updateCount]

		start = r.clock.Now()
		report.UpdateStats = c.PerformStableUpdate(updateRules, ops)
		report.UpdateTime = r.clock.Since(start)
	}

	return report
}

// missed reports whether a classification result disagrees with the
// trace's expected rule. Priorities run ruleCount-1 down to 0, so the
// matched rule id is ruleCount-1-best; matching a later (lower-priority)
// rule than expected is a miss.
func missed(best, ruleCount, expected int) bool {
	if best < 0 {
		return true
	}
	return ruleCount-1-best > expected
}

// AvgClassifyMicros is the mean per-packet classification latency in
// microseconds.
func (rep *Report) AvgClassifyMicros() float64 {
	if rep.PacketsClassified == 0 {
		return 0
	}
	return float64(rep.ClassificationTime.Microseconds()) / float64(rep.PacketsClassified)
}

// ThroughputMpps converts the classification phase into million packets
// per second.
func (rep *Report) ThroughputMpps() float64 {
	us := rep.AvgClassifyMicros()
	if us == 0 {
		return 0
	}
	return 1 / us
}
