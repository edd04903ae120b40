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

package ruleio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/netobserv/tuple-classifier/pkg/classify"
)

// TraceEntry is one packet of a trace file together with the rule id the
// trace generator expected it to match. The expected id only feeds miss
// accounting; classification ignores it.
type TraceEntry struct {
	Packet       classify.Packet
	ExpectedRule int
}

// LoadPackets parses a trace file of seven whitespace-separated decimals
// per line: the five header fields, a protocol mask (ignored), and the
// expected rule id.
func LoadPackets(r io.Reader) ([]TraceEntry, error) {
	var entries []TraceEntry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 7 {
			return nil, fmt.Errorf("trace file line %d: expected 7 tokens, got %d", lineNo, len(fields))
		}

		var entry TraceEntry
		for i := 0; i < classify.NumFields; i++ {
			v, err := strconv.ParseUint(fields[i], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("trace file line %d: parsing %q: %w", lineNo, fields[i], err)
			}
			entry.Packet[i] = uint32(v)
		}
		expected, err := strconv.Atoi(fields[6])
		if err != nil {
			return nil, fmt.Errorf("trace file line %d: parsing expected rule id %q: %w", lineNo, fields[6], err)
		}
		entry.ExpectedRule = expected
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}

	log.Debugf("loaded %d trace packets", len(entries))
	return entries, nil
}
