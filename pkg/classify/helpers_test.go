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

import "math/rand"

// newWildRule is a rule matching every packet.
func newWildRule(id, priority int) Rule {
	r := Rule{ID: id, Priority: priority}
	r.Range[FieldSrcIP] = FieldRange{0, 0xFFFFFFFF}
	r.Range[FieldDstIP] = FieldRange{0, 0xFFFFFFFF}
	r.Range[FieldSrcPort] = FieldRange{0, 0xFFFF}
	r.Range[FieldDstPort] = FieldRange{0, 0xFFFF}
	r.Range[FieldProto] = FieldRange{0, 0xFF}
	return r
}

// withPrefix narrows one field of the rule to a prefix. value carries the
// prefix bits left-aligned within the field width.
func withPrefix(r Rule, field int, value uint32, prefixLen int) Rule {
	width := fieldWidth[field]
	r.PrefixLen[field] = prefixLen
	if prefixLen == 0 {
		return r
	}
	low := value &^ (uint32(uint64(1)<<(width-prefixLen)) - 1)
	r.Range[field] = FieldRange{Low: low, High: low | uint32(uint64(1)<<(width-prefixLen)-1)}
	return r
}

// withPortRange narrows a port field to [lo, hi], deriving the prefix
// length from the XOR of the endpoints like the rule loader does.
func withPortRange(r Rule, field int, lo, hi uint32) Rule {
	r.Range[field] = FieldRange{Low: lo, High: hi}
	plen := 0
	for i := 15; i >= 0; i-- {
		if (lo^hi)>>i&1 != 0 {
			break
		}
		plen++
	}
	r.PrefixLen[field] = plen
	return r
}

func ipv4(a, b, c, d uint32) uint32 {
	return a<<24 | b<<16 | c<<8 | d
}

// bruteForceClassify is the oracle: the maximum priority over all matching
// rules, -1 when none match.
func bruteForceClassify(rules []Rule, p Packet) int {
	best := -1
	for i := range rules {
		if rules[i].Priority > best && rules[i].MatchesPacket(p) {
			best = rules[i].Priority
		}
	}
	return best
}

// randomRuleSet builds a mixed rule set: exact and short IP prefixes, port
// ranges of varying width, and fixed or wildcard protocols. Priorities run
// n-1 down to 0 like the rule loader assigns them.
func randomRuleSet(rng *rand.Rand, n int) []Rule {
	rules := make([]Rule, 0, n)
	for i := 0; i < n; i++ {
		r := newWildRule(i, n-1-i)

		srcLen := rng.Intn(5) * 8 // 0, 8, 16, 24, 32
		r = withPrefix(r, FieldSrcIP, rng.Uint32(), srcLen)
		dstLen := rng.Intn(5) * 8
		r = withPrefix(r, FieldDstIP, rng.Uint32(), dstLen)

		switch rng.Intn(3) {
		case 0:
			port := uint32(rng.Intn(65536))
			r = withPortRange(r, FieldDstPort, port, port)
		case 1:
			r = withPortRange(r, FieldDstPort, 0, 1023)
		}
		if rng.Intn(2) == 0 {
			r = withPrefix(r, FieldProto, uint32(rng.Intn(256)), 8)
		}
		rules = append(rules, r)
	}
	return rules
}

// randomPackets draws packets biased toward the rule set so that a good
// share of them actually match something.
func randomPackets(rng *rand.Rand, rules []Rule, n int) []Packet {
	packets := make([]Packet, 0, n)
	for i := 0; i < n; i++ {
		var p Packet
		if len(rules) > 0 && rng.Intn(4) != 0 {
			r := rules[rng.Intn(len(rules))]
			for f := 0; f < NumFields; f++ {
				span := uint64(r.Range[f].High) - uint64(r.Range[f].Low)
				p[f] = r.Range[f].Low + uint32(rng.Int63n(int64(span+1)))
			}
		} else {
			p[FieldSrcIP] = rng.Uint32()
			p[FieldDstIP] = rng.Uint32()
			p[FieldSrcPort] = uint32(rng.Intn(65536))
			p[FieldDstPort] = uint32(rng.Intn(65536))
			p[FieldProto] = uint32(rng.Intn(256))
		}
		packets = append(packets, p)
	}
	return packets
}
