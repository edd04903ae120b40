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

import "sort"

// Field indices of the 5-tuple, in rule-file order.
const (
	FieldSrcIP = iota
	FieldDstIP
	FieldSrcPort
	FieldDstPort
	FieldProto
	NumFields
)

// fieldWidth is the number of significant bits per field.
var fieldWidth = [NumFields]int{32, 32, 16, 16, 8}

// Packet is one 5-tuple header: srcIP, dstIP, srcPort, dstPort, protocol.
// Ports and protocol occupy the low bits of their entry.
type Packet [NumFields]uint32

// FieldRange is an inclusive [Low, High] interval over one header field.
type FieldRange struct {
	Low  uint32
	High uint32
}

// Rule is one classifier entry. Priority is higher-wins; PrefixLen counts
// the most-significant non-wildcard bits of each field, 0 meaning the field
// is fully wildcard.
type Rule struct {
	ID        int
	Priority  int
	Range     [NumFields]FieldRange
	PrefixLen [NumFields]int
}

// MatchesPacket reports whether every field of p lies inside the rule's
// interval for that field.
func (r *Rule) MatchesPacket(p Packet) bool {
	for i := 0; i < NumFields; i++ {
		if p[i] < r.Range[i].Low || p[i] > r.Range[i].High {
			return false
		}
	}
	return true
}

// Getbit returns the rule's value at the given bit position of a field:
// 0 or 1 inside the prefix, -1 where the rule is wildcard. Bits are counted
// MSB-first within the field width.
func (r *Rule) Getbit(field, bit int) int {
	if bit >= r.PrefixLen[field] {
		return -1
	}
	return int(r.Range[field].Low >> (fieldWidth[field] - 1 - bit) & 1)
}

// sortRulesByPriority orders rules highest priority first. Stable so that
// equal priorities keep their input order.
func sortRulesByPriority(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
