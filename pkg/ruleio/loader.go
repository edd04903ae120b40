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
	"math/bits"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/netobserv/tuple-classifier/pkg/classify"
)

var log = logrus.WithField("component", "ruleio")

// LoadRules parses a classbench-style rule file:
//
//	@S1.S2.S3.S4/Sm  D1.D2.D3.D4/Dm  sp1 : sp2  dp1 : dp2  PROTO/PMASK  HT/HTMASK
//
// Rule ids are assigned in file order; priorities run N-1 down to 0 so the
// first rule of the file wins ties. The trailing header-type pair is parsed
// but carries no meaning here.
func LoadRules(r io.Reader) ([]classify.Rule, error) {
	var rules []classify.Rule

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rule, err := parseRuleLine(line)
		if err != nil {
			return nil, fmt.Errorf("rule file line %d: %w", lineNo, err)
		}
		rule.ID = len(rules)
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	maxPri := len(rules) - 1
	for i := range rules {
		rules[i].Priority = maxPri - i
	}
	log.Debugf("loaded %d rules", len(rules))
	return rules, nil
}

func parseRuleLine(line string) (classify.Rule, error) {
	var rule classify.Rule

	fields := strings.Fields(line)
	if len(fields) != 10 {
		return rule, fmt.Errorf("expected 10 tokens, got %d", len(fields))
	}
	if fields[3] != ":" || fields[6] != ":" {
		return rule, fmt.Errorf("malformed port range")
	}

	srcRange, srcLen, err := parsePrefix(strings.TrimPrefix(fields[0], "@"))
	if err != nil {
		return rule, fmt.Errorf("source prefix: %w", err)
	}
	rule.Range[classify.FieldSrcIP] = srcRange
	rule.PrefixLen[classify.FieldSrcIP] = srcLen

	dstRange, dstLen, err := parsePrefix(fields[1])
	if err != nil {
		return rule, fmt.Errorf("destination prefix: %w", err)
	}
	rule.Range[classify.FieldDstIP] = dstRange
	rule.PrefixLen[classify.FieldDstIP] = dstLen

	for i, f := range []int{classify.FieldSrcPort, classify.FieldDstPort} {
		lo, err := parsePort(fields[2+3*i])
		if err != nil {
			return rule, err
		}
		hi, err := parsePort(fields[4+3*i])
		if err != nil {
			return rule, err
		}
		rule.Range[f] = classify.FieldRange{Low: lo, High: hi}
		rule.PrefixLen[f] = bits.LeadingZeros16(uint16(lo) ^ uint16(hi))
	}

	protoRange, protoLen, err := parseProtocol(fields[8])
	if err != nil {
		return rule, err
	}
	rule.Range[classify.FieldProto] = protoRange
	rule.PrefixLen[classify.FieldProto] = protoLen

	// fields[9] is the header-type pair, validated for shape only.
	if !strings.Contains(fields[9], "/") {
		return rule, fmt.Errorf("malformed header-type field %q", fields[9])
	}

	return rule, nil
}

// parsePrefix expands "a.b.c.d/m" into an inclusive 32-bit range plus the
// prefix length. Octets beyond the prefixed ones are ignored, matching the
// historical loader.
func parsePrefix(s string) (classify.FieldRange, int, error) {
	var a, b, c, d, mask uint32
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d/%d", &a, &b, &c, &d, &mask); err != nil {
		return classify.FieldRange{}, 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	if mask > 32 {
		return classify.FieldRange{}, 0, fmt.Errorf("prefix length %d exceeds 32", mask)
	}
	if a > 255 || b > 255 || c > 255 || d > 255 {
		return classify.FieldRange{}, 0, fmt.Errorf("octet out of range in %q", s)
	}
	if mask == 0 {
		return classify.FieldRange{Low: 0, High: 0xFFFFFFFF}, 0, nil
	}

	octets := [4]uint32{a, b, c, d}
	keep := (int(mask) + 7) / 8
	var low uint32
	for i := 0; i < keep; i++ {
		low |= octets[i] << (24 - 8*i)
	}
	high := low + uint32(uint64(1)<<(32-mask)-1)
	return classify.FieldRange{Low: low, High: high}, int(mask), nil
}

func parsePort(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing port %q: %w", s, err)
	}
	if v > 65535 {
		return 0, fmt.Errorf("port %d out of range", v)
	}
	return uint32(v), nil
}

// parseProtocol accepts "VALUE/MASK" in hex. A mask of 0xFF pins the
// protocol, 0x00 makes it wildcard; anything else is an input error.
func parseProtocol(s string) (classify.FieldRange, int, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return classify.FieldRange{}, 0, fmt.Errorf("malformed protocol field %q", s)
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
	if err != nil {
		return classify.FieldRange{}, 0, fmt.Errorf("parsing protocol value %q: %w", parts[0], err)
	}
	mask, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 32)
	if err != nil {
		return classify.FieldRange{}, 0, fmt.Errorf("parsing protocol mask %q: %w", parts[1], err)
	}

	switch mask {
	case 0xFF:
		return classify.FieldRange{Low: uint32(value), High: uint32(value)}, 8, nil
	case 0x00:
		return classify.FieldRange{Low: 0, High: 0xFF}, 0, nil
	default:
		return classify.FieldRange{}, 0, fmt.Errorf("protocol mask 0x%02X is neither 0x00 nor 0xFF", mask)
	}
}
