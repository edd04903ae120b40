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
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/netobserv/tuple-classifier/pkg/classify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadRulesJSON reads a rule set previously written by SaveRulesJSON.
// Unlike the text loader, ids and priorities come from the document.
func LoadRulesJSON(r io.Reader) ([]classify.Rule, error) {
	var rules []classify.Rule
	if err := json.NewDecoder(r).Decode(&rules); err != nil {
		return nil, fmt.Errorf("decoding rule set: %w", err)
	}
	return rules, nil
}

// SaveRulesJSON writes the rule set as a JSON document, preserving ids and
// priorities so a reload reproduces the same classifier input.
func SaveRulesJSON(w io.Writer, rules []classify.Rule) error {
	if err := json.NewEncoder(w).Encode(rules); err != nil {
		return fmt.Errorf("encoding rule set: %w", err)
	}
	return nil
}
