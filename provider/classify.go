// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package provider

import (
	"strings"

	"github.com/penny-vault/bistdata/data"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type classifierRule struct {
	Type     data.DisclosureType
	Keywords []string
}

// classifierRules are checked in order; the first rule with a matching
// keyword wins. Responsibility statements mention financial statements in
// their title so they are checked first.
var classifierRules = []classifierRule{
	{data.ResponsibilityStatement, []string{"sorumluluk beyan", "statement of responsibility", "responsibility statement"}},
	{data.FinancialReport, []string{"finansal rapor", "finansal tablo", "financial report", "financial statement"}},
	{data.ActivityReport, []string{"faaliyet raporu", "activity report", "annual report"}},
	{data.Dividend, []string{"kar payı", "kâr payı", "temettü", "dividend"}},
	{data.GeneralAssembly, []string{"genel kurul", "general assembly"}},
	{data.MaterialEvent, []string{"özel durum", "material event"}},
}

// Classify assigns a disclosure type from the title of a filing
func Classify(title string) data.DisclosureType {
	title = strings.TrimSpace(title)
	if title == "" {
		return data.OtherDisclosure
	}

	// Turkish casing maps I to dotless ı, which breaks English keywords
	candidates := []string{
		cases.Lower(language.Turkish).String(title),
		strings.ToLower(title),
	}

	for _, rule := range classifierRules {
		for _, keyword := range rule.Keywords {
			for _, normalized := range candidates {
				if strings.Contains(normalized, keyword) {
					return rule.Type
				}
			}
		}
	}

	return data.OtherDisclosure
}

// ParseDisclosureTypes converts configured type names, ignoring unknown ones
func ParseDisclosureTypes(names []string) []data.DisclosureType {
	known := map[string]data.DisclosureType{}
	for _, rule := range classifierRules {
		known[strings.ToLower(string(rule.Type))] = rule.Type
	}
	known[strings.ToLower(string(data.OtherDisclosure))] = data.OtherDisclosure

	types := make([]data.DisclosureType, 0, len(names))
	for _, name := range names {
		if kind, ok := known[strings.ToLower(strings.TrimSpace(name))]; ok {
			types = append(types, kind)
		}
	}

	return types
}
