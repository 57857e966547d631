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
package data

import (
	"sort"
	"strings"
)

type IdentityKind string

const (
	IdentityCode    IdentityKind = "code"
	IdentityLabelTr IdentityKind = "labelTr"
	IdentityLabelEn IdentityKind = "labelEn"
)

// DefaultIdentityOrder is the fallback order used to pick an item identity:
// the upstream item code, then the Turkish label, then the English label.
var DefaultIdentityOrder = []IdentityKind{IdentityCode, IdentityLabelTr, IdentityLabelEn}

// ItemIdentity is the stable key of a line item within one snapshot
type ItemIdentity struct {
	Kind  IdentityKind
	Value string
}

func (identity ItemIdentity) IsZero() bool {
	return identity.Value == ""
}

func (identity ItemIdentity) String() string {
	return identity.Value
}

// RawRow is one statement row as returned by the upstream API. Values holds
// one entry per requested period, in request order; nil means no value.
type RawRow struct {
	Code    string
	LabelTr string
	LabelEn string
	Values  []*float64
}

func (row RawRow) field(kind IdentityKind) string {
	switch kind {
	case IdentityCode:
		return strings.TrimSpace(row.Code)
	case IdentityLabelTr:
		return strings.TrimSpace(row.LabelTr)
	case IdentityLabelEn:
		return strings.TrimSpace(row.LabelEn)
	}
	return ""
}

// ResolveIdentity returns the first non-empty field of row following order.
// A zero ItemIdentity is returned when every field is empty.
func ResolveIdentity(row RawRow, order []IdentityKind) ItemIdentity {
	for _, kind := range order {
		if val := row.field(kind); val != "" {
			return ItemIdentity{Kind: kind, Value: val}
		}
	}
	return ItemIdentity{}
}

// LineItem is one financial-statement row of a snapshot
type LineItem struct {
	Code    string                 `json:"code,omitempty"`
	LabelTr string                 `json:"labelTr,omitempty"`
	LabelEn string                 `json:"labelEn,omitempty"`
	Values  map[PeriodKey]*float64 `json:"values"`
}

func (item *LineItem) Clone() *LineItem {
	clone := &LineItem{
		Code:    item.Code,
		LabelTr: item.LabelTr,
		LabelEn: item.LabelEn,
		Values:  make(map[PeriodKey]*float64, len(item.Values)),
	}
	for key, val := range item.Values {
		clone.Values[key] = copyValue(val)
	}
	return clone
}

// itemIndex finds the existing item an incoming row belongs to. Codes are
// authoritative; labels only match items that were keyed without a code
// unless the row itself has no code.
type itemIndex struct {
	byKey      map[string]struct{}
	byCode     map[string]string
	byLabel    map[IdentityKind]map[string]string
	byLabelAny map[IdentityKind]map[string]string
}

func newItemIndex(items map[string]*LineItem) *itemIndex {
	idx := &itemIndex{
		byKey:      make(map[string]struct{}, len(items)),
		byCode:     make(map[string]string, len(items)),
		byLabel:    map[IdentityKind]map[string]string{IdentityLabelTr: {}, IdentityLabelEn: {}},
		byLabelAny: map[IdentityKind]map[string]string{IdentityLabelTr: {}, IdentityLabelEn: {}},
	}

	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		idx.add(key, items[key])
	}

	return idx
}

func (idx *itemIndex) add(key string, item *LineItem) {
	idx.byKey[key] = struct{}{}

	if code := strings.TrimSpace(item.Code); code != "" {
		if _, ok := idx.byCode[code]; !ok {
			idx.byCode[code] = key
		}
	}

	labels := map[IdentityKind]string{
		IdentityLabelTr: strings.TrimSpace(item.LabelTr),
		IdentityLabelEn: strings.TrimSpace(item.LabelEn),
	}
	for kind, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := idx.byLabelAny[kind][label]; !ok {
			idx.byLabelAny[kind][label] = key
		}
		if strings.TrimSpace(item.Code) == "" {
			if _, ok := idx.byLabel[kind][label]; !ok {
				idx.byLabel[kind][label] = key
			}
		}
	}
}

func (idx *itemIndex) lookup(row RawRow, order []IdentityKind) (string, bool) {
	code := row.field(IdentityCode)
	if code != "" {
		if key, ok := idx.byCode[code]; ok {
			return key, true
		}
	}

	for _, kind := range order {
		if kind == IdentityCode {
			continue
		}

		label := row.field(kind)
		if label == "" {
			continue
		}

		labels := idx.byLabel[kind]
		if code == "" {
			labels = idx.byLabelAny[kind]
		}

		if key, ok := labels[label]; ok {
			return key, true
		}
	}

	return "", false
}

// MergeRows folds rows fetched for quad into items and returns the updated
// mapping. Row position i is written to quad[i], overwriting any earlier
// value for that period; periods outside quad are left untouched. The
// identity of an existing item and its labels are never changed.
func MergeRows(items map[string]*LineItem, rows []RawRow, quad []Period, order []IdentityKind) map[string]*LineItem {
	if items == nil {
		items = make(map[string]*LineItem)
	}

	if len(order) == 0 {
		order = DefaultIdentityOrder
	}

	keys := PeriodKeys(quad)
	idx := newItemIndex(items)

	for _, row := range rows {
		key, ok := idx.lookup(row, order)
		if !ok {
			identity := ResolveIdentity(row, order)
			if identity.IsZero() {
				continue
			}
			key = identity.Value
		}

		item, exists := items[key]
		if !exists {
			item = &LineItem{
				Code:    strings.TrimSpace(row.Code),
				LabelTr: strings.TrimSpace(row.LabelTr),
				LabelEn: strings.TrimSpace(row.LabelEn),
				Values:  make(map[PeriodKey]*float64, len(keys)),
			}
			items[key] = item
		} else {
			fillEmptyLabels(item, row)
		}

		if item.Values == nil {
			item.Values = make(map[PeriodKey]*float64, len(keys))
		}

		for pos, periodKey := range keys {
			var val *float64
			if pos < len(row.Values) {
				val = copyValue(row.Values[pos])
			}
			item.Values[periodKey] = val
		}

		idx.add(key, item)
	}

	return items
}

func fillEmptyLabels(item *LineItem, row RawRow) {
	if item.Code == "" {
		item.Code = row.field(IdentityCode)
	}
	if item.LabelTr == "" {
		item.LabelTr = row.field(IdentityLabelTr)
	}
	if item.LabelEn == "" {
		item.LabelEn = row.field(IdentityLabelEn)
	}
}

func copyValue(val *float64) *float64 {
	if val == nil {
		return nil
	}
	cp := *val
	return &cp
}
