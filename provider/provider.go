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

import "sort"

// Provider describes an upstream source for the `providers` command
type Provider interface {
	Name() string
	Description() string

	// ConfigDescription maps each configuration key the provider reads to a
	// short explanation
	ConfigDescription() map[string]string
}

var Map = map[string]Provider{
	"isyatirim": &IsYatirim{},
	"kap":       &KAP{},
}

// Lookup returns the provider registered under name
func Lookup(name string) (Provider, error) {
	if prov, ok := Map[name]; ok {
		return prov, nil
	}
	return nil, ErrProviderNotFound
}

// Names returns the registered provider names in sorted order
func Names() []string {
	names := make([]string, 0, len(Map))
	for name := range Map {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
