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
package library

import (
	"time"

	"github.com/alphadose/haxmap"
)

type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache is a concurrent key-value cache whose entries expire ttl after they
// were put. A non-positive ttl disables caching.
type Cache[V any] struct {
	ttl     time.Duration
	entries *haxmap.Map[string, cacheEntry[V]]
	now     func() time.Time
}

func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		entries: haxmap.New[string, cacheEntry[V]](),
		now:     time.Now,
	}
}

// Get returns the value stored under key if it has not expired
func (cache *Cache[V]) Get(key string) (V, bool) {
	var zero V

	entry, ok := cache.entries.Get(key)
	if !ok || cache.expired(entry) {
		return zero, false
	}

	return entry.value, true
}

func (cache *Cache[V]) Put(key string, value V) {
	if cache.ttl <= 0 {
		return
	}

	cache.entries.Set(key, cacheEntry[V]{
		value:      value,
		insertedAt: cache.now(),
	})
}

// Expired reports whether key is missing or older than the ttl
func (cache *Cache[V]) Expired(key string) bool {
	entry, ok := cache.entries.Get(key)
	return !ok || cache.expired(entry)
}

func (cache *Cache[V]) Delete(key string) {
	cache.entries.Del(key)
}

// Purge drops every expired entry and returns how many were removed
func (cache *Cache[V]) Purge() int {
	stale := make([]string, 0)
	cache.entries.ForEach(func(key string, entry cacheEntry[V]) bool {
		if cache.expired(entry) {
			stale = append(stale, key)
		}
		return true
	})

	if len(stale) > 0 {
		cache.entries.Del(stale...)
	}

	return len(stale)
}

func (cache *Cache[V]) Len() int {
	return int(cache.entries.Len())
}

func (cache *Cache[V]) expired(entry cacheEntry[V]) bool {
	return cache.ttl <= 0 || cache.now().Sub(entry.insertedAt) >= cache.ttl
}
