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
	"context"
	"errors"
	"fmt"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/rs/zerolog"
)

// UniverseStore persists the set of tracked tickers as a newline-delimited
// text file
type UniverseStore struct {
	Store        objstore.Store
	CacheControl string
}

func NewUniverseStore(store objstore.Store) *UniverseStore {
	return &UniverseStore{Store: store}
}

// Load returns the stored universe; a missing file is an empty universe
func (universes *UniverseStore) Load(ctx context.Context) (data.Universe, error) {
	text, err := universes.Store.ReadText(ctx, UniverseKey)
	if errors.Is(err, objstore.ErrNotFound) {
		zerolog.Ctx(ctx).Info().Str("Key", UniverseKey).Msg("no stored universe, starting from an empty one")
		return data.Universe{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactIO, err)
	}

	return data.ParseUniverse(text), nil
}

func (universes *UniverseStore) Save(ctx context.Context, universe data.Universe) error {
	universe = data.NewUniverse(universe...)

	if err := universes.Store.WriteBytes(ctx, UniverseKey, []byte(universe.Format()), "text/plain; charset=utf-8", universes.CacheControl); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("Key", UniverseKey).Msg("could not write universe")
		return fmt.Errorf("%w: %w", ErrUniverseWrite, err)
	}

	zerolog.Ctx(ctx).Info().Int("NumTickers", len(universe)).Msg("saved universe")

	return nil
}
