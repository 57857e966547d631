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
package objstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSyncIncomplete = errors.New("sync incomplete")
)

// SyncResult counts the outcome of a bulk sync
type SyncResult struct {
	Uploaded int
	Failed   int
	Bytes    int64
}

// Sync copies every object under prefix from src to dst. Individual upload
// failures are logged and counted; the returned error matches
// ErrSyncIncomplete when any object failed.
func Sync(ctx context.Context, src Store, dst Writer, prefix, cacheControl string, workers int) (SyncResult, error) {
	logger := zerolog.Ctx(ctx)

	objects, err := src.List(ctx, prefix)
	if err != nil {
		logger.Error().Err(err).Str("Prefix", prefix).Msg("could not list local artifacts")
		return SyncResult{}, err
	}

	if workers <= 0 {
		workers = 1
	}

	var (
		uploaded atomic.Int64
		failed   atomic.Int64
		size     atomic.Int64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, obj := range objects {
		obj := obj
		group.Go(func() error {
			contents, err := src.ReadText(groupCtx, obj.Key)
			if err != nil {
				logger.Error().Err(err).Str("Key", obj.Key).Msg("could not read artifact for sync")
				failed.Add(1)
				return nil
			}

			if err := dst.WriteBytes(groupCtx, obj.Key, []byte(contents), ContentType(obj.Key), cacheControl); err != nil {
				logger.Error().Err(err).Str("Key", obj.Key).Msg("could not upload artifact")
				failed.Add(1)
				return nil
			}

			uploaded.Add(1)
			size.Add(int64(len(contents)))
			return nil
		})
	}

	// workers never return an error
	_ = group.Wait()

	result := SyncResult{
		Uploaded: int(uploaded.Load()),
		Failed:   int(failed.Load()),
		Bytes:    size.Load(),
	}

	logger.Info().Str("Prefix", prefix).Int("NumUploaded", result.Uploaded).Int("NumFailed", result.Failed).Int64("Bytes", result.Bytes).Msg("sync finished")

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d of %d objects failed", ErrSyncIncomplete, result.Failed, len(objects))
	}

	return result, nil
}
