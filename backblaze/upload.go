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
package backblaze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/kothar/go-backblaze"
	"github.com/rs/zerolog"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
)

type Credentials struct {
	ApplicationID  string
	ApplicationKey string
}

// Mirror uploads artifacts to a Backblaze B2 bucket under Prefix
type Mirror struct {
	BucketName string
	Prefix     string

	bucket *backblaze.Bucket
}

func NewMirror(ctx context.Context, creds Credentials, bucketName, prefix string) (*Mirror, error) {
	logger := zerolog.Ctx(ctx)

	b2, err := backblaze.NewB2(backblaze.Credentials{
		KeyID:          creds.ApplicationID,
		ApplicationKey: creds.ApplicationKey,
	})
	if err != nil {
		logger.Error().Err(err).Str("BucketName", bucketName).Msg("authorize backblaze failed")
		return nil, err
	}

	bucket, err := b2.Bucket(bucketName)
	if err != nil {
		logger.Error().Err(err).Str("BucketName", bucketName).Msg("lookup bucket failed")
		return nil, err
	}
	if bucket == nil {
		logger.Error().Str("BucketName", bucketName).Msg("bucket does not exist")
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucketName)
	}

	return &Mirror{
		BucketName: bucketName,
		Prefix:     prefix,
		bucket:     bucket,
	}, nil
}

func (mirror *Mirror) objectName(key string) string {
	if mirror.Prefix == "" {
		return key
	}
	return path.Join(mirror.Prefix, key)
}

// WriteBytes uploads data as key. B2 serves the b2-cache-control file info as
// the Cache-Control header.
func (mirror *Mirror) WriteBytes(ctx context.Context, key string, data []byte, contentType, cacheControl string) error {
	metadata := make(map[string]string)
	if cacheControl != "" {
		metadata["b2-cache-control"] = cacheControl
	}

	outName := mirror.objectName(key)
	file, err := mirror.bucket.UploadTypedFile(outName, contentType, metadata, bytes.NewReader(data))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("FileName", outName).Str("BucketName", mirror.BucketName).Msg("save file to backblaze failed")
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("FileName", file.Name).Int64("Size", file.ContentLength).Str("ID", file.ID).Msg("uploaded file to backblaze")
	return nil
}

// UploadFile copies a local file into dirname of the bucket
func (mirror *Mirror) UploadFile(ctx context.Context, fn, dirname string) error {
	reader, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer reader.Close()

	outName := mirror.objectName(path.Join(dirname, filepath.Base(fn)))
	metadata := make(map[string]string)

	file, err := mirror.bucket.UploadFile(outName, metadata, reader)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("FileName", outName).Str("BucketName", mirror.BucketName).Msg("save file to backblaze failed")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("FileName", file.Name).Int64("Size", file.ContentLength).Str("ID", file.ID).Msg("uploaded file to backblaze")
	return nil
}
