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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3 batch deletes accept at most this many keys per request
const maxDeleteBatch = 1000

var (
	ErrBucketRequired = errors.New("remote.s3.bucket is required")
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool

	// Prefix is prepended to every key, allowing several deployments to share a bucket
	Prefix string
}

// S3 stores artifacts in an S3 compatible bucket
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (store *S3) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}

	if store.prefix == "" {
		return cleaned, nil
	}

	return path.Join(store.prefix, cleaned), nil
}

func (store *S3) storeKey(objectKey string) string {
	if store.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, store.prefix+"/")
}

func (store *S3) Exists(ctx context.Context, key string) (bool, error) {
	objectKey, err := store.objectKey(key)
	if err != nil {
		return false, err
	}

	_, err = store.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (store *S3) ReadText(ctx context.Context, key string) (string, error) {
	objectKey, err := store.objectKey(key)
	if err != nil {
		return "", err
	}

	out, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", err
	}
	defer out.Body.Close()

	contents, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}

	return string(contents), nil
}

func (store *S3) WriteBytes(ctx context.Context, key string, data []byte, contentType, cacheControl string) error {
	objectKey, err := store.objectKey(key)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(store.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}

	if _, err := store.client.PutObject(ctx, input); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("Bucket", store.bucket).Str("Key", objectKey).Msg("s3 put object failed")
		return fmt.Errorf("upload %s: %w", key, err)
	}

	return nil
}

func (store *S3) List(ctx context.Context, prefix string) ([]Object, error) {
	fullPrefix := prefix
	if store.prefix != "" {
		fullPrefix = store.prefix + "/" + strings.TrimPrefix(prefix, "/")
	}

	objects := make([]Object, 0)
	paginator := s3.NewListObjectsV2Paginator(store.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(store.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			object := Object{
				Key:  store.storeKey(aws.ToString(obj.Key)),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				object.ModTime = *obj.LastModified
			}
			objects = append(objects, object)
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})

	return objects, nil
}

func (store *S3) Delete(ctx context.Context, key string, recursive bool) error {
	objectKey, err := store.objectKey(key)
	if err != nil {
		return err
	}

	if !recursive {
		_, err := store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(store.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil && !isNotFound(err) {
			return err
		}
		return nil
	}

	cleaned, _ := cleanKey(key)
	objects, err := store.List(ctx, cleaned+"/")
	if err != nil {
		return err
	}

	identifiers := []types.ObjectIdentifier{{Key: aws.String(objectKey)}}
	for _, obj := range objects {
		fullKey, err := store.objectKey(obj.Key)
		if err != nil {
			return err
		}
		identifiers = append(identifiers, types.ObjectIdentifier{Key: aws.String(fullKey)})
	}

	for start := 0; start < len(identifiers); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(identifiers))
		out, err := store.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(store.bucket),
			Delete: &types.Delete{
				Objects: identifiers[start:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return err
		}

		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %s: %d objects failed, first %s: %s", key, len(out.Errors),
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	zerolog.Ctx(ctx).Debug().Str("Key", key).Int("NumObjects", len(identifiers)).Msg("deleted remote objects")

	return nil
}

func isNotFound(err error) bool {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
	)
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
