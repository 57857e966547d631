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
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIURL  = "https://healthchecks.io/api/v3"
	DefaultPingURL = "https://hc-ping.com"
)

var (
	ErrStatus  = errors.New("status code is invalid")
	ErrNoCheck = errors.New("no health check id configured")
)

type createReq struct {
	Name        string   `json:"name"`
	Description string   `json:"desc,omitempty"`
	Grace       int      `json:"grace"`
	Schedule    string   `json:"schedule"`
	Slug        string   `json:"slug"`
	Tags        string   `json:"tags"`
	Timezone    string   `json:"tz"`
	Unique      []string `json:"unique"`
}

type createResp struct {
	PingURL string `json:"ping_url"`
}

// Client talks to healthchecks.io. Pings need no API key; creating checks does.
type Client struct {
	APIURL  string
	PingURL string
	APIKey  string

	client *resty.Client
}

func New(apiKey, pingURL string) *Client {
	if pingURL == "" {
		pingURL = DefaultPingURL
	}

	return &Client{
		APIURL:  DefaultAPIURL,
		PingURL: strings.TrimRight(pingURL, "/"),
		APIKey:  apiKey,
		client:  resty.New().SetTimeout(10 * time.Second),
	}
}

// Create a new healthchecks.io check on a cron schedule in Istanbul time and
// return its id. An existing check with the same slug is returned instead of
// creating a duplicate.
func (hc *Client) Create(ctx context.Context, name string, slug string, tags []string, schedule string) (string, error) {
	command := createReq{
		Name:     name,
		Slug:     slug,
		Tags:     strings.Join(tags, " "),
		Grace:    3600,
		Schedule: schedule,
		Timezone: "Europe/Istanbul",
		Unique:   []string{"slug"},
	}

	result := createResp{}

	resp, err := hc.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", hc.APIKey).
		SetBody(command).
		SetResult(&result).
		Post(hc.APIURL + "/checks/")

	if err != nil {
		return "", err
	}

	if resp.StatusCode() > 201 {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	checkID := strings.Split(strings.TrimRight(result.PingURL, "/"), "/")
	healthCheckID := checkID[len(checkID)-1]

	return healthCheckID, nil
}

// Start signals that a run for checkID began
func (hc *Client) Start(ctx context.Context, checkID string) error {
	return hc.ping(ctx, checkID, "/start", "")
}

// Ping reports the end of a run. A failed run is sent to the /fail endpoint
// with body as the log excerpt.
func (hc *Client) Ping(ctx context.Context, checkID string, failed bool, body string) error {
	suffix := ""
	if failed {
		suffix = "/fail"
	}
	return hc.ping(ctx, checkID, suffix, body)
}

func (hc *Client) ping(ctx context.Context, checkID, suffix, body string) error {
	if checkID == "" {
		return ErrNoCheck
	}

	pingURL := fmt.Sprintf("%s/%s%s", hc.PingURL, checkID, suffix)

	resp, err := hc.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(pingURL)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("URL", pingURL).Msg("health check ping failed")
		return err
	}

	if resp.StatusCode() != 200 {
		zerolog.Ctx(ctx).Warn().Int("StatusCode", resp.StatusCode()).Str("URL", pingURL).Msg("health check ping rejected")
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}

	return nil
}
