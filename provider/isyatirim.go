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
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/pkginfo"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultIsYatirimURL = "https://www.isyatirim.com.tr/_layouts/15/IsYatirim.Website/Common/Data.aspx/MaliTablo"

	// MaxPeriodsPerRequest is the most periods the statement endpoint
	// returns in one call
	MaxPeriodsPerRequest = 4
)

// IsYatirim fetches financial statements from the Is Yatirim statement
// endpoint. It issues exactly one request per call and never retries or
// sleeps; callers must pace successive calls for the same ticker.
type IsYatirim struct {
	BaseURL string

	client *resty.Client
}

func NewIsYatirim(baseURL string, timeout time.Duration) *IsYatirim {
	if baseURL == "" {
		baseURL = DefaultIsYatirimURL
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", pkginfo.UserAgent())

	return &IsYatirim{
		BaseURL: baseURL,
		client:  client,
	}
}

func (isy *IsYatirim) Name() string {
	return "isyatirim"
}

func (isy *IsYatirim) Description() string {
	return `Is Yatirim publishes quarterly financial statements (balance sheet, income statement and
cash flow) for every company listed on Borsa Istanbul. Each request returns up to four reporting
periods; bistdata walks the full history in windows of four and keeps one JSON snapshot per ticker.`
}

func (isy *IsYatirim) ConfigDescription() map[string]string {
	return map[string]string{
		"isyatirim.base_url":        "Statement endpoint URL",
		"isyatirim.financial_group": "Consolidation basis, XI_29 for industrials and UFRS for banks",
		"isyatirim.currency":        "Reporting currency (TRY or USD)",
		"isyatirim.groups":          "Per-ticker financial group overrides",
		"isyatirim.timeout":         "HTTP timeout per request",
		"isyatirim.cooldown":        "Delay between two requests for the same ticker",
	}
}

// FetchQuad requests the statement rows of ticker for 1 to 4 periods. Each
// returned row has exactly one value per requested period, in request order.
func (isy *IsYatirim) FetchQuad(ctx context.Context, ticker, financialGroup, currency string, periods []data.Period) ([]data.RawRow, error) {
	logger := zerolog.Ctx(ctx)

	if len(periods) == 0 || len(periods) > MaxPeriodsPerRequest {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRequest, len(periods))
	}

	if isy.client == nil {
		isy.client = resty.New()
	}

	req := isy.client.R().
		SetContext(ctx).
		SetQueryParam("companyCode", ticker).
		SetQueryParam("exchange", currency).
		SetQueryParam("financialGroup", financialGroup)

	for idx, period := range periods {
		req.SetQueryParam(fmt.Sprintf("year%d", idx+1), strconv.Itoa(period.Year))
		req.SetQueryParam(fmt.Sprintf("period%d", idx+1), strconv.Itoa(period.Quarter))
	}

	resp, err := req.Get(isy.BaseURL)
	if err != nil {
		logger.Error().Err(err).Str("Ticker", ticker).Msg("resty returned an error when querying financial statements")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamTransport, err)
	}

	if resp.StatusCode() >= 300 {
		url := requestURL(resp)
		logger.Error().Int("StatusCode", resp.StatusCode()).Str("Ticker", ticker).Str("URL", url).Msg("is yatirim returned an invalid HTTP response")
		return nil, &UpstreamHTTPError{StatusCode: resp.StatusCode(), URL: url}
	}

	rows, err := parseStatementRows(resp.Body(), len(periods))
	if err != nil {
		logger.Error().Err(err).Str("Ticker", ticker).Str("URL", requestURL(resp)).Msg("could not parse statement response")
		return nil, err
	}

	logger.Debug().Str("Ticker", ticker).Str("First", periods[0].String()).Str("Last", periods[len(periods)-1].String()).
		Int("NumRows", len(rows)).Msg("fetched statement window")

	return rows, nil
}

func requestURL(resp *resty.Response) string {
	if resp.Request == nil {
		return ""
	}
	if resp.Request.RawRequest != nil && resp.Request.RawRequest.URL != nil {
		return resp.Request.RawRequest.URL.String()
	}
	return resp.Request.URL
}

// parseStatementRows reads the `value` array of the response envelope
func parseStatementRows(body []byte, numPeriods int) ([]data.RawRow, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}

	envelope := gjson.ParseBytes(body)

	if ok := envelope.Get("ok"); ok.Exists() && ok.Type == gjson.False {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, envelope.Get("errorDescription").String())
	}

	value := envelope.Get("value")
	if !value.Exists() || !value.IsArray() {
		return nil, fmt.Errorf("%w: missing value array", ErrMalformedResponse)
	}

	rows := make([]data.RawRow, 0, len(value.Array()))
	value.ForEach(func(_, row gjson.Result) bool {
		raw := data.RawRow{
			Code:    strings.TrimSpace(row.Get("itemCode").String()),
			LabelTr: strings.TrimSpace(row.Get("itemDescTr").String()),
			LabelEn: strings.TrimSpace(row.Get("itemDescEng").String()),
			Values:  make([]*float64, numPeriods),
		}

		for idx := 0; idx < numPeriods; idx++ {
			raw.Values[idx] = normalizeValue(row.Get(fmt.Sprintf("value%d", idx+1)))
		}

		rows = append(rows, raw)
		return true
	})

	return rows, nil
}

// normalizeValue maps a raw JSON value to a number or nil. Null, empty and
// non-numeric values are nil, never zero.
func normalizeValue(res gjson.Result) *float64 {
	var val float64

	switch res.Type {
	case gjson.Number:
		val = res.Num
	case gjson.String:
		str := strings.TrimSpace(res.Str)
		if str == "" {
			return nil
		}

		parsed, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil
		}
		val = parsed
	default:
		return nil
	}

	if math.IsNaN(val) || math.IsInf(val, 0) {
		return nil
	}

	return &val
}
