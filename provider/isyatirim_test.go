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
package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/provider"
)

const statementBody = `{
  "ok": true,
  "errorCode": null,
  "value": [
    {"itemCode": "1A", "itemDescTr": "Dönen Varlıklar", "itemDescEng": "Current Assets",
     "value1": 1500.5, "value2": null, "value3": "2750", "value4": ""},
    {"itemCode": "", "itemDescTr": "Dipnot", "itemDescEng": "",
     "value1": "n/a", "value2": 0, "value3": null, "value4": -12}
  ]
}`

var _ = Describe("IsYatirim", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		query   url.Values
		status  int
		body    string
		periods []data.Period
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusOK
		body = statementBody
		periods = []data.Period{{Year: 2023, Quarter: 9}, {Year: 2023, Quarter: 12}, {Year: 2024, Quarter: 3}, {Year: 2024, Quarter: 6}}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	fetch := func() ([]data.RawRow, error) {
		isy := provider.NewIsYatirim(server.URL, 5*time.Second)
		return isy.FetchQuad(ctx, "THYAO", "XI_29", "TRY", periods)
	}

	It("sends one year/period pair per requested period", func() {
		_, err := fetch()
		Expect(err).NotTo(HaveOccurred())

		Expect(query.Get("companyCode")).To(Equal("THYAO"))
		Expect(query.Get("exchange")).To(Equal("TRY"))
		Expect(query.Get("financialGroup")).To(Equal("XI_29"))
		Expect(query.Get("year1")).To(Equal("2023"))
		Expect(query.Get("period1")).To(Equal("9"))
		Expect(query.Get("year4")).To(Equal("2024"))
		Expect(query.Get("period4")).To(Equal("6"))
	})

	It("returns one positional value per period with nulls preserved", func() {
		rows, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))

		Expect(rows[0].Code).To(Equal("1A"))
		Expect(rows[0].LabelTr).To(Equal("Dönen Varlıklar"))
		Expect(rows[0].LabelEn).To(Equal("Current Assets"))
		Expect(rows[0].Values).To(HaveLen(4))
		Expect(*rows[0].Values[0]).To(Equal(1500.5))
		Expect(rows[0].Values[1]).To(BeNil())
		Expect(*rows[0].Values[2]).To(Equal(2750.0))
		Expect(rows[0].Values[3]).To(BeNil())

		Expect(rows[1].Values[0]).To(BeNil())
		Expect(*rows[1].Values[1]).To(Equal(0.0))
		Expect(*rows[1].Values[3]).To(Equal(-12.0))
	})

	It("only reads as many values as periods were requested", func() {
		periods = periods[:2]
		rows, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[0].Values).To(HaveLen(2))
		Expect(query.Has("year3")).To(BeFalse())
	})

	It("reports unsuccessful statuses with the status code and URL", func() {
		status = http.StatusServiceUnavailable
		body = "busy"

		_, err := fetch()
		Expect(err).To(MatchError(provider.ErrUpstreamHTTP))

		var httpErr *provider.UpstreamHTTPError
		Expect(errors.As(err, &httpErr)).To(BeTrue())
		Expect(httpErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(httpErr.URL).To(ContainSubstring("companyCode=THYAO"))
	})

	It("wraps connection failures so callers can classify them", func() {
		closed := httptest.NewServer(http.NotFoundHandler())
		closedURL := closed.URL
		closed.Close()

		isy := provider.NewIsYatirim(closedURL, time.Second)
		_, err := isy.FetchQuad(ctx, "THYAO", "XI_29", "TRY", periods)
		Expect(err).To(MatchError(provider.ErrUpstreamTransport))
		Expect(errors.Is(err, provider.ErrUpstreamHTTP)).To(BeFalse())
	})

	It("wraps timeouts so callers can classify them", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(statementBody))
		}))
		defer slow.Close()

		isy := provider.NewIsYatirim(slow.URL, 20*time.Millisecond)
		_, err := isy.FetchQuad(ctx, "THYAO", "XI_29", "TRY", periods)
		Expect(err).To(MatchError(provider.ErrUpstreamTransport))
	})

	DescribeTable("rejects malformed bodies",
		func(response string) {
			body = response
			_, err := fetch()
			Expect(err).To(MatchError(provider.ErrMalformedResponse))
		},
		Entry("not json", "<html>maintenance</html>"),
		Entry("missing value array", `{"ok": true}`),
		Entry("value is not an array", `{"ok": true, "value": "x"}`),
		Entry("upstream reported an error", `{"ok": false, "errorDescription": "unknown company", "value": []}`),
	)

	It("treats an empty value array as no rows", func() {
		body = `{"ok": true, "value": []}`
		rows, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())
	})

	DescribeTable("rejects requests outside 1 to 4 periods",
		func(count int) {
			periods = data.PeriodsBetween(data.Period{Year: 2020, Quarter: 3}, data.Period{Year: 2022, Quarter: 12})[:count]
			_, err := fetch()
			Expect(err).To(MatchError(provider.ErrInvalidRequest))
		},
		Entry("none", 0),
		Entry("five", 5),
	)
})

var _ = Describe("Lookup", func() {
	It("finds registered providers", func() {
		prov, err := provider.Lookup("isyatirim")
		Expect(err).NotTo(HaveOccurred())
		Expect(prov.Name()).To(Equal("isyatirim"))
		Expect(provider.Names()).To(Equal([]string{"isyatirim", "kap"}))
	})

	It("rejects unknown providers", func() {
		_, err := provider.Lookup("tiingo")
		Expect(err).To(MatchError(provider.ErrProviderNotFound))
	})
})
