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
package healthcheck_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/healthcheck"
)

type recorded struct {
	Method string
	Path   string
	APIKey string
	Body   string
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		requests []recorded
		status   int
		client   *healthcheck.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		status = http.StatusOK

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			requests = append(requests, recorded{
				Method: r.Method,
				Path:   r.URL.Path,
				APIKey: r.Header.Get("X-Api-Key"),
				Body:   string(body),
			})

			if r.URL.Path == "/api/v3/checks/" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"ping_url": "https://hc-ping.com/5f3a7c2e-0000-4000-8000-000000000001"}`))
				return
			}

			w.WriteHeader(status)
		}))

		client = healthcheck.New("secret", server.URL+"/")
		client.APIURL = server.URL + "/api/v3"
	})

	AfterEach(func() {
		server.Close()
	})

	It("pings success", func() {
		Expect(client.Ping(ctx, "abc", false, "")).To(Succeed())
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Method).To(Equal(http.MethodPost))
		Expect(requests[0].Path).To(Equal("/abc"))
	})

	It("pings failure with the message as body", func() {
		Expect(client.Ping(ctx, "abc", true, "2 tickers failed")).To(Succeed())
		Expect(requests[0].Path).To(Equal("/abc/fail"))
		Expect(requests[0].Body).To(Equal("2 tickers failed"))
	})

	It("signals the start of a run", func() {
		Expect(client.Start(ctx, "abc")).To(Succeed())
		Expect(requests[0].Path).To(Equal("/abc/start"))
	})

	It("requires a check id", func() {
		Expect(client.Ping(ctx, "", false, "")).To(MatchError(healthcheck.ErrNoCheck))
		Expect(requests).To(BeEmpty())
	})

	It("reports rejected pings", func() {
		status = http.StatusNotFound
		Expect(client.Ping(ctx, "abc", false, "")).To(MatchError(healthcheck.ErrStatus))
	})

	It("creates checks and returns the id", func() {
		id, err := client.Create(ctx, "bistdata reconcile", "bistdata-reconcile", []string{"bistdata", "reconcile"}, "0 20 * * 1-5")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("5f3a7c2e-0000-4000-8000-000000000001"))

		Expect(requests[0].APIKey).To(Equal("secret"))

		var body map[string]any
		Expect(json.Unmarshal([]byte(requests[0].Body), &body)).To(Succeed())
		Expect(body["tz"]).To(Equal("Europe/Istanbul"))
		Expect(body["slug"]).To(Equal("bistdata-reconcile"))
		Expect(body["tags"]).To(Equal("bistdata reconcile"))
	})
})
