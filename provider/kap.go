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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/gosimple/slug"
	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/penny-vault/bistdata/playwright_helpers"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultKAPSearchURL = "https://www.kap.org.tr/tr/bildirim-sorgu?srcbar=Y&cmp=Y&cat=4&slf=ALL&member=%s"
	DefaultKAPPDFURL    = "https://www.kap.org.tr/tr/api/BildirimPdf/%s"

	maxSlugLength = 60
)

var (
	ErrNotPDF          = errors.New("downloaded document is not a PDF")
	ErrListingNotFound = errors.New("disclosure listing not found")
)

var kapDateLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.06 15:04",
	"02.01.2006",
	"2006-01-02",
}

type KAPConfig struct {
	// SearchURL is a format string receiving the ticker
	SearchURL string

	// PDFURL is a format string receiving the disclosure id
	PDFURL string

	RowSelector   string
	TitleSelector string
	DateSelector  string
	LinkSelector  string

	// Types lists the disclosure types whose documents are downloaded; all
	// types are listed in the summary regardless
	Types []data.DisclosureType

	Cooldown time.Duration
	Timeout  time.Duration
}

// DisclosureLister returns the filings listed for a ticker
type DisclosureLister interface {
	ListDisclosures(ctx context.Context, ticker string) ([]*data.Disclosure, error)
}

// CrawlResult counts what one crawl did with the listed documents
type CrawlResult struct {
	Summary    *data.DisclosureSummary
	Downloaded int
	Skipped    int
	Failed     int
}

func (result *CrawlResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", result.Summary.Ticker)
	e.Int("NumDocuments", len(result.Summary.Documents))
	e.Int("NumDownloaded", result.Downloaded)
	e.Int("NumSkipped", result.Skipped)
	e.Int("NumFailed", result.Failed)
}

// KAP crawls the public disclosure platform. Listing is delegated to a
// DisclosureLister (a browser session in production); documents are fetched
// over plain HTTP and written below disclosures/{TICKER}/.
type KAP struct {
	Config KAPConfig
	Lister DisclosureLister
	Store  objstore.Store

	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewKAP(cfg KAPConfig, lister DisclosureLister, store objstore.Store) *KAP {
	if cfg.PDFURL == "" {
		cfg.PDFURL = DefaultKAPPDFURL
	}

	return &KAP{
		Config:  cfg,
		Lister:  lister,
		Store:   store,
		client:  resty.New().SetTimeout(cfg.Timeout),
		limiter: rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
		now:     time.Now,
	}
}

func (kap *KAP) Name() string {
	return "kap"
}

func (kap *KAP) Description() string {
	return `The Public Disclosure Platform (KAP) publishes every regulatory filing of Borsa Istanbul
companies. bistdata lists the filings of each ticker with a headless browser, classifies them by
title and downloads the PDFs of the selected types next to a summary document.`
}

func (kap *KAP) ConfigDescription() map[string]string {
	return map[string]string{
		"kap.search_url":      "Listing page URL, %s is replaced by the ticker",
		"kap.pdf_url":         "Document URL, %s is replaced by the disclosure id",
		"kap.row_selector":    "CSS selector of one listing row",
		"kap.title_selector":  "CSS selector of the title inside a row",
		"kap.date_selector":   "CSS selector of the publication date inside a row",
		"kap.link_selector":   "CSS selector of the detail link inside a row",
		"kap.types":           "Disclosure types to download",
		"kap.cooldown":        "Delay between two document downloads",
		"playwright.headless": "Run the browser without a window",
	}
}

// Crawl lists, classifies and downloads the disclosures of ticker and writes
// the summary document. Documents that already exist are not downloaded
// again; a failed download is logged and counted but does not stop the crawl.
func (kap *KAP) Crawl(ctx context.Context, ticker string) (*CrawlResult, error) {
	ticker = data.NormalizeTicker(ticker)
	logger := zerolog.Ctx(ctx).With().Str("Ticker", ticker).Logger()
	ctx = logger.WithContext(ctx)

	documents, err := kap.Lister.ListDisclosures(ctx, ticker)
	if err != nil {
		logger.Error().Err(err).Msg("could not list disclosures")
		return nil, err
	}

	wanted := make(map[data.DisclosureType]bool, len(kap.Config.Types))
	for _, kind := range kap.Config.Types {
		wanted[kind] = true
	}

	result := &CrawlResult{
		Summary: &data.DisclosureSummary{
			Ticker:    ticker,
			CrawledAt: kap.now().UTC(),
			Counts:    make(map[data.DisclosureType]int),
			Documents: documents,
		},
	}

	for _, doc := range documents {
		doc.Type = Classify(doc.Title)
		result.Summary.Counts[doc.Type]++

		if !wanted[doc.Type] {
			continue
		}

		key := DocumentKey(ticker, doc)

		exists, err := kap.Store.Exists(ctx, key)
		if err != nil {
			logger.Error().Err(err).Str("Key", key).Msg("could not check for existing document")
			result.Failed++
			continue
		}

		if exists {
			doc.Key = key
			result.Skipped++
			continue
		}

		contents, err := kap.download(ctx, doc)
		if err != nil {
			logger.Warn().Err(err).Str("DisclosureID", doc.ID).Str("Title", doc.Title).Msg("could not download document")
			result.Failed++
			continue
		}

		if err := kap.Store.WriteBytes(ctx, key, contents, "application/pdf", ""); err != nil {
			logger.Error().Err(err).Str("Key", key).Msg("could not save document")
			result.Failed++
			continue
		}

		doc.Key = key
		doc.SizeBytes = len(contents)
		result.Downloaded++
	}

	sort.SliceStable(documents, func(i, j int) bool {
		if !documents[i].PublishedAt.Equal(documents[j].PublishedAt) {
			return documents[i].PublishedAt.After(documents[j].PublishedAt)
		}
		return documents[i].ID < documents[j].ID
	})

	encoded, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		return result, err
	}

	if err := kap.Store.WriteBytes(ctx, library.DisclosureSummaryKey(ticker), encoded, "application/json", ""); err != nil {
		logger.Error().Err(err).Msg("could not save disclosure summary")
		return result, fmt.Errorf("%w: %w", library.ErrArtifactIO, err)
	}

	logger.Info().EmbedObject(result).Msg("crawled disclosures")

	return result, nil
}

func (kap *KAP) download(ctx context.Context, doc *data.Disclosure) ([]byte, error) {
	if err := kap.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	docURL := doc.URL
	if doc.ID != "" {
		docURL = fmt.Sprintf(kap.Config.PDFURL, doc.ID)
	}

	resp, err := kap.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/pdf").
		Get(docURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() >= 300 {
		return nil, &UpstreamHTTPError{StatusCode: resp.StatusCode(), URL: docURL}
	}

	body := resp.Body()
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, docURL)
	}

	return body, nil
}

// DocumentKey is the object key of a downloaded disclosure document
func DocumentKey(ticker string, doc *data.Disclosure) string {
	name := slug.MakeLang(doc.Title, "tr")
	if len(name) > maxSlugLength {
		name = strings.TrimRight(name[:maxSlugLength], "-")
	}

	date := "undated"
	if !doc.PublishedAt.IsZero() {
		date = doc.PublishedAt.Format("2006-01-02")
	}

	parts := []string{date}
	if doc.ID != "" {
		parts = append(parts, doc.ID)
	}
	if name != "" {
		parts = append(parts, name)
	}

	return path.Join(library.DisclosurePrefix(ticker), strings.Join(parts, "-")+".pdf")
}

// BrowserLister scrapes the disclosure listing page with a playwright session
type BrowserLister struct {
	Session *playwright_helpers.Session
	Config  KAPConfig
}

func (lister *BrowserLister) ListDisclosures(ctx context.Context, ticker string) ([]*data.Disclosure, error) {
	logger := zerolog.Ctx(ctx)
	page := lister.Session.Page

	searchURL := lister.Config.SearchURL
	if searchURL == "" {
		searchURL = DefaultKAPSearchURL
	}
	pageURL := fmt.Sprintf(searchURL, url.QueryEscape(ticker))

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		logger.Error().Err(err).Str("URL", pageURL).Msg("could not load disclosure listing")
		return nil, err
	}

	if _, err := page.WaitForSelector(lister.Config.RowSelector); err != nil {
		logger.Warn().Err(err).Str("URL", pageURL).Str("Selector", lister.Config.RowSelector).Msg("disclosure listing did not render")
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, pageURL)
	}

	rows, err := page.QuerySelectorAll(lister.Config.RowSelector)
	if err != nil {
		return nil, err
	}

	location := istanbul()
	documents := make([]*data.Disclosure, 0, len(rows))

	for _, row := range rows {
		title := innerText(row, lister.Config.TitleSelector)
		if title == "" {
			continue
		}

		doc := &data.Disclosure{
			Title: title,
		}

		if published, err := ParseDisclosureDate(innerText(row, lister.Config.DateSelector), location); err == nil {
			doc.PublishedAt = published
		} else {
			logger.Debug().Err(err).Str("Title", title).Msg("could not parse disclosure date")
		}

		if link, err := row.QuerySelector(lister.Config.LinkSelector); err == nil && link != nil {
			if href, err := link.GetAttribute("href"); err == nil {
				doc.URL = resolveURL(pageURL, href)
				doc.ID = DisclosureID(href)
			}
		}

		documents = append(documents, doc)
	}

	logger.Info().Int("NumListed", len(documents)).Msg("listed disclosures")

	return documents, nil
}

func innerText(row playwright.ElementHandle, selector string) string {
	elem, err := row.QuerySelector(selector)
	if err != nil || elem == nil {
		return ""
	}

	text, err := elem.InnerText()
	if err != nil {
		return ""
	}

	return strings.Join(strings.Fields(text), " ")
}

// DisclosureID extracts the numeric disclosure id from a detail link
func DisclosureID(href string) string {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	id := path.Base(strings.TrimRight(parsed.Path, "/"))
	if id == "." || id == "/" {
		return ""
	}

	return id
}

// ParseDisclosureDate parses the date formats shown on the listing page
func ParseDisclosureDate(value string, location *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range kapDateLayouts {
		if parsed, err := time.ParseInLocation(layout, value, location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized disclosure date %q", value)
}

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}

	return baseURL.ResolveReference(ref).String()
}

func istanbul() *time.Location {
	location, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		return time.FixedZone("TRT", 3*60*60)
	}
	return location
}
