/*
Copyright 2022

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package playwright_helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
)

var (
	ErrBrowserStart = errors.New("could not start browser")
)

// blockedHosts are analytics and ad domains that slow down page loads on the
// disclosure portal without contributing any content
var blockedHosts = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"googlesyndication.com",
	"doubleclick.net",
	"facebook.com",
	"facebook.net",
	"hotjar.com",
	"yandex.ru",
	"mc.yandex",
	"adsystem.com",
	"adnxs.com",
}

// Session is a running browser with a single stealth page
type Session struct {
	Page    playwright.Page
	Context playwright.BrowserContext
	Browser playwright.Browser

	pw *playwright.Playwright
}

// StealthPage creates a new page with stealth js loaded to prevent bot detection
func StealthPage(context playwright.BrowserContext) (playwright.Page, error) {
	page, err := context.NewPage()
	if err != nil {
		log.Error().Err(err).Msg("could not create page")
		return nil, err
	}

	if err = page.AddInitScript(playwright.Script{
		Content: playwright.String(stealth.JS),
	}); err != nil {
		log.Error().Err(err).Msg("could not load stealth mode")
		return nil, err
	}

	return page, nil
}

// BuildUserAgent asks the browser for its default user agent and removes the
// headless identifier
func BuildUserAgent(browser playwright.Browser) (string, error) {
	context, err := browser.NewContext()
	if err != nil {
		return "", err
	}
	defer context.Close()

	page, err := context.NewPage()
	if err != nil {
		return "", err
	}

	userAgent, err := page.Evaluate("() => navigator.userAgent")
	if err != nil {
		return "", err
	}

	ua, ok := userAgent.(string)
	if !ok {
		return "", fmt.Errorf("unexpected user agent type %T", userAgent)
	}

	return strings.Replace(ua, "Headless", "", -1), nil
}

// StartSession launches Chromium and opens one stealth page with trackers
// blocked. An empty userAgent is derived from the browser.
func StartSession(headless bool, userAgent string) (*Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		log.Error().Err(err).Msg("could not launch playwright")
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	session := &Session{pw: pw}

	session.Browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		log.Error().Err(err).Msg("could not launch Chromium")
		session.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	log.Info().Bool("Headless", headless).Str("BrowserVersion", session.Browser.Version()).Msg("starting playwright")

	if userAgent == "" {
		userAgent, err = BuildUserAgent(session.Browser)
		if err != nil {
			log.Warn().Err(err).Msg("could not determine user agent, using browser default")
		}
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Locale: playwright.String("tr-TR"),
	}
	if userAgent != "" {
		log.Info().Str("UserAgent", userAgent).Msg("using user-agent")
		contextOpts.UserAgent = playwright.String(userAgent)
	}

	session.Context, err = session.Browser.NewContext(contextOpts)
	if err != nil {
		log.Error().Err(err).Msg("could not create browser context")
		session.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	session.Page, err = StealthPage(session.Context)
	if err != nil {
		session.Stop()
		return nil, fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	BlockTrackers(session.Page)

	return session, nil
}

// Blocked reports whether requests to url should be aborted
func Blocked(url string) bool {
	for _, host := range blockedHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}

func BlockTrackers(page playwright.Page) {
	err := page.Route("**/*", func(route playwright.Route) {
		if Blocked(route.Request().URL()) {
			if err := route.Abort("failed"); err != nil {
				log.Error().Err(err).Msg("failed blocking route")
			}
			return
		}

		if err := route.Continue(); err != nil {
			log.Error().Err(err).Msg("failed continuing route")
		}
	})

	if err != nil {
		log.Error().Err(err).Msg("page route errored")
	}
}

// Stop closes the browser and shuts down the playwright driver
func (session *Session) Stop() {
	if session.Browser != nil {
		log.Info().Msg("closing browser")
		if err := session.Browser.Close(); err != nil {
			log.Error().Err(err).Msg("error encountered when closing browser")
		}
	}

	if session.pw != nil {
		log.Info().Msg("stopping playwright")
		if err := session.pw.Stop(); err != nil {
			log.Error().Err(err).Msg("error encountered when stopping playwright")
		}
	}
}
