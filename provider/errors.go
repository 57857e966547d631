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
	"errors"
	"fmt"
)

var (
	ErrUpstreamHTTP      = errors.New("upstream returned an unsuccessful HTTP status")
	ErrUpstreamTransport = errors.New("upstream request did not complete")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrInvalidRequest    = errors.New("a request must cover between 1 and 4 periods")
	ErrProviderNotFound  = errors.New("provider not found")
)

// UpstreamHTTPError carries the status code and request URL of a failed call
type UpstreamHTTPError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUpstreamHTTP, e.StatusCode, e.URL)
}

func (e *UpstreamHTTPError) Is(target error) bool {
	return target == ErrUpstreamHTTP
}
