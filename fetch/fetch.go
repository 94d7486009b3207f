// Copyright (C) 2020 Storj Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fetch retrieves listing pages over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wmde/dump-smoketest/common"
)

// DefaultUserAgent is sent with every request unless configured otherwise.
var DefaultUserAgent = "dump-smoketest/" + common.Version

// Error is returned for any failed fetch. It carries the URL that could not be
// retrieved and the underlying cause.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is the cause of an Error for a non-200 response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http GET failed with %d: %s", e.StatusCode, e.Status)
}

// HTTPFetcher fetches pages with a plain http.Client. It never retries.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPFetcher returns an HTTPFetcher whose requests time out after timeout.
// An empty userAgent selects DefaultUserAgent.
func NewHTTPFetcher(logger *zap.Logger, timeout time.Duration, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch returns the body of the page at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (_ []byte, err error) {
	startTime := time.Now()
	body, err := f.get(ctx, url)
	if err != nil {
		f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, &Error{URL: url, Err: err}
	}
	f.logger.Debug("fetched", zap.String("url", url), zap.Int("size", len(body)), zap.Duration("duration", time.Since(startTime)))
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (_ []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer common.DeferClose(resp.Body, &err)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}
