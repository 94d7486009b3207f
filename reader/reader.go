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

// Package reader walks a dump listing tree and assembles a ListingSnapshot.
package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wmde/dump-smoketest/common"
	"github.com/wmde/dump-smoketest/fetch"
	"github.com/wmde/dump-smoketest/limiter"
	"github.com/wmde/dump-smoketest/listing"
)

// Fetcher returns the raw contents of the page at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Reader collects a ListingSnapshot from the main index at baseURL and each of
// the dated directories it links to.
type Reader struct {
	fetcher     Fetcher
	baseURL     string
	logger      *zap.Logger
	concurrency int64
}

// New creates a Reader. Directory pages are fetched with up to concurrency
// requests in flight.
func New(fetcher Fetcher, baseURL string, logger *zap.Logger, concurrency int64) *Reader {
	return &Reader{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(baseURL, "/") + "/",
		logger:      logger,
		concurrency: concurrency,
	}
}

// Collect fetches and parses the whole listing tree. Any failure aborts the
// collection; no partial snapshot is ever returned.
func (r *Reader) Collect(ctx context.Context) (*common.ListingSnapshot, error) {
	status(r.logger, "Fetching main index")
	contents, err := r.fetch(ctx, r.baseURL)
	if err != nil {
		return nil, err
	}
	latest, dirIDs := listing.ParseMainIndex(contents)
	r.logger.Debug("main index parsed", zap.Int("num-latest", len(latest)), zap.Int("num-dirs", len(dirIDs)))

	status(r.logger, "Fetching dump directories")
	dirs, err := r.collectDirectories(ctx, dirIDs)
	if err != nil {
		return nil, err
	}
	return &common.ListingSnapshot{Latest: latest, Directories: dirs}, nil
}

func (r *Reader) collectDirectories(ctx context.Context, dirIDs []string) ([]common.DirectorySnapshot, error) {
	dirs := make([]common.DirectorySnapshot, len(dirIDs))
	jobLimiter, jobCtx := limiter.NewJobLimiter(ctx, r.concurrency)

	var numRead int32
	var total = int32(len(dirIDs))
	for i, dirID := range dirIDs {
		i, dirID := i, dirID
		jobLimiter.AddJob(func() error {
			logger := r.logger.With(zap.String("dir", dirID))
			contents, err := r.fetch(jobCtx, r.baseURL+dirID)
			if err != nil {
				return err
			}
			dir, err := listing.ParseDirectory(dirID, contents)
			if err != nil {
				return err
			}
			dirs[i] = dir
			soFar := atomic.AddInt32(&numRead, 1)
			logger.Debug("directory parsed", zap.Int("num-dumps", len(dir.Dumps)), zap.String("progress", fmt.Sprintf("%d/%d", soFar, total)))
			return nil
		})
	}
	if err := jobLimiter.Wait(); err != nil {
		return nil, err
	}
	// jobs are only skipped after a failure or when ctx is canceled
	if skipped := jobLimiter.Skipped(); skipped > 0 {
		return nil, fmt.Errorf("%d directories not fetched: %w", skipped, ctx.Err())
	}
	return dirs, nil
}

// fetch makes sure every fetch failure surfaces as a *fetch.Error naming the URL.
func (r *Reader) fetch(ctx context.Context, url string) ([]byte, error) {
	contents, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &fetch.Error{URL: url, Err: err}
	}
	return contents, nil
}

func status(logger *zap.Logger, s string) {
	logger.WithOptions(zap.AddCallerSkip(1)).
		Info("********************* STATUS UPDATE", zap.String("status", s))
}
