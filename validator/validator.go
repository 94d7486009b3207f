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

// Package validator checks a ListingSnapshot for the problems a broken dump
// run leaves behind: missing hash sum files, stale "latest" links and dumps
// that shrank compared to their predecessors.
package validator

import (
	"math"
	"regexp"
	"time"

	"github.com/zeebo/errs"

	"github.com/wmde/dump-smoketest/common"
)

const (
	// DefaultMaxLatestAgeDays is the default for Config.MaxLatestAgeDays.
	DefaultMaxLatestAgeDays = 10
	// DefaultExpectedGrowthFactor is the default for Config.ExpectedGrowthFactor.
	DefaultExpectedGrowthFactor = 1.0005
)

// NormalizationError is an error class for dump names that do not follow the
// "<project>-<date>-<rest>" naming convention.
var NormalizationError = errs.Class("dump name normalization")

var canonicalPattern = regexp.MustCompile(`(commons|wikidata)-\d+-(.*?\.(gz|bz2))`)

// Config holds the tunables of a Validator.
type Config struct {
	// MaxLatestAgeDays is how old a "latest" link may get. One extra day of
	// grace is added on top, so the configured age itself always passes.
	MaxLatestAgeDays int
	// ExpectedGrowthFactor is the minimum ratio between a dump and its
	// predecessor of the same type.
	ExpectedGrowthFactor float64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with the default limits.
func DefaultConfig() Config {
	return Config{
		MaxLatestAgeDays:     DefaultMaxLatestAgeDays,
		ExpectedGrowthFactor: DefaultExpectedGrowthFactor,
		Now:                  time.Now,
	}
}

// Validator applies the listing checks.
type Validator struct {
	maxLatestAge int
	growthFactor float64
	now          func() time.Time
}

// New creates a Validator.
func New(config Config) *Validator {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Validator{
		maxLatestAge: config.MaxLatestAgeDays + 1,
		growthFactor: config.ExpectedGrowthFactor,
		now:          config.Now,
	}
}

// DumpGroup holds all dumps of one canonical type, e.g. every
// "wikidata-<date>-lexemes.json.bz2" as "wikidata-lexemes.json.bz2".
type DumpGroup struct {
	Key   string
	Dumps []common.DumpEntry
}

// Validate runs all checks against the snapshot. The returned error is only
// non-nil when the snapshot could not be checked at all.
func (v *Validator) Validate(snapshot *common.ListingSnapshot) (Outcome, error) {
	hashFiles := v.CheckHashFiles(snapshot.Directories)
	latest := v.CheckLatest(snapshot.Latest)

	groups, err := GroupByType(snapshot.Directories)
	if err != nil {
		return Outcome{}, err
	}
	sizes := v.CheckSizes(groups)

	return Merge(hashFiles, latest, sizes), nil
}

// CheckHashFiles makes sure every directory holding dumps also has both an md5
// and a sha1 hash sum file.
func (v *Validator) CheckHashFiles(dirs []common.DirectorySnapshot) Outcome {
	var b outcomeBuilder
	for _, dir := range dirs {
		if len(dir.Dumps) == 0 {
			// no dumps, no need for hashes
			continue
		}
		if dir.MD5SumsFile == "" {
			b.failf(`Missing md5sum file in dir "%s".`, dir.ID)
		}
		if dir.SHA1SumsFile == "" {
			b.failf(`Missing sha1sum file in dir "%s".`, dir.ID)
		}
	}
	return b.outcome()
}

// CheckLatest makes sure no "latest" link is older than allowed.
func (v *Validator) CheckLatest(latest []common.LatestPointer) Outcome {
	now := v.now()
	var b outcomeBuilder
	for _, pointer := range latest {
		age := ageInDays(now, pointer.Date)
		if age > v.maxLatestAge {
			b.failf(`Latest dump "%s" is too old (%d days).`, pointer.Name, age)
		}
	}
	return b.outcome()
}

// ageInDays returns the number of whole days elapsed from date to now.
func ageInDays(now, date time.Time) int {
	return int(math.Floor(now.Sub(date).Hours() / 24))
}

// CheckSizes makes sure every dump is at least the growth factor times as large
// as the last good dump before it in its group. A dump failing the check does
// not become the new baseline.
func (v *Validator) CheckSizes(groups []DumpGroup) Outcome {
	var b outcomeBuilder
	for _, group := range groups {
		var lastSize int64
		for _, dump := range group.Dumps {
			expectedSize := int64(math.Floor(float64(lastSize) * v.growthFactor))
			if dump.Size < expectedSize {
				b.failf("Dump %s should be at least %d bytes (is %d bytes).", dump.Name, expectedSize, dump.Size)
				continue
			}
			lastSize = dump.Size
		}
	}
	return b.outcome()
}

// GroupByType groups the dumps of all directories by their canonical name. Groups
// are ordered by first appearance, and the dumps in a group keep directory order.
func GroupByType(dirs []common.DirectorySnapshot) ([]DumpGroup, error) {
	var groups []DumpGroup
	groupPos := make(map[string]int)

	for _, dir := range dirs {
		for _, dump := range dir.Dumps {
			key, err := CanonicalName(dump.Name)
			if err != nil {
				return nil, err
			}
			pos, ok := groupPos[key]
			if !ok {
				pos = len(groups)
				groupPos[key] = pos
				groups = append(groups, DumpGroup{Key: key})
			}
			groups[pos].Dumps = append(groups[pos].Dumps, dump)
		}
	}
	return groups, nil
}

// CanonicalName strips the date stamp from a dump name, e.g.
// "wikidata-20211006-lexemes.json.bz2" becomes "wikidata-lexemes.json.bz2".
func CanonicalName(dumpName string) (string, error) {
	m := canonicalPattern.FindStringSubmatch(dumpName)
	if m == nil {
		return "", NormalizationError.New("cannot normalize dump name %q", dumpName)
	}
	return m[1] + "-" + m[2], nil
}
