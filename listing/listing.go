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

// Package listing parses the autoindex pages of a dump publication site. Pages
// are scanned one line at a time; each line is matched against a small set of
// patterns in a fixed priority order and lines matching none are ignored.
package listing

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"time"

	"github.com/zeebo/errs"

	"github.com/wmde/dump-smoketest/common"
)

// DateLayout is the layout of dates in the listing, e.g. "28-Oct-2021".
const DateLayout = "02-Jan-2006"

// ParseError is an error class for parser invariant violations.
var ParseError = errs.Class("listing parse")

var (
	// example: <a href="20211006/">20211006/</a>   08-Oct-2021 19:21    -
	dirPattern = regexp.MustCompile(`20[2-3]\d[0-1]\d[0-3]\d/`)
	// example: <a href="latest-all.json.bz2">latest-all.json.bz2</a>   28-Oct-2021 08:43   71437190367
	latestPattern = regexp.MustCompile(`(latest-.*?\.(gz|bz2)).*(\d\d-\w{3}-20[2-3]\d)`)
	// example: <a href="wikidata-20211006-lexemes.json.bz2">wikidata-20211006-lexemes.json.bz2</a>  06-Oct-2021 20:07  195288101
	dumpPattern = regexp.MustCompile(`((wikidata|commons)-.*?\.(gz|bz2)).*(\d\d-\w{3}-20[2-3]\d).*?(\d\d\d\d+)`)
	// example: <a href="wikidata-20211006-md5sums.txt">wikidata-20211006-md5sums.txt</a>  09-Oct-2021 21:15  420
	hashSumsPattern = regexp.MustCompile(`((wikidata|commons)-\d+-(sha1|md5)sums\.txt)`)
)

// ParseDate parses a listing date such as "28-Oct-2021" into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// ParseMainIndex extracts the "latest-*" links and the dated directory names from
// the main index page. Directories are returned in order of appearance; a latest
// name seen more than once keeps its first position and its last date.
func ParseMainIndex(contents []byte) (latest []common.LatestPointer, dirs []string) {
	latestPos := make(map[string]int)

	scanner := newLineScanner(contents)
	for scanner.Scan() {
		line := scanner.Text()
		if dir := dirPattern.FindString(line); dir != "" {
			dirs = append(dirs, dir)
			continue
		}
		m := latestPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, err := ParseDate(m[3])
		if err != nil {
			continue
		}
		pointer := common.LatestPointer{Name: m[1], Date: date}
		if pos, ok := latestPos[pointer.Name]; ok {
			latest[pos] = pointer
			continue
		}
		latestPos[pointer.Name] = len(latest)
		latest = append(latest, pointer)
	}
	return latest, dirs
}

// ParseDirectory extracts the dump files and hash sum index files from the page
// of the directory with the given id.
func ParseDirectory(id string, contents []byte) (common.DirectorySnapshot, error) {
	dir := common.DirectorySnapshot{ID: id}
	dumpPos := make(map[string]int)

	scanner := newLineScanner(contents)
	for scanner.Scan() {
		line := scanner.Text()
		if m := dumpPattern.FindStringSubmatch(line); m != nil {
			date, err := ParseDate(m[4])
			if err != nil {
				continue
			}
			size, err := strconv.ParseInt(m[5], 10, 64)
			if err != nil {
				continue
			}
			entry := common.DumpEntry{Name: m[1], Size: size, Date: date}
			if pos, ok := dumpPos[entry.Name]; ok {
				dir.Dumps[pos] = entry
				continue
			}
			dumpPos[entry.Name] = len(dir.Dumps)
			dir.Dumps = append(dir.Dumps, entry)
			continue
		}
		m := hashSumsPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch m[3] {
		case "md5":
			dir.MD5SumsFile = m[1]
		case "sha1":
			dir.SHA1SumsFile = m[1]
		default:
			return common.DirectorySnapshot{}, ParseError.New("unknown hash type %q in dir %q", m[3], id)
		}
	}
	return dir, nil
}

func newLineScanner(contents []byte) *bufio.Scanner {
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	// autoindex pages can carry long lines (inline styles, wide tables)
	scanner.Buffer(make([]byte, 0, 64*1024), len(contents)+1)
	return scanner
}
