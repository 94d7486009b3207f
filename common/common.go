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

package common

import (
	"io"
	"time"

	"github.com/zeebo/errs"
)

// Version is the version number of dump-smoketest.
const Version = "0.1.0"

// DumpEntry represents one published dump file as shown in a directory listing.
type DumpEntry struct {
	// Name is the file name, e.g. "wikidata-20211006-lexemes.json.bz2".
	Name string
	// Size is the size of the file in bytes, as reported by the listing.
	Size int64
	// Date is the calendar date shown next to the file (UTC midnight).
	Date time.Time
}

// DirectorySnapshot describes one dated subdirectory of the dump listing.
type DirectorySnapshot struct {
	// ID is the date-stamped path segment of the directory, e.g. "20211006/".
	ID string
	// Dumps lists the dump files of the directory in order of appearance.
	Dumps []DumpEntry
	// MD5SumsFile is the name of the md5 hash index file, or "" if missing.
	MD5SumsFile string
	// SHA1SumsFile is the name of the sha1 hash index file, or "" if missing.
	SHA1SumsFile string
}

// LatestPointer records when a "latest-*" link of the main index was last updated.
type LatestPointer struct {
	Name string
	Date time.Time
}

// ListingSnapshot is everything collected from one walk over the listing tree.
// Both slices keep the order of the source listing.
type ListingSnapshot struct {
	Latest      []LatestPointer
	Directories []DirectorySnapshot
}

// DeferClose closes c and combines any close error into *err. It is meant to be
// used in a defer statement by functions with a named error return.
func DeferClose(c io.Closer, err *error) {
	*err = errs.Combine(*err, c.Close())
}
