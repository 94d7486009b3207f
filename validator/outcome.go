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

package validator

import (
	"fmt"
	"io"
)

// Outcome is the result of one or more checks. Messages describe every problem
// found, in the order the checks found them.
type Outcome struct {
	Valid    bool
	Messages []string
}

// Merge combines outcomes: the result is valid only if all of them are, and its
// messages are the concatenation of theirs in argument order.
func Merge(outcomes ...Outcome) Outcome {
	merged := Outcome{Valid: true, Messages: []string{}}
	for _, outcome := range outcomes {
		merged.Valid = merged.Valid && outcome.Valid
		merged.Messages = append(merged.Messages, outcome.Messages...)
	}
	return merged
}

// outcomeBuilder accumulates the messages of a single check.
type outcomeBuilder struct {
	messages []string
}

func (b *outcomeBuilder) failf(format string, args ...interface{}) {
	b.messages = append(b.messages, fmt.Sprintf(format, args...))
}

func (b *outcomeBuilder) outcome() Outcome {
	messages := make([]string, len(b.messages))
	copy(messages, b.messages)
	return Outcome{Valid: len(messages) == 0, Messages: messages}
}

// WriteTo writes one message per line, conforming to io.WriterTo.
func (o Outcome) WriteTo(w io.Writer) (n int64, err error) {
	for _, message := range o.Messages {
		written, err := fmt.Fprintln(w, message)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
