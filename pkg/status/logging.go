// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/walteh/optimist/pkg/mutation"
)

// 🎨 Display configuration
const (
	entryIndent  = 4  // spaces to indent entries
	idWidth      = 30 // width for the id column
	kindWidth    = 6  // width for the entity kind
	outcomeWidth = 12 // width for the outcome text
)

// 🎯 FormatLine formats one entry as a padded, colored journal line
func FormatLine(e Entry) string {
	var prefix string
	switch e.Outcome {
	case mutation.Committed:
		prefix = color.GreenString("✓")
	case mutation.RolledBack:
		prefix = color.RedString("✗")
	default:
		prefix = color.HiBlackString("-")
	}

	idPart := fmt.Sprintf("%-*s", idWidth, displayID(e.Settlement))
	kindPart := fmt.Sprintf("%-*s", kindWidth, e.Kind)
	outcomePart := fmt.Sprintf("%-*s", outcomeWidth, e.Outcome)

	line := fmt.Sprintf("%s%s %s %s %s %s",
		strings.Repeat(" ", entryIndent),
		prefix,
		e.Op,
		kindPart,
		idPart,
		outcomePart,
	)
	if e.Err != nil {
		line += " " + color.RedString(e.Err.Error())
	}
	return strings.TrimRight(line, " ")
}

// Lines formats every journaled entry
func (j *Journal) Lines() []string {
	entries := j.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, FormatLine(e))
	}
	return out
}
