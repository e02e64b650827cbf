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

	"github.com/walteh/optimist/pkg/mutation"
)

// Formatter defines how settlements and progress are worded
type Formatter interface {
	// FormatSettlement formats one settled mutation
	FormatSettlement(s mutation.Settlement) string

	// FormatProgress formats a progress message
	FormatProgress(current, total int) string

	// FormatError formats an error message
	FormatError(err error) string
}

// DefaultFormatter words settlements with an emoji per outcome
type DefaultFormatter struct{}

// NewDefaultFormatter creates a new DefaultFormatter
func NewDefaultFormatter() *DefaultFormatter {
	return &DefaultFormatter{}
}

var verbs = map[mutation.Op]string{
	mutation.OpCreate: "Created",
	mutation.OpUpdate: "Updated",
	mutation.OpDelete: "Deleted",
}

// FormatSettlement formats a settled mutation with emojis
func (f *DefaultFormatter) FormatSettlement(s mutation.Settlement) string {
	switch s.Outcome {
	case mutation.Committed:
		if s.Op == mutation.OpDelete {
			return fmt.Sprintf("🗑️  %s %s %s", verbs[s.Op], s.Kind, s.ID)
		}
		return fmt.Sprintf("✨ %s %s %s", verbs[s.Op], s.Kind, displayID(s))
	case mutation.RolledBack:
		return fmt.Sprintf("❌ Rolled back %s of %s %s", s.Op, s.Kind, s.ID)
	default:
		return fmt.Sprintf("👻 Skipped %s of %s %s", s.Op, s.Kind, s.ID)
	}
}

// FormatProgress formats a progress message with percentage
func (f *DefaultFormatter) FormatProgress(current, total int) string {
	var percentage float64
	if total == 0 {
		percentage = 0
		if current > 0 {
			percentage = 100
		}
	} else {
		percentage = float64(current) / float64(total) * 100
	}

	if current >= total {
		return fmt.Sprintf("✅ Progress: %d/%d (%.0f%%)", current, total, percentage)
	}
	return fmt.Sprintf("⏳ Progress: %d/%d (%.0f%%)", current, total, percentage)
}

// FormatError formats an error message with emoji
func (f *DefaultFormatter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("❌ Error: %v", err)
}
