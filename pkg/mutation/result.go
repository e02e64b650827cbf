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

package mutation

import (
	"context"
	"time"

	"github.com/walteh/optimist/pkg/entity"
)

// Outcome is how a mutation settled
type Outcome int

const (
	// Committed means the server accepted the change
	Committed Outcome = iota
	// RolledBack means the change failed and local state was restored
	RolledBack
	// Vanished means the target was already gone locally; nothing was sent
	Vanished
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	case Vanished:
		return "vanished"
	default:
		return "unknown"
	}
}

// 🧾 Result is what a caller gets back from a settled mutation
type Result[E any] struct {
	Outcome Outcome
	// ID is the id the entity settled on
	ID entity.ID
	// TempID is the placeholder id of a create
	TempID entity.ID
	// Entity is the canonical entity after a committed create or update,
	// and the removed entity after a delete
	Entity   E
	Attempts int
}

// OK reports whether the mutation left the store in the requested state
func (r Result[E]) OK() bool {
	return r.Outcome != RolledBack
}

// 📒 Settlement describes one settled mutation for journals and metrics
type Settlement struct {
	Kind     entity.Kind
	Op       Op
	ID       entity.ID
	TempID   entity.ID
	Outcome  Outcome
	Attempts int
	Err      error
	Started  time.Time
	Duration time.Duration
}

// 📡 Reporter observes every settled mutation
type Reporter interface {
	Settled(ctx context.Context, s Settlement)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(ctx context.Context, s Settlement)

func (f ReporterFunc) Settled(ctx context.Context, s Settlement) { f(ctx, s) }

// Reporters fans a settlement out to several reporters in order
type Reporters []Reporter

func (rs Reporters) Settled(ctx context.Context, s Settlement) {
	for _, r := range rs {
		if r != nil {
			r.Settled(ctx, s)
		}
	}
}
