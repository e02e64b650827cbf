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

package collection

import (
	"sort"

	"github.com/walteh/optimist/pkg/entity"
)

// ChangeOp is the primitive that produced a change
type ChangeOp int

const (
	Inserted ChangeOp = iota
	Patched
	Removed
	Renamed
)

func (op ChangeOp) String() string {
	switch op {
	case Inserted:
		return "inserted"
	case Patched:
		return "patched"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// 📣 Change describes one applied mutation
type Change[E any] struct {
	Op         ChangeOp
	ID         entity.ID
	PreviousID entity.ID // set for Renamed
	Entity     E
	Index      int
}

// Observer receives every change of a store, in order.
// Observers may read the store but must not mutate it from inside the callback.
type Observer[E any] func(Change[E])

// 👀 Subscribe registers obs and returns a function that unregisters it
func (s *Store[E]) Subscribe(obs Observer[E]) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// deliver must be called with writeMu held
func (s *Store[E]) deliver(change Change[E]) {
	s.obsMu.Lock()
	keys := make([]int, 0, len(s.observers))
	for k := range s.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	observers := make([]Observer[E], 0, len(keys))
	for _, k := range keys {
		observers = append(observers, s.observers[k])
	}
	s.obsMu.Unlock()

	for _, obs := range observers {
		obs(change)
	}
}
