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
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sanity-io/litter"
	"github.com/tiendc/go-deepcopy"
	"github.com/walteh/optimist/pkg/entity"
	"gitlab.com/tozd/go/errors"
)

// 🩹 Patcher merges a change into an entity
type Patcher[E any] interface {
	Apply(E) E
}

// 🔁 Replace overwrites every field of the target with Value, keeping the target's id
type Replace[E entity.Record[E]] struct {
	Value E
}

func (r Replace[E]) Apply(cur E) E {
	return r.Value.WithID(cur.EntityID())
}

// refPatch rewrites references through a mapper
type refPatch[E entity.Record[E]] struct {
	fn entity.RefMapper
}

func (p refPatch[E]) Apply(cur E) E {
	return cur.MapRefs(p.fn)
}

// 📦 Removal is an entity taken out of a store together with the position it had
type Removal[E any] struct {
	Entity E
	Index  int
}

// 🗃️ Store is the ordered, shared collection of one entity kind.
// Insert, Patch, Remove and ReplaceID are the only ways its contents change.
type Store[E entity.Record[E]] struct {
	kind entity.Kind

	// writeMu serializes a mutation together with its observer delivery so
	// every observer sees changes in the same order
	writeMu sync.Mutex
	mu      sync.RWMutex
	items   []E

	obsMu     sync.Mutex
	observers map[int]Observer[E]
	nextObs   int
}

// 🏭 New creates an empty store for the given kind
func New[E entity.Record[E]](kind entity.Kind) *Store[E] {
	return &Store[E]{
		kind:      kind,
		observers: make(map[int]Observer[E]),
	}
}

// Kind returns the entity kind held by the store
func (s *Store[E]) Kind() entity.Kind {
	return s.kind
}

func clone[E any](e E) E {
	var out E
	if err := deepcopy.Copy(&out, &e); err != nil {
		return e
	}
	return out
}

// indexOf must be called with mu held
func (s *Store[E]) indexOf(id entity.ID) int {
	return slices.IndexFunc(s.items, func(e E) bool { return e.EntityID() == id })
}

// Len returns the number of entities
func (s *Store[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns a copy of the entity with id
func (s *Store[E]) Get(id entity.ID) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return clone(s.items[i]), true
	}
	var zero E
	return zero, false
}

// Has reports whether an entity with id is present
func (s *Store[E]) Has(id entity.ID) bool {
	return s.Index(id) >= 0
}

// Index returns the position of id, or -1
func (s *Store[E]) Index(id entity.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id)
}

// 📸 Snapshot returns a deep copy of the current contents
func (s *Store[E]) Snapshot() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]E, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, clone(e))
	}
	return out
}

// Owned returns copies of the entities that belong to key, in store order
func (s *Store[E]) Owned(key entity.CollectionKey) []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []E{}
	for _, e := range s.items {
		if e.Owner() == key {
			out = append(out, clone(e))
		}
	}
	return out
}

// PositionFor converts a position inside the collection named key into a
// store position usable with Insert. Out of range positions append after the
// last entity of key, or at the end of the store when key is empty.
func (s *Store[E]) PositionFor(key entity.CollectionKey, ownerIndex int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := []int{}
	for i, e := range s.items {
		if e.Owner() == key {
			positions = append(positions, i)
		}
	}
	switch {
	case len(positions) == 0:
		return -1
	case ownerIndex < 0 || ownerIndex >= len(positions):
		return positions[len(positions)-1] + 1
	default:
		return positions[ownerIndex]
	}
}

// mutate applies fn under the write lock and delivers the resulting change
func (s *Store[E]) mutate(fn func() (Change[E], bool)) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		change Change[E]
		ok     bool
	)
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		change, ok = fn()
	}()

	if ok {
		s.deliver(change)
	}
	return ok
}

// ➕ Insert places e at position at; a negative or out of range position appends.
// Inserting an id that is already present is a programming error and panics.
func (s *Store[E]) Insert(ctx context.Context, e E, at int) {
	s.mutate(func() (Change[E], bool) {
		id := e.EntityID()
		if s.indexOf(id) >= 0 {
			panic(errors.Errorf("duplicate %s id %q", s.kind, id))
		}
		if at < 0 || at > len(s.items) {
			at = len(s.items)
		}
		s.items = slices.Insert(s.items, at, clone(e))

		zerolog.Ctx(ctx).Debug().Str("kind", string(s.kind)).Str("id", id.String()).Int("index", at).Msg("inserted")
		return Change[E]{Op: Inserted, ID: id, Entity: clone(e), Index: at}, true
	})
}

// 🩹 Patch merges p into the entity with id. A missing id is logged and ignored.
func (s *Store[E]) Patch(ctx context.Context, id entity.ID, p Patcher[E]) bool {
	return s.mutate(func() (Change[E], bool) {
		i := s.indexOf(id)
		if i < 0 {
			zerolog.Ctx(ctx).Warn().Str("kind", string(s.kind)).Str("id", id.String()).Msg("patch target not found")
			return Change[E]{}, false
		}
		next := p.Apply(clone(s.items[i])).WithID(id)
		s.items[i] = next

		zerolog.Ctx(ctx).Debug().Str("kind", string(s.kind)).Str("id", id.String()).Msg("patched")
		return Change[E]{Op: Patched, ID: id, Entity: clone(next), Index: i}, true
	})
}

// ➖ Remove takes the entity with id out of the store
func (s *Store[E]) Remove(ctx context.Context, id entity.ID) (Removal[E], bool) {
	var removed Removal[E]
	ok := s.mutate(func() (Change[E], bool) {
		i := s.indexOf(id)
		if i < 0 {
			return Change[E]{}, false
		}
		removed = Removal[E]{Entity: s.items[i], Index: i}
		s.items = slices.Delete(s.items, i, i+1)

		zerolog.Ctx(ctx).Debug().Str("kind", string(s.kind)).Str("id", id.String()).Int("index", i).Msg("removed")
		return Change[E]{Op: Removed, ID: id, Entity: clone(removed.Entity), Index: i}, true
	})
	return removed, ok
}

// ↩️ Restore reinserts a removal at its original position, clamped to the
// current length. It returns false, leaving the store untouched, when the id
// is already present again.
func (s *Store[E]) Restore(ctx context.Context, r Removal[E]) bool {
	return s.mutate(func() (Change[E], bool) {
		id := r.Entity.EntityID()
		if s.indexOf(id) >= 0 {
			zerolog.Ctx(ctx).Warn().Str("kind", string(s.kind)).Str("id", id.String()).Msg("restore skipped, id already present")
			return Change[E]{}, false
		}
		at := min(max(r.Index, 0), len(s.items))
		s.items = slices.Insert(s.items, at, clone(r.Entity))

		zerolog.Ctx(ctx).Debug().Str("kind", string(s.kind)).Str("id", id.String()).Int("index", at).Msg("restored")
		return Change[E]{Op: Inserted, ID: id, Entity: clone(r.Entity), Index: at}, true
	})
}

// 🔀 ReplaceID renames an entity in place. It is a no-op when oldID is gone
// or newID is already taken.
func (s *Store[E]) ReplaceID(ctx context.Context, oldID, newID entity.ID) bool {
	return s.mutate(func() (Change[E], bool) {
		i := s.indexOf(oldID)
		if i < 0 || s.indexOf(newID) >= 0 {
			return Change[E]{}, false
		}
		s.items[i] = s.items[i].WithID(newID)

		zerolog.Ctx(ctx).Debug().Str("kind", string(s.kind)).Str("from", oldID.String()).Str("to", newID.String()).Msg("renamed")
		return Change[E]{Op: Renamed, ID: newID, PreviousID: oldID, Entity: clone(s.items[i]), Index: i}, true
	})
}

// RewriteRefs points every reference to from at to, through Patch.
// An empty to drops the reference. It returns the number of entities touched.
func (s *Store[E]) RewriteRefs(ctx context.Context, from, to entity.ID) int {
	var targets []entity.ID
	for _, e := range s.Snapshot() {
		hit := false
		e.MapRefs(func(id entity.ID) (entity.ID, bool) {
			if id == from {
				hit = true
			}
			return id, true
		})
		if hit {
			targets = append(targets, e.EntityID())
		}
	}

	touched := 0
	for _, id := range targets {
		if s.Patch(ctx, id, refPatch[E]{fn: entity.RenameRef(from, to)}) {
			touched++
		}
	}
	return touched
}

// RemapRefs passes every reference held by id through fn
func (s *Store[E]) RemapRefs(ctx context.Context, id entity.ID, fn entity.RefMapper) bool {
	return s.Patch(ctx, id, refPatch[E]{fn: fn})
}

// Dump renders the store contents for debugging
func (s *Store[E]) Dump() string {
	return litter.Sdump(s.Snapshot())
}
