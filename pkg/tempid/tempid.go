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

// Package tempid issues placeholder ids for entities the server has not
// acknowledged yet and swaps them for real ids once it has.
package tempid

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/entity"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrDiscarded is returned when waiting on a temporary id whose create failed
	ErrDiscarded = errors.Base("temporary id discarded")
	// ErrUnknown is returned for a temporary id this reconciler never issued
	ErrUnknown = errors.Base("unknown temporary id")
)

// State is where a temporary id is in its lifecycle
type State int

const (
	Pending State = iota
	Resolved
	Discarded
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// 🔗 Referrer holds references to other entities and can repoint them.
// *collection.Store satisfies it.
type Referrer interface {
	RewriteRefs(ctx context.Context, from, to entity.ID) int
}

type entry struct {
	kind  entity.Kind
	state State
	real  entity.ID
	done  chan struct{}
}

// 🪪 Reconciler tracks every temporary id it issued and what became of it
type Reconciler struct {
	session string
	counter atomic.Uint64

	mu        sync.Mutex
	entries   map[entity.ID]*entry
	referrers []Referrer
}

// 🏭 New creates a reconciler with a fresh session nonce
func New() *Reconciler {
	return &Reconciler{
		session: strings.SplitN(uuid.NewString(), "-", 2)[0],
		entries: make(map[entity.ID]*entry),
	}
}

// Register adds stores whose references are rewritten on reconcile and discard
func (r *Reconciler) Register(refs ...Referrer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrers = append(r.referrers, refs...)
}

// 🎟️ Issue returns a new temporary id for kind. Ids never repeat within a
// process and carry a per-reconciler nonce, so two reconcilers never collide.
func (r *Reconciler) Issue(kind entity.Kind) entity.ID {
	n := r.counter.Add(1)
	id := entity.ID(fmt.Sprintf("%s%s-%s-%d", entity.TempPrefix, kind, r.session, n))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &entry{kind: kind, state: Pending, done: make(chan struct{})}
	return id
}

// State reports the lifecycle state of a temporary id
func (r *Reconciler) State(id entity.ID) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Lookup returns the id an entity is known by now. Real ids map to
// themselves; resolved temporary ids map to their real id. Pending,
// discarded and unknown temporary ids report false.
func (r *Reconciler) Lookup(id entity.ID) (entity.ID, bool) {
	if !id.IsTemporary() {
		return id, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.state == Resolved {
		return e.real, true
	}
	return id, false
}

// Current maps resolved temporary ids to their real id and leaves every other id as is
func (r *Reconciler) Current(id entity.ID) entity.ID {
	real, _ := r.Lookup(id)
	return real
}

// ⏳ Await blocks until id has a real id, the create behind it failed, or ctx is done
func (r *Reconciler) Await(ctx context.Context, id entity.ID) (entity.ID, error) {
	if !id.IsTemporary() {
		return id, nil
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return "", errors.Errorf("awaiting %s: %w", id, ErrUnknown)
	}

	select {
	case <-ctx.Done():
		return "", errors.Errorf("awaiting %s: %w", id, ctx.Err())
	case <-e.done:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.state == Discarded {
		return "", errors.Errorf("awaiting %s: %w", id, ErrDiscarded)
	}
	return e.real, nil
}

// Pending returns the temporary ids still waiting for the server
func (r *Reconciler) Pending() mapset.Set[entity.ID] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := mapset.NewSet[entity.ID]()
	for id, e := range r.entries {
		if e.state == Pending {
			out.Add(id)
		}
	}
	return out
}

// settle moves a pending id to its final state and returns the referrers to rewrite.
// It reports false when the id was already settled.
func (r *Reconciler) settle(id entity.ID, state State, real entity.ID) ([]Referrer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{state: Pending, done: make(chan struct{})}
		r.entries[id] = e
	}
	if e.state != Pending {
		return append([]Referrer(nil), r.referrers...), false
	}
	e.state = state
	e.real = real
	return append([]Referrer(nil), r.referrers...), true
}

func (r *Reconciler) wake(id entity.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		select {
		case <-e.done:
		default:
			close(e.done)
		}
	}
}

// 🔄 Reconcile swaps tempID for the id of canonical everywhere:
//  1. the placeholder in store is renamed in place
//  2. the placeholder is overwritten with the canonical fields
//  3. every registered referrer pointing at tempID is repointed
//
// Running it twice leaves the same state as running it once.
func Reconcile[E entity.Record[E]](ctx context.Context, r *Reconciler, store *collection.Store[E], tempID entity.ID, canonical E) {
	realID := canonical.EntityID()
	referrers, first := r.settle(tempID, Resolved, realID)

	renamed := store.ReplaceID(ctx, tempID, realID)
	patched := false
	if store.Has(realID) {
		patched = store.Patch(ctx, realID, collection.Replace[E]{Value: canonical})
	}

	rewritten := 0
	for _, ref := range referrers {
		rewritten += ref.RewriteRefs(ctx, tempID, realID)
	}
	r.wake(tempID)

	zerolog.Ctx(ctx).Debug().
		Str("temp_id", tempID.String()).
		Str("id", realID.String()).
		Bool("first", first).
		Bool("renamed", renamed).
		Bool("patched", patched).
		Int("references", rewritten).
		Msg("reconciled temporary id")
}

// 🗑️ Discard marks a temporary id as dead after its create failed and drops
// every reference to it. Waiters on the id are released with ErrDiscarded.
func (r *Reconciler) Discard(ctx context.Context, tempID entity.ID) {
	referrers, first := r.settle(tempID, Discarded, "")
	if !first {
		zerolog.Ctx(ctx).Warn().Str("temp_id", tempID.String()).Msg("discard skipped, temporary id already settled")
		return
	}

	dropped := 0
	for _, ref := range referrers {
		dropped += ref.RewriteRefs(ctx, tempID, "")
	}
	r.wake(tempID)

	zerolog.Ctx(ctx).Debug().Str("temp_id", tempID.String()).Int("references", dropped).Msg("discarded temporary id")
}

// MapAwait builds a value from refs by awaiting every temporary id it
// references. References to discarded ids are dropped. Any other failure to
// resolve is returned.
func MapAwait[T any](ctx context.Context, r *Reconciler, build func(entity.RefMapper) T) (T, error) {
	var firstErr error
	out := build(func(id entity.ID) (entity.ID, bool) {
		if !id.IsTemporary() {
			return id, true
		}
		real, err := r.Await(ctx, id)
		if err != nil {
			if errors.Is(err, ErrDiscarded) {
				return "", false
			}
			if firstErr == nil {
				firstErr = err
			}
			return id, true
		}
		return real, true
	})
	if firstErr != nil {
		var zero T
		return zero, firstErr
	}
	return out, nil
}

// MapCurrent is MapAwait without blocking: resolved temporary ids are
// replaced, discarded ones dropped and pending ones kept.
func MapCurrent[T any](r *Reconciler, build func(entity.RefMapper) T) T {
	return build(r.CurrentRef)
}

// CurrentRef is the RefMapper behind MapCurrent
func (r *Reconciler) CurrentRef(id entity.ID) (entity.ID, bool) {
	if !id.IsTemporary() {
		return id, true
	}
	state, _ := r.State(id)
	switch state {
	case Resolved:
		return r.Current(id), true
	case Discarded:
		return "", false
	default:
		return id, true
	}
}
