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

// Package mutation applies create, update and delete operations to a store
// before the server confirms them, and converges on the server's answer.
package mutation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/remote"
	"github.com/walteh/optimist/pkg/tempid"
	"gitlab.com/tozd/go/errors"
)

// ⚙️ Options wire a coordinator to its collaborators
type Options[E entity.Record[E], P entity.Patch[E, P]] struct {
	Kind     entity.Kind
	Store    *collection.Store[E]
	Gateway  remote.Gateway[E, P]
	IDs      *tempid.Reconciler
	Notifier notify.Notifier
	// Messages default to notify.MessagesFor(Kind)
	Messages *notify.Messages
	Reporter Reporter
	// Prepare fills the defaults of a placeholder before it is inserted
	Prepare func(draft E, now time.Time) E
	Now     func() time.Time
	Retry   RetryPolicy
	// OnDeleted runs after the server confirmed a delete
	OnDeleted func(ctx context.Context, deleted E)
}

// 🧭 Coordinator runs optimistic mutations for one entity kind
type Coordinator[E entity.Record[E], P entity.Patch[E, P]] struct {
	opts     Options[E, P]
	messages notify.Messages
	seq      *Sequencer
}

// 🏭 New creates a coordinator
func New[E entity.Record[E], P entity.Patch[E, P]](opts Options[E, P]) *Coordinator[E, P] {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.IDs == nil {
		opts.IDs = tempid.New()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Prepare == nil {
		opts.Prepare = func(draft E, _ time.Time) E { return draft }
	}
	messages := notify.MessagesFor(opts.Kind)
	if opts.Messages != nil {
		messages = *opts.Messages
	}
	return &Coordinator[E, P]{
		opts:     opts,
		messages: messages,
		seq:      NewSequencer(),
	}
}

// Kind returns the entity kind the coordinator mutates
func (c *Coordinator[E, P]) Kind() entity.Kind {
	return c.opts.Kind
}

// Store returns the store the coordinator mutates
func (c *Coordinator[E, P]) Store() *collection.Store[E] {
	return c.opts.Store
}

// Sequencer returns the per-id sequencer
func (c *Coordinator[E, P]) Sequencer() *Sequencer {
	return c.seq
}

// acquire takes the sequencer slot for id and, once id is known by a real id,
// the slot for that id as well. It returns the id to operate on.
func (c *Coordinator[E, P]) acquire(ctx context.Context, id entity.ID) (entity.ID, func(), error) {
	release, err := c.seq.Acquire(ctx, id)
	if err != nil {
		return "", nil, err
	}
	target := c.opts.IDs.Current(id)
	if target == id {
		return id, release, nil
	}
	releaseTarget, err := c.seq.Acquire(ctx, target)
	if err != nil {
		release()
		return "", nil, err
	}
	return target, func() {
		releaseTarget()
		release()
	}, nil
}

// 🚦 Acquire waits until no mutation runs on id and holds it until release
// is called. It returns the id the entity is known by now.
func (c *Coordinator[E, P]) Acquire(ctx context.Context, id entity.ID) (entity.ID, func(), error) {
	return c.acquire(ctx, id)
}

// settle sends the single notification of a mutation and reports it
func (c *Coordinator[E, P]) settle(ctx context.Context, s Settlement, success string) {
	s.Kind = c.opts.Kind
	s.Duration = c.opts.Now().Sub(s.Started)

	logger := zerolog.Ctx(ctx)
	switch s.Outcome {
	case Committed:
		if success != "" {
			c.opts.Notifier.Success(success)
		}
	case RolledBack:
		msg := c.failureMessage(s.Op)
		if errors.Is(s.Err, ErrDuplicateName) {
			msg = c.messages.DuplicateName
		}
		c.opts.Notifier.Error(msg)
		logger.Warn().Err(s.Err).Str("kind", string(s.Kind)).Str("op", s.Op.String()).Str("id", s.ID.String()).Msg("mutation rolled back")
	}

	logger.Debug().
		Str("kind", string(s.Kind)).
		Str("op", s.Op.String()).
		Str("id", s.ID.String()).
		Str("temp_id", s.TempID.String()).
		Str("outcome", s.Outcome.String()).
		Int("attempts", s.Attempts).
		Dur("duration", s.Duration).
		Msg("mutation settled")

	if c.opts.Reporter != nil {
		c.opts.Reporter.Settled(ctx, s)
	}
}

func (c *Coordinator[E, P]) failureMessage(op Op) string {
	switch op {
	case OpCreate:
		return c.messages.CreateFailed
	case OpUpdate:
		return c.messages.UpdateFailed
	default:
		return c.messages.DeleteFailed
	}
}

// ➕ Create inserts draft under a temporary id at position at of its owning
// collection (negative appends), sends it to the server, and swaps in the
// canonical entity. On failure the placeholder is removed again.
func (c *Coordinator[E, P]) Create(ctx context.Context, draft E, at int) (Result[E], error) {
	started := c.opts.Now()
	tempID := c.opts.IDs.Issue(c.opts.Kind)

	release, err := c.seq.Acquire(ctx, tempID)
	if err != nil {
		c.opts.IDs.Discard(ctx, tempID)
		return Result[E]{Outcome: RolledBack, TempID: tempID}, classify(c.opts.Kind, OpCreate, tempID, err)
	}
	defer release()

	placeholder := c.opts.Prepare(draft.WithID(tempID), started)
	placeholder = tempid.MapCurrent(c.opts.IDs, placeholder.MapRefs)
	c.opts.Store.Insert(ctx, placeholder, c.opts.Store.PositionFor(placeholder.Owner(), at))

	zerolog.Ctx(ctx).Debug().Str("kind", string(c.opts.Kind)).Str("temp_id", tempID.String()).Msg("placeholder inserted")

	var canonical E
	attempts := 0
	payload, err := tempid.MapAwait(ctx, c.opts.IDs, placeholder.WithID("").MapRefs)
	if err == nil {
		attempts, err = c.opts.Retry.call(ctx, func() error {
			var callErr error
			canonical, callErr = c.opts.Gateway.Create(ctx, payload.Owner(), payload)
			return callErr
		})
	}

	if err != nil {
		c.opts.Store.Remove(ctx, tempID)
		c.opts.IDs.Discard(ctx, tempID)

		merr := classify(c.opts.Kind, OpCreate, tempID, err)
		c.settle(ctx, Settlement{Op: OpCreate, ID: tempID, TempID: tempID, Outcome: RolledBack, Attempts: attempts, Err: merr, Started: started}, "")
		return Result[E]{Outcome: RolledBack, ID: tempID, TempID: tempID, Attempts: attempts}, merr
	}

	tempid.Reconcile(ctx, c.opts.IDs, c.opts.Store, tempID, canonical)

	realID := canonical.EntityID()
	c.settle(ctx, Settlement{Op: OpCreate, ID: realID, TempID: tempID, Outcome: Committed, Attempts: attempts, Started: started}, c.messages.Created)
	return Result[E]{Outcome: Committed, ID: realID, TempID: tempID, Entity: canonical, Attempts: attempts}, nil
}

// 🩹 Update applies patch to id right away and sends it to the server. The
// server's answer replaces the local guess; a failure restores the exact
// entity seen before the patch. Updates on one id run one at a time.
func (c *Coordinator[E, P]) Update(ctx context.Context, id entity.ID, patch P) (Result[E], error) {
	started := c.opts.Now()

	target, release, err := c.acquire(ctx, id)
	if err != nil {
		return Result[E]{Outcome: RolledBack, ID: id}, classify(c.opts.Kind, OpUpdate, id, err)
	}
	defer release()

	previous, ok := c.opts.Store.Get(target)
	if !ok {
		c.settle(ctx, Settlement{Op: OpUpdate, ID: target, Outcome: Vanished, Started: started}, "")
		return Result[E]{Outcome: Vanished, ID: target}, nil
	}

	c.opts.Store.Patch(ctx, target, tempid.MapCurrent(c.opts.IDs, patch.MapRefs))

	var canonical E
	attempts := 0
	payload, err := tempid.MapAwait(ctx, c.opts.IDs, patch.MapRefs)
	if err == nil {
		attempts, err = c.opts.Retry.call(ctx, func() error {
			var callErr error
			canonical, callErr = c.opts.Gateway.Update(ctx, target, payload)
			return callErr
		})
	}

	if err != nil {
		c.opts.Store.Patch(ctx, target, collection.Replace[E]{Value: previous})

		merr := classify(c.opts.Kind, OpUpdate, target, err)
		c.settle(ctx, Settlement{Op: OpUpdate, ID: target, Outcome: RolledBack, Attempts: attempts, Err: merr, Started: started}, "")
		return Result[E]{Outcome: RolledBack, ID: target, Entity: previous, Attempts: attempts}, merr
	}

	c.opts.Store.Patch(ctx, target, collection.Replace[E]{Value: canonical})
	c.settle(ctx, Settlement{Op: OpUpdate, ID: target, Outcome: Committed, Attempts: attempts, Started: started}, c.messages.Updated)
	return Result[E]{Outcome: Committed, ID: target, Entity: canonical, Attempts: attempts}, nil
}

// ➖ Delete removes id right away and asks the server to delete it. A failure
// puts the entity back at the position it had.
func (c *Coordinator[E, P]) Delete(ctx context.Context, id entity.ID) (Result[E], error) {
	started := c.opts.Now()

	target, release, err := c.acquire(ctx, id)
	if err != nil {
		return Result[E]{Outcome: RolledBack, ID: id}, classify(c.opts.Kind, OpDelete, id, err)
	}
	defer release()

	removal, ok := c.opts.Store.Remove(ctx, target)
	if !ok {
		c.settle(ctx, Settlement{Op: OpDelete, ID: target, Outcome: Vanished, Started: started}, "")
		return Result[E]{Outcome: Vanished, ID: target}, nil
	}
	return c.commitRemoval(ctx, removal, started)
}

// 🗑️ CommitRemoval sends the delete for an entity that was already taken out
// of the store. A failure restores it at its recorded position. An entity
// whose create never succeeded has nothing to delete and settles as Vanished.
func (c *Coordinator[E, P]) CommitRemoval(ctx context.Context, removal collection.Removal[E]) (Result[E], error) {
	started := c.opts.Now()
	id := removal.Entity.EntityID()

	target, release, err := c.acquire(ctx, id)
	if err != nil {
		c.opts.Store.Restore(ctx, removal)
		return Result[E]{Outcome: RolledBack, ID: id}, classify(c.opts.Kind, OpDelete, id, err)
	}
	defer release()

	if target.IsTemporary() {
		c.settle(ctx, Settlement{Op: OpDelete, ID: id, TempID: id, Outcome: Vanished, Started: started}, "")
		return Result[E]{Outcome: Vanished, ID: id, TempID: id, Entity: removal.Entity}, nil
	}
	removal.Entity = removal.Entity.WithID(target)
	return c.commitRemoval(ctx, removal, started)
}

// commitRemoval must be called holding the sequencer slot of the removed id
func (c *Coordinator[E, P]) commitRemoval(ctx context.Context, removal collection.Removal[E], started time.Time) (Result[E], error) {
	id := removal.Entity.EntityID()

	attempts, err := c.opts.Retry.call(ctx, func() error {
		return c.opts.Gateway.Delete(ctx, id)
	})
	if rej, ok := remote.AsRejected(err); ok && rej.Code == remote.CodeNotFound {
		zerolog.Ctx(ctx).Debug().Str("kind", string(c.opts.Kind)).Str("id", id.String()).Msg("already deleted on the server")
		err = nil
	}

	if err != nil {
		c.opts.Store.Restore(ctx, removal)

		merr := classify(c.opts.Kind, OpDelete, id, err)
		c.settle(ctx, Settlement{Op: OpDelete, ID: id, Outcome: RolledBack, Attempts: attempts, Err: merr, Started: started}, "")
		return Result[E]{Outcome: RolledBack, ID: id, Entity: removal.Entity, Attempts: attempts}, merr
	}

	if c.opts.OnDeleted != nil {
		c.opts.OnDeleted(ctx, removal.Entity)
	}
	c.settle(ctx, Settlement{Op: OpDelete, ID: id, Outcome: Committed, Attempts: attempts, Started: started}, c.messages.Deleted)
	return Result[E]{Outcome: Committed, ID: id, Entity: removal.Entity, Attempts: attempts}, nil
}
