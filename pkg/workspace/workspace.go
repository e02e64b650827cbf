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

// Package workspace wires the stores, coordinators and deletion managers of
// every entity kind into the surface the ui talks to.
package workspace

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/remote"
	"github.com/walteh/optimist/pkg/tempid"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyHydrated is returned by a second Hydrate
var ErrAlreadyHydrated = errors.Base("workspace already hydrated")

// ⚙️ Options configure a workspace
type Options struct {
	Backend  remote.Backend
	Notifier notify.Notifier
	Reporter mutation.Reporter
	Retry    mutation.RetryPolicy

	UndoWindow   time.Duration
	UndoLabel    string
	Clock        deferred.Clock
	OnTransition deferred.TransitionFunc

	// Now stamps placeholders, defaults to the clock
	Now func() time.Time
}

// 🗂️ Workspace holds one signed-in user's collections
type Workspace struct {
	opts Options
	ids  *tempid.Reconciler

	tasks   *collection.Store[entity.Task]
	tags    *collection.Store[entity.Tag]
	lists   *collection.Store[entity.List]
	members *collection.Store[entity.Member]

	taskC *mutation.Coordinator[entity.Task, entity.TaskPatch]
	tagC  *mutation.Coordinator[entity.Tag, entity.TagPatch]
	listC *mutation.Coordinator[entity.List, entity.ListPatch]

	taskDel *deferred.Manager[entity.Task]
	tagDel  *deferred.Manager[entity.Tag]
	listDel *deferred.Manager[entity.List]

	hydrated atomic.Bool
}

// 🏭 New builds a workspace on top of opts.Backend
func New(opts Options) (*Workspace, error) {
	if opts.Backend == nil {
		return nil, errors.Errorf("backend is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Clock == nil {
		opts.Clock = deferred.RealClock{}
	}
	if opts.Now == nil {
		clock := opts.Clock
		opts.Now = func() time.Time { return clock.Now().UTC() }
	}

	w := &Workspace{
		opts:    opts,
		ids:     tempid.New(),
		tasks:   collection.New[entity.Task](entity.KindTask),
		tags:    collection.New[entity.Tag](entity.KindTag),
		lists:   collection.New[entity.List](entity.KindList),
		members: collection.New[entity.Member](entity.KindMember),
	}
	w.ids.Register(w.tasks, w.tags, w.lists)

	w.taskC = mutation.New(mutation.Options[entity.Task, entity.TaskPatch]{
		Kind:     entity.KindTask,
		Store:    w.tasks,
		Gateway:  opts.Backend.Tasks(),
		IDs:      w.ids,
		Notifier: opts.Notifier,
		Reporter: opts.Reporter,
		Prepare:  entity.PrepareTask,
		Now:      opts.Now,
		Retry:    opts.Retry,
	})
	w.tagC = mutation.New(mutation.Options[entity.Tag, entity.TagPatch]{
		Kind:      entity.KindTag,
		Store:     w.tags,
		Gateway:   opts.Backend.Tags(),
		IDs:       w.ids,
		Notifier:  opts.Notifier,
		Reporter:  opts.Reporter,
		Prepare:   entity.PrepareTag,
		Now:       opts.Now,
		Retry:     opts.Retry,
		OnDeleted: w.tagDeleted,
	})
	w.listC = mutation.New(mutation.Options[entity.List, entity.ListPatch]{
		Kind:      entity.KindList,
		Store:     w.lists,
		Gateway:   opts.Backend.Lists(),
		IDs:       w.ids,
		Notifier:  opts.Notifier,
		Reporter:  opts.Reporter,
		Prepare:   entity.PrepareList,
		Now:       opts.Now,
		Retry:     opts.Retry,
		OnDeleted: w.listDeleted,
	})

	w.taskDel = deferred.New(deferred.Options[entity.Task]{
		Kind: entity.KindTask, Store: w.tasks, Committer: w.taskC, IDs: w.ids, Notifier: opts.Notifier,
		Window: opts.UndoWindow, UndoLabel: opts.UndoLabel, Clock: opts.Clock, OnTransition: opts.OnTransition,
	})
	w.tagDel = deferred.New(deferred.Options[entity.Tag]{
		Kind: entity.KindTag, Store: w.tags, Committer: w.tagC, IDs: w.ids, Notifier: opts.Notifier,
		Window: opts.UndoWindow, UndoLabel: opts.UndoLabel, Clock: opts.Clock, OnTransition: opts.OnTransition,
	})
	w.listDel = deferred.New(deferred.Options[entity.List]{
		Kind: entity.KindList, Store: w.lists, Committer: w.listC, IDs: w.ids, Notifier: opts.Notifier,
		Window: opts.UndoWindow, UndoLabel: opts.UndoLabel, Clock: opts.Clock, OnTransition: opts.OnTransition,
	})

	return w, nil
}

// 💧 Hydrate loads everything the user can see into the empty stores
func (w *Workspace) Hydrate(ctx context.Context) error {
	if !w.hydrated.CompareAndSwap(false, true) {
		return ErrAlreadyHydrated
	}
	ds, err := w.opts.Backend.Load(ctx)
	if err != nil {
		w.hydrated.Store(false)
		return errors.Errorf("loading from %s: %w", w.opts.Backend.Name(), err)
	}
	for _, l := range ds.Lists {
		w.lists.Insert(ctx, l, -1)
	}
	for _, t := range ds.Tags {
		w.tags.Insert(ctx, t, -1)
	}
	for _, t := range ds.Tasks {
		w.tasks.Insert(ctx, t, -1)
	}
	for _, m := range ds.Members {
		w.members.Insert(ctx, m, -1)
	}
	zerolog.Ctx(ctx).Debug().
		Int("lists", len(ds.Lists)).
		Int("tags", len(ds.Tags)).
		Int("tasks", len(ds.Tasks)).
		Int("members", len(ds.Members)).
		Msg("hydrated")
	return nil
}

// tagDeleted drops the tag from every task that still carries it
func (w *Workspace) tagDeleted(ctx context.Context, tag entity.Tag) {
	n := w.tasks.RewriteRefs(ctx, tag.ID, "")
	zerolog.Ctx(ctx).Debug().Str("tag", tag.ID.String()).Int("tasks", n).Msg("stripped deleted tag")
}

// listDeleted prunes the tasks and tags the server removed along with the list
func (w *Workspace) listDeleted(ctx context.Context, list entity.List) {
	scope := entity.ListScope(list.ID)
	for _, t := range w.tasks.Owned(scope) {
		w.tasks.Remove(ctx, t.ID)
	}
	for _, t := range w.tags.Owned(scope) {
		w.tags.Remove(ctx, t.ID)
	}
}

// 🚿 Flush commits every deletion still inside its undo window and waits for them
func (w *Workspace) Flush(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.taskDel.Flush(ctx) })
	g.Go(func() error { return w.tagDel.Flush(ctx) })
	if err := g.Wait(); err != nil {
		return errors.Errorf("flushing deletions: %w", err)
	}
	// lists last, their cascade prunes what the others left
	if err := w.listDel.Flush(ctx); err != nil {
		return errors.Errorf("flushing list deletions: %w", err)
	}
	return nil
}

// IDs returns the temporary id reconciler shared by every kind
func (w *Workspace) IDs() *tempid.Reconciler { return w.ids }

// TaskStore returns the task store
func (w *Workspace) TaskStore() *collection.Store[entity.Task] { return w.tasks }

// TagStore returns the tag store
func (w *Workspace) TagStore() *collection.Store[entity.Tag] { return w.tags }

// ListStore returns the list store
func (w *Workspace) ListStore() *collection.Store[entity.List] { return w.lists }

// MemberStore returns the member directory
func (w *Workspace) MemberStore() *collection.Store[entity.Member] { return w.members }

// Backend returns the backend the workspace talks to
func (w *Workspace) Backend() remote.Backend { return w.opts.Backend }
