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

// Package deferred implements delete with undo: an entity is hidden at once
// and only deleted on the server once the undo window passes.
package deferred

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/tempid"
	"gitlab.com/tozd/go/errors"
)

// DefaultWindow is how long a deletion can be undone
const DefaultWindow = 4 * time.Second

// DefaultUndoLabel is the label of the undo button
const DefaultUndoLabel = "Undo"

var (
	// ErrAlreadyPending is returned when the entity already has an active deletion
	ErrAlreadyPending = errors.Base("deletion already pending")
	// ErrNotFound is returned when there is nothing visible to delete
	ErrNotFound = errors.Base("entity not found")
)

// State is the lifecycle state of one deletion
type State string

const (
	StatePending   State = "pending"
	StateHidden    State = "hidden"
	StateCancelled State = "cancelled"
	StateCommitted State = "committed"
)

const (
	eventHide   = "hide"
	eventCancel = "cancel"
	eventCommit = "commit"
)

// 🗑️ Committer performs the server delete for an entity already taken out of its store
type Committer[E any] interface {
	// Acquire waits for the mutations running on id and holds it until release
	Acquire(ctx context.Context, id entity.ID) (entity.ID, func(), error)
	CommitRemoval(ctx context.Context, removal collection.Removal[E]) (mutation.Result[E], error)
}

// TransitionFunc observes every state change of every deletion
type TransitionFunc func(ctx context.Context, kind entity.Kind, id entity.ID, state State)

// ⚙️ Options configure a Manager
type Options[E entity.Record[E]] struct {
	Kind      entity.Kind
	Store     *collection.Store[E]
	Committer Committer[E]
	IDs       *tempid.Reconciler
	Notifier  notify.Notifier
	// Messages default to notify.MessagesFor(Kind)
	Messages     *notify.Messages
	Window       time.Duration
	UndoLabel    string
	Clock        Clock
	OnTransition TransitionFunc
}

// ⏳ Manager runs the deferred deletions of one entity kind
type Manager[E entity.Record[E]] struct {
	opts     Options[E]
	messages notify.Messages

	mu       sync.Mutex
	active   map[entity.ID]*Deletion[E]
	inflight sync.WaitGroup
}

// 🏭 New creates a manager
func New[E entity.Record[E]](opts Options[E]) *Manager[E] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.UndoLabel == "" {
		opts.UndoLabel = DefaultUndoLabel
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.IDs == nil {
		opts.IDs = tempid.New()
	}
	messages := notify.MessagesFor(opts.Kind)
	if opts.Messages != nil {
		messages = *opts.Messages
	}
	return &Manager[E]{
		opts:     opts,
		messages: messages,
		active:   make(map[entity.ID]*Deletion[E]),
	}
}

// 🧾 Deletion is one delete-with-undo request
type Deletion[E entity.Record[E]] struct {
	id       entity.ID
	removal  collection.Removal[E]
	deadline time.Time
	machine  *fsm.FSM
	timer    Timer
	ctx      context.Context
	manager  *Manager[E]

	done   chan struct{}
	result mutation.Result[E]
	err    error
}

// ID is the id the entity had when it was hidden
func (d *Deletion[E]) ID() entity.ID { return d.id }

// State returns where the deletion is in its lifecycle
func (d *Deletion[E]) State() State { return State(d.machine.Current()) }

// Deadline is when the deletion commits unless cancelled
func (d *Deletion[E]) Deadline() time.Time { return d.deadline }

// Done is closed once the deletion was cancelled or its commit settled
func (d *Deletion[E]) Done() <-chan struct{} { return d.done }

// Err returns the commit error, valid after Done is closed
func (d *Deletion[E]) Err() error { return d.err }

// Result returns the commit result, valid after Done is closed
func (d *Deletion[E]) Result() mutation.Result[E] { return d.result }

// Cancel undoes this deletion, see Manager.Cancel
func (d *Deletion[E]) Cancel(ctx context.Context) bool { return d.manager.cancel(ctx, d) }

func (m *Manager[E]) newMachine(id entity.ID) *fsm.FSM {
	return fsm.NewFSM(
		string(StatePending),
		fsm.Events{
			{Name: eventHide, Src: []string{string(StatePending)}, Dst: string(StateHidden)},
			{Name: eventCancel, Src: []string{string(StateHidden)}, Dst: string(StateCancelled)},
			{Name: eventCommit, Src: []string{string(StateHidden)}, Dst: string(StateCommitted)},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				zerolog.Ctx(ctx).Debug().
					Str("kind", string(m.opts.Kind)).
					Str("id", id.String()).
					Str("from", e.Src).
					Str("to", e.Dst).
					Msg("deletion transition")
				if m.opts.OnTransition != nil {
					m.opts.OnTransition(ctx, m.opts.Kind, id, State(e.Dst))
				}
			},
		},
	)
}

// lookup must be called with mu held
func (m *Manager[E]) lookup(id entity.ID) (*Deletion[E], bool) {
	if d, ok := m.active[id]; ok {
		return d, true
	}
	d, ok := m.active[m.opts.IDs.Current(id)]
	return d, ok
}

// 🫥 Delete hides id and schedules its server delete after the undo window.
// An update still running on id settles first, so what is hidden is what the
// server agreed to. An entity whose create is still running is hidden at once.
// The notification shown carries an undo button that cancels the deletion.
func (m *Manager[E]) Delete(ctx context.Context, id entity.ID) (*Deletion[E], error) {
	target := m.opts.IDs.Current(id)
	if !target.IsTemporary() {
		settled, release, err := m.opts.Committer.Acquire(ctx, target)
		if err != nil {
			return nil, errors.Errorf("deleting %s %s: %w", m.opts.Kind, id, err)
		}
		defer release()
		target = settled
	}
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if _, ok := m.lookup(target); ok {
		m.mu.Unlock()
		return nil, errors.Errorf("deleting %s %s: %w", m.opts.Kind, id, ErrAlreadyPending)
	}
	if _, ok := m.lookup(id); ok {
		m.mu.Unlock()
		return nil, errors.Errorf("deleting %s %s: %w", m.opts.Kind, id, ErrAlreadyPending)
	}

	removal, ok := m.opts.Store.Remove(ctx, target)
	if !ok {
		m.mu.Unlock()
		return nil, errors.Errorf("deleting %s %s: %w", m.opts.Kind, id, ErrNotFound)
	}

	d := &Deletion[E]{
		id:       target,
		removal:  removal,
		deadline: m.opts.Clock.Now().Add(m.opts.Window),
		machine:  m.newMachine(target),
		ctx:      ctx,
		manager:  m,
		done:     make(chan struct{}),
	}
	if err := d.machine.Event(ctx, eventHide); err != nil {
		m.opts.Store.Restore(ctx, removal)
		m.mu.Unlock()
		return nil, errors.Errorf("hiding %s %s: %w", m.opts.Kind, id, err)
	}
	m.active[target] = d
	d.timer = m.opts.Clock.AfterFunc(m.opts.Window, func() { m.expire(d) })
	m.mu.Unlock()

	m.opts.Notifier.Actionable(m.messages.Hidden, notify.Action{
		Label:    m.opts.UndoLabel,
		OnAction: func() { m.cancel(ctx, d) },
	}, m.opts.Window)

	return d, nil
}

// ↩️ Cancel undoes the active deletion of id. It reports false when there is
// none or its commit already started.
func (m *Manager[E]) Cancel(ctx context.Context, id entity.ID) bool {
	m.mu.Lock()
	d, ok := m.lookup(id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	return m.cancel(ctx, d)
}

func (m *Manager[E]) cancel(ctx context.Context, d *Deletion[E]) bool {
	m.mu.Lock()
	if !d.machine.Can(eventCancel) {
		m.mu.Unlock()
		zerolog.Ctx(ctx).Debug().Str("kind", string(m.opts.Kind)).Str("id", d.id.String()).Str("state", d.machine.Current()).Msg("undo ignored")
		return false
	}
	if err := d.machine.Event(context.WithoutCancel(ctx), eventCancel); err != nil {
		m.mu.Unlock()
		zerolog.Ctx(ctx).Warn().Err(err).Str("id", d.id.String()).Msg("cancelling deletion")
		return false
	}
	d.timer.Stop()
	delete(m.active, d.id)
	m.mu.Unlock()

	m.restore(ctx, d.removal)
	close(d.done)
	return true
}

// restore puts a hidden entity back, following its id and the ids it
// references through reconciliation
func (m *Manager[E]) restore(ctx context.Context, removal collection.Removal[E]) {
	id := removal.Entity.EntityID()
	if id.IsTemporary() {
		state, _ := m.opts.IDs.State(id)
		switch state {
		case tempid.Discarded:
			zerolog.Ctx(ctx).Debug().Str("temp_id", id.String()).Msg("create failed while hidden, nothing to restore")
			return
		case tempid.Resolved:
			removal.Entity = removal.Entity.WithID(m.opts.IDs.Current(id))
		}
	}
	removal.Entity = tempid.MapCurrent(m.opts.IDs, removal.Entity.MapRefs)
	m.opts.Store.Restore(ctx, removal)

	// the create may have settled between the state check and the restore
	restored := removal.Entity.EntityID()
	if id.IsTemporary() && restored == id {
		switch state, _ := m.opts.IDs.State(id); state {
		case tempid.Resolved:
			restored = m.opts.IDs.Current(id)
			m.opts.Store.ReplaceID(ctx, id, restored)
		case tempid.Discarded:
			m.opts.Store.Remove(ctx, id)
			return
		}
	}

	// so may the creates of the entities it references
	if holdsTemporary(removal.Entity) {
		m.opts.Store.RemapRefs(ctx, restored, m.opts.IDs.CurrentRef)
	}
}

func holdsTemporary[E entity.Record[E]](e E) bool {
	found := false
	e.MapRefs(func(ref entity.ID) (entity.ID, bool) {
		found = found || ref.IsTemporary()
		return ref, true
	})
	return found
}

// expire runs when the undo window passes
func (m *Manager[E]) expire(d *Deletion[E]) {
	m.mu.Lock()
	if !d.machine.Can(eventCommit) {
		m.mu.Unlock()
		return
	}
	if err := d.machine.Event(d.ctx, eventCommit); err != nil {
		m.mu.Unlock()
		zerolog.Ctx(d.ctx).Warn().Err(err).Str("id", d.id.String()).Msg("committing deletion")
		return
	}
	delete(m.active, d.id)
	m.inflight.Add(1)
	m.mu.Unlock()

	defer m.inflight.Done()
	m.commit(d)
}

func (m *Manager[E]) commit(d *Deletion[E]) {
	res, err := m.opts.Committer.CommitRemoval(d.ctx, d.removal)
	d.result = res
	d.err = err
	close(d.done)
}

// 🚿 Flush commits every hidden deletion now instead of waiting for its
// window, and waits for every commit in flight.
func (m *Manager[E]) Flush(ctx context.Context) error {
	m.mu.Lock()
	due := []*Deletion[E]{}
	for id, d := range m.active {
		if !d.machine.Can(eventCommit) {
			continue
		}
		if err := d.machine.Event(d.ctx, eventCommit); err != nil {
			continue
		}
		d.timer.Stop()
		delete(m.active, id)
		due = append(due, d)
	}
	m.inflight.Add(len(due))
	m.mu.Unlock()

	errs := []error{}
	for _, d := range due {
		m.commit(d)
		m.inflight.Done()
		if d.err != nil {
			errs = append(errs, d.err)
		}
	}

	waited := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return errors.Errorf("flushing deletions: %w", ctx.Err())
	}
	return errors.Join(errs...)
}

// Active returns the number of deletions still inside their undo window
func (m *Manager[E]) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Hidden reports whether id is hidden by an active deletion
func (m *Manager[E]) Hidden(id entity.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(id)
	return ok
}
