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

// Package memory is an in-process stand-in for the remote data service.
// It assigns server ids and timestamps, enforces the same rejections the real
// service does, and lets callers inject failures and latency.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

// Name is the name the backend registers under
const Name = "memory"

func init() {
	remote.Register(Name, func(ctx context.Context, opts remote.Options) (remote.Backend, error) {
		b := New(opts.Latency)
		if opts.FirstID > 0 {
			b.nextID = opts.FirstID
		}
		b.Seed(opts.Seed)
		return b, nil
	})
}

// Op is a gateway operation
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// 📞 Call records one gateway call as it arrived
type Call struct {
	Kind entity.Kind
	Op   Op
	ID   entity.ID
}

// Gate runs before a call is served. Returning an error fails the call.
type Gate func(ctx context.Context, call Call) error

type faultKey struct {
	kind entity.Kind
	op   Op
}

// 🗄️ Backend keeps the server-side state in memory
type Backend struct {
	mu      sync.Mutex
	latency time.Duration
	now     func() time.Time
	nextID  int64

	lists   []entity.List
	tags    []entity.Tag
	tasks   []entity.Task
	members []entity.Member

	faults map[faultKey][]error
	calls  []Call
	gate   Gate
}

var _ remote.Backend = (*Backend)(nil)

// 🏭 New creates an empty backend
func New(latency time.Duration) *Backend {
	return &Backend{
		latency: latency,
		now:     func() time.Time { return time.Now().UTC() },
		nextID:  100,
		faults:  make(map[faultKey][]error),
	}
}

func (b *Backend) Name() string { return Name }

// SetClock replaces the server clock
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetGate installs a hook that runs before every call
func (b *Backend) SetGate(gate Gate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = gate
}

// 💥 FailNext makes the next call of kind/op fail with err instead of being served
func (b *Backend) FailNext(kind entity.Kind, op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := faultKey{kind: kind, op: op}
	b.faults[key] = append(b.faults[key], err)
}

// Calls returns every call received so far
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// CallsFor returns the calls matching kind and op
func (b *Backend) CallsFor(kind entity.Kind, op Op) []Call {
	out := []Call{}
	for _, c := range b.Calls() {
		if c.Kind == kind && c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// 🌱 Seed replaces the stored state. Numeric ids move the id counter past them.
func (b *Backend) Seed(ds remote.Dataset) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lists = slices.Clone(ds.Lists)
	b.tags = slices.Clone(ds.Tags)
	b.tasks = make([]entity.Task, 0, len(ds.Tasks))
	for _, t := range ds.Tasks {
		b.tasks = append(b.tasks, cloneTask(t))
	}
	b.members = slices.Clone(ds.Members)

	bump := func(id entity.ID) {
		if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && n >= b.nextID {
			b.nextID = n + 1
		}
	}
	for _, t := range b.tasks {
		bump(t.ID)
	}
	for _, t := range b.tags {
		bump(t.ID)
	}
}

func (b *Backend) Load(ctx context.Context) (remote.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds := remote.Dataset{
		Lists:   slices.Clone(b.lists),
		Tags:    slices.Clone(b.tags),
		Tasks:   make([]entity.Task, 0, len(b.tasks)),
		Members: slices.Clone(b.members),
	}
	for _, t := range b.tasks {
		ds.Tasks = append(ds.Tasks, cloneTask(t))
	}
	return ds, nil
}

// begin records the call, waits out the latency, runs the gate and pops an
// injected fault. It must be called without mu held.
func (b *Backend) begin(ctx context.Context, kind entity.Kind, op Op, id entity.ID) error {
	call := Call{Kind: kind, Op: op, ID: id}

	b.mu.Lock()
	b.calls = append(b.calls, call)
	latency, gate := b.latency, b.gate
	b.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Str("kind", string(kind)).Str("op", string(op)).Str("id", id.String()).Msg("backend call")

	if latency > 0 {
		select {
		case <-ctx.Done():
			return errors.Errorf("%w: %w", remote.ErrUnavailable, ctx.Err())
		case <-time.After(latency):
		}
	}

	if gate != nil {
		if err := gate(ctx, call); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := faultKey{kind: kind, op: op}
	if queued := b.faults[key]; len(queued) > 0 {
		b.faults[key] = queued[1:]
		return queued[0]
	}
	return nil
}

// issueID must be called with mu held
func (b *Backend) issueID() entity.ID {
	id := b.nextID
	b.nextID++
	return entity.ID(strconv.FormatInt(id, 10))
}

// checkPayload rejects payloads that still carry client-side placeholders
func checkPayload(ids ...entity.ID) error {
	for _, id := range ids {
		if id.IsTemporary() {
			return remote.Reject(remote.CodeInvalid, "payload references unsaved id %s", id)
		}
	}
	return nil
}

// listIndex must be called with mu held
func (b *Backend) listIndex(id entity.ID) int {
	return slices.IndexFunc(b.lists, func(l entity.List) bool { return l.ID == id })
}

func cloneTask(t entity.Task) entity.Task {
	t.TagIDs = slices.Clone(t.TagIDs)
	t.AssigneeIDs = slices.Clone(t.AssigneeIDs)
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}
