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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/remote"
	"github.com/walteh/optimist/pkg/remote/memory"
	"github.com/walteh/optimist/pkg/tempid"
	"gitlab.com/tozd/go/errors"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

type fixture struct {
	ctx     context.Context
	backend *memory.Backend
	ids     *tempid.Reconciler
	tasks   *collection.Store[entity.Task]
	tags    *collection.Store[entity.Tag]
	notes   *notify.Recorder
	taskC   *Coordinator[entity.Task, entity.TaskPatch]
	tagC    *Coordinator[entity.Tag, entity.TagPatch]

	mu      sync.Mutex
	settled []Settlement
}

func newFixture(t *testing.T, seed remote.Dataset) *fixture {
	f := &fixture{
		ctx:     setupTestLogger(t),
		backend: memory.New(0),
		ids:     tempid.New(),
		tasks:   collection.New[entity.Task](entity.KindTask),
		tags:    collection.New[entity.Tag](entity.KindTag),
		notes:   notify.NewRecorder(nil),
	}
	f.backend.Seed(seed)
	for _, task := range seed.Tasks {
		f.tasks.Insert(f.ctx, task, -1)
	}
	for _, tag := range seed.Tags {
		f.tags.Insert(f.ctx, tag, -1)
	}
	f.ids.Register(f.tasks, f.tags)

	reporter := ReporterFunc(func(ctx context.Context, s Settlement) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.settled = append(f.settled, s)
	})

	f.taskC = New(Options[entity.Task, entity.TaskPatch]{
		Kind:     entity.KindTask,
		Store:    f.tasks,
		Gateway:  f.backend.Tasks(),
		IDs:      f.ids,
		Notifier: f.notes,
		Reporter: reporter,
		Prepare:  entity.PrepareTask,
	})
	f.tagC = New(Options[entity.Tag, entity.TagPatch]{
		Kind:     entity.KindTag,
		Store:    f.tags,
		Gateway:  f.backend.Tags(),
		IDs:      f.ids,
		Notifier: f.notes,
		Reporter: reporter,
		Prepare:  entity.PrepareTag,
	})
	return f
}

func (f *fixture) settlements() []Settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Settlement(nil), f.settled...)
}

// hold blocks gateway calls of kind/op until the returned function is called
// with the error the call should fail with
func hold(b *memory.Backend, kind entity.Kind, op memory.Op) func(err error) {
	ch := make(chan error, 1)
	b.SetGate(func(ctx context.Context, call memory.Call) error {
		if call.Kind != kind || call.Op != op {
			return nil
		}
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return func(err error) { ch <- err }
}

func titles(tasks []entity.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func groceries() remote.Dataset {
	return remote.Dataset{
		Lists: []entity.List{{ID: "7", Title: "Groceries"}, {ID: "8", Title: "Work"}},
		Tasks: []entity.Task{
			{ID: "99", ListID: "7", Title: "Eggs"},
			{ID: "100", ListID: "7", Title: "Bread"},
		},
	}
}

func TestCreateAtIndex(t *testing.T) {
	f := newFixture(t, groceries())
	release := hold(f.backend, entity.KindTask, memory.OpCreate)

	type outcome struct {
		res Result[entity.Task]
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.taskC.Create(f.ctx, entity.Task{ListID: "7", Title: "Buy milk"}, 0)
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return f.tasks.Len() == 3 }, time.Second, time.Millisecond)
	pending := f.tasks.Owned(entity.ListScope("7"))
	assert.Equal(t, []string{"Buy milk", "Eggs", "Bread"}, titles(pending), "placeholder should show up first right away")
	assert.True(t, pending[0].ID.IsTemporary(), "placeholder should carry a temporary id")
	assert.False(t, pending[0].IsCompleted)
	assert.False(t, pending[0].CreatedAt.IsZero(), "placeholder should carry a creation time")

	release(nil)
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, Committed, got.res.Outcome)
	assert.Equal(t, entity.ID("101"), got.res.ID)
	assert.Equal(t, pending[0].ID, got.res.TempID)

	settledTasks := f.tasks.Owned(entity.ListScope("7"))
	assert.Equal(t, []string{"Buy milk", "Eggs", "Bread"}, titles(settledTasks), "position should be kept")
	assert.Equal(t, entity.ID("101"), settledTasks[0].ID)
	assert.Empty(t, f.notes.Notes(), "task creation has no success text")
}

func TestCreateFailureRemovesPlaceholder(t *testing.T) {
	f := newFixture(t, groceries())
	f.backend.FailNext(entity.KindTask, memory.OpCreate, remote.ErrUnavailable)
	before := f.tasks.Snapshot()

	res, err := f.taskC.Create(f.ctx, entity.Task{ListID: "7", Title: "Buy milk"}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.Equal(t, RolledBack, res.Outcome)
	assert.Equal(t, before, f.tasks.Snapshot(), "placeholder should be gone")

	state, ok := f.ids.State(res.TempID)
	require.True(t, ok)
	assert.Equal(t, tempid.Discarded, state)
	assert.Equal(t, []string{notify.MessagesFor(entity.KindTask).CreateFailed}, f.notes.Errors())
}

func TestCreateUnknownListIsRejected(t *testing.T) {
	f := newFixture(t, groceries())

	_, err := f.taskC.Create(f.ctx, entity.Task{ListID: "404", Title: "Lost"}, -1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRejected)

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, remote.CodeNotFound, merr.Code)
	assert.Equal(t, "list 404 not found", merr.Message, "server message should be carried")
}

func TestUpdateRejectedRollsBack(t *testing.T) {
	f := newFixture(t, remote.Dataset{
		Lists: []entity.List{{ID: "7", Title: "Work"}},
		Tasks: []entity.Task{{ID: "9", ListID: "7", Title: "Report"}},
	})
	f.backend.FailNext(entity.KindTask, memory.OpUpdate, remote.Reject(remote.CodeForbidden, "forbidden"))

	done := true
	res, err := f.taskC.Update(f.ctx, "9", entity.TaskPatch{IsCompleted: &done})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.NotErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, RolledBack, res.Outcome)

	task, ok := f.tasks.Get("9")
	require.True(t, ok)
	assert.False(t, task.IsCompleted, "completion should revert")
	assert.Equal(t, []string{notify.MessagesFor(entity.KindTask).UpdateFailed}, f.notes.Errors())
	assert.Len(t, f.notes.Notes(), 1, "exactly one notification")
}

func TestUpdateRollbackRestoresExactEntity(t *testing.T) {
	due := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	original := entity.Task{
		ID:          "9",
		ListID:      "7",
		Title:       "Report",
		Description: "quarterly",
		DueDate:     &due,
		TagIDs:      []entity.ID{"t1", "t2"},
		AssigneeIDs: []entity.ID{"m1"},
		CreatedAt:   due.Add(-time.Hour),
		UpdatedAt:   due.Add(-time.Minute),
	}

	title := "Renamed"
	done := true
	emptyTags := []entity.ID{}
	otherList := entity.ID("8")

	tests := []struct {
		name  string
		patch entity.TaskPatch
	}{
		{name: "title", patch: entity.TaskPatch{Title: &title}},
		{name: "completion", patch: entity.TaskPatch{IsCompleted: &done}},
		{name: "clear_due_date", patch: entity.TaskPatch{ClearDueDate: true}},
		{name: "drop_tags", patch: entity.TaskPatch{TagIDs: &emptyTags}},
		{name: "move_list", patch: entity.TaskPatch{ListID: &otherList}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, remote.Dataset{
				Lists: []entity.List{{ID: "7"}, {ID: "8"}},
				Tasks: []entity.Task{original},
			})
			f.backend.FailNext(entity.KindTask, memory.OpUpdate, remote.ErrUnavailable)
			before := f.tasks.Snapshot()

			_, err := f.taskC.Update(f.ctx, "9", tt.patch)
			require.ErrorIs(t, err, ErrNetworkFailure)
			assert.Equal(t, before, f.tasks.Snapshot(), "store should equal its state before the patch")
		})
	}
}

func TestUpdatesOnOneIDRunInOrder(t *testing.T) {
	f := newFixture(t, remote.Dataset{
		Lists: []entity.List{{ID: "7", Title: "Work"}},
		Tasks: []entity.Task{{ID: "9", ListID: "7", Title: "Report"}},
	})

	first := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls atomic.Int32
	f.backend.SetGate(func(ctx context.Context, call memory.Call) error {
		switch calls.Add(1) {
		case 1:
			close(first)
			<-releaseFirst
			return nil
		default:
			return remote.Reject(remote.CodeForbidden, "forbidden")
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	title := "Report v2"
	go func() {
		defer wg.Done()
		_, err := f.taskC.Update(f.ctx, "9", entity.TaskPatch{Title: &title})
		assert.NoError(t, err)
	}()
	<-first

	done := true
	go func() {
		defer wg.Done()
		_, err := f.taskC.Update(f.ctx, "9", entity.TaskPatch{IsCompleted: &done})
		assert.ErrorIs(t, err, ErrRemoteRejected)
	}()

	time.Sleep(20 * time.Millisecond)
	mid, _ := f.tasks.Get("9")
	assert.Equal(t, "Report v2", mid.Title, "first update applies right away")
	assert.False(t, mid.IsCompleted, "second update must wait for the first to settle")
	assert.True(t, f.taskC.Sequencer().Busy("9"))

	close(releaseFirst)
	wg.Wait()

	final, _ := f.tasks.Get("9")
	assert.Equal(t, "Report v2", final.Title, "second rollback must not undo the first update")
	assert.False(t, final.IsCompleted)
	assert.False(t, f.taskC.Sequencer().Busy("9"))
}

func TestTagAttachedBeforeItsCreateSettles(t *testing.T) {
	f := newFixture(t, remote.Dataset{
		Lists: []entity.List{{ID: "7", Title: "Work"}},
		Tasks: []entity.Task{{ID: "9", ListID: "7", Title: "Report"}},
	})
	release := hold(f.backend, entity.KindTag, memory.OpCreate)

	var wg sync.WaitGroup
	wg.Add(2)
	var created Result[entity.Tag]
	go func() {
		defer wg.Done()
		var err error
		created, err = f.tagC.Create(f.ctx, entity.Tag{ListID: "7", Name: "urgent"}, -1)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return f.tags.Len() == 1 }, time.Second, time.Millisecond)
	tmp := f.tags.Snapshot()[0].ID
	require.True(t, tmp.IsTemporary())

	go func() {
		defer wg.Done()
		tagIDs := []entity.ID{tmp}
		_, err := f.taskC.Update(f.ctx, "9", entity.TaskPatch{TagIDs: &tagIDs})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		task, _ := f.tasks.Get("9")
		return entity.ContainsID(task.TagIDs, tmp)
	}, time.Second, time.Millisecond, "task should show the unsaved tag right away")

	release(nil)
	wg.Wait()

	task, _ := f.tasks.Get("9")
	assert.Equal(t, []entity.ID{created.ID}, task.TagIDs)

	server, err := f.backend.Load(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.ID{created.ID}, server.Tasks[0].TagIDs, "server only ever saw the real id")

	for _, tk := range f.tasks.Snapshot() {
		for _, id := range tk.TagIDs {
			assert.False(t, id.IsTemporary(), "temporary id %s survived", id)
		}
	}
}

func TestFailedTagCreateDropsReferences(t *testing.T) {
	f := newFixture(t, remote.Dataset{
		Lists: []entity.List{{ID: "7", Title: "Work"}},
		Tasks: []entity.Task{{ID: "9", ListID: "7", Title: "Report"}},
	})
	release := hold(f.backend, entity.KindTag, memory.OpCreate)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.tagC.Create(f.ctx, entity.Tag{ListID: "7", Name: "urgent"}, -1)
		assert.ErrorIs(t, err, ErrNetworkFailure)
	}()
	require.Eventually(t, func() bool { return f.tags.Len() == 1 }, time.Second, time.Millisecond)
	tmp := f.tags.Snapshot()[0].ID

	go func() {
		defer wg.Done()
		tagIDs := []entity.ID{tmp}
		_, err := f.taskC.Update(f.ctx, "9", entity.TaskPatch{TagIDs: &tagIDs})
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		task, _ := f.tasks.Get("9")
		return entity.ContainsID(task.TagIDs, tmp)
	}, time.Second, time.Millisecond)

	release(remote.ErrUnavailable)
	wg.Wait()

	task, _ := f.tasks.Get("9")
	assert.Empty(t, task.TagIDs, "reference to a failed create should be dropped")
	assert.Equal(t, 0, f.tags.Len())
}

func TestDeleteFailureRestoresPosition(t *testing.T) {
	f := newFixture(t, groceries())
	f.backend.FailNext(entity.KindTask, memory.OpDelete, remote.ErrUnavailable)
	before := f.tasks.Snapshot()

	res, err := f.taskC.Delete(f.ctx, "99")
	require.ErrorIs(t, err, ErrNetworkFailure)
	assert.Equal(t, RolledBack, res.Outcome)
	assert.Equal(t, before, f.tasks.Snapshot())
	assert.Equal(t, []string{notify.MessagesFor(entity.KindTask).DeleteFailed}, f.notes.Errors())
}

func TestDeleteAlreadyGoneOnServer(t *testing.T) {
	f := newFixture(t, groceries())
	f.backend.FailNext(entity.KindTask, memory.OpDelete, remote.Reject(remote.CodeNotFound, "task 99 not found"))

	res, err := f.taskC.Delete(f.ctx, "99")
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Outcome)
	assert.False(t, f.tasks.Has("99"))
}

func TestVanishedTargets(t *testing.T) {
	f := newFixture(t, groceries())
	title := "x"

	res, err := f.taskC.Update(f.ctx, "404", entity.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, Vanished, res.Outcome)
	assert.True(t, res.OK())

	res, err = f.taskC.Delete(f.ctx, "404")
	require.NoError(t, err)
	assert.Equal(t, Vanished, res.Outcome)

	assert.Empty(t, f.notes.Notes(), "vanished targets are not surfaced")
	assert.Empty(t, f.backend.Calls(), "nothing should reach the server")

	settled := f.settlements()
	require.Len(t, settled, 2)
	assert.Equal(t, Vanished, settled[0].Outcome)
	assert.Equal(t, OpDelete, settled[1].Op)
}

func TestCommitRemovalOfFailedCreate(t *testing.T) {
	f := newFixture(t, groceries())
	f.backend.FailNext(entity.KindTask, memory.OpCreate, remote.ErrUnavailable)

	res, err := f.taskC.Create(f.ctx, entity.Task{ListID: "7", Title: "ghost"}, -1)
	require.Error(t, err)

	out, err := f.taskC.CommitRemoval(f.ctx, collection.Removal[entity.Task]{Entity: entity.Task{ID: res.TempID, ListID: "7"}, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, Vanished, out.Outcome)
	assert.Empty(t, f.backend.CallsFor(entity.KindTask, memory.OpDelete))
}

func TestErrorFormatting(t *testing.T) {
	err := classify(entity.KindTag, OpCreate, "tmp~tag-a-1", remote.Reject(remote.CodeDuplicateName, "a tag named %q already exists", "x"))
	assert.Contains(t, err.Error(), "create tag tmp~tag-a-1")
	assert.Contains(t, err.Error(), `a tag named "x" already exists`)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.ErrorIs(t, err, ErrRemoteRejected)

	var rej *remote.RejectedError
	assert.True(t, errors.As(err, &rej), "the server rejection should stay reachable")
}
