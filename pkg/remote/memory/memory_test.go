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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*Backend, context.Context) {
	ctx := setupTestLogger(t)
	b := New(0)
	b.SetClock(func() time.Time { return fixedNow })
	b.Seed(remote.Dataset{
		Lists: []entity.List{{ID: "L1", Title: "Groceries"}},
		Tags:  []entity.Tag{{ID: "120", ListID: "L1", Name: "Urgent"}},
		Tasks: []entity.Task{{ID: "130", ListID: "L1", Title: "Milk", TagIDs: []entity.ID{"120"}}},
	})
	return b, ctx
}

func TestOpenRegisteredBackend(t *testing.T) {
	ctx := setupTestLogger(t)
	backend, err := remote.Open(ctx, Name, remote.Options{
		Seed: remote.Dataset{Lists: []entity.List{{ID: "L1", Title: "Inbox"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, Name, backend.Name())

	ds, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.Lists, 1)
}

func TestTaskCreate(t *testing.T) {
	b, ctx := seeded(t)

	created, err := b.Tasks().Create(ctx, entity.ListScope("L1"), entity.Task{ListID: "L1", Title: "Eggs", IsCompleted: true})
	require.NoError(t, err)
	assert.Equal(t, entity.ID("131"), created.ID, "ids continue after the seeded ones")
	assert.False(t, created.IsCompleted, "new tasks start open")
	assert.Equal(t, fixedNow, created.CreatedAt)

	_, err = b.Tasks().Create(ctx, entity.ListScope("nope"), entity.Task{ListID: "nope", Title: "x"})
	rej, ok := remote.AsRejected(err)
	require.True(t, ok, "unknown list should be a rejection")
	assert.Equal(t, remote.CodeNotFound, rej.Code)

	_, err = b.Tasks().Create(ctx, entity.ListScope("L1"), entity.Task{ListID: "L1", TagIDs: []entity.ID{"tmp~tag-s-1"}})
	rej, ok = remote.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, remote.CodeInvalid, rej.Code, "temporary ids never reach the server")
}

func TestTaskUpdateAndDelete(t *testing.T) {
	b, ctx := seeded(t)
	title := "Oat milk"

	got, err := b.Tasks().Update(ctx, "130", entity.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Oat milk", got.Title)
	assert.Equal(t, []entity.ID{"120"}, got.TagIDs)

	require.NoError(t, b.Tasks().Delete(ctx, "130"))
	err = b.Tasks().Delete(ctx, "130")
	rej, ok := remote.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, remote.CodeNotFound, rej.Code)
}

func TestTagDuplicateName(t *testing.T) {
	b, ctx := seeded(t)

	_, err := b.Tags().Create(ctx, entity.ListScope("L1"), entity.Tag{ListID: "L1", Name: "urgent"})
	rej, ok := remote.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, remote.CodeDuplicateName, rej.Code, "names compare case-insensitively")

	tag, err := b.Tags().Create(ctx, entity.ListScope("L1"), entity.Tag{ListID: "L1", Name: "Later"})
	require.NoError(t, err)

	name := "URGENT"
	_, err = b.Tags().Update(ctx, tag.ID, entity.TagPatch{Name: &name})
	rej, ok = remote.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, remote.CodeDuplicateName, rej.Code)
}

func TestTagDeleteStripsTasks(t *testing.T) {
	b, ctx := seeded(t)

	require.NoError(t, b.Tags().Delete(ctx, "120"))
	ds, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds.Tasks[0].TagIDs)
}

func TestListLifecycle(t *testing.T) {
	b, ctx := seeded(t)

	list, err := b.Lists().Create(ctx, entity.ListsCollection, entity.List{Title: "Work"})
	require.NoError(t, err)
	_, err = uuid.Parse(list.ID.String())
	assert.NoError(t, err, "list ids are uuids")

	require.NoError(t, b.Lists().Delete(ctx, "L1"))
	ds, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, ds.Lists, 1)
	assert.Empty(t, ds.Tasks, "tasks of a deleted list go with it")
	assert.Empty(t, ds.Tags, "tags of a deleted list go with it")
}

func TestFailNext(t *testing.T) {
	b, ctx := seeded(t)
	b.FailNext(entity.KindTask, OpDelete, remote.ErrUnavailable)

	err := b.Tasks().Delete(ctx, "130")
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	require.NoError(t, b.Tasks().Delete(ctx, "130"), "faults are consumed once")
	assert.Len(t, b.CallsFor(entity.KindTask, OpDelete), 2)
}

func TestLatencyHonoursContext(t *testing.T) {
	b := New(time.Hour)
	ctx, cancel := context.WithCancel(setupTestLogger(t))
	cancel()

	_, err := b.Lists().Create(ctx, entity.ListsCollection, entity.List{Title: "x"})
	assert.ErrorIs(t, err, remote.ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGate(t *testing.T) {
	b, ctx := seeded(t)
	blocked := errors.New("blocked")
	b.SetGate(func(ctx context.Context, call Call) error {
		if call.Kind == entity.KindTag {
			return blocked
		}
		return nil
	})

	_, err := b.Tags().Create(ctx, entity.ListScope("L1"), entity.Tag{ListID: "L1", Name: "x"})
	assert.ErrorIs(t, err, blocked)
	_, err = b.Tasks().Create(ctx, entity.ListScope("L1"), entity.Task{ListID: "L1", Title: "x"})
	assert.NoError(t, err)
}
