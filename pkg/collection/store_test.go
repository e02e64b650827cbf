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
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optimist/pkg/entity"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func ids[E entity.Record[E]](items []E) []entity.ID {
	out := make([]entity.ID, 0, len(items))
	for _, e := range items {
		out = append(out, e.EntityID())
	}
	return out
}

func seeded(t *testing.T) (*Store[entity.Task], context.Context) {
	ctx := setupTestLogger(t)
	s := New[entity.Task](entity.KindTask)
	s.Insert(ctx, entity.Task{ID: "1", ListID: "7", Title: "Eggs"}, -1)
	s.Insert(ctx, entity.Task{ID: "2", ListID: "8", Title: "Report"}, -1)
	s.Insert(ctx, entity.Task{ID: "3", ListID: "7", Title: "Bread"}, -1)
	return s, ctx
}

func TestInsert(t *testing.T) {
	t.Run("positions", func(t *testing.T) {
		s, ctx := seeded(t)
		s.Insert(ctx, entity.Task{ID: "4", ListID: "7"}, 0)
		s.Insert(ctx, entity.Task{ID: "5", ListID: "7"}, 99)
		assert.Equal(t, []entity.ID{"4", "1", "2", "3", "5"}, ids(s.Snapshot()))
	})

	t.Run("duplicate_id_panics", func(t *testing.T) {
		s, ctx := seeded(t)
		assert.Panics(t, func() {
			s.Insert(ctx, entity.Task{ID: "2"}, -1)
		}, "inserting an existing id must panic")
		assert.Equal(t, 3, s.Len(), "store should be unchanged")
	})
}

func TestPositionFor(t *testing.T) {
	s, _ := seeded(t)

	tests := []struct {
		name       string
		key        entity.CollectionKey
		ownerIndex int
		want       int
	}{
		{name: "first_of_owner", key: entity.ListScope("7"), ownerIndex: 0, want: 0},
		{name: "second_of_owner", key: entity.ListScope("7"), ownerIndex: 1, want: 2},
		{name: "past_the_end_of_owner", key: entity.ListScope("7"), ownerIndex: 5, want: 3},
		{name: "append_to_owner", key: entity.ListScope("8"), ownerIndex: -1, want: 2},
		{name: "unknown_owner_appends", key: entity.ListScope("9"), ownerIndex: 0, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.PositionFor(tt.key, tt.ownerIndex))
		})
	}
}

func TestPatch(t *testing.T) {
	s, ctx := seeded(t)
	done := true

	ok := s.Patch(ctx, "1", entity.TaskPatch{IsCompleted: &done})
	require.True(t, ok, "patch should apply")
	got, _ := s.Get("1")
	assert.True(t, got.IsCompleted, "task should be completed")
	assert.Equal(t, "Eggs", got.Title, "other fields should be kept")

	assert.False(t, s.Patch(ctx, "missing", entity.TaskPatch{IsCompleted: &done}), "missing id should be a no-op")

	ok = s.Patch(ctx, "1", Replace[entity.Task]{Value: entity.Task{ID: "other", ListID: "7", Title: "Eggs (6)"}})
	require.True(t, ok)
	got, _ = s.Get("1")
	assert.Equal(t, entity.ID("1"), got.ID, "replace keeps the target id")
	assert.Equal(t, "Eggs (6)", got.Title)
	assert.False(t, got.IsCompleted, "replace overwrites every field")
}

func TestRemoveAndRestore(t *testing.T) {
	s, ctx := seeded(t)
	before := s.Snapshot()

	removed, ok := s.Remove(ctx, "2")
	require.True(t, ok)
	assert.Equal(t, 1, removed.Index)
	assert.Equal(t, "Report", removed.Entity.Title)

	_, ok = s.Remove(ctx, "2")
	assert.False(t, ok, "second remove should report absence")

	require.True(t, s.Restore(ctx, removed))
	assert.Equal(t, before, s.Snapshot(), "restore should give back the same state")

	assert.False(t, s.Restore(ctx, removed), "restoring a present id is skipped")
	assert.Equal(t, 3, s.Len())
}

func TestReplaceID(t *testing.T) {
	s, ctx := seeded(t)

	require.True(t, s.ReplaceID(ctx, "3", "30"))
	assert.Equal(t, []entity.ID{"1", "2", "30"}, ids(s.Snapshot()), "position should be preserved")

	assert.False(t, s.ReplaceID(ctx, "3", "31"), "old id is gone")
	assert.False(t, s.ReplaceID(ctx, "1", "2"), "new id already taken")
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := setupTestLogger(t)
	s := New[entity.Task](entity.KindTask)
	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.Insert(ctx, entity.Task{ID: "1", TagIDs: []entity.ID{"a"}, DueDate: &due}, -1)

	snap := s.Snapshot()
	snap[0].TagIDs[0] = "mutated"
	*snap[0].DueDate = due.Add(time.Hour)

	got, _ := s.Get("1")
	assert.Equal(t, []entity.ID{"a"}, got.TagIDs, "snapshot slices must not alias the store")
	assert.Equal(t, due, *got.DueDate, "snapshot pointers must not alias the store")
}

func TestRewriteRefs(t *testing.T) {
	ctx := setupTestLogger(t)
	s := New[entity.Task](entity.KindTask)
	s.Insert(ctx, entity.Task{ID: "1", ListID: "7", TagIDs: []entity.ID{"tmp~tag-x-1", "5"}}, -1)
	s.Insert(ctx, entity.Task{ID: "2", ListID: "7", TagIDs: []entity.ID{"5"}}, -1)

	assert.Equal(t, 1, s.RewriteRefs(ctx, "tmp~tag-x-1", "42"))
	got, _ := s.Get("1")
	assert.Equal(t, []entity.ID{"42", "5"}, got.TagIDs)

	assert.Equal(t, 0, s.RewriteRefs(ctx, "tmp~tag-x-1", "42"), "rewrite should be idempotent")
}

func TestObserversSeeTheSameSequence(t *testing.T) {
	s, ctx := seeded(t)

	var mu sync.Mutex
	seen := map[string][]ChangeOp{}
	record := func(name string) Observer[entity.Task] {
		return func(c Change[entity.Task]) {
			mu.Lock()
			defer mu.Unlock()
			seen[name] = append(seen[name], c.Op)
		}
	}
	s.Subscribe(record("sidebar"))
	unsubscribe := s.Subscribe(record("detail"))

	done := true
	s.Insert(ctx, entity.Task{ID: "4", ListID: "7"}, -1)
	s.Patch(ctx, "4", entity.TaskPatch{IsCompleted: &done})
	s.ReplaceID(ctx, "4", "40")
	s.Remove(ctx, "40")
	unsubscribe()
	s.Remove(ctx, "1")

	want := []ChangeOp{Inserted, Patched, Renamed, Removed}
	assert.Equal(t, append(want, Removed), seen["sidebar"])
	assert.Equal(t, want, seen["detail"], "unsubscribed observer should stop receiving")
}

func TestDump(t *testing.T) {
	s, _ := seeded(t)
	assert.Contains(t, s.Dump(), "Bread")
}
