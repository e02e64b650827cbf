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

package workspace

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
	"gitlab.com/tozd/go/errors"
)

// ➕ CreateTask adds draft to its list at position at (negative appends)
func (w *Workspace) CreateTask(ctx context.Context, draft entity.Task, at int) (mutation.Result[entity.Task], error) {
	if draft.ListID == "" {
		return mutation.Result[entity.Task]{Outcome: mutation.RolledBack}, errors.Errorf("task %q has no list", draft.Title)
	}
	return w.taskC.Create(ctx, draft, at)
}

// UpdateTask applies patch to the task with id
func (w *Workspace) UpdateTask(ctx context.Context, id entity.ID, patch entity.TaskPatch) (mutation.Result[entity.Task], error) {
	return w.taskC.Update(ctx, id, patch)
}

// 🔀 ToggleTask flips the completion of the task with id
func (w *Workspace) ToggleTask(ctx context.Context, id entity.ID) (mutation.Result[entity.Task], error) {
	cur, ok := w.tasks.Get(w.ids.Current(id))
	if !ok {
		zerolog.Ctx(ctx).Warn().Str("id", id.String()).Msg("toggle on missing task")
		return mutation.Result[entity.Task]{Outcome: mutation.Vanished, ID: id}, nil
	}
	done := !cur.IsCompleted
	return w.taskC.Update(ctx, id, entity.TaskPatch{IsCompleted: &done})
}

// 🏷️ SetTaskTags replaces the tags of a task. Repeated ids are dropped.
func (w *Workspace) SetTaskTags(ctx context.Context, id entity.ID, tagIDs []entity.ID) (mutation.Result[entity.Task], error) {
	return w.taskC.Update(ctx, id, entity.TaskPatch{TagIDs: &tagIDs})
}

// SetTaskAssignees replaces the assignees of a task. Repeated ids are dropped.
func (w *Workspace) SetTaskAssignees(ctx context.Context, id entity.ID, memberIDs []entity.ID) (mutation.Result[entity.Task], error) {
	return w.taskC.Update(ctx, id, entity.TaskPatch{AssigneeIDs: &memberIDs})
}

// 🗑️ DeleteTask hides the task and deletes it once the undo window passes
func (w *Workspace) DeleteTask(ctx context.Context, id entity.ID) (*deferred.Deletion[entity.Task], error) {
	return w.taskDel.Delete(ctx, id)
}

// CreateTag adds draft to the tags of its list
func (w *Workspace) CreateTag(ctx context.Context, draft entity.Tag) (mutation.Result[entity.Tag], error) {
	if draft.ListID == "" {
		return mutation.Result[entity.Tag]{Outcome: mutation.RolledBack}, errors.Errorf("tag %q has no list", draft.Name)
	}
	return w.tagC.Create(ctx, draft, -1)
}

// UpdateTag applies patch to the tag with id
func (w *Workspace) UpdateTag(ctx context.Context, id entity.ID, patch entity.TagPatch) (mutation.Result[entity.Tag], error) {
	return w.tagC.Update(ctx, id, patch)
}

// DeleteTag hides the tag and deletes it once the undo window passes.
// Tasks lose the tag when the server confirms.
func (w *Workspace) DeleteTag(ctx context.Context, id entity.ID) (*deferred.Deletion[entity.Tag], error) {
	return w.tagDel.Delete(ctx, id)
}

// CreateList adds a list at position at (negative appends)
func (w *Workspace) CreateList(ctx context.Context, draft entity.List, at int) (mutation.Result[entity.List], error) {
	return w.listC.Create(ctx, draft, at)
}

// UpdateList applies patch to the list with id
func (w *Workspace) UpdateList(ctx context.Context, id entity.ID, patch entity.ListPatch) (mutation.Result[entity.List], error) {
	return w.listC.Update(ctx, id, patch)
}

// DeleteList hides the list and deletes it once the undo window passes.
// Its tasks and tags are pruned when the server confirms.
func (w *Workspace) DeleteList(ctx context.Context, id entity.ID) (*deferred.Deletion[entity.List], error) {
	return w.listDel.Delete(ctx, id)
}

// ↩️ UndoDelete cancels a pending deletion, the same as pressing the undo
// action. It reports whether the entity came back.
func (w *Workspace) UndoDelete(ctx context.Context, kind entity.Kind, id entity.ID) (bool, error) {
	switch kind {
	case entity.KindTask:
		return w.taskDel.Cancel(ctx, id), nil
	case entity.KindTag:
		return w.tagDel.Cancel(ctx, id), nil
	case entity.KindList:
		return w.listDel.Cancel(ctx, id), nil
	default:
		return false, errors.Errorf("kind %q cannot be deleted", kind)
	}
}

// PendingDeletions returns how many deletions are still tracked
func (w *Workspace) PendingDeletions() int {
	return w.taskDel.Active() + w.tagDel.Active() + w.listDel.Active()
}
