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
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/remote"
)

func (b *Backend) Tasks() remote.Gateway[entity.Task, entity.TaskPatch] { return taskGateway{b} }

func (b *Backend) Tags() remote.Gateway[entity.Tag, entity.TagPatch] { return tagGateway{b} }

func (b *Backend) Lists() remote.Gateway[entity.List, entity.ListPatch] { return listGateway{b} }

type taskGateway struct{ b *Backend }

// validTask must be called with mu held
func (b *Backend) validTask(t entity.Task) error {
	if err := checkPayload(slices.Concat([]entity.ID{t.ListID}, t.TagIDs, t.AssigneeIDs)...); err != nil {
		return err
	}
	if b.listIndex(t.ListID) < 0 {
		return remote.Reject(remote.CodeNotFound, "list %s not found", t.ListID)
	}
	for _, tagID := range t.TagIDs {
		i := slices.IndexFunc(b.tags, func(tag entity.Tag) bool { return tag.ID == tagID })
		if i < 0 || b.tags[i].ListID != t.ListID {
			return remote.Reject(remote.CodeInvalid, "tag %s does not belong to list %s", tagID, t.ListID)
		}
	}
	return nil
}

func (g taskGateway) Create(ctx context.Context, parent entity.CollectionKey, draft entity.Task) (entity.Task, error) {
	if err := g.b.begin(ctx, entity.KindTask, OpCreate, draft.ID); err != nil {
		return entity.Task{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	if parent != draft.Owner() {
		return entity.Task{}, remote.Reject(remote.CodeInvalid, "task belongs to %s, not %s", draft.Owner(), parent)
	}
	if err := g.b.validTask(draft); err != nil {
		return entity.Task{}, err
	}

	now := g.b.now()
	task := cloneTask(draft)
	task.ID = g.b.issueID()
	task.IsCompleted = false
	task.CreatedAt = now
	task.UpdatedAt = now
	g.b.tasks = append(g.b.tasks, task)
	return cloneTask(task), nil
}

func (g taskGateway) Update(ctx context.Context, id entity.ID, patch entity.TaskPatch) (entity.Task, error) {
	if err := g.b.begin(ctx, entity.KindTask, OpUpdate, id); err != nil {
		return entity.Task{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	if err := checkPayload(id); err != nil {
		return entity.Task{}, err
	}
	i := slices.IndexFunc(g.b.tasks, func(t entity.Task) bool { return t.ID == id })
	if i < 0 {
		return entity.Task{}, remote.Reject(remote.CodeNotFound, "task %s not found", id)
	}
	next := patch.Apply(cloneTask(g.b.tasks[i]))
	if err := g.b.validTask(next); err != nil {
		return entity.Task{}, err
	}
	next.UpdatedAt = g.b.now()
	g.b.tasks[i] = next
	return cloneTask(next), nil
}

func (g taskGateway) Delete(ctx context.Context, id entity.ID) error {
	if err := g.b.begin(ctx, entity.KindTask, OpDelete, id); err != nil {
		return err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	i := slices.IndexFunc(g.b.tasks, func(t entity.Task) bool { return t.ID == id })
	if i < 0 {
		return remote.Reject(remote.CodeNotFound, "task %s not found", id)
	}
	g.b.tasks = slices.Delete(g.b.tasks, i, i+1)
	return nil
}

type tagGateway struct{ b *Backend }

// nameTaken must be called with mu held
func (b *Backend) nameTaken(listID entity.ID, name string, except entity.ID) bool {
	return slices.ContainsFunc(b.tags, func(t entity.Tag) bool {
		return t.ListID == listID && t.ID != except && strings.EqualFold(t.Name, name)
	})
}

func (g tagGateway) Create(ctx context.Context, parent entity.CollectionKey, draft entity.Tag) (entity.Tag, error) {
	if err := g.b.begin(ctx, entity.KindTag, OpCreate, draft.ID); err != nil {
		return entity.Tag{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	if parent != draft.Owner() {
		return entity.Tag{}, remote.Reject(remote.CodeInvalid, "tag belongs to %s, not %s", draft.Owner(), parent)
	}
	if err := checkPayload(draft.ListID); err != nil {
		return entity.Tag{}, err
	}
	if g.b.listIndex(draft.ListID) < 0 {
		return entity.Tag{}, remote.Reject(remote.CodeNotFound, "list %s not found", draft.ListID)
	}
	if g.b.nameTaken(draft.ListID, draft.Name, "") {
		return entity.Tag{}, remote.Reject(remote.CodeDuplicateName, "a tag named %q already exists", draft.Name)
	}

	tag := draft
	tag.ID = g.b.issueID()
	g.b.tags = append(g.b.tags, tag)
	return tag, nil
}

func (g tagGateway) Update(ctx context.Context, id entity.ID, patch entity.TagPatch) (entity.Tag, error) {
	if err := g.b.begin(ctx, entity.KindTag, OpUpdate, id); err != nil {
		return entity.Tag{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	i := slices.IndexFunc(g.b.tags, func(t entity.Tag) bool { return t.ID == id })
	if i < 0 {
		return entity.Tag{}, remote.Reject(remote.CodeNotFound, "tag %s not found", id)
	}
	next := patch.Apply(g.b.tags[i])
	if g.b.nameTaken(next.ListID, next.Name, id) {
		return entity.Tag{}, remote.Reject(remote.CodeDuplicateName, "a tag named %q already exists", next.Name)
	}
	g.b.tags[i] = next
	return next, nil
}

// Delete removes the tag and strips it from every task that carried it
func (g tagGateway) Delete(ctx context.Context, id entity.ID) error {
	if err := g.b.begin(ctx, entity.KindTag, OpDelete, id); err != nil {
		return err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	i := slices.IndexFunc(g.b.tags, func(t entity.Tag) bool { return t.ID == id })
	if i < 0 {
		return remote.Reject(remote.CodeNotFound, "tag %s not found", id)
	}
	g.b.tags = slices.Delete(g.b.tags, i, i+1)
	for j := range g.b.tasks {
		g.b.tasks[j].TagIDs = slices.DeleteFunc(g.b.tasks[j].TagIDs, func(t entity.ID) bool { return t == id })
	}
	return nil
}

type listGateway struct{ b *Backend }

func (g listGateway) Create(ctx context.Context, parent entity.CollectionKey, draft entity.List) (entity.List, error) {
	if err := g.b.begin(ctx, entity.KindList, OpCreate, draft.ID); err != nil {
		return entity.List{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	if parent != entity.ListsCollection {
		return entity.List{}, remote.Reject(remote.CodeInvalid, "lists cannot be created inside %s", parent)
	}
	if strings.TrimSpace(draft.Title) == "" {
		return entity.List{}, remote.Reject(remote.CodeInvalid, "list title is required")
	}

	list := draft
	list.ID = entity.ID(uuid.NewString())
	list.CreatedAt = g.b.now()
	g.b.lists = append(g.b.lists, list)
	return list, nil
}

func (g listGateway) Update(ctx context.Context, id entity.ID, patch entity.ListPatch) (entity.List, error) {
	if err := g.b.begin(ctx, entity.KindList, OpUpdate, id); err != nil {
		return entity.List{}, err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	i := g.b.listIndex(id)
	if i < 0 {
		return entity.List{}, remote.Reject(remote.CodeNotFound, "list %s not found", id)
	}
	next := patch.Apply(g.b.lists[i])
	if strings.TrimSpace(next.Title) == "" {
		return entity.List{}, remote.Reject(remote.CodeInvalid, "list title is required")
	}
	g.b.lists[i] = next
	return next, nil
}

// Delete removes the list together with its tasks and tags
func (g listGateway) Delete(ctx context.Context, id entity.ID) error {
	if err := g.b.begin(ctx, entity.KindList, OpDelete, id); err != nil {
		return err
	}
	g.b.mu.Lock()
	defer g.b.mu.Unlock()

	i := g.b.listIndex(id)
	if i < 0 {
		return remote.Reject(remote.CodeNotFound, "list %s not found", id)
	}
	g.b.lists = slices.Delete(g.b.lists, i, i+1)
	g.b.tasks = slices.DeleteFunc(g.b.tasks, func(t entity.Task) bool { return t.ListID == id })
	g.b.tags = slices.DeleteFunc(g.b.tags, func(t entity.Tag) bool { return t.ListID == id })
	return nil
}
