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

package entity

import (
	"slices"
	"time"
)

// ✅ Task is a single to-do item inside a list
type Task struct {
	ID          ID         `json:"id" yaml:"id"`
	ListID      ID         `json:"list_id" yaml:"list_id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	AllDay      bool       `json:"all_day,omitempty" yaml:"all_day,omitempty"`
	IsCompleted bool       `json:"is_completed" yaml:"is_completed"`
	TagIDs      []ID       `json:"tag_ids,omitempty" yaml:"tag_ids,omitempty"`
	AssigneeIDs []ID       `json:"assignee_ids,omitempty" yaml:"assignee_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

func (t Task) EntityID() ID { return t.ID }

func (t Task) Owner() CollectionKey { return ListScope(t.ListID) }

func (t Task) WithID(id ID) Task {
	t.ID = id
	return t
}

func (t Task) MapRefs(fn RefMapper) Task {
	t.ListID = mapID(t.ListID, fn)
	t.TagIDs = mapIDs(t.TagIDs, fn)
	t.AssigneeIDs = mapIDs(t.AssigneeIDs, fn)
	return t
}

// PrepareTask fills the defaults a freshly created task carries before the server answers
func PrepareTask(t Task, now time.Time) Task {
	t.IsCompleted = false
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.TagIDs = slices.Clone(t.TagIDs)
	t.AssigneeIDs = slices.Clone(t.AssigneeIDs)
	return t
}

// 🩹 TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	ListID       *ID        `json:"list_id,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	AllDay       *bool      `json:"all_day,omitempty"`
	IsCompleted  *bool      `json:"is_completed,omitempty"`
	TagIDs       *[]ID      `json:"tag_ids,omitempty"`
	AssigneeIDs  *[]ID      `json:"assignee_ids,omitempty"`
}

func (p TaskPatch) Apply(t Task) Task {
	if p.ListID != nil {
		t.ListID = *p.ListID
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.AllDay != nil {
		t.AllDay = *p.AllDay
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.TagIDs != nil {
		t.TagIDs = slices.Clone(*p.TagIDs)
	}
	if p.AssigneeIDs != nil {
		t.AssigneeIDs = slices.Clone(*p.AssigneeIDs)
	}
	return t
}

func (p TaskPatch) MapRefs(fn RefMapper) TaskPatch {
	if p.ListID != nil {
		id := mapID(*p.ListID, fn)
		p.ListID = &id
	}
	if p.TagIDs != nil {
		ids := mapIDs(*p.TagIDs, fn)
		p.TagIDs = &ids
	}
	if p.AssigneeIDs != nil {
		ids := mapIDs(*p.AssigneeIDs, fn)
		p.AssigneeIDs = &ids
	}
	return p
}
