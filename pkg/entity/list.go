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

import "time"

// ⚙️ ListConfig holds per-list display settings
type ListConfig struct {
	ShowCompleted bool   `json:"show_completed" yaml:"show_completed"`
	SortBy        string `json:"sort_by,omitempty" yaml:"sort_by,omitempty"`
	Shared        bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// 📋 List groups tasks and tags
type List struct {
	ID        ID         `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Icon      string     `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color     string     `json:"color,omitempty" yaml:"color,omitempty"`
	Config    ListConfig `json:"config" yaml:"config"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

func (l List) EntityID() ID { return l.ID }

func (l List) Owner() CollectionKey { return ListsCollection }

func (l List) WithID(id ID) List {
	l.ID = id
	return l
}

func (l List) MapRefs(RefMapper) List {
	return l
}

// PrepareList stamps the creation time of a new list
func PrepareList(l List, now time.Time) List {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	return l
}

// 🩹 ListPatch is a partial list update
type ListPatch struct {
	Title  *string     `json:"title,omitempty"`
	Icon   *string     `json:"icon,omitempty"`
	Color  *string     `json:"color,omitempty"`
	Config *ListConfig `json:"config,omitempty"`
}

func (p ListPatch) Apply(l List) List {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Icon != nil {
		l.Icon = *p.Icon
	}
	if p.Color != nil {
		l.Color = *p.Color
	}
	if p.Config != nil {
		l.Config = *p.Config
	}
	return l
}

func (p ListPatch) MapRefs(RefMapper) ListPatch {
	return p
}

// 👤 Member is someone a task can be assigned to. Members are read-only here.
type Member struct {
	ID    ID     `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

func (m Member) EntityID() ID { return m.ID }

func (m Member) Owner() CollectionKey { return MembersCollection }

func (m Member) WithID(id ID) Member {
	m.ID = id
	return m
}

func (m Member) MapRefs(RefMapper) Member {
	return m
}
