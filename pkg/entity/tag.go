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

// 🏷️ Tag labels tasks inside one list
type Tag struct {
	ID     ID     `json:"id" yaml:"id"`
	ListID ID     `json:"list_id" yaml:"list_id"`
	Name   string `json:"name" yaml:"name"`
	Color  string `json:"color,omitempty" yaml:"color,omitempty"`
}

func (t Tag) EntityID() ID { return t.ID }

func (t Tag) Owner() CollectionKey { return ListScope(t.ListID) }

func (t Tag) WithID(id ID) Tag {
	t.ID = id
	return t
}

func (t Tag) MapRefs(fn RefMapper) Tag {
	t.ListID = mapID(t.ListID, fn)
	return t
}

// PrepareTag has nothing to default; tags carry no timestamps
func PrepareTag(t Tag, _ time.Time) Tag {
	return t
}

// 🩹 TagPatch is a partial tag update
type TagPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p TagPatch) Apply(t Tag) Tag {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	return t
}

func (p TagPatch) MapRefs(RefMapper) TagPatch {
	return p
}
