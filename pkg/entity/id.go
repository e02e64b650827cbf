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
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// TempPrefix marks client-issued identifiers. No server id ever starts with it.
const TempPrefix = "tmp~"

// 🔑 ID identifies an entity, either server-issued or temporary
type ID string

// IsTemporary reports whether the id was issued locally and is still awaiting a server id
func (id ID) IsTemporary() bool {
	return strings.HasPrefix(string(id), TempPrefix)
}

func (id ID) String() string {
	return string(id)
}

// 🏷️ Kind names an entity kind
type Kind string

const (
	KindTask   Kind = "task"
	KindTag    Kind = "tag"
	KindList   Kind = "list"
	KindMember Kind = "member"
)

// 📂 CollectionKey names the logical collection an entity belongs to
type CollectionKey string

const (
	// ListsCollection owns every list
	ListsCollection CollectionKey = "lists"
	// MembersCollection owns every member
	MembersCollection CollectionKey = "members"
)

// ListScope is the collection of tasks or tags that belong to the given list
func ListScope(listID ID) CollectionKey {
	return CollectionKey("list/" + string(listID))
}

// RefMapper rewrites a referenced id. Returning false drops the reference.
type RefMapper func(ID) (ID, bool)

// 🧩 Record is implemented by every entity kind held in a collection
type Record[E any] interface {
	EntityID() ID
	Owner() CollectionKey
	WithID(id ID) E
	// MapRefs returns a copy with every referenced id passed through fn
	MapRefs(fn RefMapper) E
}

// 🩹 Patch is a partial update for entity kind E
type Patch[E any, P any] interface {
	Apply(E) E
	// MapRefs returns a copy with every referenced id passed through fn
	MapRefs(fn RefMapper) P
}

// RenameRef returns a mapper that swaps from for to. An empty to drops the reference.
func RenameRef(from, to ID) RefMapper {
	return func(id ID) (ID, bool) {
		if id != from {
			return id, true
		}
		if to == "" {
			return "", false
		}
		return to, true
	}
}

// mapIDs passes ids through fn, dropping rejected and duplicate ids while keeping order
func mapIDs(ids []ID, fn RefMapper) []ID {
	if ids == nil {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[ID]()
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		mapped, ok := fn(id)
		if !ok || !seen.Add(mapped) {
			continue
		}
		out = append(out, mapped)
	}
	return out
}

// mapID passes a single id through fn, keeping the original when fn rejects it
func mapID(id ID, fn RefMapper) ID {
	if id == "" {
		return id
	}
	mapped, ok := fn(id)
	if !ok {
		return id
	}
	return mapped
}

// ContainsID reports whether ids holds id
func ContainsID(ids []ID, id ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
