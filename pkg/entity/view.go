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

// Lookup resolves an id against a collection
type Lookup[E any] func(ID) (E, bool)

// 🖼️ TaskView is a task with its references resolved for rendering.
// It is derived on every read and never stored.
type TaskView struct {
	Task
	List      *List
	Tags      []Tag
	Assignees []Member
}

// ViewTask resolves the list, tag and assignee references of t.
// Ids that resolve to nothing are left out of the view.
func ViewTask(t Task, lists Lookup[List], tags Lookup[Tag], members Lookup[Member]) TaskView {
	view := TaskView{Task: t}
	if lists != nil {
		if l, ok := lists(t.ListID); ok {
			view.List = &l
		}
	}
	if tags != nil {
		view.Tags = resolveAll(t.TagIDs, tags)
	}
	if members != nil {
		view.Assignees = resolveAll(t.AssigneeIDs, members)
	}
	return view
}

func resolveAll[E any](ids []ID, lookup Lookup[E]) []E {
	out := make([]E, 0, len(ids))
	for _, id := range ids {
		if e, ok := lookup(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// 📊 ListSummary is a list with task counts, as shown on the all-lists surface
type ListSummary struct {
	List
	Open int
	Done int
}

// Summarize counts open and completed tasks of l
func Summarize(l List, tasks []Task) ListSummary {
	sum := ListSummary{List: l}
	for _, t := range tasks {
		if t.ListID != l.ID {
			continue
		}
		if t.IsCompleted {
			sum.Done++
		} else {
			sum.Open++
		}
	}
	return sum
}
