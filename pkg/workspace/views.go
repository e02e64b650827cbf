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
	"slices"
	"strings"

	"github.com/sanity-io/litter"
	"github.com/walteh/optimist/pkg/collection"
	"github.com/walteh/optimist/pkg/entity"
)

// sort orders a list can ask for; anything else keeps manual order
const (
	SortTitle     = "title"
	SortDueDate   = "due_date"
	SortCreatedAt = "created_at"
)

// 📊 Dashboard is the cross-list overview
type Dashboard struct {
	Lists    []entity.ListSummary
	Open     int
	Done     int
	Upcoming []entity.TaskView
}

func (w *Workspace) view(t entity.Task) entity.TaskView {
	return entity.ViewTask(t, w.lists.Get, w.tags.Get, w.members.Get)
}

// 📋 ListTasks returns the visible tasks of a list, ordered and filtered by
// the list's config. A missing list yields nothing.
func (w *Workspace) ListTasks(listID entity.ID) []entity.TaskView {
	listID = w.ids.Current(listID)
	l, ok := w.lists.Get(listID)
	if !ok {
		return nil
	}

	tasks := w.tasks.Owned(entity.ListScope(listID))
	if !l.Config.ShowCompleted {
		tasks = slices.DeleteFunc(tasks, func(t entity.Task) bool { return t.IsCompleted })
	}
	sortTasks(tasks, l.Config.SortBy)

	out := make([]entity.TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, w.view(t))
	}
	return out
}

func sortTasks(tasks []entity.Task, by string) {
	switch by {
	case SortTitle:
		slices.SortStableFunc(tasks, func(a, b entity.Task) int {
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	case SortDueDate:
		slices.SortStableFunc(tasks, compareDue)
	case SortCreatedAt:
		slices.SortStableFunc(tasks, func(a, b entity.Task) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}
}

// compareDue puts undated tasks last
func compareDue(a, b entity.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	default:
		return a.DueDate.Compare(*b.DueDate)
	}
}

// Lists returns every list with its open and done counts, in store order
func (w *Workspace) Lists() []entity.ListSummary {
	tasks := w.tasks.Snapshot()
	lists := w.lists.Snapshot()
	out := make([]entity.ListSummary, 0, len(lists))
	for _, l := range lists {
		out = append(out, entity.Summarize(l, tasks))
	}
	return out
}

// 🧮 Dashboard summarizes every list and picks up to limit open tasks with
// a due date, soonest first. A non-positive limit returns all of them.
// Tasks of a list that is not visible are left out.
func (w *Workspace) Dashboard(limit int) Dashboard {
	d := Dashboard{Lists: w.Lists()}
	for _, s := range d.Lists {
		d.Open += s.Open
		d.Done += s.Done
	}

	upcoming := slices.DeleteFunc(w.tasks.Snapshot(), func(t entity.Task) bool {
		return t.IsCompleted || t.DueDate == nil || !w.lists.Has(t.ListID)
	})
	slices.SortStableFunc(upcoming, compareDue)
	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	d.Upcoming = make([]entity.TaskView, 0, len(upcoming))
	for _, t := range upcoming {
		d.Upcoming = append(d.Upcoming, w.view(t))
	}
	return d
}

// 👀 SubscribeTasks registers obs for every task change
func (w *Workspace) SubscribeTasks(obs collection.Observer[entity.Task]) func() {
	return w.tasks.Subscribe(obs)
}

// SubscribeTags registers obs for every tag change
func (w *Workspace) SubscribeTags(obs collection.Observer[entity.Tag]) func() {
	return w.tags.Subscribe(obs)
}

// SubscribeLists registers obs for every list change
func (w *Workspace) SubscribeLists(obs collection.Observer[entity.List]) func() {
	return w.lists.Subscribe(obs)
}

// 🐛 Dump renders every store for debugging
func (w *Workspace) Dump() string {
	return litter.Sdump(struct {
		Lists   []entity.List
		Tags    []entity.Tag
		Tasks   []entity.Task
		Members []entity.Member
	}{
		Lists:   w.lists.Snapshot(),
		Tags:    w.tags.Snapshot(),
		Tasks:   w.tasks.Snapshot(),
		Members: w.members.Snapshot(),
	})
}
