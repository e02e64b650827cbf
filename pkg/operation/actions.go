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

package operation

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/remote"
	"github.com/walteh/optimist/pkg/remote/memory"
	"gitlab.com/tozd/go/errors"
)

// perform runs one non-async step
func (e *Env) perform(ctx context.Context, st Step) error {
	ws := e.Workspace
	switch st.Action {
	case ActionCreateList:
		l := entity.List{Title: *st.Title}
		if st.Color != nil {
			l.Color = *st.Color
		}
		res, err := ws.CreateList(ctx, l, at(st.At))
		return e.settled(ctx, st, res.ID, err)

	case ActionUpdateList:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		patch := entity.ListPatch{Title: st.Title, Color: st.Color}
		if st.ShowCompleted != nil || st.SortBy != nil {
			cur, ok := ws.ListStore().Get(ws.IDs().Current(id))
			if !ok {
				return errors.Errorf("list %s not found", id)
			}
			cfg := cur.Config
			if st.ShowCompleted != nil {
				cfg.ShowCompleted = *st.ShowCompleted
			}
			if st.SortBy != nil {
				cfg.SortBy = *st.SortBy
			}
			patch.Config = &cfg
		}
		res, err := ws.UpdateList(ctx, id, patch)
		return e.settled(ctx, st, res.ID, err)

	case ActionCreateTag:
		list, err := e.Resolve(st.List)
		if err != nil {
			return err
		}
		t := entity.Tag{ListID: list}
		if st.Name != nil {
			t.Name = *st.Name
		}
		if st.Color != nil {
			t.Color = *st.Color
		}
		res, err := ws.CreateTag(ctx, t)
		return e.settled(ctx, st, res.ID, err)

	case ActionUpdateTag:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		res, err := ws.UpdateTag(ctx, id, entity.TagPatch{Name: st.Name, Color: st.Color})
		return e.settled(ctx, st, res.ID, err)

	case ActionCreateTask:
		t, err := e.draftTask(st)
		if err != nil {
			return err
		}
		res, err := ws.CreateTask(ctx, t, at(st.At))
		return e.settled(ctx, st, res.ID, err)

	case ActionUpdateTask:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		patch, err := e.taskPatch(st)
		if err != nil {
			return err
		}
		res, err := ws.UpdateTask(ctx, id, patch)
		return e.settled(ctx, st, res.ID, err)

	case ActionToggleTask:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		res, err := ws.ToggleTask(ctx, id)
		return e.settled(ctx, st, res.ID, err)

	case ActionTagTask:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		tags, err := e.resolveAll(st.Tags)
		if err != nil {
			return err
		}
		res, err := ws.SetTaskTags(ctx, id, tags)
		return e.settled(ctx, st, res.ID, err)

	case ActionAssignTask:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		members, err := e.resolveAll(st.Assignees)
		if err != nil {
			return err
		}
		res, err := ws.SetTaskAssignees(ctx, id, members)
		return e.settled(ctx, st, res.ID, err)

	case ActionDeleteTask, ActionDeleteTag, ActionDeleteList:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		switch st.Action {
		case ActionDeleteTask:
			_, err = ws.DeleteTask(ctx, id)
		case ActionDeleteTag:
			_, err = ws.DeleteTag(ctx, id)
		default:
			_, err = ws.DeleteList(ctx, id)
		}
		return e.settled(ctx, st, id, err)

	case ActionUndo:
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		undone, err := ws.UndoDelete(ctx, entity.Kind(st.Kind), id)
		if err != nil {
			return err
		}
		if !undone && !st.Fails {
			return errors.Errorf("nothing to undo for %s %s", st.Kind, id)
		}
		return nil

	case ActionWait:
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return errors.Errorf("wait: %w", err)
		}
		if e.Clock == nil {
			return errors.Errorf("wait needs a simulated clock")
		}
		e.Clock.Advance(d)
		return nil

	case ActionFlush:
		return e.settled(ctx, st, "", ws.Flush(ctx))

	case ActionFailNext:
		if e.Faults == nil {
			return errors.Errorf("backend %s cannot inject faults", ws.Backend().Name())
		}
		op := memory.Op(st.Op)
		if op == "" {
			op = memory.OpUpdate
		}
		var fault error = remote.ErrUnavailable
		if st.Code != "" {
			fault = remote.Reject(st.Code, "injected %s failure", st.Code)
		}
		e.Faults.FailNext(entity.Kind(st.Kind), op, fault)
		return nil

	case ActionExpect:
		return e.expect(st)
	}
	return errors.Errorf("unknown action %q", st.Action)
}

// settled binds the step's ref and checks the error against Fails
func (e *Env) settled(ctx context.Context, st Step, id entity.ID, err error) error {
	if err != nil {
		if st.Fails {
			zerolog.Ctx(ctx).Debug().Err(err).Str("action", st.Action).Msg("step failed as expected")
			return nil
		}
		return err
	}
	if st.Fails {
		return errors.Errorf("%s succeeded but was expected to fail: %w", st.Action, ErrExpectation)
	}
	e.Bind(st.Ref, id)
	return nil
}

func at(pos *int) int {
	if pos == nil {
		return -1
	}
	return *pos
}

func parseDue(value string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("due %q is neither a date nor RFC 3339", value)
}

func (e *Env) draftTask(st Step) (entity.Task, error) {
	list, err := e.Resolve(st.List)
	if err != nil {
		return entity.Task{}, err
	}
	t := entity.Task{ListID: list}
	if st.Title != nil {
		t.Title = *st.Title
	}
	if st.Description != nil {
		t.Description = *st.Description
	}
	if st.Due != nil {
		due, err := parseDue(*st.Due)
		if err != nil {
			return entity.Task{}, err
		}
		t.DueDate = &due
	}
	if t.TagIDs, err = e.resolveAll(st.Tags); err != nil {
		return entity.Task{}, err
	}
	if t.AssigneeIDs, err = e.resolveAll(st.Assignees); err != nil {
		return entity.Task{}, err
	}
	return t, nil
}

func (e *Env) taskPatch(st Step) (entity.TaskPatch, error) {
	patch := entity.TaskPatch{
		Title:       st.Title,
		Description: st.Description,
		IsCompleted: st.Completed,
	}
	if st.List != "" {
		list, err := e.Resolve(st.List)
		if err != nil {
			return patch, err
		}
		patch.ListID = &list
	}
	if st.Due != nil {
		if *st.Due == "" {
			patch.ClearDueDate = true
		} else {
			due, err := parseDue(*st.Due)
			if err != nil {
				return patch, err
			}
			patch.DueDate = &due
		}
	}
	if st.Tags != nil {
		tags, err := e.resolveAll(st.Tags)
		if err != nil {
			return patch, err
		}
		patch.TagIDs = &tags
	}
	if st.Assignees != nil {
		members, err := e.resolveAll(st.Assignees)
		if err != nil {
			return patch, err
		}
		patch.AssigneeIDs = &members
	}
	return patch, nil
}

// 🔎 expect checks what the surfaces show
func (e *Env) expect(st Step) error {
	ws := e.Workspace

	if st.List != "" {
		list, err := e.Resolve(st.List)
		if err != nil {
			return err
		}
		got := []string{}
		for _, v := range ws.ListTasks(list) {
			got = append(got, v.Title)
		}
		if st.Titles != nil && !slices.Equal(got, st.Titles) {
			return errors.Errorf("list %s shows %q, want %q: %w", list, got, st.Titles, ErrExpectation)
		}
	} else if st.Titles != nil && entity.Kind(st.Kind) == entity.KindList {
		got := []string{}
		for _, l := range ws.Lists() {
			got = append(got, l.Title)
		}
		if !slices.Equal(got, st.Titles) {
			return errors.Errorf("lists are %q, want %q: %w", got, st.Titles, ErrExpectation)
		}
	}

	if st.ID != "" {
		id, err := e.Resolve(st.ID)
		if err != nil {
			return err
		}
		present, title := e.lookup(entity.Kind(st.Kind), ws.IDs().Current(id))
		switch {
		case st.Missing && present:
			return errors.Errorf("%s %s is still visible: %w", st.Kind, id, ErrExpectation)
		case !st.Missing && !present:
			return errors.Errorf("%s %s is not visible: %w", st.Kind, id, ErrExpectation)
		case present && st.Title != nil && title != *st.Title:
			return errors.Errorf("%s %s is titled %q, want %q: %w", st.Kind, id, title, *st.Title, ErrExpectation)
		}
		if present && st.Completed != nil {
			task, _ := ws.TaskStore().Get(ws.IDs().Current(id))
			if task.IsCompleted != *st.Completed {
				return errors.Errorf("task %s completed is %t: %w", id, task.IsCompleted, ErrExpectation)
			}
		}
	}

	if st.Errors != nil {
		if e.Notes == nil {
			return errors.Errorf("counting errors needs a notification recorder")
		}
		if got := len(e.Notes.Errors()); got != *st.Errors {
			return errors.Errorf("%d error notifications, want %d: %w", got, *st.Errors, ErrExpectation)
		}
	}
	return nil
}

func (e *Env) lookup(kind entity.Kind, id entity.ID) (bool, string) {
	ws := e.Workspace
	switch kind {
	case entity.KindList:
		l, ok := ws.ListStore().Get(id)
		return ok, l.Title
	case entity.KindTag:
		t, ok := ws.TagStore().Get(id)
		return ok, t.Name
	default:
		t, ok := ws.TaskStore().Get(id)
		return ok, t.Title
	}
}
