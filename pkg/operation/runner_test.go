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
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/remote/memory"
	"github.com/walteh/optimist/pkg/status"
	"github.com/walteh/optimist/pkg/workspace"
)

func setupTestLogger(t *testing.T) (context.Context, *zerolog.Logger) {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background()), &logger
}

type scriptHarness struct {
	ctx     context.Context
	logger  *zerolog.Logger
	env     *Env
	backend *memory.Backend
	journal *status.Journal
}

func newScriptHarness(t *testing.T) *scriptHarness {
	ctx, logger := setupTestLogger(t)
	backend := memory.New(0)
	clock := deferred.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	notes := notify.NewRecorder(nil)
	journal := status.NewJournal(logger)

	ws, err := workspace.New(workspace.Options{
		Backend:  backend,
		Notifier: notes,
		Reporter: journal,
		Clock:    clock,
	})
	require.NoError(t, err)
	require.NoError(t, ws.Hydrate(ctx))

	env := NewEnv(ws, clock)
	env.Faults = backend
	env.Notes = notes
	return &scriptHarness{ctx: ctx, logger: logger, env: env, backend: backend, journal: journal}
}

const groceries = `
name: groceries
steps:
  - action: create_list
    title: Groceries
    ref: groceries
  - action: create_tag
    list: $groceries
    name: dairy
    ref: dairy
  - action: async
    steps:
      - action: create_task
        list: $groceries
        title: Eggs
        ref: eggs
      - action: create_task
        list: $groceries
        title: Milk
        due: "2025-03-05"
        ref: milk
  - action: tag_task
    id: $milk
    tags: [$dairy]
  - action: fail_next
    kind: task
    op: update
    code: forbidden
  - action: toggle_task
    id: $milk
    fails: true
  - action: expect
    kind: task
    id: $milk
    completed: false
    errors: 1
  - action: delete_task
    id: $eggs
  - action: expect
    list: $groceries
    titles: [Milk]
  - action: undo
    kind: task
    id: $eggs
  - action: delete_task
    id: $eggs
  - action: wait
    duration: 4s
  - action: expect
    kind: task
    id: $eggs
    missing: true
`

func TestRunScript(t *testing.T) {
	h := newScriptHarness(t)
	s, err := Parse([]byte(groceries))
	require.NoError(t, err)

	runner := NewRunner(h.logger, false)
	require.NoError(t, runner.RunScript(h.ctx, s, h.env, h.journal))

	done, total := h.journal.Progress()
	assert.Equal(t, len(s.Steps), total)
	assert.Equal(t, total, done)

	refs := h.env.Refs()
	assert.Len(t, refs, 4)
	for name, id := range refs {
		assert.False(t, id.IsTemporary(), "%s is bound to a server id", name)
	}

	milk, ok := h.env.Workspace.TaskStore().Get(refs["milk"])
	require.True(t, ok)
	assert.Equal(t, []entity.ID{refs["dairy"]}, milk.TagIDs)

	assert.Len(t, h.backend.CallsFor(entity.KindTask, memory.OpDelete), 1)
	assert.Len(t, h.journal.Failures(), 1)
}

func TestRunScriptStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		target error
		steps  int
	}{
		{
			name: "expectation",
			yaml: `
steps:
  - action: create_list
    title: Groceries
    ref: groceries
  - action: expect
    list: $groceries
    titles: [Eggs]
  - action: create_list
    title: Never
`,
			target: ErrExpectation,
			steps:  1,
		},
		{
			name: "unexpected_rollback",
			yaml: `
steps:
  - action: create_list
    title: Groceries
    ref: groceries
  - action: fail_next
    kind: list
    op: update
    code: forbidden
  - action: update_list
    id: $groceries
    title: Food
`,
			target: mutation.ErrRemoteRejected,
			steps:  2,
		},
		{
			name: "expected_failure_succeeded",
			yaml: `
steps:
  - action: create_list
    title: Groceries
    fails: true
`,
			target: ErrExpectation,
			steps:  0,
		},
		{
			name: "unbound_ref",
			yaml: `
steps:
  - action: toggle_task
    id: $nothing
`,
			target: ErrUnboundRef,
			steps:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newScriptHarness(t)
			s, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)

			err = NewRunner(h.logger, false).RunScript(h.ctx, s, h.env, h.journal)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			done, _ := h.journal.Progress()
			assert.Equal(t, tt.steps, done)
		})
	}
}

func TestListSettingsStep(t *testing.T) {
	h := newScriptHarness(t)
	s, err := Parse([]byte(`
steps:
  - action: create_list
    title: Chores
    ref: chores
  - action: create_task
    list: $chores
    title: Laundry
    ref: laundry
  - action: create_task
    list: $chores
    title: Dishes
  - action: toggle_task
    id: $laundry
  - action: expect
    list: $chores
    titles: [Dishes]
  - action: update_list
    id: $chores
    show_completed: true
    sort_by: title
  - action: expect
    list: $chores
    titles: [Dishes, Laundry]
  - action: expect
    kind: list
    titles: [Chores]
`))
	require.NoError(t, err)
	require.NoError(t, NewRunner(h.logger, true).RunScript(h.ctx, s, h.env, nil))
}

type blockingOperation struct {
	release chan struct{}
}

func (o *blockingOperation) Name() string { return "block" }

func (o *blockingOperation) Execute(ctx context.Context) error {
	<-o.release
	return nil
}

func TestRunAsyncHonoursCancel(t *testing.T) {
	ctx, logger := setupTestLogger(t)
	ctx, cancel := context.WithCancel(ctx)

	op := &blockingOperation{release: make(chan struct{})}
	defer close(op.release)

	errCh := make(chan error, 1)
	go func() { errCh <- NewRunner(logger, true).Run(ctx, op) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return after cancel")
	}
}

func TestFailNextNeedsInjector(t *testing.T) {
	h := newScriptHarness(t)
	h.env.Faults = nil

	s, err := Parse([]byte(`
steps:
  - action: fail_next
    kind: task
`))
	require.NoError(t, err)
	err = NewRunner(h.logger, false).RunScript(h.ctx, s, h.env, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot inject faults")
}
