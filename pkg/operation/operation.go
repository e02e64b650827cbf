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
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/remote/memory"
	"github.com/walteh/optimist/pkg/workspace"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrExpectation is returned when an expect step does not hold
	ErrExpectation = errors.Base("expectation failed")
	// ErrUnboundRef is returned for a $name no earlier step bound
	ErrUnboundRef = errors.Base("unbound ref")
)

// 🎯 Operation is one executable step
type Operation interface {
	// Execute performs the step
	Execute(ctx context.Context) error
	// Name describes the step for logs
	Name() string
}

// 💥 FaultInjector makes the next backend call of a kind and op fail.
// *memory.Backend implements it.
type FaultInjector interface {
	FailNext(kind entity.Kind, op memory.Op, err error)
}

// 🔧 Env is what steps run against
type Env struct {
	Workspace *workspace.Workspace
	// Clock is advanced by wait steps
	Clock *deferred.FakeClock
	// Faults serves fail_next steps, which error without it
	Faults FaultInjector
	// Notes are counted by expect steps with errors set
	Notes *notify.Recorder

	mu   sync.RWMutex
	refs map[string]entity.ID
}

// 🏭 NewEnv creates an environment with no bound refs
func NewEnv(ws *workspace.Workspace, clock *deferred.FakeClock) *Env {
	return &Env{
		Workspace: ws,
		Clock:     clock,
		refs:      make(map[string]entity.ID),
	}
}

// Bind names id so later steps can use $name
func (e *Env) Bind(name string, id entity.ID) {
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs[name] = id
}

// Resolve turns $name into its bound id; anything else is taken as a literal id
func (e *Env) Resolve(value string) (entity.ID, error) {
	name, ok := strings.CutPrefix(value, "$")
	if !ok {
		return entity.ID(value), nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.refs[name]
	if !ok {
		return "", errors.Errorf("%s: %w", value, ErrUnboundRef)
	}
	return id, nil
}

func (e *Env) resolveAll(values []string) ([]entity.ID, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]entity.ID, 0, len(values))
	for _, v := range values {
		id, err := e.Resolve(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Refs returns a copy of every bound name
func (e *Env) Refs() map[string]entity.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]entity.ID, len(e.refs))
	for k, v := range e.refs {
		out[k] = v
	}
	return out
}

// stepOperation runs one step against an env
type stepOperation struct {
	env  *Env
	step Step
	path string
}

func (o *stepOperation) Name() string {
	return o.path + " " + o.step.Action
}

func (o *stepOperation) Execute(ctx context.Context) error {
	zerolog.Ctx(ctx).Debug().Str("step", o.path).Str("action", o.step.Action).Msg("executing step")
	if err := o.env.perform(ctx, o.step); err != nil {
		return errors.Errorf("%s: %w", o.Name(), err)
	}
	return nil
}

// asyncOperation runs its operations concurrently and waits for all of them
type asyncOperation struct {
	path string
	ops  []Operation
}

func (o *asyncOperation) Name() string {
	return o.path + " " + ActionAsync
}

func (o *asyncOperation) Execute(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, op := range o.ops {
		g.Go(func() error { return op.Execute(ctx) })
	}
	return g.Wait()
}

// 🛠️ Compile turns a script into operations bound to env
func Compile(s *Script, env *Env) ([]Operation, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return compileSteps(s.Steps, env, "steps"), nil
}

func compileSteps(steps []Step, env *Env, path string) []Operation {
	ops := make([]Operation, 0, len(steps))
	for i, st := range steps {
		at := path + "[" + strconv.Itoa(i) + "]"
		if st.Action == ActionAsync {
			ops = append(ops, &asyncOperation{path: at, ops: compileSteps(st.Steps, env, at+".steps")})
			continue
		}
		ops = append(ops, &stepOperation{env: env, step: st, path: at})
	}
	return ops
}
