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

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// 📊 Progress hears how far a script got. *status.Journal implements it.
type Progress interface {
	StartOperation(ctx context.Context, total int)
	UpdateProgress(ctx context.Context, processed int)
	FinishOperation(ctx context.Context)
}

// 🏃 OperationRunner executes operations
type OperationRunner struct {
	logger *zerolog.Logger
	async  bool
}

// 🏗️ NewRunner creates a new runner. An async runner stops waiting on a
// step as soon as ctx is done.
func NewRunner(logger *zerolog.Logger, async bool) *OperationRunner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &OperationRunner{
		logger: logger,
		async:  async,
	}
}

// 🏃 Run executes an operation
func (r *OperationRunner) Run(ctx context.Context, op Operation) error {
	if r.async {
		return r.runAsync(ctx, op)
	}
	return r.runSync(ctx, op)
}

// 🔄 runSync runs an operation synchronously
func (r *OperationRunner) runSync(ctx context.Context, op Operation) error {
	return op.Execute(ctx)
}

// ⚡ runAsync runs an operation asynchronously
func (r *OperationRunner) runAsync(ctx context.Context, op Operation) error {
	var g errgroup.Group
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		if err := op.Execute(ctx); err != nil {
			return errors.Errorf("executing operation: %w", err)
		}
		return nil
	})

	select {
	case <-ctx.Done():
		return errors.Errorf("operation cancelled: %w", ctx.Err())
	case <-done:
		return g.Wait()
	}
}

// 📜 RunScript compiles s against env and runs every step in order, stopping
// at the first failure. Deletions still inside their undo window are
// committed before it returns.
func (r *OperationRunner) RunScript(ctx context.Context, s *Script, env *Env, progress Progress) error {
	ops, err := Compile(s, env)
	if err != nil {
		return errors.Errorf("compiling %s: %w", s.Name, err)
	}

	r.logger.Debug().Str("script", s.Name).Int("steps", len(ops)).Msg("running script")
	if progress != nil {
		progress.StartOperation(ctx, len(ops))
	}

	for i, op := range ops {
		if err := r.Run(ctx, op); err != nil {
			r.logger.Error().Err(err).Str("script", s.Name).Str("step", op.Name()).Msg("step failed")
			return errors.Errorf("running %s: %w", s.Name, err)
		}
		if progress != nil {
			progress.UpdateProgress(ctx, i+1)
		}
	}

	if err := env.Workspace.Flush(ctx); err != nil {
		return errors.Errorf("flushing %s: %w", s.Name, err)
	}
	if progress != nil {
		progress.FinishOperation(ctx)
	}
	return nil
}
