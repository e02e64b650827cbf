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


package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/optimist/pkg/config"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/log"
	"github.com/walteh/optimist/pkg/metrics"
	"github.com/walteh/optimist/pkg/mutation"
	"github.com/walteh/optimist/pkg/notify"
	"github.com/walteh/optimist/pkg/operation"
	"github.com/walteh/optimist/pkg/remote"
	_ "github.com/walteh/optimist/pkg/remote/memory"
	"github.com/walteh/optimist/pkg/status"
	"github.com/walteh/optimist/pkg/workspace"
	"gitlab.com/tozd/go/errors"
)

// scriptEpoch is where the simulated clock of every script starts
var scriptEpoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// runOpts are the flags of the run command
type runOpts struct {
	async   bool
	dump    bool
	quiet   bool
	plain   bool
	metrics bool
}

func newRunCmd() *cobra.Command {
	opts := runOpts{}
	cmd := &cobra.Command{
		Use:   "run <script-glob>...",
		Short: "Run one or more scripts",
		Example: `  optimist run scripts/groceries.yaml
  optimist run --config .optimist.hcl 'scripts/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, configFile)
			if err != nil {
				return err
			}
			if !debug {
				zerolog.SetGlobalLevel(cfg.LogLevel())
			}
			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			return runScripts(ctx, cfg, paths, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.async, "async", false, "stop waiting on a step as soon as the command is cancelled")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "dump the workspace after each script")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only print the summary")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print the summary as journal lines instead of tables")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print the collected metrics in the prometheus text format")
	return cmd
}

// 🔍 expandGlobs resolves every pattern into a sorted, de-duplicated list of files
func expandGlobs(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	paths := []string{}
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.Errorf("expanding %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no scripts match %s", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// 🏃 runScripts runs every script in its own workspace and backend
func runScripts(ctx context.Context, cfg *config.Config, paths []string, out io.Writer, opts runOpts) error {
	console := out
	if opts.quiet {
		console = io.Discard
	}
	logger := log.NewWithLogger(console, *zerolog.Ctx(ctx))
	ctx = log.NewContext(ctx, logger)

	var failed []error
	for _, path := range paths {
		if err := runScript(ctx, cfg, path, out, opts); err != nil {
			logger.Errorf("%s: %v", path, err)
			failed = append(failed, errors.Errorf("%s: %w", path, err))
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d scripts failed: %w", len(failed), len(paths), errors.Join(failed...))
	}
	logger.Success(fmt.Sprintf("%d scripts passed", len(paths)))
	return nil
}

func runScript(ctx context.Context, cfg *config.Config, path string, out io.Writer, opts runOpts) error {
	logger := log.FromContext(ctx)
	zlog := zerolog.Ctx(ctx).With().Str("script", path).Logger()
	ctx = zlog.WithContext(ctx)

	script, err := operation.Load(ctx, path)
	if err != nil {
		return err
	}
	logger.Header(script.Name)

	seed := cfg.Backend.Seed
	if script.Seed != "" {
		seed = script.Seed
	}
	var dataset remote.Dataset
	if seed != "" {
		if dataset, err = operation.LoadSeed(seed); err != nil {
			return err
		}
	}

	backend, err := remote.Open(ctx, cfg.Backend.Name, remote.Options{
		Latency: cfg.Latency(),
		Seed:    dataset,
		FirstID: cfg.Backend.SeedID,
	})
	if err != nil {
		return err
	}

	clock := deferred.NewFakeClock(scriptEpoch)
	journal := status.NewJournal(&zlog)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	notes := notify.NewRecorder(logger)

	ws, err := workspace.New(workspace.Options{
		Backend:  backend,
		Notifier: notes,
		Reporter: mutation.Reporters{
			journal,
			m,
			mutation.ReporterFunc(func(ctx context.Context, s mutation.Settlement) {
				logger.LogOperation(ctx, operationLine(s))
			}),
		},
		Retry:        cfg.RetryPolicy(),
		UndoWindow:   cfg.UndoWindowDuration(),
		UndoLabel:    cfg.Notify.UndoLabel,
		Clock:        clock,
		OnTransition: m.Transition,
	})
	if err != nil {
		return err
	}
	if err := ws.Hydrate(ctx); err != nil {
		return err
	}

	env := operation.NewEnv(ws, clock)
	env.Notes = notes
	if faults, ok := backend.(operation.FaultInjector); ok {
		env.Faults = faults
	}

	runErr := operation.NewRunner(&zlog, opts.async).RunScript(ctx, script, env, journal)

	if err := printSummary(out, journal, opts.plain); err != nil {
		return err
	}
	if opts.dump {
		fmt.Fprintln(out, ws.Dump())
	}
	if opts.metrics {
		if err := writeMetrics(out, reg); err != nil {
			return err
		}
	}
	return runErr
}

// operationLine turns a settlement into a console line
func operationLine(s mutation.Settlement) log.OperationLine {
	line := log.OperationLine{
		Kind:     string(s.Kind),
		Op:       s.Op.String(),
		ID:       s.ID.String(),
		Outcome:  s.Outcome.String(),
		Attempts: s.Attempts,
	}
	if s.TempID != "" {
		line.TempID = s.TempID.String()
	}
	if s.Err != nil {
		line.Err = s.Err.Error()
	}
	return line
}

func printSummary(out io.Writer, journal *status.Journal, plain bool) error {
	if plain {
		for _, line := range journal.Lines() {
			fmt.Fprintln(out, line)
		}
		return nil
	}
	table, err := journal.Render()
	if err != nil {
		return err
	}
	tallies, err := journal.RenderTallies()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	fmt.Fprintln(out, tallies)
	return nil
}

// writeMetrics prints everything gathered from reg in the text exposition format
func writeMetrics(out io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return errors.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
