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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/optimist/pkg/config"
	"github.com/walteh/optimist/pkg/operation"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

const testSeed = `
lists:
  - id: "7"
    title: Groceries
tasks:
  - id: "9"
    list_id: "7"
    title: Eggs
`

const testScript = `
name: groceries
seed: seed.yaml
steps:
  - action: toggle_task
    id: "9"
  - action: expect
    kind: task
    id: "9"
    completed: true
  - action: delete_task
    id: "9"
  - action: wait
    duration: 2s
  - action: expect
    kind: task
    id: "9"
    missing: true
  - action: create_task
    list: "7"
    title: Milk
    ref: milk
  - action: expect
    list: "7"
    titles: [Milk]
`

const testConfig = `
undo_window: 2s
backend:
  seed_id: 500
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755), "creating %s", name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644), "writing %s", name)
	}
	return dir
}

func TestExpandGlobs(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.yaml":        "",
		"nested/b.yaml": "",
		"nested/c.txt":  "",
	})

	paths, err := expandGlobs([]string{
		filepath.Join(dir, "**", "*.yaml"),
		filepath.Join(dir, "a.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yaml"),
	}, paths)

	_, err = expandGlobs([]string{filepath.Join(dir, "*.hcl")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scripts match")
}

func TestRunScripts(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"seed.yaml":      testSeed,
		"groceries.yaml": testScript,
		".optimist.yaml": testConfig,
	})

	cfg, err := loadConfig(ctx, filepath.Join(dir, ".optimist.yaml"))
	require.NoError(t, err)

	var out bytes.Buffer
	err = runScripts(ctx, cfg, []string{filepath.Join(dir, "groceries.yaml")}, &out, runOpts{dump: true})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "groceries")
	assert.Contains(t, text, "1 scripts passed")
	assert.Contains(t, text, "500", "created task settles on the first seeded id")
	assert.Contains(t, text, "rolled back", "tally header is rendered")
	assert.Contains(t, text, "Milk", "dump shows the workspace")
}

func TestRunScriptsReportsFailures(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"seed.yaml": testSeed,
		"good.yaml": testScript,
		"bad.yaml": `
seed: seed.yaml
steps:
  - action: expect
    list: "7"
    titles: [Bread]
`,
	})

	paths, err := expandGlobs([]string{filepath.Join(dir, "*.yaml")})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	var out bytes.Buffer
	err = runScripts(ctx, mustDefault(t), paths[:2], &out, runOpts{quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 scripts failed")
	assert.ErrorIs(t, err, operation.ErrExpectation)
	assert.NotContains(t, out.String(), "scripts passed", "quiet hides the console")
}

func TestRunScriptsPlain(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"seed.yaml":      testSeed,
		"groceries.yaml": testScript,
	})

	var out bytes.Buffer
	err := runScripts(ctx, mustDefault(t), []string{filepath.Join(dir, "groceries.yaml")}, &out, runOpts{plain: true, quiet: true})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "delete task")
	assert.NotContains(t, text, "rolled back", "no tally table in plain mode")
}

func mustDefault(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := loadConfig(context.Background(), "")
	require.NoError(t, err)
	return cfg
}

func TestLoadConfigErrors(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"bad.yaml": "undo_window: soon\n",
	})

	_, err := loadConfig(ctx, filepath.Join(dir, "bad.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")

	_, err = loadConfig(ctx, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"seed.yaml":      testSeed,
		"groceries.yaml": testScript,
	})

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"run", "--quiet", filepath.Join(dir, "*.yaml")})
	t.Cleanup(func() { configFile, debug = "", false })

	// seed.yaml is not a script
	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed.yaml")

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", filepath.Join(dir, "groceries.yaml")})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "committed")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.ExecuteContext(setupTestLogger(t)))
	assert.Contains(t, out.String(), "optimist version info")

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, cmd.ExecuteContext(setupTestLogger(t)))
	assert.Contains(t, out.String(), `"go_version"`)
}

func TestRunScriptsMetrics(t *testing.T) {
	ctx := setupTestLogger(t)
	dir := writeFiles(t, map[string]string{
		"seed.yaml":      testSeed,
		"groceries.yaml": testScript,
	})
	path := filepath.Join(dir, "groceries.yaml")

	var out bytes.Buffer
	require.NoError(t, runScripts(ctx, mustDefault(t), []string{path}, &out, runOpts{quiet: true, metrics: true}))

	text := out.String()
	assert.Contains(t, text, "# TYPE optimist_mutation_settled_total counter")
	assert.Contains(t, text, `optimist_mutation_settled_total{kind="task",op="delete",outcome="committed"} 1`)

	out.Reset()
	require.NoError(t, runScripts(ctx, mustDefault(t), []string{path}, &out, runOpts{quiet: true}))
	assert.NotContains(t, out.String(), "optimist_mutation_settled_total", "metrics are only printed on request")
}
