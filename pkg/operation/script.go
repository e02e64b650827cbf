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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/remote"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// actions a step can name
const (
	ActionCreateList = "create_list"
	ActionUpdateList = "update_list"
	ActionDeleteList = "delete_list"
	ActionCreateTag  = "create_tag"
	ActionUpdateTag  = "update_tag"
	ActionDeleteTag  = "delete_tag"
	ActionCreateTask = "create_task"
	ActionUpdateTask = "update_task"
	ActionToggleTask = "toggle_task"
	ActionTagTask    = "tag_task"
	ActionAssignTask = "assign_task"
	ActionDeleteTask = "delete_task"
	ActionUndo       = "undo"
	ActionWait       = "wait"
	ActionFlush      = "flush"
	ActionFailNext   = "fail_next"
	ActionExpect     = "expect"
	ActionAsync      = "async"
)

var knownActions = []string{
	ActionCreateList, ActionUpdateList, ActionDeleteList,
	ActionCreateTag, ActionUpdateTag, ActionDeleteTag,
	ActionCreateTask, ActionUpdateTask, ActionToggleTask, ActionTagTask, ActionAssignTask, ActionDeleteTask,
	ActionUndo, ActionWait, ActionFlush, ActionFailNext, ActionExpect, ActionAsync,
}

// 📜 Script is a named sequence of steps
type Script struct {
	Name string `yaml:"name"`
	// Seed is a dataset file loaded into the backend before the first step
	Seed  string `yaml:"seed,omitempty"`
	Steps []Step `yaml:"steps"`

	location string
}

// 👣 Step is one ui action. Which fields matter depends on Action.
// Values starting with $ name an id bound by an earlier step's Ref.
type Step struct {
	Action string `yaml:"action"`
	Ref    string `yaml:"ref,omitempty"`

	ID   string `yaml:"id,omitempty"`
	Kind string `yaml:"kind,omitempty"`
	List string `yaml:"list,omitempty"`
	At   *int   `yaml:"at,omitempty"`

	Title       *string  `yaml:"title,omitempty"`
	Name        *string  `yaml:"name,omitempty"`
	Description *string  `yaml:"description,omitempty"`
	Color       *string  `yaml:"color,omitempty"`
	Due         *string  `yaml:"due,omitempty"`
	Completed   *bool    `yaml:"completed,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Assignees   []string `yaml:"assignees,omitempty"`

	// ShowCompleted and SortBy update a list's display config
	ShowCompleted *bool   `yaml:"show_completed,omitempty"`
	SortBy        *string `yaml:"sort_by,omitempty"`

	// Fails marks a step whose mutation is expected to roll back
	Fails bool `yaml:"fails,omitempty"`

	// Duration is how far wait moves the clock
	Duration string `yaml:"duration,omitempty"`

	// Op and Code configure fail_next; an empty code fails in transport
	Op   string `yaml:"op,omitempty"`
	Code string `yaml:"code,omitempty"`

	// Titles, Missing and Errors are checked by expect
	Titles  []string `yaml:"titles,omitempty"`
	Missing bool     `yaml:"missing,omitempty"`
	Errors  *int     `yaml:"errors,omitempty"`

	Steps []Step `yaml:"steps,omitempty"`
}

// 🎯 Load reads and validates a script file
func Load(ctx context.Context, path string) (*Script, error) {
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("loading script")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Errorf("parsing %s: %w", path, err)
	}
	s.location = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if s.Seed != "" && !filepath.IsAbs(s.Seed) {
		s.Seed = filepath.Join(filepath.Dir(path), s.Seed)
	}
	return s, nil
}

// Parse decodes a script from YAML and validates it
func Parse(data []byte) (*Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Errorf("decoding YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// 🔍 Validate checks every step names a known action with what it needs
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.Errorf("script has no steps")
	}
	return validateSteps(s.Steps, "steps")
}

func validateSteps(steps []Step, path string) error {
	for i, st := range steps {
		at := path + "[" + strconv.Itoa(i) + "]"
		if !slices.Contains(knownActions, st.Action) {
			return errors.Errorf("%s: unknown action %q", at, st.Action)
		}
		switch st.Action {
		case ActionAsync:
			if len(st.Steps) == 0 {
				return errors.Errorf("%s: async needs steps", at)
			}
			if err := validateSteps(st.Steps, at+".steps"); err != nil {
				return err
			}
		case ActionCreateTask, ActionCreateTag:
			if st.List == "" {
				return errors.Errorf("%s: %s needs a list", at, st.Action)
			}
		case ActionCreateList:
			if st.Title == nil {
				return errors.Errorf("%s: create_list needs a title", at)
			}
		case ActionUndo, ActionFailNext:
			if st.Kind == "" {
				return errors.Errorf("%s: %s needs a kind", at, st.Action)
			}
		case ActionWait:
			if st.Duration == "" {
				return errors.Errorf("%s: wait needs a duration", at)
			}
		}
		if st.Action != ActionAsync && len(st.Steps) > 0 {
			return errors.Errorf("%s: only async steps have steps", at)
		}
	}
	return nil
}

// Location is the file the script was loaded from
func (s *Script) Location() string { return s.location }

// 🌱 LoadSeed reads a dataset file in YAML (or JSON, which YAML accepts)
func LoadSeed(path string) (remote.Dataset, error) {
	var ds remote.Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, errors.Errorf("reading seed: %w", err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, errors.Errorf("decoding seed %s: %w", path, err)
	}
	return ds, nil
}
