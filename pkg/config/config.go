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

package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/mutation"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUndoWindow      = 4 * time.Second
	DefaultUndoLabel       = "Undo"
	DefaultBackend         = "memory"
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🔁 RetryArgs configure retries of network failures
type RetryArgs struct {
	MaxAttempts     int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialInterval string `json:"initial_interval,omitempty" yaml:"initial_interval,omitempty"`
	MaxInterval     string `json:"max_interval,omitempty" yaml:"max_interval,omitempty"`
}

// LogArgs configure logging
type LogArgs struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// 🗄️ BackendArgs pick and tune the remote backend
type BackendArgs struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Latency string `json:"latency,omitempty" yaml:"latency,omitempty"`
	SeedID  int64  `json:"seed_id,omitempty" yaml:"seed_id,omitempty"` // first server id issued
	Seed    string `json:"seed,omitempty" yaml:"seed,omitempty"`       // dataset file loaded at start
}

// NotifyArgs configure notifications
type NotifyArgs struct {
	UndoLabel string `json:"undo_label,omitempty" yaml:"undo_label,omitempty"`
}

// 📚 Config represents the complete configuration
type Config struct {
	UndoWindow string      `json:"undo_window,omitempty" yaml:"undo_window,omitempty"`
	Retry      *RetryArgs  `json:"retry,omitempty" yaml:"retry,omitempty"`
	Log        LogArgs     `json:"log,omitempty" yaml:"log,omitempty"`
	Backend    BackendArgs `json:"backend,omitempty" yaml:"backend,omitempty"`
	Notify     NotifyArgs  `json:"notify,omitempty" yaml:"notify,omitempty"`

	location   string
	undoWindow time.Duration
	retry      mutation.RetryPolicy
	level      zerolog.Level
	latency    time.Duration
}

// Default returns a validated config with every default filled in
func Default() *Config {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		panic(errors.Errorf("default config is invalid: %w", err))
	}
	return cfg
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var cfg *Config
	if filepath.Base(path) == ".optimist" {
		// no extension, try yaml first
		cfg, err = (&YAMLParser{}).Parse(ctx, data)
		if err != nil {
			var hclErr error
			cfg, hclErr = (&HCLParser{}).Parse(ctx, data)
			if hclErr != nil {
				return nil, errors.Errorf("parsing .optimist as YAML or HCL: %w", errors.Join(err, hclErr))
			}
		}
	} else {
		p := GetParser(path)
		if p == nil {
			return nil, errors.Errorf("no parser found for file: %s", path)
		}
		cfg, err = p.Parse(ctx, data)
		if err != nil {
			return nil, errors.Errorf("parsing config: %w", err)
		}
	}

	cfg.location = path
	if cfg.Backend.Seed != "" && !filepath.IsAbs(cfg.Backend.Seed) {
		cfg.Backend.Seed = filepath.Join(filepath.Dir(path), cfg.Backend.Seed)
	}
	return cfg, nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// 🔍 Validate checks the configuration, fills defaults and parses durations
func (cfg *Config) Validate() error {
	var err error

	cfg.undoWindow, err = parseDuration("undo_window", cfg.UndoWindow, DefaultUndoWindow)
	if err != nil {
		return err
	}
	if cfg.undoWindow == 0 {
		return errors.Errorf("undo_window must be positive")
	}

	cfg.retry = mutation.NoRetry
	if r := cfg.Retry; r != nil {
		if r.MaxAttempts < 0 {
			return errors.Errorf("retry.max_attempts must not be negative")
		}
		initial, err := parseDuration("retry.initial_interval", r.InitialInterval, DefaultInitialInterval)
		if err != nil {
			return err
		}
		maxInterval, err := parseDuration("retry.max_interval", r.MaxInterval, DefaultMaxInterval)
		if err != nil {
			return err
		}
		if maxInterval < initial {
			return errors.Errorf("retry.max_interval must not be below retry.initial_interval")
		}
		if r.MaxAttempts > 1 {
			cfg.retry = mutation.RetryPolicy{MaxAttempts: r.MaxAttempts, InitialInterval: initial, MaxInterval: maxInterval}
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = zerolog.InfoLevel.String()
	}
	cfg.level, err = zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return errors.Errorf("log.level: %w", err)
	}

	if cfg.Backend.Name == "" {
		cfg.Backend.Name = DefaultBackend
	}
	cfg.latency, err = parseDuration("backend.latency", cfg.Backend.Latency, 0)
	if err != nil {
		return err
	}
	if cfg.Backend.SeedID < 0 {
		return errors.Errorf("backend.seed_id must not be negative")
	}

	if cfg.Notify.UndoLabel == "" {
		cfg.Notify.UndoLabel = DefaultUndoLabel
	}

	return nil
}

// UndoWindowDuration is how long a deletion can be undone
func (cfg *Config) UndoWindowDuration() time.Duration { return cfg.undoWindow }

// RetryPolicy is the policy for network failures
func (cfg *Config) RetryPolicy() mutation.RetryPolicy { return cfg.retry }

// LogLevel is the parsed log level
func (cfg *Config) LogLevel() zerolog.Level { return cfg.level }

// Latency is the simulated round trip of the backend
func (cfg *Config) Latency() time.Duration { return cfg.latency }

// Location is the file the config was loaded from, empty for defaults
func (cfg *Config) Location() string { return cfg.location }

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	retry := "off"
	if cfg.retry.MaxAttempts > 1 {
		retry = fmt.Sprintf("%dx", cfg.retry.MaxAttempts)
	}
	return fmt.Sprintf("%s backend, undo %s, retry %s, log %s", cfg.Backend.Name, cfg.undoWindow, retry, cfg.level)
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

func init() {
	Register(&YAMLParser{})
}

func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func (p *YAMLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
