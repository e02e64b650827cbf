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
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// 📝 Parse parses the config from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "optimist.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// variables usable inside the file, e.g. latency = default_latency
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"default_undo_window": cty.StringVal(DefaultUndoWindow.String()),
			"default_backend":     cty.StringVal(DefaultBackend),
		},
	}

	// Define HCL schema
	type hclConfig struct {
		UndoWindow string `hcl:"undo_window,optional"`
		Retry      *struct {
			MaxAttempts     int    `hcl:"max_attempts,optional"`
			InitialInterval string `hcl:"initial_interval,optional"`
			MaxInterval     string `hcl:"max_interval,optional"`
		} `hcl:"retry,block"`
		Log *struct {
			Level string `hcl:"level,optional"`
		} `hcl:"log,block"`
		Backend *struct {
			Name    string `hcl:"name,optional"`
			Latency string `hcl:"latency,optional"`
			SeedID  int64  `hcl:"seed_id,optional"`
			Seed    string `hcl:"seed,optional"`
		} `hcl:"backend,block"`
		Notify *struct {
			UndoLabel string `hcl:"undo_label,optional"`
		} `hcl:"notify,block"`
	}

	// Decode HCL
	var hclCfg hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclCfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	// Convert to model
	cfg := &Config{UndoWindow: hclCfg.UndoWindow}
	if r := hclCfg.Retry; r != nil {
		cfg.Retry = &RetryArgs{
			MaxAttempts:     r.MaxAttempts,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
		}
	}
	if l := hclCfg.Log; l != nil {
		cfg.Log.Level = l.Level
	}
	if b := hclCfg.Backend; b != nil {
		cfg.Backend = BackendArgs{Name: b.Name, Latency: b.Latency, SeedID: b.SeedID, Seed: b.Seed}
	}
	if n := hclCfg.Notify; n != nil {
		cfg.Notify.UndoLabel = n.UndoLabel
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
