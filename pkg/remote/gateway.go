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

package remote

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/walteh/optimist/pkg/entity"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Gateway performs the persisted create, update and delete calls for one
// entity kind. Payloads carry relationships as plain id lists and never carry
// temporary ids.
type Gateway[E any, P any] interface {
	// Create persists draft inside parent and returns the canonical entity
	Create(ctx context.Context, parent entity.CollectionKey, draft E) (E, error)
	// Update applies patch to id and returns the canonical entity
	Update(ctx context.Context, id entity.ID, patch P) (E, error)
	// Delete removes id
	Delete(ctx context.Context, id entity.ID) error
}

// 🧰 Backend bundles the gateways of every mutable kind
type Backend interface {
	// Name returns the name the backend was registered under
	Name() string
	Tasks() Gateway[entity.Task, entity.TaskPatch]
	Tags() Gateway[entity.Tag, entity.TagPatch]
	Lists() Gateway[entity.List, entity.ListPatch]
	// Load returns everything the signed-in user can see
	Load(ctx context.Context) (Dataset, error)
}

// 📦 Dataset is a full server-side view used to hydrate the client
type Dataset struct {
	Lists   []entity.List   `json:"lists" yaml:"lists"`
	Tags    []entity.Tag    `json:"tags" yaml:"tags"`
	Tasks   []entity.Task   `json:"tasks" yaml:"tasks"`
	Members []entity.Member `json:"members" yaml:"members"`
}

// ⚙️ Options configure a backend when it is opened
type Options struct {
	// Latency delays every call, simulating a round trip
	Latency time.Duration
	// Seed is loaded into the backend before first use
	Seed Dataset
	// FirstID is the first numeric id the backend issues, when positive
	FirstID int64
}

// 🏭 Factory opens a backend
type Factory func(ctx context.Context, opts Options) (Backend, error)

var registry = map[string]Factory{}

// 📝 Register makes a backend available under name
func Register(name string, factory Factory) {
	registry[name] = factory
}

// 🎯 Open opens the backend registered under name
func Open(ctx context.Context, name string, opts Options) (Backend, error) {
	factory, ok := registry[name]
	if !ok {
		options := []string{}
		for k := range registry {
			options = append(options, k)
		}
		sort.Strings(options)
		return nil, errors.Errorf("backend %s not found, options: %s", name, strings.Join(options, ", "))
	}
	backend, err := factory(ctx, opts)
	if err != nil {
		return nil, errors.Errorf("opening backend %s: %w", name, err)
	}
	return backend, nil
}
