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

package mutation

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/walteh/optimist/pkg/entity"
	"gitlab.com/tozd/go/errors"
)

// 🚦 Sequencer lets one mutation per id run at a time. Waiters are served in
// arrival order; ids never wait on each other.
type Sequencer struct {
	mu    sync.Mutex
	tails map[entity.ID]chan struct{}
	held  mapset.Set[entity.ID]
}

// NewSequencer creates an empty sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{
		tails: make(map[entity.ID]chan struct{}),
		held:  mapset.NewSet[entity.ID](),
	}
}

// Acquire waits for every earlier holder of id to release it. The returned
// release must be called exactly once. When ctx ends first the slot is still
// handed on in order and an error is returned.
func (s *Sequencer) Acquire(ctx context.Context, id entity.ID) (func(), error) {
	s.mu.Lock()
	prev := s.tails[id]
	mine := make(chan struct{})
	s.tails[id] = mine
	s.mu.Unlock()

	var once sync.Once
	handOff := func() {
		once.Do(func() {
			s.mu.Lock()
			if s.tails[id] == mine {
				delete(s.tails, id)
			}
			s.mu.Unlock()
			close(mine)
		})
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				handOff()
			}()
			return nil, errors.Errorf("waiting for pending mutation on %s: %w", id, ctx.Err())
		}
	}

	s.held.Add(id)
	return func() {
		s.held.Remove(id)
		handOff()
	}, nil
}

// Busy reports whether a mutation currently holds id
func (s *Sequencer) Busy(id entity.ID) bool {
	return s.held.Contains(id)
}

// Held returns the ids with a running mutation
func (s *Sequencer) Held() []entity.ID {
	return s.held.ToSlice()
}
