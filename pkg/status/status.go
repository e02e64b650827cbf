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

package status

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
	"gitlab.com/tozd/go/errors"
)

// 📄 Entry is one journaled settlement
type Entry struct {
	Seq int
	mutation.Settlement
}

// Tally counts outcomes for one kind and op
type Tally struct {
	Kind       entity.Kind
	Op         mutation.Op
	Committed  int
	RolledBack int
	Vanished   int
}

// Total returns the number of settlements counted
func (t Tally) Total() int {
	return t.Committed + t.RolledBack + t.Vanished
}

type tallyKey struct {
	kind entity.Kind
	op   mutation.Op
}

// 📒 Journal records settlements and reports progress
type Journal struct {
	logger    *zerolog.Logger
	formatter Formatter

	mu      sync.RWMutex
	entries []Entry
	tallies map[tallyKey]*Tally

	// progress tracking
	total     int
	processed int
}

var _ mutation.Reporter = (*Journal)(nil)

// 🏭 NewJournal creates an empty journal
func NewJournal(logger *zerolog.Logger) *Journal {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Journal{
		logger:    logger,
		formatter: NewDefaultFormatter(),
		tallies:   make(map[tallyKey]*Tally),
	}
}

// Settled implements mutation.Reporter
func (j *Journal) Settled(ctx context.Context, s mutation.Settlement) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, Entry{Seq: len(j.entries) + 1, Settlement: s})

	key := tallyKey{kind: s.Kind, op: s.Op}
	t, ok := j.tallies[key]
	if !ok {
		t = &Tally{Kind: s.Kind, Op: s.Op}
		j.tallies[key] = t
	}
	switch s.Outcome {
	case mutation.Committed:
		t.Committed++
	case mutation.RolledBack:
		t.RolledBack++
	case mutation.Vanished:
		t.Vanished++
	}

	msg := j.formatter.FormatSettlement(s)
	if s.Err != nil {
		j.logger.Warn().Err(s.Err).Str("kind", string(s.Kind)).Str("id", s.ID.String()).Msg(msg)
		return
	}
	j.logger.Info().Str("kind", string(s.Kind)).Str("id", s.ID.String()).Msg(msg)
}

// Entries returns every settlement in the order it was reported
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Entry(nil), j.entries...)
}

// Failures returns the settlements that carried an error
func (j *Journal) Failures() []Entry {
	out := []Entry{}
	for _, e := range j.Entries() {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// Tallies returns the outcome counts sorted by kind then op
func (j *Journal) Tallies() []Tally {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Tally, 0, len(j.tallies))
	for _, t := range j.tallies {
		out = append(out, *t)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Kind != out[b].Kind {
			return out[a].Kind < out[b].Kind
		}
		return out[a].Op < out[b].Op
	})
	return out
}

// Lookup returns the last entry for id, following a create's temp id
func (j *Journal) Lookup(id entity.ID) (Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.entries) - 1; i >= 0; i-- {
		if e := j.entries[i]; e.ID == id || e.TempID == id {
			return e, nil
		}
	}
	return Entry{}, errors.Errorf("no settlement for %s", id)
}

// StartOperation begins progress reporting for a run of total steps
func (j *Journal) StartOperation(ctx context.Context, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.total = total
	j.processed = 0
	j.logger.Info().Int("total", total).Msg(j.formatter.FormatProgress(0, total))
}

// UpdateProgress records that processed steps are done
func (j *Journal) UpdateProgress(ctx context.Context, processed int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.processed = processed
	j.logger.Info().
		Int("processed", processed).
		Int("total", j.total).
		Msg(j.formatter.FormatProgress(processed, j.total))
}

// FinishOperation ends progress reporting
func (j *Journal) FinishOperation(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.processed = j.total
	j.logger.Info().
		Int("processed", j.total).
		Int("total", j.total).
		Msg(j.formatter.FormatProgress(j.total, j.total))
}

// Progress returns the processed and total step counts
func (j *Journal) Progress() (int, int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.processed, j.total
}

// 🖨️ Render draws the journal as a table
func (j *Journal) Render() (string, error) {
	data := pterm.TableData{{"#", "kind", "op", "id", "outcome", "attempts", "took", "error"}}
	for _, e := range j.Entries() {
		data = append(data, []string{
			strconv.Itoa(e.Seq),
			string(e.Kind),
			e.Op.String(),
			displayID(e.Settlement),
			e.Outcome.String(),
			strconv.Itoa(e.Attempts),
			e.Duration.Round(100 * time.Microsecond).String(),
			errorText(e.Err),
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", errors.Errorf("rendering journal: %w", err)
	}
	return out, nil
}

// RenderTallies draws the outcome counts as a table
func (j *Journal) RenderTallies() (string, error) {
	data := pterm.TableData{{"kind", "op", "committed", "rolled back", "vanished"}}
	for _, t := range j.Tallies() {
		data = append(data, []string{
			string(t.Kind),
			t.Op.String(),
			strconv.Itoa(t.Committed),
			strconv.Itoa(t.RolledBack),
			strconv.Itoa(t.Vanished),
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", errors.Errorf("rendering tallies: %w", err)
	}
	return out, nil
}

func displayID(s mutation.Settlement) string {
	if s.TempID != "" && s.TempID != s.ID {
		return s.TempID.String() + " → " + s.ID.String()
	}
	return s.ID.String()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
