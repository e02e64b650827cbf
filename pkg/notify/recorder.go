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

package notify

import (
	"sync"
	"time"
)

// Level is the kind of notification
type Level string

const (
	LevelSuccess    Level = "success"
	LevelError      Level = "error"
	LevelActionable Level = "actionable"
)

// 📝 Note is one recorded notification
type Note struct {
	Level    Level
	Message  string
	Action   *Action
	Duration time.Duration
}

// 📼 Recorder keeps every notification it receives and can forward them
type Recorder struct {
	mu    sync.Mutex
	notes []Note
	next  Notifier
}

var _ Notifier = (*Recorder)(nil)

// NewRecorder creates a recorder. Notes are also forwarded to next when it is not nil.
func NewRecorder(next Notifier) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) add(n Note) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *Recorder) Success(msg string) {
	r.add(Note{Level: LevelSuccess, Message: msg})
	if r.next != nil {
		r.next.Success(msg)
	}
}

func (r *Recorder) Error(msg string) {
	r.add(Note{Level: LevelError, Message: msg})
	if r.next != nil {
		r.next.Error(msg)
	}
}

func (r *Recorder) Actionable(msg string, action Action, duration time.Duration) {
	a := action
	r.add(Note{Level: LevelActionable, Message: msg, Action: &a, Duration: duration})
	if r.next != nil {
		r.next.Actionable(msg, action, duration)
	}
}

// Notes returns every note so far
func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes...)
}

// Filter returns the notes of one level
func (r *Recorder) Filter(level Level) []Note {
	out := []Note{}
	for _, n := range r.Notes() {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Errors returns the messages of every error note
func (r *Recorder) Errors() []string {
	out := []string{}
	for _, n := range r.Filter(LevelError) {
		out = append(out, n.Message)
	}
	return out
}

// LastAction returns the action of the latest actionable note
func (r *Recorder) LastAction() (Action, bool) {
	notes := r.Filter(LevelActionable)
	if len(notes) == 0 {
		return Action{}, false
	}
	return *notes[len(notes)-1].Action, true
}

// Reset forgets every note
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}
