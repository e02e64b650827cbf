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

// Package notify is the user-facing toast surface the mutation layer reports to.
package notify

import (
	"time"

	"github.com/walteh/optimist/pkg/entity"
)

// 🔘 Action is a button attached to a notification
type Action struct {
	Label    string
	OnAction func()
}

// 📣 Notifier shows short messages to the user
type Notifier interface {
	Success(msg string)
	Error(msg string)
	// Actionable shows msg with a button for the given duration
	Actionable(msg string, action Action, duration time.Duration)
}

// 💬 Messages are the stable texts shown for one entity kind.
// An empty success text shows nothing.
type Messages struct {
	Created string
	Updated string
	Deleted string

	CreateFailed  string
	UpdateFailed  string
	DeleteFailed  string
	DuplicateName string

	// Hidden is shown with the undo button when a deletion is deferred
	Hidden string
}

var messages = map[entity.Kind]Messages{
	entity.KindTask: {
		CreateFailed:  "Couldn't create the task. Please try again.",
		UpdateFailed:  "Couldn't save your changes to the task.",
		DeleteFailed:  "Couldn't delete the task. It has been restored.",
		DuplicateName: "A task with that title already exists.",
		Hidden:        "Task deleted",
	},
	entity.KindTag: {
		Created:       "Tag created",
		CreateFailed:  "Couldn't create the tag. Please try again.",
		UpdateFailed:  "Couldn't save your changes to the tag.",
		DeleteFailed:  "Couldn't delete the tag. It has been restored.",
		DuplicateName: "A tag with that name already exists in this list.",
		Hidden:        "Tag deleted",
	},
	entity.KindList: {
		Created:       "List created",
		Updated:       "List updated",
		CreateFailed:  "Couldn't create the list. Please try again.",
		UpdateFailed:  "Couldn't save your changes to the list.",
		DeleteFailed:  "Couldn't delete the list. It has been restored.",
		DuplicateName: "A list with that name already exists.",
		Hidden:        "List deleted",
	},
}

// MessagesFor returns the texts for kind. Unknown kinds get generic texts.
func MessagesFor(kind entity.Kind) Messages {
	if m, ok := messages[kind]; ok {
		return m
	}
	return Messages{
		CreateFailed:  "Couldn't create the item. Please try again.",
		UpdateFailed:  "Couldn't save your changes.",
		DeleteFailed:  "Couldn't delete the item. It has been restored.",
		DuplicateName: "An item with that name already exists.",
		Hidden:        "Item deleted",
	}
}

// Discard is a Notifier that shows nothing
type Discard struct{}

func (Discard) Success(string) {}

func (Discard) Error(string) {}

func (Discard) Actionable(string, Action, time.Duration) {}
