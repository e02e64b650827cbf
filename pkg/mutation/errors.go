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
	"fmt"

	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/remote"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNetworkFailure means the gateway call never got an answer
	ErrNetworkFailure = errors.Base("network failure")
	// ErrRemoteRejected means the server answered and refused the operation
	ErrRemoteRejected = errors.Base("remote rejected")
	// ErrDuplicateName is a rejection for a name already taken. It is never retried.
	ErrDuplicateName = errors.BaseWrap(ErrRemoteRejected, "duplicate name")
)

// Op is a logical mutation
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ❌ Error is the failure of one settled mutation. It matches one of
// ErrNetworkFailure, ErrRemoteRejected or ErrDuplicateName with errors.Is.
type Error struct {
	Kind entity.Kind
	Op   Op
	ID   entity.ID
	// Code is the server rejection code, empty for network failures
	Code string
	// Message is the server message, or the transport error text
	Message string

	class error
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %s: %s: %s", e.Op, e.Kind, e.ID, e.class, e.Message)
}

func (e *Error) Unwrap() []error {
	return []error{e.class, e.cause}
}

// classify maps a gateway error onto the mutation taxonomy
func classify(kind entity.Kind, op Op, id entity.ID, err error) *Error {
	e := &Error{Kind: kind, Op: op, ID: id, cause: err, Message: err.Error(), class: ErrNetworkFailure}
	if rej, ok := remote.AsRejected(err); ok {
		e.Code = rej.Code
		e.Message = rej.Message
		e.class = ErrRemoteRejected
		if rej.Code == remote.CodeDuplicateName {
			e.class = ErrDuplicateName
		}
	}
	return e
}
