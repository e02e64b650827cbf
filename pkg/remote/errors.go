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
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// Codes the server attaches to a rejection
const (
	CodeDuplicateName = "duplicate_name"
	CodeNotFound      = "not_found"
	CodeForbidden     = "forbidden"
	CodeInvalid       = "invalid"
)

// ErrUnavailable is a transport failure: the call never got an answer
var ErrUnavailable = errors.Base("remote unavailable")

// 🚫 RejectedError is an answer from the server refusing the operation.
// Any gateway error that is not a RejectedError is a transport failure.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Reject builds a RejectedError
func Reject(code string, format string, args ...any) error {
	return &RejectedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejected returns the rejection carried by err, if any
func AsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
