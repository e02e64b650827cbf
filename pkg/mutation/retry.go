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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/optimist/pkg/remote"
)

// 🔁 RetryPolicy retries gateway calls that failed in transport.
// Rejections are never retried. MaxAttempts of one or less disables retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NoRetry makes a single attempt
var NoRetry = RetryPolicy{MaxAttempts: 1}

// call runs fn under the policy and returns how many attempts were made
func (p RetryPolicy) call(ctx context.Context, fn func() error) (int, error) {
	attempts := 0
	if p.MaxAttempts <= 1 {
		attempts++
		return attempts, fn()
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if _, rejected := remote.AsRejected(err); rejected {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempts).Dur("wait", wait).Msg("retrying gateway call")
	})
	return attempts, err
}
