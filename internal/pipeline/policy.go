// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
)

// RetryPolicy decides what to do after a failed Execute call: retry,
// fall back, or abort. The policy only schedules; it never touches the
// store or the step's input.
type RetryPolicy interface {
	OnFailure(ctx context.Context, f Failure) Decision
}

// Failure describes one failed Execute call.
type Failure struct {
	Step        string
	Index       int // batch item index, -1 for single steps
	Attempt     int
	MaxAttempts int
	Err         error
}

// Decision is the action to take after a failure.
type Decision string

const (
	DecisionRetry    Decision = "retry"
	DecisionFallback Decision = "fallback"
	DecisionAbort    Decision = "abort"
)

// DefaultPolicy retries until the attempt budget is spent, then asks for
// the fallback. Errors marked Permanent skip the remaining attempts.
type DefaultPolicy struct{}

// OnFailure implements RetryPolicy.
func (DefaultPolicy) OnFailure(ctx context.Context, f Failure) Decision {
	if ctx.Err() != nil {
		return DecisionAbort
	}
	if IsPermanent(f.Err) || f.Attempt >= f.MaxAttempts {
		return DecisionFallback
	}
	return DecisionRetry
}
