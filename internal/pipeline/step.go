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
	"math"
	"time"
)

// Action is the label a step returns from Finalize to pick its successor.
type Action string

// DefaultAction is used when a step does not branch.
const DefaultAction Action = "default"

// Kind distinguishes single steps from batch steps.
type Kind int

const (
	KindSingle Kind = iota
	KindBatch
)

func (k Kind) String() string {
	if k == KindBatch {
		return "batch"
	}
	return "single"
}

// Step is one unit of work in a Flow.
//
// Prepare reads the store. Execute does the isolated work and must not
// touch the store, so it can be retried and, for batch steps, run
// concurrently. Finalize writes results into the store and returns the
// action governing the next transition.
//
// For KindBatch steps the step must also implement Batcher: Execute is
// called once per item returned by Split and Finalize receives
// []ItemResult[any] in item order.
type Step interface {
	Name() string
	Kind() Kind
	Options() StepOptions
	Prepare(ctx context.Context, store *Store) (any, error)
	Execute(ctx context.Context, prep any) (any, error)
	Finalize(ctx context.Context, store *Store, prep, exec any) (Action, error)
}

// Fallbacker is implemented by steps that can substitute a result once
// retries are exhausted. For batch steps input is the failing item.
type Fallbacker interface {
	Fallback(ctx context.Context, input any, err error) (any, error)
}

// Batcher splits a batch step's prep value into ordered items.
type Batcher interface {
	Split(prep any) ([]any, error)
}

// ItemResult is the outcome of one batch item. Err is non-nil, and wraps
// ErrBatchItemFailed, when the item failed after all attempts.
type ItemResult[E any] struct {
	Index    int
	Value    E
	Err      error
	Attempts int
}

// Backoff selects how the delay between attempts grows.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

var backoffCalculators = map[Backoff]func(base time.Duration, attempt int) time.Duration{
	BackoffFixed: func(base time.Duration, _ int) time.Duration {
		return base
	},
	BackoffLinear: func(base time.Duration, attempt int) time.Duration {
		return base * time.Duration(attempt)
	},
	BackoffExponential: func(base time.Duration, attempt int) time.Duration {
		return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	},
}

// StepOptions configures retry and batch behaviour of a step.
type StepOptions struct {
	// MaxAttempts is the total number of Execute calls per visit (or per
	// item). Values below 1 mean 1.
	MaxAttempts int
	RetryDelay  time.Duration
	Backoff     Backoff
	// MaxDelay caps the computed delay when positive.
	MaxDelay time.Duration

	// BatchFatal makes any unrecovered item failure terminate the run.
	BatchFatal bool
	// Parallelism bounds concurrent item executions; 0 means unbounded.
	Parallelism int

	// Actions declares the labels Finalize may return. When set, the flow
	// builder rejects transitions on other labels.
	Actions []Action
}

// Attempts returns the effective attempt budget.
func (o StepOptions) Attempts() int {
	return max(1, o.MaxAttempts)
}

// Delay returns the wait after the given failed attempt (1-based).
func (o StepOptions) Delay(attempt int) time.Duration {
	if o.RetryDelay <= 0 {
		return 0
	}
	calc, ok := backoffCalculators[o.Backoff]
	if !ok {
		calc = backoffCalculators[BackoffFixed]
	}
	d := calc(o.RetryDelay, max(1, attempt))
	if o.MaxDelay > 0 && d > o.MaxDelay {
		d = o.MaxDelay
	}
	return d
}

// declares reports whether the step accepts transitions on a.
func (o StepOptions) declares(a Action) bool {
	if len(o.Actions) == 0 {
		return true
	}
	for _, d := range o.Actions {
		if d == a {
			return true
		}
	}
	return false
}

type attemptKey struct{}

// WithAttempt returns ctx annotated with the current attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the 1-based attempt number of the running
// Execute call, or 1 outside the executor.
func AttemptFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}
