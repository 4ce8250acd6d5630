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
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
)

// Outcome is the result of running one Execute sequence.
type Outcome struct {
	Value        any
	Attempts     int
	FromFallback bool
}

// RetryExecutor runs a step's Execute phase with bounded retries, a delay
// between attempts and an optional fallback.
type RetryExecutor struct {
	// Policy defaults to DefaultPolicy.
	Policy RetryPolicy
	// Sleep waits d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRecord receives one record per attempt and per fallback. It may be
	// called concurrently for batch items.
	OnRecord func(StepRecord)
}

// Run executes step on input. index is the batch item index, or -1.
//
// Attempts are numbered from 1. After a failure the policy decides:
// DecisionRetry waits Options().Delay(attempt) and tries again,
// DecisionFallback invokes the step's Fallbacker (if any), DecisionAbort
// gives up. Giving up yields a *StepError wrapping ErrFallbackExhausted.
func (r *RetryExecutor) Run(ctx context.Context, step Step, input any, index int) (Outcome, error) {
	opts := step.Options()
	maxAttempts := opts.Attempts()
	policy := r.Policy
	if policy == nil {
		policy = DefaultPolicy{}
	}

	attempt := 0
	for {
		attempt++
		out, err := step.Execute(WithAttempt(ctx, attempt), input)
		if err == nil {
			r.record(step, index, attempt, StepOK, nil)
			return Outcome{Value: out, Attempts: attempt}, nil
		}

		decision := policy.OnFailure(ctx, Failure{
			Step:        step.Name(),
			Index:       index,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Err:         err,
		})
		switch decision {
		case DecisionRetry:
			r.record(step, index, attempt, StepRetry, err)
			delay := opts.Delay(attempt)
			log.Info("step %s%s attempt %d/%d failed, retrying in %v: %v",
				step.Name(), itemSuffix(index), attempt, maxAttempts, delay, err)
			if serr := r.sleep(ctx, delay); serr != nil {
				return Outcome{Attempts: attempt}, r.stepError(step, index, attempt, serr)
			}
		case DecisionFallback:
			r.record(step, index, attempt, StepFailed, err)
			return r.fallback(ctx, step, input, index, attempt, err)
		default:
			r.record(step, index, attempt, StepFailed, err)
			if cerr := ctx.Err(); cerr != nil {
				return Outcome{Attempts: attempt}, r.stepError(step, index, attempt, cerr)
			}
			return Outcome{Attempts: attempt}, r.stepError(step, index, attempt,
				fmt.Errorf("%w: %w", ErrFallbackExhausted, err))
		}
	}
}

func (r *RetryExecutor) fallback(ctx context.Context, step Step, input any, index, attempts int, lastErr error) (Outcome, error) {
	exhausted := func(cause error) (Outcome, error) {
		return Outcome{Attempts: attempts}, r.stepError(step, index, attempts,
			fmt.Errorf("%w: %w", ErrFallbackExhausted, cause))
	}
	fb, ok := step.(Fallbacker)
	if !ok {
		return exhausted(lastErr)
	}
	out, err := fb.Fallback(ctx, input, lastErr)
	if err != nil {
		if errors.Is(err, ErrNoFallback) {
			return exhausted(lastErr)
		}
		return exhausted(fmt.Errorf("fallback: %w (last error: %v)", err, lastErr))
	}
	log.Info("step %s%s resolved by fallback after %d attempt(s)", step.Name(), itemSuffix(index), attempts)
	r.record(step, index, attempts, StepFallback, nil)
	return Outcome{Value: out, Attempts: attempts, FromFallback: true}, nil
}

func (r *RetryExecutor) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (r *RetryExecutor) record(step Step, index, attempt int, status StepStatus, err error) {
	if r.OnRecord == nil {
		return
	}
	r.OnRecord(StepRecord{
		StepName: step.Name(),
		Index:    index,
		Attempt:  attempt,
		Status:   status,
		Error:    errStr(err),
		Time:     time.Now(),
	})
}

func (r *RetryExecutor) stepError(step Step, index, attempts int, err error) *StepError {
	return &StepError{
		Step:     step.Name(),
		Phase:    PhaseExecute,
		Attempts: attempts,
		Index:    index,
		Err:      err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func itemSuffix(index int) string {
	if index < 0 {
		return ""
	}
	return fmt.Sprintf("[%d]", index)
}
