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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFallbackExhausted is returned when a step ran out of attempts and
	// had no fallback, or the fallback itself failed.
	ErrFallbackExhausted = errors.New("fallback exhausted")

	// ErrBatchItemFailed marks an unrecovered failure of one batch item.
	ErrBatchItemFailed = errors.New("batch item failed")

	// ErrNoFallback is returned by Fallbacker implementations that have
	// nothing to substitute.
	ErrNoFallback = errors.New("no fallback configured")

	ErrMissingKey  = errors.New("missing store key")
	ErrKeyType     = errors.New("unexpected store value type")
	ErrUnknownStep = errors.New("unknown step")
	ErrMaxVisits   = errors.New("max step visits exceeded")
)

// Phase names the lifecycle phase a StepError happened in.
type Phase string

const (
	PhasePrepare  Phase = "prepare"
	PhaseExecute  Phase = "execute"
	PhaseFinalize Phase = "finalize"
)

// StepError reports a run-terminating failure with the identity of the
// failing step and the number of attempts made.
type StepError struct {
	Step     string
	Phase    Phase
	Attempts int
	Index    int // batch item index, -1 for single steps
	Err      error
}

func (e *StepError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "step %s: %s", e.Step, e.Phase)
	if e.Index >= 0 {
		fmt.Fprintf(&sb, " item %d", e.Index)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&sb, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// ValidationError collects every problem found while building a Flow so
// callers can see all issues at once.
type ValidationError struct {
	Errs []string
}

func (e *ValidationError) Error() string {
	if len(e.Errs) == 0 {
		return "invalid flow"
	}
	if len(e.Errs) == 1 {
		return "invalid flow: " + e.Errs[0]
	}
	return fmt.Sprintf("invalid flow (%d errors): %s", len(e.Errs), strings.Join(e.Errs, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Errs = append(e.Errs, fmt.Sprintf(format, args...))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the executor stops retrying and goes straight to
// the fallback decision.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
