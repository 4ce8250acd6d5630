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
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// counterStep fails the first failures calls, then returns value.
type counterStep struct {
	name      string
	opts      StepOptions
	failures  int
	value     any
	calls     atomic.Int32
	finalized int
	got       any
	fallback  func(input any, err error) (any, error)
}

func (s *counterStep) Name() string         { return s.name }
func (s *counterStep) Kind() Kind           { return KindSingle }
func (s *counterStep) Options() StepOptions { return s.opts }

func (s *counterStep) Prepare(ctx context.Context, store *Store) (any, error) {
	return nil, nil
}

func (s *counterStep) Execute(ctx context.Context, prep any) (any, error) {
	n := int(s.calls.Add(1))
	if s.failures < 0 || n <= s.failures {
		return nil, fmt.Errorf("attempt %d failed", n)
	}
	return s.value, nil
}

func (s *counterStep) Finalize(ctx context.Context, store *Store, prep, exec any) (Action, error) {
	s.finalized++
	s.got = exec
	store.Set(s.name, exec)
	return DefaultAction, nil
}

func (s *counterStep) Fallback(ctx context.Context, input any, err error) (any, error) {
	if s.fallback == nil {
		return nil, ErrNoFallback
	}
	return s.fallback(input, err)
}

func TestFlow_LinearScenario(t *testing.T) {
	a := NewStep("A", StepOptions{}, StepFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) (int, error) { return Get[int](store, "n") },
		Execute: func(ctx context.Context, n int) (int, error) { return n * 2, nil },
		Finalize: func(ctx context.Context, store *Store, _ int, doubled int) (Action, error) {
			store.Set("doubled", doubled)
			return DefaultAction, nil
		},
	})
	b := NewStep("B", StepOptions{}, StepFuncs[int, string]{
		Prepare: func(ctx context.Context, store *Store) (int, error) { return Get[int](store, "doubled") },
		Execute: func(ctx context.Context, d int) (string, error) { return strconv.Itoa(d) + "+1", nil },
		Finalize: func(ctx context.Context, store *Store, _ int, label string) (Action, error) {
			store.Set("label", label)
			return "", nil
		},
	})
	var seen string
	c := NewStep("C", StepOptions{}, StepFuncs[string, struct{}]{
		Prepare: func(ctx context.Context, store *Store) (string, error) {
			n := GetOr(store, "n", 0)
			l := GetOr(store, "label", "")
			return fmt.Sprintf("%d/%s", n, l), nil
		},
		Finalize: func(ctx context.Context, store *Store, p string, _ struct{}) (Action, error) {
			seen = p
			return DefaultAction, nil
		},
	})

	flow, err := NewBuilder("linear").Chain(a, b, c).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	store := NewStore(map[string]any{"n": 3})
	report, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := GetOr(store, "doubled", 0); got != 6 {
		t.Errorf("doubled: got %d", got)
	}
	if got := GetOr(store, "label", ""); got != "6+1" {
		t.Errorf("label: got %q", got)
	}
	if store.Len() != 3 {
		t.Errorf("keys: got %v", store.Keys())
	}
	if seen != "3/6+1" {
		t.Errorf("C saw %q", seen)
	}
	if report.HaltStep != "C" || report.HaltAction != DefaultAction {
		t.Errorf("halt: %s/%s", report.HaltStep, report.HaltAction)
	}
	if report.Visits() != 3 {
		t.Errorf("visits: got %d", report.Visits())
	}
}

func TestFlow_BranchingVisitsOnce(t *testing.T) {
	route := func(name string, action Action) Step {
		return NewStep(name, StepOptions{Actions: []Action{"left", "right", DefaultAction}}, StepFuncs[any, any]{
			Finalize: func(ctx context.Context, store *Store, _ any, _ any) (Action, error) {
				store.Set(name, true)
				return action, nil
			},
		})
	}
	flow, err := NewBuilder("branch").
		Add(route("start", "right"), route("l", DefaultAction), route("r", "left"), route("end", "right")).
		Connect("start", "left", "l").
		Connect("start", "right", "r").
		Connect("r", "left", "end").
		Then("l", "end").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	store := NewStore(nil)
	report, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"start", "r", "end"}
	if fmt.Sprint(report.Path) != fmt.Sprint(want) {
		t.Errorf("path: got %v want %v", report.Path, want)
	}
	if store.Has("l") {
		t.Error("l must not run")
	}
	if report.HaltStep != "end" || report.HaltAction != "right" {
		t.Errorf("halt: %s/%s", report.HaltStep, report.HaltAction)
	}
}

func TestFlow_CycleUntilDone(t *testing.T) {
	loop := NewStep("loop", StepOptions{Actions: []Action{"again", "done"}}, StepFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) (int, error) { return GetOr(store, "i", 0), nil },
		Execute: func(ctx context.Context, i int) (int, error) { return i + 1, nil },
		Finalize: func(ctx context.Context, store *Store, _ int, i int) (Action, error) {
			store.Set("i", i)
			if i < 3 {
				return "again", nil
			}
			return "done", nil
		},
	})
	flow := NewBuilder("cycle").Add(loop).Connect("loop", "again", "loop").MustBuild()
	store := NewStore(nil)
	report, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if GetOr(store, "i", 0) != 3 || report.Visits() != 3 {
		t.Errorf("i=%v visits=%d", GetOr(store, "i", 0), report.Visits())
	}

	bounded := NewBuilder("bounded").Add(loop).Connect("loop", "again", "loop").WithMaxVisits(2).MustBuild()
	_, err = bounded.Run(context.Background(), NewStore(nil))
	if !errors.Is(err, ErrMaxVisits) {
		t.Errorf("expected ErrMaxVisits, got %v", err)
	}
}

func TestRetry_ExhaustedWithoutFallback(t *testing.T) {
	s := &counterStep{name: "s", opts: StepOptions{MaxAttempts: 4}, failures: -1}
	flow := NewBuilder("f").Add(s).WithSleep(noSleep).MustBuild()
	store := NewStore(nil)
	report, err := flow.Run(context.Background(), store)
	if !errors.Is(err, ErrFallbackExhausted) {
		t.Fatalf("expected ErrFallbackExhausted, got %v", err)
	}
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected StepError, got %T", err)
	}
	if se.Step != "s" || se.Attempts != 4 || se.Phase != PhaseExecute {
		t.Errorf("step error: %+v", se)
	}
	if got := s.calls.Load(); got != 4 {
		t.Errorf("execute calls: got %d", got)
	}
	if s.finalized != 0 || store.Has("s") {
		t.Error("finalize must not run")
	}
	if report.Attempts("s") != 4 {
		t.Errorf("report attempts: %d", report.Attempts("s"))
	}
}

func TestRetry_Fallback(t *testing.T) {
	var fbErr error
	s := &counterStep{
		name:     "s",
		opts:     StepOptions{MaxAttempts: 3},
		failures: -1,
		fallback: func(input any, err error) (any, error) {
			fbErr = err
			return "substitute", nil
		},
	}
	flow := NewBuilder("f").Add(s).WithSleep(noSleep).MustBuild()
	store := NewStore(nil)
	report, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.calls.Load() != 3 || s.finalized != 1 || s.got != "substitute" {
		t.Errorf("calls=%d finalized=%d got=%v", s.calls.Load(), s.finalized, s.got)
	}
	if fbErr == nil || fbErr.Error() != "attempt 3 failed" {
		t.Errorf("fallback saw %v", fbErr)
	}
	last := report.History[len(report.History)-1]
	if last.Status != StepFallback {
		t.Errorf("last record: %+v", last)
	}
}

func TestRetry_FallbackFails(t *testing.T) {
	s := &counterStep{
		name:     "s",
		failures: -1,
		fallback: func(input any, err error) (any, error) { return nil, errors.New("no luck") },
	}
	flow := NewBuilder("f").Add(s).MustBuild()
	_, err := flow.Run(context.Background(), NewStore(nil))
	if !errors.Is(err, ErrFallbackExhausted) {
		t.Fatalf("expected ErrFallbackExhausted, got %v", err)
	}
	if s.calls.Load() != 1 {
		t.Errorf("MaxAttempts 0 must mean one attempt, got %d", s.calls.Load())
	}
}

func TestRetry_RecoversWithBackoff(t *testing.T) {
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	s := &counterStep{
		name:     "s",
		opts:     StepOptions{MaxAttempts: 5, RetryDelay: 10 * time.Millisecond, Backoff: BackoffExponential, MaxDelay: 30 * time.Millisecond},
		failures: 3,
		value:    42,
	}
	flow := NewBuilder("f").Add(s).WithSleep(sleep).MustBuild()
	if _, err := flow.Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays: got %v want %v", delays, want)
	}
	if s.got != 42 || s.calls.Load() != 4 {
		t.Errorf("got=%v calls=%d", s.got, s.calls.Load())
	}
}

func TestRetry_PermanentSkipsAttempts(t *testing.T) {
	var calls int
	s := NewStep("p", StepOptions{MaxAttempts: 5}, StepFuncs[any, any]{
		Execute: func(ctx context.Context, _ any) (any, error) {
			calls++
			return nil, Permanent(errors.New("malformed input"))
		},
	})
	_, err := NewBuilder("f").Add(s).WithSleep(noSleep).MustBuild().Run(context.Background(), NewStore(nil))
	if !errors.Is(err, ErrFallbackExhausted) || calls != 1 {
		t.Errorf("calls=%d err=%v", calls, err)
	}
}

func TestRetry_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStep("slow", StepOptions{MaxAttempts: 3, RetryDelay: time.Hour}, StepFuncs[any, any]{
		Execute: func(ctx context.Context, _ any) (any, error) {
			cancel()
			return nil, errors.New("transient")
		},
	})
	_, err := NewBuilder("f").Add(s).MustBuild().Run(ctx, NewStore(nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_AttemptInContext(t *testing.T) {
	var seen []int
	s := NewStep("a", StepOptions{MaxAttempts: 3}, StepFuncs[any, any]{
		Execute: func(ctx context.Context, _ any) (any, error) {
			seen = append(seen, AttemptFromContext(ctx))
			if len(seen) < 3 {
				return nil, errors.New("again")
			}
			return nil, nil
		},
	})
	if _, err := NewBuilder("f").Add(s).WithSleep(noSleep).MustBuild().Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("attempts: %v", seen)
	}
	if AttemptFromContext(context.Background()) != 1 {
		t.Error("default attempt must be 1")
	}
}

func TestPrepareAndFinalizeErrorsAreNotRetried(t *testing.T) {
	var execs int
	bad := NewStep("bad", StepOptions{MaxAttempts: 3}, StepFuncs[any, any]{
		Prepare: func(ctx context.Context, store *Store) (any, error) { return nil, errors.New("no input") },
		Execute: func(ctx context.Context, _ any) (any, error) { execs++; return nil, nil },
	})
	_, err := NewBuilder("f").Add(bad).MustBuild().Run(context.Background(), NewStore(nil))
	var se *StepError
	if !errors.As(err, &se) || se.Phase != PhasePrepare || execs != 0 {
		t.Errorf("err=%v execs=%d", err, execs)
	}

	post := NewStep("post", StepOptions{MaxAttempts: 3}, StepFuncs[any, any]{
		Finalize: func(ctx context.Context, store *Store, _ any, _ any) (Action, error) {
			return "", errors.New("cannot write")
		},
	})
	_, err = NewBuilder("f").Add(post).MustBuild().Run(context.Background(), NewStore(nil))
	if !errors.As(err, &se) || se.Phase != PhaseFinalize {
		t.Errorf("err=%v", err)
	}
}

func TestRouting_IdempotentFromSnapshot(t *testing.T) {
	classify := NewStep("classify", StepOptions{Actions: []Action{"big", "small"}}, StepFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) (int, error) { return Get[int](store, "n") },
		Execute: func(ctx context.Context, n int) (int, error) { return n * 10, nil },
		Finalize: func(ctx context.Context, store *Store, _ int, v int) (Action, error) {
			store.Set("scaled", v)
			if v > 50 {
				return "big", nil
			}
			return "small", nil
		},
	})
	flow := NewBuilder("f").Add(classify).MustBuild()
	store := NewStore(map[string]any{"n": 7, "other": "x"})
	snap := store.Snapshot()

	r1, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	replay := snap.Restore()
	r2, err := flow.Run(context.Background(), replay)
	if err != nil {
		t.Fatal(err)
	}
	if r1.HaltAction != "big" || r1.HaltAction != r2.HaltAction {
		t.Errorf("actions: %s vs %s", r1.HaltAction, r2.HaltAction)
	}
	if store.Snapshot().Hash != replay.Snapshot().Hash {
		t.Error("store mutations differ between runs")
	}
	if snap.Hash == store.Snapshot().Hash {
		t.Error("snapshot must not follow later writes")
	}
}
