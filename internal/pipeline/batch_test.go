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
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatch_SumOfSquares(t *testing.T) {
	square := NewBatchStep("square", StepOptions{}, BatchFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) ([]int, error) { return Get[[]int](store, "items") },
		Execute: func(ctx context.Context, x int) (int, error) { return x * x, nil },
		Finalize: func(ctx context.Context, store *Store, _ []int, results []ItemResult[int]) (Action, error) {
			sum := 0
			for _, r := range results {
				sum += r.Value
			}
			store.Set("sum", sum)
			return DefaultAction, nil
		},
	})
	store := NewStore(map[string]any{"items": []int{1, 2, 3}})
	if _, err := NewBuilder("b").Add(square).MustBuild().Run(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if got := GetOr(store, "sum", 0); got != 14 {
		t.Errorf("sum: got %d", got)
	}
}

func TestBatch_PreservesOrder(t *testing.T) {
	const n = 64
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	var got []ItemResult[string]
	step := NewBatchStep("order", StepOptions{Parallelism: 8}, BatchFuncs[int, string]{
		Prepare: func(ctx context.Context, store *Store) ([]int, error) { return items, nil },
		Execute: func(ctx context.Context, x int) (string, error) {
			time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
			return fmt.Sprintf("f(%d)", x), nil
		},
		Finalize: func(ctx context.Context, store *Store, _ []int, results []ItemResult[string]) (Action, error) {
			got = results
			return DefaultAction, nil
		},
	})
	if _, err := NewBuilder("b").Add(step).MustBuild().Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatal(err)
	}
	if len(got) != n {
		t.Fatalf("len: %d", len(got))
	}
	for i, r := range got {
		if r.Index != i || r.Value != fmt.Sprintf("f(%d)", i) || r.Err != nil {
			t.Errorf("result %d: %+v", i, r)
		}
	}
}

func TestBatch_ParallelismBound(t *testing.T) {
	var running, peak atomic.Int32
	step := NewBatchStep("bound", StepOptions{Parallelism: 2}, BatchFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) ([]int, error) { return make([]int, 10), nil },
		Execute: func(ctx context.Context, x int) (int, error) {
			cur := running.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			return x, nil
		},
	})
	if _, err := NewBuilder("b").Add(step).MustBuild().Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds 2", peak.Load())
	}
}

func failingBatch(fatal bool, finalized *[]ItemResult[int]) Step {
	return NewBatchStep("items", StepOptions{MaxAttempts: 2, BatchFatal: fatal}, BatchFuncs[int, int]{
		Prepare: func(ctx context.Context, store *Store) ([]int, error) { return []int{0, 1, 2, 3, 4}, nil },
		Execute: func(ctx context.Context, x int) (int, error) {
			if x == 2 {
				return 0, errors.New("item two is broken")
			}
			return x + 100, nil
		},
		Finalize: func(ctx context.Context, store *Store, _ []int, results []ItemResult[int]) (Action, error) {
			*finalized = results
			store.Set("failed", len(Failed(results)))
			return DefaultAction, nil
		},
	})
}

func TestBatch_IsolatesItemFailure(t *testing.T) {
	var results []ItemResult[int]
	var after bool
	next := NewStep("after", StepOptions{}, StepFuncs[any, any]{
		Finalize: func(ctx context.Context, store *Store, _ any, _ any) (Action, error) {
			after = true
			return DefaultAction, nil
		},
	})
	flow := NewBuilder("b").Chain(failingBatch(false, &results), next).WithSleep(noSleep).MustBuild()
	store := NewStore(nil)
	report, err := flow.Run(context.Background(), store)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !after {
		t.Error("flow must continue after an isolated item failure")
	}
	if len(results) != 5 {
		t.Fatalf("results: %d", len(results))
	}
	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, ErrBatchItemFailed) || !errors.Is(r.Err, ErrFallbackExhausted) {
				t.Errorf("item 2 error: %v", r.Err)
			}
			if r.Attempts != 2 {
				t.Errorf("item 2 attempts: %d", r.Attempts)
			}
			continue
		}
		if r.Err != nil || r.Value != i+100 {
			t.Errorf("item %d: %+v", i, r)
		}
	}
	if GetOr(store, "failed", 0) != 1 {
		t.Errorf("failed count: %v", GetOr(store, "failed", 0))
	}
	if report.Attempts("items") != 6 {
		t.Errorf("attempts: %d", report.Attempts("items"))
	}
}

func TestBatch_FatalAbortsFlow(t *testing.T) {
	var results []ItemResult[int]
	var after bool
	next := NewStep("after", StepOptions{}, StepFuncs[any, any]{
		Finalize: func(ctx context.Context, store *Store, _ any, _ any) (Action, error) {
			after = true
			return DefaultAction, nil
		},
	})
	flow := NewBuilder("b").Chain(failingBatch(true, &results), next).WithSleep(noSleep).MustBuild()
	_, err := flow.Run(context.Background(), NewStore(nil))
	if !errors.Is(err, ErrBatchItemFailed) {
		t.Fatalf("expected ErrBatchItemFailed, got %v", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.Index != 2 || se.Attempts != 2 {
		t.Errorf("step error: %+v", se)
	}
	if results != nil || after {
		t.Error("finalize and later steps must not run")
	}
}

func TestBatch_ItemFallback(t *testing.T) {
	var got []ItemResult[string]
	step := NewBatchStep("fb", StepOptions{MaxAttempts: 1}, BatchFuncs[string, string]{
		Prepare: func(ctx context.Context, store *Store) ([]string, error) { return []string{"a", "b"}, nil },
		Execute: func(ctx context.Context, s string) (string, error) {
			if s == "b" {
				return "", errors.New("nope")
			}
			return s + "!", nil
		},
		Fallback: func(ctx context.Context, s string, err error) (string, error) { return "placeholder " + s, nil },
		Finalize: func(ctx context.Context, store *Store, _ []string, results []ItemResult[string]) (Action, error) {
			got = results
			return DefaultAction, nil
		},
	})
	if _, err := NewBuilder("b").Add(step).MustBuild().Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatal(err)
	}
	if got[0].Value != "a!" || got[1].Value != "placeholder b" || got[1].Err != nil {
		t.Errorf("results: %+v", got)
	}
}

func TestBatch_Empty(t *testing.T) {
	called := false
	step := NewBatchStep("empty", StepOptions{}, BatchFuncs[int, int]{
		Finalize: func(ctx context.Context, store *Store, items []int, results []ItemResult[int]) (Action, error) {
			called = len(results) == 0
			return DefaultAction, nil
		},
	})
	if _, err := NewBuilder("b").Add(step).MustBuild().Run(context.Background(), NewStore(nil)); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("finalize must see an empty result slice")
	}
}
