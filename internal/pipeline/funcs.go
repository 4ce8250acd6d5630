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
	"fmt"
)

// StepFuncs holds the typed lifecycle of a single step. Nil funcs are
// no-ops: Prepare and Execute yield zero values, Finalize returns
// DefaultAction and Fallback reports ErrNoFallback.
type StepFuncs[P, E any] struct {
	Prepare  func(ctx context.Context, store *Store) (P, error)
	Execute  func(ctx context.Context, prep P) (E, error)
	Finalize func(ctx context.Context, store *Store, prep P, exec E) (Action, error)
	Fallback func(ctx context.Context, prep P, err error) (E, error)
}

// NewStep builds a single step from typed funcs.
func NewStep[P, E any](name string, opts StepOptions, fns StepFuncs[P, E]) Step {
	return &funcStep[P, E]{name: name, opts: opts, fns: fns}
}

type funcStep[P, E any] struct {
	name string
	opts StepOptions
	fns  StepFuncs[P, E]
}

var _ Fallbacker = (*funcStep[int, int])(nil)

func (s *funcStep[P, E]) Name() string         { return s.name }
func (s *funcStep[P, E]) Kind() Kind           { return KindSingle }
func (s *funcStep[P, E]) Options() StepOptions { return s.opts }

func (s *funcStep[P, E]) Prepare(ctx context.Context, store *Store) (any, error) {
	if s.fns.Prepare == nil {
		var zero P
		return zero, nil
	}
	return s.fns.Prepare(ctx, store)
}

func (s *funcStep[P, E]) Execute(ctx context.Context, prep any) (any, error) {
	if s.fns.Execute == nil {
		var zero E
		return zero, nil
	}
	return s.fns.Execute(ctx, as[P](prep))
}

func (s *funcStep[P, E]) Finalize(ctx context.Context, store *Store, prep, exec any) (Action, error) {
	if s.fns.Finalize == nil {
		return DefaultAction, nil
	}
	return s.fns.Finalize(ctx, store, as[P](prep), as[E](exec))
}

func (s *funcStep[P, E]) Fallback(ctx context.Context, input any, err error) (any, error) {
	if s.fns.Fallback == nil {
		return nil, ErrNoFallback
	}
	return s.fns.Fallback(ctx, as[P](input), err)
}

// BatchFuncs holds the typed lifecycle of a batch step over items of type
// I producing results of type E.
type BatchFuncs[I, E any] struct {
	Prepare  func(ctx context.Context, store *Store) ([]I, error)
	Execute  func(ctx context.Context, item I) (E, error)
	Finalize func(ctx context.Context, store *Store, items []I, results []ItemResult[E]) (Action, error)
	Fallback func(ctx context.Context, item I, err error) (E, error)
}

// NewBatchStep builds a batch step from typed funcs.
func NewBatchStep[I, E any](name string, opts StepOptions, fns BatchFuncs[I, E]) Step {
	return &batchFuncStep[I, E]{name: name, opts: opts, fns: fns}
}

type batchFuncStep[I, E any] struct {
	name string
	opts StepOptions
	fns  BatchFuncs[I, E]
}

var (
	_ Batcher    = (*batchFuncStep[int, int])(nil)
	_ Fallbacker = (*batchFuncStep[int, int])(nil)
)

func (s *batchFuncStep[I, E]) Name() string         { return s.name }
func (s *batchFuncStep[I, E]) Kind() Kind           { return KindBatch }
func (s *batchFuncStep[I, E]) Options() StepOptions { return s.opts }

func (s *batchFuncStep[I, E]) Prepare(ctx context.Context, store *Store) (any, error) {
	if s.fns.Prepare == nil {
		return []I(nil), nil
	}
	return s.fns.Prepare(ctx, store)
}

func (s *batchFuncStep[I, E]) Split(prep any) ([]any, error) {
	items, ok := prep.([]I)
	if !ok && prep != nil {
		return nil, fmt.Errorf("batch step %s: prep is %T, want %T", s.name, prep, items)
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

func (s *batchFuncStep[I, E]) Execute(ctx context.Context, item any) (any, error) {
	if s.fns.Execute == nil {
		var zero E
		return zero, nil
	}
	return s.fns.Execute(ctx, as[I](item))
}

func (s *batchFuncStep[I, E]) Finalize(ctx context.Context, store *Store, prep, exec any) (Action, error) {
	if s.fns.Finalize == nil {
		return DefaultAction, nil
	}
	raw, _ := exec.([]ItemResult[any])
	results := make([]ItemResult[E], len(raw))
	for i, r := range raw {
		results[i] = ItemResult[E]{
			Index:    r.Index,
			Value:    as[E](r.Value),
			Err:      r.Err,
			Attempts: r.Attempts,
		}
	}
	items, _ := prep.([]I)
	return s.fns.Finalize(ctx, store, items, results)
}

func (s *batchFuncStep[I, E]) Fallback(ctx context.Context, item any, err error) (any, error) {
	if s.fns.Fallback == nil {
		return nil, ErrNoFallback
	}
	return s.fns.Fallback(ctx, as[I](item), err)
}

// as converts v to T, yielding the zero value for nil or mismatched types.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
