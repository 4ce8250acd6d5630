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

	"golang.org/x/sync/errgroup"
)

// runBatch fans Execute out over the items of a batch step. Results keep
// item order. A failed item becomes a positional error unless the step is
// batch-fatal, in which case the first failure cancels the rest and is
// returned.
func runBatch(ctx context.Context, exec *RetryExecutor, step Step, prep any) ([]ItemResult[any], error) {
	b, ok := step.(Batcher)
	if !ok {
		return nil, &StepError{Step: step.Name(), Phase: PhasePrepare, Index: -1,
			Err: fmt.Errorf("batch step does not implement Batcher")}
	}
	items, err := b.Split(prep)
	if err != nil {
		return nil, &StepError{Step: step.Name(), Phase: PhasePrepare, Index: -1, Err: err}
	}

	opts := step.Options()
	results := make([]ItemResult[any], len(items))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, item := range items {
		g.Go(func() error {
			out, err := exec.Run(gctx, step, item, i)
			results[i] = ItemResult[any]{Index: i, Value: out.Value, Attempts: out.Attempts}
			if err == nil {
				return nil
			}
			results[i].Err = fmt.Errorf("%w: %w", ErrBatchItemFailed, err)
			if opts.BatchFatal {
				return results[i].Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// non-fatal items report cancellation positionally; it still ends the run
	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: step.Name(), Phase: PhaseExecute, Index: -1, Err: err}
	}
	return results, nil
}

// Failed returns the results that carry an error.
func Failed[E any](results []ItemResult[E]) []ItemResult[E] {
	var out []ItemResult[E]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
