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
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
)

// Flow is a directed graph of steps. After each visit the action returned
// by Finalize selects the next step; an action without a transition ends
// the run successfully. Flows are built with a Builder and are safe to Run
// repeatedly, one run at a time per Store.
type Flow struct {
	name      string
	start     string
	steps     map[string]Step
	order     []string
	edges     map[string]map[Action]string
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	maxVisits int
}

func (f *Flow) Name() string  { return f.name }
func (f *Flow) Start() string { return f.start }

// Steps returns step names in the order they were added.
func (f *Flow) Steps() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Step returns the named step.
func (f *Flow) Step(name string) (Step, bool) {
	s, ok := f.steps[name]
	return s, ok
}

// Next resolves the transition for (from, action).
func (f *Flow) Next(from string, action Action) (string, bool) {
	to, ok := f.edges[from][action]
	return to, ok
}

// Run drives the flow from its start step over store.
//
// Each visit runs Prepare, then Execute through a RetryExecutor (fanned
// out for batch steps), then Finalize. Any error that escapes a visit
// terminates the run; state written by earlier steps stays in store.
func (f *Flow) Run(ctx context.Context, store *Store) (*RunReport, error) {
	report := &RunReport{Flow: f.name, Started: time.Now()}
	hist := &history{}
	exec := &RetryExecutor{Policy: f.policy, Sleep: f.sleep, OnRecord: hist.add}
	defer func() {
		report.History = hist.list()
		report.Finished = time.Now()
	}()

	current := f.start
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if f.maxVisits > 0 && len(report.Path) >= f.maxVisits {
			return report, fmt.Errorf("%w: %d", ErrMaxVisits, f.maxVisits)
		}
		step, ok := f.steps[current]
		if !ok {
			return report, fmt.Errorf("%w: %s", ErrUnknownStep, current)
		}
		report.Path = append(report.Path, current)

		log.Debug("[%s] visiting %s (%s)", f.name, current, step.Kind())
		action, err := f.visit(ctx, exec, step, store)
		if err != nil {
			log.Error("[%s] step %s failed: %v", f.name, current, err)
			return report, err
		}
		report.HaltStep, report.HaltAction = current, action

		next, ok := f.Next(current, action)
		if !ok {
			log.Debug("[%s] no transition for %s/%s, halting", f.name, current, action)
			return report, nil
		}
		current = next
	}
}

func (f *Flow) visit(ctx context.Context, exec *RetryExecutor, step Step, store *Store) (Action, error) {
	name := step.Name()
	prep, err := step.Prepare(ctx, store)
	if err != nil {
		return "", &StepError{Step: name, Phase: PhasePrepare, Index: -1, Err: err}
	}

	var out any
	if step.Kind() == KindBatch {
		out, err = runBatch(ctx, exec, step, prep)
	} else {
		var res Outcome
		res, err = exec.Run(ctx, step, prep, -1)
		out = res.Value
	}
	if err != nil {
		return "", err
	}

	action, err := step.Finalize(ctx, store, prep, out)
	if err != nil {
		return "", &StepError{Step: name, Phase: PhaseFinalize, Index: -1, Err: err}
	}
	if action == "" {
		action = DefaultAction
	}
	return action, nil
}
