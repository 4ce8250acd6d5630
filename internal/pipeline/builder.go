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
	"time"
)

type edge struct {
	from   string
	action Action
	to     string
}

// Builder assembles a Flow. Problems are collected and reported together
// by Build.
type Builder struct {
	name      string
	steps     []Step
	edges     []edge
	start     string
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	maxVisits int
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Add registers steps. The first step added becomes the start step unless
// Start is called.
func (b *Builder) Add(steps ...Step) *Builder {
	b.steps = append(b.steps, steps...)
	return b
}

// Connect adds the transition (from, action) -> to.
func (b *Builder) Connect(from string, action Action, to string) *Builder {
	b.edges = append(b.edges, edge{from: from, action: action, to: to})
	return b
}

// Then connects from -> to on DefaultAction.
func (b *Builder) Then(from, to string) *Builder {
	return b.Connect(from, DefaultAction, to)
}

// Chain adds steps not yet registered under their name and connects them
// linearly on DefaultAction.
func (b *Builder) Chain(steps ...Step) *Builder {
	for i, s := range steps {
		if !b.has(s.Name()) {
			b.Add(s)
		}
		if i > 0 {
			b.Then(steps[i-1].Name(), s.Name())
		}
	}
	return b
}

func (b *Builder) Start(name string) *Builder {
	b.start = name
	return b
}

// WithPolicy overrides DefaultPolicy for every step of the flow.
func (b *Builder) WithPolicy(p RetryPolicy) *Builder {
	b.policy = p
	return b
}

// WithSleep replaces the wait between attempts.
func (b *Builder) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Builder {
	b.sleep = fn
	return b
}

// WithMaxVisits bounds the number of step visits of one run. Zero, the
// default, means unbounded.
func (b *Builder) WithMaxVisits(n int) *Builder {
	b.maxVisits = n
	return b
}

func (b *Builder) has(name string) bool {
	for _, s := range b.steps {
		if s.Name() == name {
			return true
		}
	}
	return false
}

// Build validates the graph and returns the Flow.
func (b *Builder) Build() (*Flow, error) {
	verr := &ValidationError{}
	f := &Flow{
		name:      b.name,
		steps:     make(map[string]Step, len(b.steps)),
		edges:     make(map[string]map[Action]string),
		policy:    b.policy,
		sleep:     b.sleep,
		maxVisits: b.maxVisits,
	}

	if len(b.steps) == 0 {
		verr.add("flow %q has no steps", b.name)
	}
	for _, s := range b.steps {
		if s == nil {
			verr.add("nil step")
			continue
		}
		name := s.Name()
		if name == "" {
			verr.add("step with empty name")
			continue
		}
		if _, dup := f.steps[name]; dup {
			verr.add("duplicate step name %q", name)
			continue
		}
		if s.Kind() == KindBatch {
			if _, ok := s.(Batcher); !ok {
				verr.add("batch step %q does not implement Batcher", name)
			}
		}
		f.steps[name] = s
		f.order = append(f.order, name)
	}

	f.start = b.start
	if f.start == "" && len(f.order) > 0 {
		f.start = f.order[0]
	}
	if _, ok := f.steps[f.start]; !ok && len(f.order) > 0 {
		verr.add("start step %q is not registered", f.start)
	}

	for _, e := range b.edges {
		from, okFrom := f.steps[e.from]
		if !okFrom {
			verr.add("transition from unknown step %q", e.from)
		}
		if _, ok := f.steps[e.to]; !ok {
			verr.add("transition %s/%s to unknown step %q", e.from, e.action, e.to)
		}
		if e.action == "" {
			verr.add("transition %s -> %s has an empty action", e.from, e.to)
			continue
		}
		if okFrom && !from.Options().declares(e.action) {
			verr.add("step %q does not declare action %q", e.from, e.action)
		}
		if f.edges[e.from] == nil {
			f.edges[e.from] = make(map[Action]string)
		}
		if prev, dup := f.edges[e.from][e.action]; dup && prev != e.to {
			verr.add("conflicting transitions %s/%s -> %s and %s", e.from, e.action, prev, e.to)
			continue
		}
		f.edges[e.from][e.action] = e.to
	}

	if len(verr.Errs) > 0 {
		return nil, verr
	}
	return f, nil
}

// MustBuild is like Build but panics on an invalid graph. Use it only for
// flows assembled from constants.
func (b *Builder) MustBuild() *Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}
