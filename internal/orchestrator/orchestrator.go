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

// Package orchestrator validates the inputs of a documentation run, seeds
// the store and runs the stage flow.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/internal/pipeline/steps"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Orchestrator runs the documentation flow for fixed inputs. Run may be
// called repeatedly; every call uses a fresh store.
type Orchestrator struct {
	opts Options
	deps steps.Deps
	flow *pipeline.Flow
}

// New validates opts and builds the flow. Invalid inputs yield a
// *ConfigurationError before anything runs.
func New(opts Options, deps steps.Deps) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	flow, err := steps.NewFlow(deps, steps.Options{
		Stage:       opts.Stage,
		CoreLimit:   opts.CoreLimit,
		Parallelism: opts.Parallelism,
		Strict:      opts.Strict,
	})
	if err != nil {
		return nil, err
	}
	return &Orchestrator{opts: opts, deps: deps, flow: flow}, nil
}

// Seed returns the initial store of a run.
func (o *Orchestrator) Seed() *pipeline.Store {
	values := map[string]any{
		steps.KeyIncludePatterns: o.opts.Include,
		steps.KeyExcludePatterns: o.opts.Exclude,
		steps.KeyMaxFileSize:     o.opts.MaxFileSize,
		steps.KeyLanguage:        o.opts.Language,
		steps.KeyUseCache:        o.opts.UseCache,
		steps.KeyOutputDir:       o.opts.Output,
	}
	set := func(key, v string) {
		if v != "" {
			values[key] = v
		}
	}
	set(steps.KeyRepoURL, o.opts.RepoURL)
	set(steps.KeyLocalDir, o.opts.LocalDir)
	set(steps.KeyRef, o.opts.Ref)
	set(steps.KeyProjectName, o.opts.ProjectName)
	return pipeline.NewStore(values)
}

// Result describes a finished or failed run.
type Result struct {
	RunID           string
	OutputDir       string
	Documents       []string
	ChapterFailures []steps.ChapterFailure
	Report          *pipeline.RunReport
	Store           *pipeline.Store
}

// Run executes the flow once. The returned Result is non-nil whenever the
// flow started, also on failure.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	runID, err := nanoid.New()
	if err != nil {
		return nil, err
	}
	ctx = log.WithContext(ctx, log.RunID(runID))
	src := o.opts.RepoURL
	if src == "" {
		src = o.opts.LocalDir
	}
	log.CtxInfo(ctx, "generating documentation for %s (language %s)", src, o.opts.Language)

	st := o.Seed()
	report, err := o.flow.Run(ctx, st)
	res := &Result{
		RunID:           runID,
		OutputDir:       pipeline.GetOr(st, steps.KeyFinalOutputDir, ""),
		Documents:       pipeline.GetOr[[]string](st, steps.KeyDocuments, nil),
		ChapterFailures: pipeline.GetOr[[]steps.ChapterFailure](st, steps.KeyChapterFailures, nil),
		Report:          report,
		Store:           st,
	}
	if err != nil {
		log.CtxError(ctx, "run failed: %v", err)
		return res, fmt.Errorf("run %s: %w", runID, err)
	}
	log.CtxInfo(ctx, "run finished in %v, output at %s", report.Duration().Round(time.Millisecond), res.OutputDir)
	return res, nil
}

// Summary is the human readable report printed after a run.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s\n", r.RunID)
	if r.OutputDir != "" {
		fmt.Fprintf(&sb, "Output directory: %s\n", r.OutputDir)
	}
	fmt.Fprintf(&sb, "Files written: %d\n", len(r.Documents))
	if len(r.ChapterFailures) > 0 {
		fmt.Fprintf(&sb, "Chapter failures: %d\n", len(r.ChapterFailures))
		for _, f := range r.ChapterFailures {
			fmt.Fprintf(&sb, "  - %s (%d attempts): %s\n", f.Component, f.Attempts, f.Error)
		}
	}
	if r.Report != nil {
		sb.WriteString("Attempts per stage:\n")
		for _, name := range r.Report.Path {
			fmt.Fprintf(&sb, "  %s: %d\n", name, r.Report.Attempts(name))
		}
		fmt.Fprintf(&sb, "Duration: %v\n", r.Report.Duration().Round(time.Millisecond))
	}
	return sb.String()
}
