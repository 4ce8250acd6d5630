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

package steps

import (
	"context"
	"time"

	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/cloudwego/agentdoc/llm/prompt"
)

// Generator produces text for a prompt. cacheable allows a stored reply to
// be returned; *llm.CachedGenerator implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, cacheable bool) (string, error)
}

// DocWriter stores the assembled documentation.
type DocWriter interface {
	WriteTree(ctx context.Context, t *docs.Tree) (string, error)
}

// Deps are the collaborators the stages call out to.
type Deps struct {
	// NewFetcher picks the fetcher for a request.
	NewFetcher func(req source.Request) (source.Fetcher, error)
	Generator  Generator
	Writer     DocWriter
}

// Options tune the flow.
type Options struct {
	// Stage returns the step options of a stage given its defaults. Nil
	// keeps the defaults.
	Stage func(name string, def pipeline.StepOptions) pipeline.StepOptions
	// CoreLimit is the core file limit expression, DefaultCoreLimit when
	// empty.
	CoreLimit string
	// Parallelism bounds concurrent chapter generation; 0 means unbounded.
	Parallelism int
	// Strict makes a failed chapter fail the run.
	Strict bool
}

func retries(attempts int, delay time.Duration) pipeline.StepOptions {
	return pipeline.StepOptions{MaxAttempts: attempts, RetryDelay: delay, Backoff: pipeline.BackoffFixed}
}

var defaultOptions = map[string]pipeline.StepOptions{
	StageFetch:         retries(1, 0),
	StageStructure:     retries(3, 10*time.Second),
	StageCore:          retries(3, 10*time.Second),
	StageAbstractions:  retries(5, 20*time.Second),
	StageRelationships: retries(5, 20*time.Second),
	StageOrder:         retries(5, 20*time.Second),
	StageOverview:      retries(3, 10*time.Second),
	StageChapters:      retries(5, 20*time.Second),
	StageCombine:       retries(1, 0),
}

// DefaultOptions returns the built-in retry settings of a stage.
func DefaultOptions(stage string) pipeline.StepOptions {
	return defaultOptions[stage]
}

// NewFlow builds the documentation flow: the nine stages chained on the
// default action.
func NewFlow(d Deps, o Options) (*pipeline.Flow, error) {
	limit, err := ParseCoreLimit(o.CoreLimit)
	if err != nil {
		return nil, err
	}
	opts := func(name string) pipeline.StepOptions {
		def := DefaultOptions(name)
		if name == StageChapters {
			def.Parallelism = o.Parallelism
			def.BatchFatal = o.Strict
		}
		if o.Stage != nil {
			return o.Stage(name, def)
		}
		return def
	}
	return pipeline.NewBuilder("agentdoc").
		Chain(
			fetchRepo(&d, opts(StageFetch)),
			analyzeStructure(&d, opts(StageStructure)),
			identifyCore(&d, limit, opts(StageCore)),
			identifyAbstractions(&d, opts(StageAbstractions)),
			analyzeRelationships(&d, opts(StageRelationships)),
			orderChapters(&d, opts(StageOrder)),
			writeOverview(&d, opts(StageOverview)),
			writeChapters(&d, opts(StageChapters)),
			combineTutorial(&d, opts(StageCombine)),
		).
		Build()
}

// genInput is what every model-backed stage needs besides its own data.
type genInput struct {
	ProjectName string
	Language    string
	UseCache    bool
}

func readGenInput(st *pipeline.Store) genInput {
	return genInput{
		ProjectName: pipeline.GetOr(st, KeyProjectName, "Unknown Project"),
		Language:    pipeline.GetOr(st, KeyLanguage, ""),
		UseCache:    pipeline.GetOr(st, KeyUseCache, true),
	}
}

// generate renders the named prompt and asks the model. The cache is only
// consulted on the first attempt of a visit.
func (d *Deps) generate(ctx context.Context, in genInput, name string, data any) (string, error) {
	p, err := prompt.Render(name, in.Language, data)
	if err != nil {
		return "", pipeline.Permanent(err)
	}
	return d.Generator.Generate(ctx, p, in.UseCache && pipeline.AttemptFromContext(ctx) == 1)
}
