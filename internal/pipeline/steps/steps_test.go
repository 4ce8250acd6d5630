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
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/lang/analyze"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
	"gopkg.in/yaml.v3"
)

const (
	structureReply = "Here is the analysis.\n```yaml\n" + `architecture:
  type: application
  pattern: layered
  description: A small demo service
core_areas:
  - name: storage
    files: [store/store.go]
    description: keeps state
` + "```\n"

	coreReply = "```yaml\n" + `core_files:
  - index: 1
    path: main.go
    importance: high
    reason: entry point
  - index: 2
    path: store/store.go
  - index: 7
  - index: 1
  - path: no-index.go
` + "```"

	abstractionsReply = "```yaml\n" + `abstractions:
  - name: Flow
    primary_responsibility: Drives the program
    implementation_approach: a loop
    key_interfaces: [Run, Stop]
    technical_details: none
    dependencies: Store
    usage_context: main
    files: [1]
  - name: Store
    primary_responsibility: Holds state
    files: [2, 9]
  - name: "  "
` + "```"

	relationshipsReply = "```yaml\n" + `summary: A demo
architecture_overview: Two layers
component_relationships:
  - from: 0
    to: 1
    relationship_type: uses
    description: Flow writes to Store
data_flow:
  - flow_name: main
    components: [0, 1]
` + "```"

	orderReply = "```yaml\nchapter_order: [1, 0]\nreasoning: store first\n```"
)

var chapterName = regexp.MustCompile(`documentation for the '([^']+)' component`)

type call struct {
	Prompt    string
	Cacheable bool
}

// fakeGen answers each stage prompt with reply(prompt) and records calls.
type fakeGen struct {
	mu    sync.Mutex
	calls []call
	reply func(prompt string) (string, error)
}

func (g *fakeGen) Generate(ctx context.Context, prompt string, cacheable bool) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{Prompt: prompt, Cacheable: cacheable})
	g.mu.Unlock()
	return g.reply(prompt)
}

func (g *fakeGen) prompts(marker string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if strings.Contains(c.Prompt, marker) {
			out = append(out, c)
		}
	}
	return out
}

func defaultReply(p string) (string, error) {
	switch {
	case strings.Contains(p, "Analyze the structure of the codebase"):
		return structureReply, nil
	case strings.Contains(p, "most important files"):
		return coreReply, nil
	case strings.Contains(p, "key technical abstractions"):
		return abstractionsReply, nil
	case strings.Contains(p, "Analyze the relationships between"):
		return relationshipsReply, nil
	case strings.Contains(p, "Order these technical components"):
		return orderReply, nil
	case strings.Contains(p, "Generate a comprehensive project overview"):
		return "Overview body", nil
	}
	if m := chapterName.FindStringSubmatch(p); m != nil {
		return "# Chapter " + m[1], nil
	}
	return "", errors.New("unexpected prompt")
}

type memFetcher []source.File

func (m memFetcher) Fetch(ctx context.Context, req source.Request) ([]source.File, error) {
	return m, nil
}

var demoFiles = memFetcher{
	{Path: "README.md", Content: "# demo\n"},
	{Path: "main.go", Content: "package main\n\nimport \"demo/store\"\n\nfunc main() { store.New() }\n"},
	{Path: "store/store.go", Content: "package store\n\ntype Store struct{}\n\nfunc New() *Store { return &Store{} }\n"},
}

func noDelay(name string, def pipeline.StepOptions) pipeline.StepOptions {
	def.RetryDelay = 0
	return def
}

func newDeps(gen Generator, w DocWriter) Deps {
	return Deps{
		NewFetcher: func(source.Request) (source.Fetcher, error) { return demoFiles, nil },
		Generator:  gen,
		Writer:     w,
	}
}

func seed(extra map[string]any) *pipeline.Store {
	values := map[string]any{
		KeyLocalDir:    "/src/demo",
		KeyUseCache:    true,
		KeyMaxFileSize: int64(1000),
	}
	for k, v := range extra {
		values[k] = v
	}
	return pipeline.NewStore(values)
}

func TestFlow_EndToEnd(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	gen := &fakeGen{reply: defaultReply}

	flow, err := NewFlow(newDeps(gen, docs.NewWriter(bucket, "/out")), Options{Stage: noDelay})
	require.NoError(t, err)
	assert.Equal(t, Stages, flow.Steps())

	st := seed(map[string]any{KeyLanguage: "Chinese"})
	report, err := flow.Run(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, Stages, report.Path)
	assert.Equal(t, StageCombine, report.HaltStep)

	assert.Equal(t, "demo", pipeline.GetOr(st, KeyProjectName, ""))
	assert.Equal(t, []int{1, 2}, pipeline.GetOr[[]int](st, KeyCoreFiles, nil))
	assert.Equal(t, []int{1, 0}, pipeline.GetOr[[]int](st, KeyChapterOrder, nil))
	assert.Empty(t, pipeline.GetOr[[]ChapterFailure](st, KeyChapterFailures, nil))

	abs := pipeline.GetOr[[]Abstraction](st, KeyAbstractions, nil)
	require.Len(t, abs, 2)
	assert.Equal(t, Text("Run, Stop"), abs[0].KeyInterfaces)
	assert.Equal(t, []int{2}, abs[1].Files)

	structure := pipeline.GetOr[*Structure](st, KeyStructure, nil)
	require.NotNil(t, structure)
	assert.Equal(t, Text("A small demo service"), structure.Insights.Architecture.Description)

	assert.Equal(t, "/out/demo", pipeline.GetOr(st, KeyFinalOutputDir, ""))
	assert.Equal(t, []string{"project_overview.md", "index.md", "01_store.md", "02_flow.md"},
		pipeline.GetOr[[]string](st, KeyDocuments, nil))

	chapter, err := bucket.ReadAll(ctx, "demo/01_store.md")
	require.NoError(t, err)
	assert.Equal(t, "# Chapter Store"+docs.Footer, string(chapter))
	index, err := bucket.ReadAll(ctx, "demo/index.md")
	require.NoError(t, err)
	assert.Contains(t, string(index), "A0 -->|uses| A1")
	assert.Contains(t, string(index), "## Data Flow")
	assert.Contains(t, string(index), "1. **[Store](01_store.md)** - Holds state")

	core := gen.prompts("most important files")
	require.Len(t, core, 1)
	assert.Contains(t, core[0].Prompt, "1: main.go (")
	assert.Contains(t, core[0].Prompt, "storage: keeps state")
	assert.Contains(t, core[0].Prompt, "identify the 1 most important files")

	flowChapter := gen.prompts("documentation for the 'Flow' component")
	require.Len(t, flowChapter, 1)
	assert.Contains(t, flowChapter[0].Prompt, "- **Store**: Flow writes to Store")
	assert.Contains(t, flowChapter[0].Prompt, "### main.go")

	for _, c := range gen.calls {
		assert.True(t, c.Cacheable)
		assert.Contains(t, c.Prompt, "IMPORTANT: Write all descriptive text in Chinese")
	}
}

func TestGenerate_CacheOnlyOnFirstAttempt(t *testing.T) {
	failed := false
	gen := &fakeGen{reply: func(p string) (string, error) {
		if strings.Contains(p, "Analyze the structure of the codebase") && !failed {
			failed = true
			return "no yaml here", nil
		}
		return defaultReply(p)
	}}
	step := analyzeStructure(&Deps{Generator: gen}, noDelay(StageStructure, DefaultOptions(StageStructure)))
	flow := pipeline.NewBuilder("t").Add(step).MustBuild()

	st := seed(map[string]any{KeyFiles: []source.File(demoFiles)})
	_, err := flow.Run(context.Background(), st)
	require.NoError(t, err)

	calls := gen.prompts("Analyze the structure")
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Cacheable)
	assert.False(t, calls[1].Cacheable)
}

func TestIdentifyCore_FallbackToStructure(t *testing.T) {
	gen := &fakeGen{reply: func(string) (string, error) { return "I cannot answer that.", nil }}
	limit, err := ParseCoreLimit("")
	require.NoError(t, err)
	step := identifyCore(&Deps{Generator: gen}, limit, noDelay(StageCore, DefaultOptions(StageCore)))
	flow := pipeline.NewBuilder("t").Add(step).MustBuild()

	files := []source.File(demoFiles)
	st := seed(map[string]any{
		KeyFiles:     files,
		KeyStructure: &Structure{Report: analyze.Analyze(files)},
	})
	report, err := flow.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempts(StageCore))
	// main.go is the only entry point and the limit for 3 files is 1
	assert.Equal(t, []int{1}, pipeline.GetOr[[]int](st, KeyCoreFiles, nil))
}

func TestOrderChapters_SequentialWhenNoValidIndex(t *testing.T) {
	gen := &fakeGen{reply: func(string) (string, error) {
		return "```yaml\nchapter_order: [9, \"x\", -1]\n```", nil
	}}
	step := orderChapters(&Deps{Generator: gen}, DefaultOptions(StageOrder))
	flow := pipeline.NewBuilder("t").Add(step).MustBuild()

	st := seed(map[string]any{KeyAbstractions: []Abstraction{{Name: "A"}, {Name: "B"}, {Name: "C"}}})
	_, err := flow.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, pipeline.GetOr[[]int](st, KeyChapterOrder, nil))
}

func TestAnalyzeRelationships_MissingKeyExhaustsAttempts(t *testing.T) {
	gen := &fakeGen{reply: func(string) (string, error) {
		return "```yaml\nsummary: x\narchitecture_overview: y\n```", nil
	}}
	step := analyzeRelationships(&Deps{Generator: gen}, noDelay(StageRelationships, DefaultOptions(StageRelationships)))
	flow := pipeline.NewBuilder("t").Add(step).MustBuild()

	files := []source.File(demoFiles)
	st := seed(map[string]any{
		KeyAbstractions: []Abstraction{{Name: "A"}},
		KeyStructure:    &Structure{Report: analyze.Analyze(files)},
	})
	_, err := flow.Run(context.Background(), st)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrFallbackExhausted)
	var se *pipeline.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRelationships, se.Step)
	assert.Equal(t, 5, se.Attempts)
	assert.Contains(t, err.Error(), "component_relationships")
	assert.False(t, st.Has(KeyRelationships))
}

func chapterStore() *pipeline.Store {
	return seed(map[string]any{
		KeyFiles:        []source.File(demoFiles),
		KeyAbstractions: []Abstraction{{Name: "Flow"}, {Name: "Store"}},
		KeyChapterOrder: []int{1, 0},
	})
}

func failFlowChapter(p string) (string, error) {
	if strings.Contains(p, "'Flow'") {
		return "", errors.New("model overloaded")
	}
	return defaultReply(p)
}

func TestWriteChapters_FailureIsolated(t *testing.T) {
	gen := &fakeGen{reply: failFlowChapter}
	step := writeChapters(&Deps{Generator: gen}, noDelay(StageChapters, DefaultOptions(StageChapters)))
	flow := pipeline.NewBuilder("t").Add(step).MustBuild()

	st := chapterStore()
	_, err := flow.Run(context.Background(), st)
	require.NoError(t, err)

	chapters := pipeline.GetOr[[]string](st, KeyChapters, nil)
	require.Len(t, chapters, 2)
	assert.Equal(t, "# Chapter Store", chapters[0])
	assert.Equal(t, missingChapter("Flow"), chapters[1])

	failures := pipeline.GetOr[[]ChapterFailure](st, KeyChapterFailures, nil)
	require.Len(t, failures, 1)
	assert.Equal(t, "Flow", failures[0].Component)
	assert.Equal(t, 5, failures[0].Attempts)
	assert.Contains(t, failures[0].Error, "model overloaded")
}

func TestWriteChapters_StrictFailsRun(t *testing.T) {
	gen := &fakeGen{reply: failFlowChapter}
	opts := noDelay(StageChapters, DefaultOptions(StageChapters))
	opts.BatchFatal = true
	flow := pipeline.NewBuilder("t").Add(writeChapters(&Deps{Generator: gen}, opts)).MustBuild()

	st := chapterStore()
	_, err := flow.Run(context.Background(), st)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrBatchItemFailed)
	assert.False(t, st.Has(KeyChapters))
}

func TestFetchRepo_NoFiles(t *testing.T) {
	d := &Deps{NewFetcher: func(source.Request) (source.Fetcher, error) { return memFetcher{}, nil }}
	flow := pipeline.NewBuilder("t").Add(fetchRepo(d, DefaultOptions(StageFetch))).MustBuild()

	_, err := flow.Run(context.Background(), seed(nil))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestFetchRepo_BadPattern(t *testing.T) {
	d := &Deps{NewFetcher: func(source.Request) (source.Fetcher, error) { return demoFiles, nil }}
	flow := pipeline.NewBuilder("t").Add(fetchRepo(d, DefaultOptions(StageFetch))).MustBuild()

	_, err := flow.Run(context.Background(), seed(map[string]any{KeyIncludePatterns: []string{"[a-"}}))
	var se *pipeline.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.PhasePrepare, se.Phase)
}

func TestExtractYAML(t *testing.T) {
	body, err := ExtractYAML("text\n```yaml\na: 1\n```\nmore")
	require.NoError(t, err)
	assert.Equal(t, "a: 1", body)

	body, err = ExtractYAML("```yaml\na: 1\n")
	require.NoError(t, err)
	assert.Equal(t, "a: 1", body)

	_, err = ExtractYAML("```json\n{}\n```")
	assert.ErrorIs(t, err, ErrNoYAMLBlock)
}

func TestText_UnmarshalYAML(t *testing.T) {
	var v struct {
		A Text `yaml:"a"`
		B Text `yaml:"b"`
		C Text `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: plain\nb: [x, y]\nc:\n  k: v\n"), &v))
	assert.Equal(t, Text("plain"), v.A)
	assert.Equal(t, Text("x, y"), v.B)
	assert.Equal(t, Text("k: v"), v.C)
}

func TestCoreLimit(t *testing.T) {
	for _, tc := range []struct {
		expr  string
		files int
		want  int
	}{
		{"", 7, 3},
		{"", 1, 1},
		{"", 100, 20},
		{"max(files, 3)", 1, 3},
		{"files", 0, 1},
	} {
		l, err := ParseCoreLimit(tc.expr)
		require.NoError(t, err, tc.expr)
		got, err := l.Eval(tc.files)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s with %d files", tc.expr, tc.files)
	}

	_, err := ParseCoreLimit("files +")
	assert.Error(t, err)
	_, err = ParseCoreLimit("count / 2")
	assert.Error(t, err)
}
