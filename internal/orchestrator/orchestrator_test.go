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

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/agentdoc/internal/config"
	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/internal/pipeline/steps"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/cloudwego/agentdoc/llm"
	"github.com/cloudwego/agentdoc/llm/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func validOptions(t *testing.T) Options {
	return Options{
		LocalDir:    t.TempDir(),
		Output:      "out",
		MaxFileSize: 1000,
		Language:    "zh",
	}
}

func TestOptions_Validate(t *testing.T) {
	o := validOptions(t)
	require.NoError(t, o.Validate())
	assert.Equal(t, "Chinese", o.Language)

	for name, tc := range map[string]struct {
		mutate func(o *Options)
		want   string
	}{
		"no source":      {func(o *Options) { o.LocalDir = "" }, "one of repo URL or local directory"},
		"both sources":   {func(o *Options) { o.RepoURL = "https://github.com/a/b" }, "mutually exclusive"},
		"missing dir":    {func(o *Options) { o.LocalDir = filepath.Join(o.LocalDir, "nope") }, "local directory"},
		"bad repo url":   {func(o *Options) { o.LocalDir, o.RepoURL = "", "https://github.com/" }, "repo URL"},
		"empty output":   {func(o *Options) { o.Output = " " }, "output location"},
		"bad language":   {func(o *Options) { o.Language = "klingonese" }, "unknown language"},
		"bad pattern":    {func(o *Options) { o.Include = []string{"[a-"} }, "invalid glob"},
		"zero size":      {func(o *Options) { o.MaxFileSize = 0 }, "max file size"},
		"bad core limit": {func(o *Options) { o.CoreLimit = "files +" }, "core limit"},
		"negative pool":  {func(o *Options) { o.Parallelism = -1 }, "parallelism"},
	} {
		t.Run(name, func(t *testing.T) {
			o := validOptions(t)
			tc.mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Len(t, cerr.Problems, 1)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestOptions_ValidateCollectsAllProblems(t *testing.T) {
	o := Options{Language: "klingonese"}
	err := o.Validate()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Problems, 4)
}

func TestResolveLanguage(t *testing.T) {
	for in, want := range map[string]string{
		"":        "English",
		"en":      "English",
		"english": "English",
		"zh":      "Chinese",
		"Chinese": "Chinese",
		"de":      "German",
		"FRENCH":  "French",
		"en-US":   "English",
		"en-GB":   "English",
		"zh-CN":   "Chinese",
		"pt-BR":   "Portuguese",
	} {
		got, err := ResolveLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ResolveLanguage("klingonese")
	assert.Error(t, err)
}

type scriptedGen struct {
	fail bool
}

func (g scriptedGen) Generate(ctx context.Context, p string, cacheable bool) (string, error) {
	if g.fail {
		return "", errors.New("connection refused")
	}
	switch {
	case strings.Contains(p, "Analyze the structure of the codebase"):
		return "```yaml\narchitecture:\n  description: tiny\n```", nil
	case strings.Contains(p, "most important files"):
		return "```yaml\ncore_files:\n  - index: 0\n```", nil
	case strings.Contains(p, "key technical abstractions"):
		return "```yaml\nabstractions:\n  - name: Core\n    primary_responsibility: everything\n    files: [0]\n```", nil
	case strings.Contains(p, "Analyze the relationships between"):
		return "```yaml\nsummary: s\narchitecture_overview: a\ncomponent_relationships: []\n```", nil
	case strings.Contains(p, "Order these technical components"):
		return "```yaml\nchapter_order: [0]\n```", nil
	case strings.Contains(p, "Generate a comprehensive project overview"):
		return "overview", nil
	}
	return "chapter", nil
}

type oneFile struct{}

func (oneFile) Fetch(ctx context.Context, req source.Request) ([]source.File, error) {
	return []source.File{{Path: "main.go", Content: "package main\n\nfunc main() {}\n"}}, nil
}

func testDeps(gen steps.Generator) (steps.Deps, *docs.Writer) {
	w := docs.NewWriter(memblob.OpenBucket(nil), "/docs")
	return steps.Deps{
		NewFetcher: func(source.Request) (source.Fetcher, error) { return oneFile{}, nil },
		Generator:  gen,
		Writer:     w,
	}, w
}

func TestOrchestrator_Run(t *testing.T) {
	deps, _ := testDeps(scriptedGen{})
	opts := validOptions(t)
	opts.ProjectName = "tiny"
	o, err := New(opts, deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.RunID, 21)
	assert.Equal(t, "/docs/tiny", res.OutputDir)
	assert.Equal(t, []string{"project_overview.md", "index.md", "01_core.md"}, res.Documents)
	assert.Equal(t, steps.Stages, res.Report.Path)

	summary := res.Summary()
	assert.Contains(t, summary, "Output directory: /docs/tiny")
	assert.Contains(t, summary, "Files written: 3")
	assert.Contains(t, summary, "  write_chapters: 1\n")
	assert.NotContains(t, summary, "Chapter failures")

	assert.Equal(t, "Chinese", pipeline.GetOr(res.Store, steps.KeyLanguage, ""))
}

func TestOrchestrator_RunFailureNamesStage(t *testing.T) {
	deps, _ := testDeps(scriptedGen{fail: true})
	opts := validOptions(t)
	opts.Stage = func(name string, def pipeline.StepOptions) pipeline.StepOptions {
		def.MaxAttempts, def.RetryDelay = 2, 0
		return def
	}
	o, err := New(opts, deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	var se *pipeline.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, steps.StageStructure, se.Step)
	assert.Equal(t, 2, se.Attempts)
	assert.Contains(t, err.Error(), res.RunID)
	assert.True(t, res.Store.Has(steps.KeyFiles))
	assert.Empty(t, res.OutputDir)
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	deps, _ := testDeps(scriptedGen{})
	_, err := New(Options{}, deps)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.BlobURL = "mem://"
	cfg.Source.Include = []string{"*.go"}
	cfg.Strict = true

	o := OptionsFromConfig(cfg)
	assert.Equal(t, "mem://", o.Output)
	assert.Equal(t, []string{"*.go"}, o.Include)
	assert.Equal(t, int64(100000), o.MaxFileSize)
	assert.True(t, o.Strict)
	assert.True(t, o.UseCache)
	assert.NotNil(t, o.Stage)
}

func TestOpenCache(t *testing.T) {
	c, closeFn, err := OpenCache(config.CacheConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, closeFn())

	c, _, err = OpenCache(config.CacheConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "cache.json")})
	require.NoError(t, err)
	assert.IsType(t, &llm.FileCache{}, c)

	mr := miniredis.RunT(t)
	c, closeFn, err = OpenCache(config.CacheConfig{Enabled: true, Backend: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "k", "v"))
	assert.NoError(t, closeFn())

	_, _, err = OpenCache(config.CacheConfig{Enabled: true, Backend: "memcached"})
	assert.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	p, err := systemPrompt(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, prompt.SystemPrompt().String(), p.String())

	path := filepath.Join(t.TempDir(), "system.md")
	require.NoError(t, os.WriteFile(path, []byte("You write docs for {{.Team}}."), 0o644))
	p, err = systemPrompt(&config.Config{SystemPrompt: &prompt.FilePrompt{
		Type: prompt.PromptTypeGoTemplate,
		Path: path,
		Data: map[string]string{"Team": "infra"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "You write docs for infra.", p.String())

	_, err = systemPrompt(&config.Config{SystemPrompt: &prompt.FilePrompt{Path: filepath.Join(t.TempDir(), "missing.md")}})
	assert.ErrorContains(t, err, "load system prompt")
}
