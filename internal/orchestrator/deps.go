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
	"fmt"

	"github.com/cloudwego/agentdoc/internal/config"
	"github.com/cloudwego/agentdoc/internal/pipeline/steps"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/cloudwego/agentdoc/llm"
	"github.com/cloudwego/agentdoc/llm/prompt"
)

// OptionsFromConfig fills the run options cfg carries. The source location
// and project name come from the command line.
func OptionsFromConfig(cfg *config.Config) Options {
	output := cfg.Output.Dir
	if cfg.Output.BlobURL != "" {
		output = cfg.Output.BlobURL
	}
	return Options{
		Ref:         cfg.Source.Ref,
		Include:     cfg.Source.Include,
		Exclude:     cfg.Source.Exclude,
		MaxFileSize: cfg.Source.MaxFileSize,
		Output:      output,
		Language:    cfg.Output.Language,
		UseCache:    cfg.Cache.Enabled,
		CoreLimit:   cfg.CoreLimit,
		Parallelism: cfg.Parallelism,
		Strict:      cfg.Strict,
		Stage:       cfg.Stage,
	}
}

func systemPrompt(cfg *config.Config) (prompt.Prompt, error) {
	if cfg.SystemPrompt == nil {
		return prompt.SystemPrompt(), nil
	}
	p, err := prompt.NewFilePrompt(cfg.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("load system prompt %s: %w", cfg.SystemPrompt.Path, err)
	}
	return p, nil
}

// NewDeps wires the model, its response cache, the fetchers and the
// document writer described by cfg. The returned func releases them.
func NewDeps(ctx context.Context, cfg *config.Config, output string) (steps.Deps, func() error, error) {
	sys, err := systemPrompt(cfg)
	if err != nil {
		return steps.Deps{}, nil, err
	}
	gen, err := llm.NewChatGeneratorFromConfig(ctx, cfg.Model, sys)
	if err != nil {
		return steps.Deps{}, nil, err
	}
	cache, closeCache, err := OpenCache(cfg.Cache)
	if err != nil {
		return steps.Deps{}, nil, err
	}
	w, err := docs.OpenWriter(ctx, output)
	if err != nil {
		closeCache()
		return steps.Deps{}, nil, err
	}
	fetchOpts := source.Options{
		GitHubToken: cfg.Source.GitHubToken,
		GitLabToken: cfg.Source.GitLabToken,
		GitLabURL:   cfg.Source.GitLabURL,
	}
	deps := steps.Deps{
		NewFetcher: func(req source.Request) (source.Fetcher, error) {
			return source.New(req, fetchOpts)
		},
		Generator: llm.NewCachedGenerator(gen, cache),
		Writer:    w,
	}
	return deps, func() error {
		return errors.Join(w.Close(), closeCache())
	}, nil
}

// OpenCache opens the configured response cache. A disabled cache yields a
// nil Cache.
func OpenCache(c config.CacheConfig) (llm.Cache, func() error, error) {
	noop := func() error { return nil }
	if !c.Enabled {
		return nil, noop, nil
	}
	switch c.Backend {
	case "", "file":
		fc, err := llm.NewFileCache(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return fc, noop, nil
	case "redis":
		rc, err := llm.NewRedisCache(c.RedisURL, "", c.TTL)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}
