// Copyright 2025 CloudWeGo Authors
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

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/agentdoc/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"AGENTDOC_OUTPUT_DIR", "AGENTDOC_BLOB_URL", "AGENTDOC_LANGUAGE",
		"AGENTDOC_PARALLELISM", "AGENTDOC_INCLUDE", "AGENTDOC_EXCLUDE",
		"AGENTDOC_MAX_FILE_SIZE", "AGENTDOC_CACHE", "AGENTDOC_CORE_LIMIT",
		"AGENTDOC_API_KEY", "AGENTDOC_GITHUB_TOKEN", "AGENTDOC_GITLAB_TOKEN", "GITLAB_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func parseCLI(t *testing.T, args ...string) (*flag.FlagSet, *cliOptions) {
	t.Helper()
	var cli cliOptions
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	cli.register(flags)
	require.NoError(t, flags.Parse(args))
	return flags, &cli
}

func TestLoadOptions(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agentdoc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"output:\n  dir: from-config\n  language: japanese\nparallelism: 3\ncache:\n  enabled: true\n"), 0o644))

	t.Run("flags override config", func(t *testing.T) {
		flags, cli := parseCLI(t, "-config", cfgPath, "-language", "zh",
			"-include", "*.go", "-include", "*.md", "-no-cache", "-name", "demo")
		cfg, opts, err := loadOptions(flags, cli, dir)
		require.NoError(t, err)
		assert.Equal(t, dir, opts.LocalDir)
		assert.Empty(t, opts.RepoURL)
		assert.Equal(t, "demo", opts.ProjectName)
		assert.Equal(t, "from-config", opts.Output)
		assert.Equal(t, "Chinese", opts.Language)
		assert.Equal(t, []string{"*.go", "*.md"}, opts.Include)
		assert.Equal(t, 3, opts.Parallelism)
		assert.False(t, opts.UseCache)
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("config values kept when flags absent", func(t *testing.T) {
		flags, cli := parseCLI(t, "-config", cfgPath)
		_, opts, err := loadOptions(flags, cli, dir)
		require.NoError(t, err)
		assert.Equal(t, "Japanese", opts.Language)
		assert.True(t, opts.UseCache)
	})

	t.Run("remote source", func(t *testing.T) {
		flags, cli := parseCLI(t, "-config", cfgPath, "-o", "mem://", "-strict", "-ref", "v1")
		_, opts, err := loadOptions(flags, cli, "https://github.com/owner/repo")
		require.NoError(t, err)
		assert.Equal(t, "https://github.com/owner/repo", opts.RepoURL)
		assert.Empty(t, opts.LocalDir)
		assert.Equal(t, "mem://", opts.Output)
		assert.Equal(t, "v1", opts.Ref)
		assert.True(t, opts.Strict)
	})

	t.Run("credentials from flags", func(t *testing.T) {
		t.Setenv("API_KEY", "from-env")
		t.Setenv("GITHUB_TOKEN", "gh-env")
		flags, cli := parseCLI(t, "-config", cfgPath, "-api-key", "sk-flag", "-token", "tok-flag")
		cfg, _, err := loadOptions(flags, cli, "https://github.com/owner/repo")
		require.NoError(t, err)
		assert.Equal(t, "sk-flag", cfg.Model.APIKey)
		assert.Equal(t, "tok-flag", cfg.Source.GitHubToken)
		assert.Equal(t, "tok-flag", cfg.Source.GitLabToken)
	})

	t.Run("credentials from env without flags", func(t *testing.T) {
		t.Setenv("API_KEY", "from-env")
		t.Setenv("GITHUB_TOKEN", "gh-env")
		flags, cli := parseCLI(t, "-config", cfgPath)
		cfg, _, err := loadOptions(flags, cli, "https://github.com/owner/repo")
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Model.APIKey)
		assert.Equal(t, "gh-env", cfg.Source.GitHubToken)
		assert.Empty(t, cfg.Source.GitLabToken)
	})

	t.Run("invalid", func(t *testing.T) {
		flags, cli := parseCLI(t, "-config", cfgPath, "-language", "klingon", "-parallelism", "-1")
		_, _, err := loadOptions(flags, cli, filepath.Join(dir, "missing"))
		require.ErrorIs(t, err, orchestrator.ErrInvalidConfig)
		var cerr *orchestrator.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		assert.Len(t, cerr.Problems, 3)
	})
}

func TestIsRepoURL(t *testing.T) {
	assert.True(t, isRepoURL("https://github.com/owner/repo"))
	assert.True(t, isRepoURL("git@gitlab.com:group/repo.git"))
	assert.False(t, isRepoURL("./src"))
	assert.False(t, isRepoURL("/abs/path"))
}

func TestStringArray(t *testing.T) {
	var s StringArray
	require.NoError(t, s.Set("a"))
	require.NoError(t, s.Set("b"))
	assert.Equal(t, "a,b", s.String())
}
