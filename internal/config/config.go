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

// Package config loads agentdoc settings. Values are layered, lowest
// priority first: built-in defaults, the YAML file, environment variables.
// Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/cloudwego/agentdoc/llm"
	"github.com/cloudwego/agentdoc/llm/prompt"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no path is given and it exists in the working
// directory.
const DefaultFile = "agentdoc.yaml"

// EnvPrefix prefixes agentdoc specific environment variables.
const EnvPrefix = "AGENTDOC_"

type Config struct {
	Model  llm.ModelConfig `yaml:"model"`
	Cache  CacheConfig     `yaml:"cache"`
	Source SourceConfig    `yaml:"source"`
	Output OutputConfig    `yaml:"output"`

	// Stages overrides retry settings per stage name.
	Stages map[string]StageConfig `yaml:"stages"`

	// CoreLimit is an expression over `files` giving the number of core
	// files to ask for, e.g. "min(20, files / 2)".
	CoreLimit string `yaml:"core_limit"`

	// Parallelism bounds concurrent chapter generation. 0 means unbounded.
	Parallelism int `yaml:"parallelism"`

	// Strict makes a failed chapter terminate the run.
	Strict bool `yaml:"strict"`

	// SystemPrompt replaces the built-in system message when set.
	SystemPrompt *prompt.FilePrompt `yaml:"system_prompt"`

	// Path of the file that was loaded, if any.
	Path string `yaml:"-"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "file" or "redis".
	Backend  string        `yaml:"backend"`
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type SourceConfig struct {
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`
	MaxFileSize int64    `yaml:"max_file_size"`
	GitHubToken string   `yaml:"github_token"`
	GitLabToken string   `yaml:"gitlab_token"`
	GitLabURL   string   `yaml:"gitlab_url"`
	Ref         string   `yaml:"ref"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// BlobURL, when set, replaces Dir with a gocloud bucket URL
	// (file://, mem://, s3://, gs://).
	BlobURL  string `yaml:"blob_url"`
	Language string `yaml:"language"`
}

// StageConfig overrides the retry settings of one stage. Nil fields keep
// the stage default.
type StageConfig struct {
	MaxAttempts *int           `yaml:"max_attempts"`
	RetryDelay  *time.Duration `yaml:"retry_delay"`
	MaxDelay    *time.Duration `yaml:"max_delay"`
	Backoff     string         `yaml:"backoff"`
}

// Apply returns o with the overrides of s.
func (s StageConfig) Apply(o pipeline.StepOptions) pipeline.StepOptions {
	if s.MaxAttempts != nil {
		o.MaxAttempts = *s.MaxAttempts
	}
	if s.RetryDelay != nil {
		o.RetryDelay = *s.RetryDelay
	}
	if s.MaxDelay != nil {
		o.MaxDelay = *s.MaxDelay
	}
	if s.Backoff != "" {
		o.Backoff = pipeline.Backoff(s.Backoff)
	}
	return o
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: llm.ModelConfig{
			Name:    "agentdoc",
			Timeout: 600 * time.Second,
			Retries: 2,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "file",
			Path:    "llm_cache.json",
		},
		Source: SourceConfig{
			MaxFileSize: 100000,
			GitLabURL:   "https://gitlab.com",
		},
		Output: OutputConfig{
			Dir:      "output",
			Language: "english",
		},
		CoreLimit: "min(20, files / 2)",
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists)
// over the defaults, then applies the process environment.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, utils.WrapError(err, "read config %s", path)
		}
		if err := c.decode(bs); err != nil {
			return nil, utils.WrapError(err, "parse config %s", path)
		}
		c.Path = path
	}
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	c.Model.APIType = llm.NewModelType(string(c.Model.APIType))
	return c, nil
}

func (c *Config) decode(bs []byte) error {
	if len(bytes.TrimSpace(bs)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	return dec.Decode(c)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var apiType string
	str(&apiType, EnvPrefix+"API_TYPE", "API_TYPE")
	if apiType != "" {
		c.Model.APIType = llm.ModelType(apiType)
	}
	str(&c.Model.APIKey, EnvPrefix+"API_KEY", "API_KEY")
	str(&c.Model.ModelName, EnvPrefix+"MODEL_NAME", "MODEL_NAME")
	str(&c.Model.BaseURL, EnvPrefix+"BASE_URL", "BASE_URL")
	str(&c.Source.GitHubToken, EnvPrefix+"GITHUB_TOKEN", "GITHUB_TOKEN")
	str(&c.Source.GitLabToken, EnvPrefix+"GITLAB_TOKEN", "GITLAB_TOKEN")
	str(&c.Source.GitLabURL, EnvPrefix+"GITLAB_URL")
	str(&c.Cache.RedisURL, EnvPrefix+"REDIS_URL", "REDIS_URL")
	str(&c.Cache.Backend, EnvPrefix+"CACHE_BACKEND")
	str(&c.Cache.Path, EnvPrefix+"CACHE_PATH")
	str(&c.Output.Dir, EnvPrefix+"OUTPUT_DIR")
	str(&c.Output.BlobURL, EnvPrefix+"BLOB_URL")
	str(&c.Output.Language, EnvPrefix+"LANGUAGE")
	str(&c.CoreLimit, EnvPrefix+"CORE_LIMIT")

	var raw string
	if str(&raw, EnvPrefix+"MAX_FILE_SIZE"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_FILE_SIZE: %w", EnvPrefix, err)
		}
		c.Source.MaxFileSize = n
	}
	raw = ""
	if str(&raw, EnvPrefix+"PARALLELISM"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%sPARALLELISM: %w", EnvPrefix, err)
		}
		c.Parallelism = n
	}
	raw = ""
	if str(&raw, EnvPrefix+"CACHE"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%sCACHE: %w", EnvPrefix, err)
		}
		c.Cache.Enabled = b
	}
	raw = ""
	if str(&raw, EnvPrefix+"INCLUDE"); raw != "" {
		c.Source.Include = splitList(raw)
	}
	raw = ""
	if str(&raw, EnvPrefix+"EXCLUDE"); raw != "" {
		c.Source.Exclude = splitList(raw)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Stage returns the retry settings of the named stage: def with the
// configured overrides applied.
func (c *Config) Stage(name string, def pipeline.StepOptions) pipeline.StepOptions {
	if s, ok := c.Stages[name]; ok {
		return s.Apply(def)
	}
	return def
}
