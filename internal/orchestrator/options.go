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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/internal/pipeline/steps"
	"github.com/cloudwego/agentdoc/lang/source"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrInvalidConfig matches every *ConfigurationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigurationError lists every problem found in the run inputs.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigurationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Options are the inputs of one documentation run.
type Options struct {
	// Exactly one of RepoURL and LocalDir is set.
	RepoURL  string
	LocalDir string
	Ref      string
	// ProjectName defaults to the repository or directory name.
	ProjectName string

	Include     []string
	Exclude     []string
	MaxFileSize int64

	// Output is a directory or a bucket URL.
	Output   string
	Language string
	UseCache bool

	CoreLimit   string
	Parallelism int
	Strict      bool
	// Stage overrides stage retry settings, see steps.Options.
	Stage func(name string, def pipeline.StepOptions) pipeline.StepOptions
}

// Validate checks o and returns a *ConfigurationError naming every
// problem. On success o.Language holds the English name of the language.
func (o *Options) Validate() error {
	cerr := &ConfigurationError{}
	switch {
	case o.RepoURL == "" && o.LocalDir == "":
		cerr.add("one of repo URL or local directory is required")
	case o.RepoURL != "" && o.LocalDir != "":
		cerr.add("repo URL and local directory are mutually exclusive")
	case o.RepoURL != "":
		if _, err := source.ParseRepoURL(o.RepoURL); err != nil {
			cerr.add("repo URL: %v", err)
		}
	default:
		if fi, err := os.Stat(o.LocalDir); err != nil {
			cerr.add("local directory: %v", err)
		} else if !fi.IsDir() {
			cerr.add("local directory: %s is not a directory", o.LocalDir)
		}
	}
	if strings.TrimSpace(o.Output) == "" {
		cerr.add("output location is empty")
	}
	if name, err := ResolveLanguage(o.Language); err != nil {
		cerr.add("%v", err)
	} else {
		o.Language = name
	}
	if _, err := source.NewFilter(o.Include, o.Exclude, o.MaxFileSize); err != nil {
		cerr.add("%v", err)
	}
	if o.MaxFileSize <= 0 {
		cerr.add("max file size must be positive, got %d", o.MaxFileSize)
	}
	if _, err := steps.ParseCoreLimit(o.CoreLimit); err != nil {
		cerr.add("%v", err)
	}
	if o.Parallelism < 0 {
		cerr.add("parallelism must not be negative, got %d", o.Parallelism)
	}
	if len(cerr.Problems) > 0 {
		return cerr
	}
	return nil
}

var (
	languageNames = display.English.Tags()

	// matched by English name when the input is not a language tag
	namedLanguages = []language.Tag{
		language.English, language.Chinese, language.Japanese, language.Korean,
		language.Spanish, language.French, language.German, language.Portuguese,
		language.Russian, language.Italian, language.Arabic, language.Hindi,
		language.Vietnamese, language.Indonesian, language.Turkish, language.Dutch,
		language.Polish, language.Thai, language.Ukrainian, language.Swedish,
	}
)

// ResolveLanguage accepts a BCP 47 tag ("zh", "pt-BR") or an English
// language name ("Chinese") and returns the English name. Empty means
// English.
func ResolveLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "English", nil
	}
	if tag, err := language.Parse(s); err == nil {
		// regional variants collapse to the base language, en-US is English
		base, _ := tag.Base()
		if t, err := language.Compose(base); err == nil {
			if name := languageNames.Name(t); name != "" {
				return name, nil
			}
		}
	}
	for _, t := range namedLanguages {
		if name := languageNames.Name(t); strings.EqualFold(name, s) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown language %q", s)
}
