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

package source

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileSize is the size limit, in bytes, when none is configured.
const DefaultMaxFileSize = 100000

var DefaultInclude = []string{
	"*.py", "*.pyi", "*.pyx", "*.js", "*.jsx", "*.ts", "*.tsx", "*.go", "*.java",
	"*.c", "*.cc", "*.cpp", "*.h", "*.md", "*.rst", "Dockerfile", "Makefile",
	"*.yaml", "*.yml", "go.mod", "pom.xml",
}

var DefaultExclude = []string{
	"**/assets/**", "data", "images", "public", "static", "temp", "docs",
	"venv", ".venv", "*test*", "tests", "examples", "dist", "build",
	"experimental", "deprecated", "legacy", ".git", ".github", ".next",
	".vscode", "obj", "bin", "node_modules", "*.log",
}

// Filter selects files by glob patterns and size. Patterns use doublestar
// syntax. A pattern without "/" is matched against the file name for
// includes, and against every path segment for excludes, so "tests"
// excludes a whole directory.
type Filter struct {
	Include []string
	Exclude []string
	// MaxSize in bytes; files larger are skipped. 0 means no limit.
	MaxSize int64
}

// NewFilter validates the patterns.
func NewFilter(include, exclude []string, maxSize int64) (*Filter, error) {
	var bad []string
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			bad = append(bad, p)
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid glob pattern(s): %s", strings.Join(bad, ", "))
	}
	return &Filter{Include: include, Exclude: exclude, MaxSize: maxSize}, nil
}

// DefaultFilter uses DefaultInclude, DefaultExclude and DefaultMaxFileSize.
func DefaultFilter() *Filter {
	return &Filter{Include: DefaultInclude, Exclude: DefaultExclude, MaxSize: DefaultMaxFileSize}
}

// Match reports whether the relative path p passes the include and
// exclude patterns.
func (f *Filter) Match(p string) bool {
	if f == nil {
		return true
	}
	if f.Excluded(p) {
		return false
	}
	if len(f.Include) == 0 {
		return true
	}
	base := path.Base(p)
	for _, pat := range f.Include {
		if matchOne(pat, p, base) {
			return true
		}
	}
	return false
}

// Excluded reports whether p, a file or a directory, matches an exclude
// pattern.
func (f *Filter) Excluded(p string) bool {
	if f == nil {
		return false
	}
	p = strings.TrimPrefix(p, "./")
	for _, pat := range f.Exclude {
		if strings.Contains(pat, "/") {
			if ok, _ := doublestar.Match(pat, p); ok {
				return true
			}
			// "dir/**" also excludes the directory itself
			if ok, _ := doublestar.Match(pat, p+"/"); ok {
				return true
			}
			continue
		}
		for _, seg := range strings.Split(p, "/") {
			if ok, _ := doublestar.Match(pat, seg); ok {
				return true
			}
		}
	}
	return false
}

// SizeOK reports whether a file of n bytes is within the limit.
func (f *Filter) SizeOK(n int64) bool {
	return f == nil || f.MaxSize <= 0 || n <= f.MaxSize
}

func matchOne(pat, full, base string) bool {
	if !strings.Contains(pat, "/") {
		ok, _ := doublestar.Match(pat, base)
		return ok
	}
	ok, _ := doublestar.Match(pat, full)
	return ok
}
