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

// Package analyze derives a structural report from source files without
// understanding them: imports, declarations, a file dependency graph,
// entry points, heavily imported modules and directory patterns.
package analyze

import (
	"path"
	"sort"
	"strings"

	"github.com/cloudwego/agentdoc/lang/source"
)

// FileInfo is the per-file result.
type FileInfo struct {
	Path      string   `json:"path" yaml:"path"`
	Size      int      `json:"size" yaml:"size"`
	Lines     int      `json:"lines" yaml:"lines"`
	Language  Language `json:"language" yaml:"language"`
	Imports   []string `json:"imports,omitempty" yaml:"imports,omitempty"`
	Exports   []string `json:"exports,omitempty" yaml:"exports,omitempty"`
	Functions []string `json:"functions,omitempty" yaml:"functions,omitempty"`
	Classes   []string `json:"classes,omitempty" yaml:"classes,omitempty"`
	HasMain   bool     `json:"has_main" yaml:"has_main"`
	IsConfig  bool     `json:"is_config" yaml:"is_config"`
}

// ModuleCount is a file and the number of files depending on it.
type ModuleCount struct {
	Path       string `json:"path" yaml:"path"`
	Dependents int    `json:"dependents" yaml:"dependents"`
}

type DirectoryStructure struct {
	// Directories maps a directory to the names of the files directly in it.
	Directories map[string][]string `json:"directories" yaml:"directories"`
	// Depth is the largest number of path segments of any file.
	Depth int `json:"depth" yaml:"depth"`
	// CommonDirs holds directories with more than 3 files.
	CommonDirs []string `json:"common_dirs" yaml:"common_dirs"`
}

type Patterns struct {
	MVC      bool `json:"mvc" yaml:"mvc"`
	Layered  bool `json:"layered" yaml:"layered"`
	HasTests bool `json:"has_tests" yaml:"has_tests"`
	Modular  bool `json:"modular" yaml:"modular"`
}

// Report is the structural analysis of a file set.
type Report struct {
	Files        map[string]*FileInfo `json:"file_info" yaml:"file_info"`
	FileTypes    map[string]int       `json:"file_types" yaml:"file_types"`
	Dependencies map[string][]string  `json:"dependencies" yaml:"dependencies"`
	EntryPoints  []string             `json:"entry_points" yaml:"entry_points"`
	CoreModules  []ModuleCount        `json:"core_modules" yaml:"core_modules"`
	Directories  DirectoryStructure   `json:"directory_structure" yaml:"directory_structure"`
	Patterns     Patterns             `json:"patterns" yaml:"patterns"`
	Manifests    []Manifest           `json:"manifests,omitempty" yaml:"manifests,omitempty"`
}

// maxCoreModules is the number of most depended-upon files reported.
const maxCoreModules = 10

// Analyze builds the report for files.
func Analyze(files []source.File) *Report {
	r := &Report{
		Files:        make(map[string]*FileInfo, len(files)),
		FileTypes:    map[string]int{},
		Dependencies: map[string][]string{},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		info := analyzeFile(f.Path, f.Content)
		r.Files[f.Path] = info
		r.FileTypes[path.Ext(f.Path)]++
		paths = append(paths, f.Path)
		if m, ok := parseManifest(f.Path, f.Content); ok {
			r.Manifests = append(r.Manifests, m)
		}
	}
	sort.Strings(paths)

	r.Dependencies = buildDependencies(r.Files, paths, r.Manifests)
	r.EntryPoints = entryPoints(r.Files, paths)
	r.CoreModules = coreModules(r.Dependencies)
	r.Directories = directoryStructure(paths)
	r.Patterns = detectPatterns(r.Directories)
	return r
}

// Imports returns files that import something, with their imports.
func (r *Report) Imports() map[string][]string {
	out := map[string][]string{}
	for p, f := range r.Files {
		if len(f.Imports) > 0 {
			out[p] = f.Imports
		}
	}
	return out
}

// Exports returns files that export something, with their exports.
func (r *Report) Exports() map[string][]string {
	out := map[string][]string{}
	for p, f := range r.Files {
		if len(f.Exports) > 0 {
			out[p] = f.Exports
		}
	}
	return out
}

func analyzeFile(p, content string) *FileInfo {
	info := &FileInfo{
		Path:     p,
		Size:     len(content),
		Lines:    countLines(content),
		Language: DetectLanguage(p),
	}
	extract(info, []byte(content))
	info.Imports = uniqueSorted(info.Imports)
	info.Exports = uniqueSorted(info.Exports)
	info.IsConfig = isConfigFile(p)
	return info
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

var configIndicators = []string{
	"config", "settings", "setup", "makefile", "dockerfile",
	".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".env", ".properties",
}

func isConfigFile(p string) bool {
	lower := strings.ToLower(p)
	for _, ind := range configIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

var entryNames = map[string]bool{
	"main.py": true, "app.py": true, "server.py": true,
	"index.js": true, "main.go": true, "main.java": true,
}

func entryPoints(files map[string]*FileInfo, paths []string) []string {
	var out []string
	for _, p := range paths {
		info := files[p]
		base := strings.ToLower(path.Base(p))
		switch {
		case info.HasMain, entryNames[base]:
			out = append(out, p)
		case (base == "setup.py" || base == "__init__.py") && info.Size > 100:
			out = append(out, p)
		}
	}
	return out
}

func coreModules(deps map[string][]string) []ModuleCount {
	counts := map[string]int{}
	for _, targets := range deps {
		for _, t := range targets {
			counts[t]++
		}
	}
	out := make([]ModuleCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, ModuleCount{Path: p, Dependents: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dependents != out[j].Dependents {
			return out[i].Dependents > out[j].Dependents
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > maxCoreModules {
		out = out[:maxCoreModules]
	}
	return out
}

func directoryStructure(paths []string) DirectoryStructure {
	ds := DirectoryStructure{Directories: map[string][]string{}}
	for _, p := range paths {
		if d := path.Dir(p); d != "." {
			ds.Directories[d] = append(ds.Directories[d], path.Base(p))
		}
		ds.Depth = max(ds.Depth, len(strings.Split(p, "/")))
	}
	for d, names := range ds.Directories {
		if len(names) > 3 {
			ds.CommonDirs = append(ds.CommonDirs, d)
		}
	}
	sort.Strings(ds.CommonDirs)
	return ds
}

func detectPatterns(ds DirectoryStructure) Patterns {
	anyDir := func(words ...string) bool {
		for d := range ds.Directories {
			lower := strings.ToLower(d)
			for _, w := range words {
				if strings.Contains(lower, w) {
					return true
				}
			}
		}
		return false
	}
	return Patterns{
		MVC:      anyDir("models", "views", "controllers"),
		Layered:  anyDir("service", "repository", "controller", "entity"),
		HasTests: anyDir("test"),
		Modular:  len(ds.Directories) > 3,
	}
}

func uniqueSorted(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	sort.Strings(ss)
	out := ss[:1]
	for _, s := range ss[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
