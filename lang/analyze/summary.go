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

package analyze

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Summary is a short plain-text overview of the report.
func (r *Report) Summary() string {
	var sb strings.Builder
	sb.WriteString("File Structure Summary:\n")
	fmt.Fprintf(&sb, "- Total files: %d\n", len(r.Files))
	fmt.Fprintf(&sb, "- File types: %s\n", r.fileTypes())
	fmt.Fprintf(&sb, "- Directory depth: %d\n", r.Directories.Depth)
	fmt.Fprintf(&sb, "- Main directories: [%s]\n", strings.Join(r.Directories.CommonDirs, ", "))

	sb.WriteString("\nEntry Points Found:\n")
	for _, ep := range r.EntryPoints {
		fmt.Fprintf(&sb, "- %s\n", ep)
	}

	sb.WriteString("\nCore Modules (most imported):\n")
	for i, m := range r.CoreModules {
		if i == 5 {
			break
		}
		fmt.Fprintf(&sb, "- %s (imported by %d files)\n", m.Path, m.Dependents)
	}

	sb.WriteString("\nDetected Patterns:\n")
	fmt.Fprintf(&sb, "- mvc: %t\n- layered: %t\n- has_tests: %t\n- modular: %t\n",
		r.Patterns.MVC, r.Patterns.Layered, r.Patterns.HasTests, r.Patterns.Modular)

	if len(r.Manifests) > 0 {
		sb.WriteString("\nManifests:\n")
		for _, m := range r.Manifests {
			fmt.Fprintf(&sb, "- %s (%s): %s, %d direct dependencies\n", m.Path, m.Kind, m.Module, len(m.Dependencies))
		}
	}

	sb.WriteString("\nDependencies Overview:\n")
	fmt.Fprintf(&sb, "- Files with imports: %d\n", len(r.Imports()))
	fmt.Fprintf(&sb, "- Files with exports: %d\n", len(r.Exports()))
	return sb.String()
}

func (r *Report) fileTypes() string {
	exts := make([]string, 0, len(r.FileTypes))
	for ext := range r.FileTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	parts := make([]string, len(exts))
	for i, ext := range exts {
		name := ext
		if name == "" {
			name = "(none)"
		}
		parts[i] = fmt.Sprintf("%s: %d", name, r.FileTypes[ext])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// compact is the part of the report sent to the model as context.
type compact struct {
	FileTypes   map[string]int `yaml:"file_types"`
	EntryPoints []string       `yaml:"entry_points"`
	CoreModules []ModuleCount  `yaml:"core_modules"`
	Depth       int            `yaml:"directory_depth"`
	CommonDirs  []string       `yaml:"common_dirs"`
	Patterns    Patterns       `yaml:"patterns"`
	Manifests   []Manifest     `yaml:"manifests,omitempty"`
	Extra       map[string]any `yaml:"llm_analysis,omitempty"`
}

// Context renders the report, without per-file details, as YAML. extra is
// added under llm_analysis when non-empty.
func (r *Report) Context(extra map[string]any) string {
	bs, err := yaml.Marshal(compact{
		FileTypes:   r.FileTypes,
		EntryPoints: r.EntryPoints,
		CoreModules: r.CoreModules,
		Depth:       r.Directories.Depth,
		CommonDirs:  r.Directories.CommonDirs,
		Patterns:    r.Patterns,
		Manifests:   r.Manifests,
		Extra:       extra,
	})
	if err != nil {
		return r.Summary()
	}
	return string(bs)
}
