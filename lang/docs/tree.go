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

// Package docs renders generated documentation into markdown files and
// stores them in a blob bucket.
package docs

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	OverviewFile = "project_overview.md"
	IndexFile    = "index.md"

	Footer = "\n\n---\n\nGenerated by [AI Codebase Knowledge Builder](https://github.com/The-Pocket/Tutorial-Codebase-Knowledge)"
)

// Component is one documented abstraction of the project.
type Component struct {
	Name           string
	Responsibility string
}

// Edge is a directed relationship between two components, by index.
type Edge struct {
	From int
	To   int
	Type string
}

// Chapter is the generated text for Tree.Components[Component].
type Chapter struct {
	Component int
	Content   string
}

// Tree is everything needed to lay out one project's documentation.
type Tree struct {
	ProjectName  string
	Overview     string
	Summary      string
	Architecture string
	Components   []Component
	Edges        []Edge
	// DataFlows are component index paths, rendered as chained arrows.
	DataFlows [][]int
	// Chapters are in reading order.
	Chapters []Chapter
}

// Document is a rendered file, relative to the project directory.
type Document struct {
	Name    string
	Content string
}

// SafeName keeps letters, digits, '-' and '_' and replaces every other
// character with '_'.
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

// ChapterFile names the i-th chapter (0-based) of a component.
func ChapterFile(i int, name string) string {
	return fmt.Sprintf("%02d_%s.md", i+1, SafeName(strings.ToLower(name)))
}

// Dir is the directory the tree is written to, below the output root.
func (t *Tree) Dir() string {
	return SafeName(t.ProjectName)
}

// Render lays the tree out as the overview, the index and one file per
// chapter, in that order.
func (t *Tree) Render() ([]Document, error) {
	for i, c := range t.Chapters {
		if c.Component < 0 || c.Component >= len(t.Components) {
			return nil, fmt.Errorf("chapter %d refers to unknown component %d", i, c.Component)
		}
	}
	docs := make([]Document, 0, len(t.Chapters)+2)
	docs = append(docs,
		Document{Name: OverviewFile, Content: t.renderOverview()},
		Document{Name: IndexFile, Content: t.renderIndex()},
	)
	for i, c := range t.Chapters {
		docs = append(docs, Document{
			Name:    ChapterFile(i, t.Components[c.Component].Name),
			Content: c.Content + Footer,
		})
	}
	return docs, nil
}

func (t *Tree) renderOverview() string {
	return fmt.Sprintf("# %s - Development Overview\n\n%s%s", t.ProjectName, t.Overview, Footer)
}

func (t *Tree) renderIndex() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s - Technical Documentation\n\n", t.ProjectName)
	if t.Summary != "" {
		fmt.Fprintf(&sb, "## Technical Overview\n\n%s\n\n", t.Summary)
	}
	if t.Architecture != "" {
		fmt.Fprintf(&sb, "## Architecture Overview\n\n%s\n\n", t.Architecture)
	}

	n := len(t.Components)
	sb.WriteString("## Component Architecture\n\n```mermaid\ngraph TD\n")
	for i, c := range t.Components {
		fmt.Fprintf(&sb, "    A%d[\"%s<br/>%s...\"]\n", i,
			strings.ReplaceAll(c.Name, `"`, `\"`), truncate(c.Responsibility, 50))
	}
	for _, e := range t.Edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			continue
		}
		typ := e.Type
		if typ == "" {
			typ = "relates_to"
		}
		fmt.Fprintf(&sb, "    A%d -->|%s| A%d\n", e.From, typ, e.To)
	}
	sb.WriteString("```\n\n")

	if len(t.DataFlows) > 0 {
		sb.WriteString("## Data Flow\n\n```mermaid\nflowchart LR\n")
		for _, flow := range t.DataFlows {
			for i := 0; i+1 < len(flow); i++ {
				cur, next := flow[i], flow[i+1]
				if cur < 0 || cur >= n || next < 0 || next >= n {
					continue
				}
				fmt.Fprintf(&sb, "    A%d --> A%d\n", cur, next)
			}
		}
		sb.WriteString("```\n\n")
	}

	sb.WriteString("## Component Documentation\n\n")
	for i, c := range t.Chapters {
		comp := t.Components[c.Component]
		fmt.Fprintf(&sb, "%d. **[%s](%s)** - %s\n", i+1, comp.Name, ChapterFile(i, comp.Name), comp.Responsibility)
	}
	sb.WriteString(Footer)
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
