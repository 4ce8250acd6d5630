/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templateFS embed.FS

// Stage prompt names.
const (
	Structure     = "structure"
	Core          = "core"
	Abstractions  = "abstractions"
	Relationships = "relationships"
	Order         = "order"
	Overview      = "overview"
	Chapter       = "chapter"
	System        = "system"
)

var funcs = template.FuncMap{
	"join": strings.Join,
}

var stages = template.Must(template.New("stages").Funcs(funcs).ParseFS(templateFS, "templates/*.md"))

func templateBase(path string) string {
	return filepath.Base(path)
}

// SystemPrompt is the system message sent with every stage prompt.
func SystemPrompt() Prompt {
	s, err := Render(System, "", nil)
	if err != nil {
		panic(err)
	}
	return TextPrompt(s)
}

// Render executes the named stage template with data. A non-empty,
// non-English language appends an instruction to write prose in it.
func Render(name, language string, data any) (string, error) {
	var buf bytes.Buffer
	if err := stages.ExecuteTemplate(&buf, name+".md", data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	if ins := LanguageInstruction(language); ins != "" {
		buf.WriteString("\n")
		buf.WriteString(ins)
	}
	return buf.String(), nil
}

// LanguageInstruction returns the instruction for writing in language, or
// "" for English.
func LanguageInstruction(language string) string {
	if language == "" || strings.EqualFold(language, "english") || strings.EqualFold(language, "en") {
		return ""
	}
	return fmt.Sprintf("IMPORTANT: Write all descriptive text in %s. "+
		"Keep code, identifiers, file paths, YAML keys and index numbers unchanged.\n", language)
}

type StructureData struct {
	ProjectName string
	Summary     string
}

type CoreData struct {
	ProjectName  string
	Limit        int
	Files        []string // "i: path (n bytes, m lines)"
	EntryPoints  []string
	CoreModules  []string
	Architecture string
	Areas        []string
}

type SourceFile struct {
	Index   int
	Path    string
	Content string
}

type AbstractionsData struct {
	ProjectName string
	Structure   string
	CoreFiles   []SourceFile
}

type RelationshipsData struct {
	ProjectName string
	Components  []string
	Structure   string
}

type OrderData struct {
	Components           []string
	Relationships        []string
	ArchitectureOverview string
}

type OverviewData struct {
	ProjectName   string
	Structure     string
	Components    []string
	Relationships string
	FileTypes     []string
}

type ChapterData struct {
	Name                   string
	PrimaryResponsibility  string
	ImplementationApproach string
	KeyInterfaces          string
	TechnicalDetails       string
	Dependencies           string
	UsageContext           string
	Related                []string
	Sources                []SourceFile
}
