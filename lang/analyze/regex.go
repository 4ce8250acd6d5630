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
	"regexp"
	"strings"
)

var (
	rePyImport     = regexp.MustCompile(`(?m)^\s*import\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)`)
	rePyFromImport = regexp.MustCompile(`(?m)^\s*from\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s+import`)
	rePyDef        = regexp.MustCompile(`(?m)^\s*def\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	rePyClass      = regexp.MustCompile(`(?m)^\s*class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	reJSImportFrom = regexp.MustCompile(`import\s+[^;]*?\s+from\s+['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`)
	reJSImportBare = regexp.MustCompile(`import\s+['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`)
	reJSRequire    = regexp.MustCompile(`require\(['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]\)`)
	reJSFunction   = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+([a-zA-Z_$][a-zA-Z0-9_$]*)`)
	reJSClass      = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?(?:class|interface)\s+([a-zA-Z_$][a-zA-Z0-9_$]*)`)
	reJSExport     = regexp.MustCompile(`export\s+`)

	reGoImport      = regexp.MustCompile(`import\s+(?:[a-zA-Z_.]+\s+)?["` + "`" + `]([^"` + "`" + `]+)["` + "`" + `]`)
	reGoImportBlock = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	reGoQuoted      = regexp.MustCompile(`["` + "`" + `]([^"` + "`" + `]+)["` + "`" + `]`)
	reGoFunc        = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([a-zA-Z_][a-zA-Z0-9_]*)`)
	reGoType        = regexp.MustCompile(`(?m)^\s*type\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	reJavaImport = regexp.MustCompile(`import\s+(?:static\s+)?([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\.\*)?;`)
	reJavaClass  = regexp.MustCompile(`(?:class|interface|enum)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	reJavaMethod = regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|static|final|abstract|synchronized)\s+)*[a-zA-Z_<>\[\],\s]+\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\([^;]*$`)

	reCInclude  = regexp.MustCompile(`#include\s+[<"]([^>"]+)[>"]`)
	reCFunction = regexp.MustCompile(`(?m)^\s*(?:static\s+)?(?:inline\s+)?[a-zA-Z_][a-zA-Z0-9_*\s]+\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
)

// extractRegex is the grammar-free extractor.
func extractRegex(info *FileInfo, content string) {
	exported := false
	switch info.Language {
	case Python:
		info.Imports = append(info.Imports, submatches(rePyImport, content)...)
		info.Imports = append(info.Imports, submatches(rePyFromImport, content)...)
		info.Functions = append(info.Functions, submatches(rePyDef, content)...)
		info.Classes = append(info.Classes, submatches(rePyClass, content)...)
	case JavaScript, TypeScript:
		info.Imports = append(info.Imports, submatches(reJSImportFrom, content)...)
		info.Imports = append(info.Imports, submatches(reJSImportBare, content)...)
		info.Imports = append(info.Imports, submatches(reJSRequire, content)...)
		info.Functions = append(info.Functions, submatches(reJSFunction, content)...)
		info.Classes = append(info.Classes, submatches(reJSClass, content)...)
		exported = reJSExport.MatchString(content)
	case Go:
		info.Imports = append(info.Imports, submatches(reGoImport, content)...)
		for _, block := range submatches(reGoImportBlock, content) {
			info.Imports = append(info.Imports, submatches(reGoQuoted, block)...)
		}
		info.Functions = append(info.Functions, submatches(reGoFunc, content)...)
		info.Classes = append(info.Classes, submatches(reGoType, content)...)
	case Java:
		info.Imports = append(info.Imports, submatches(reJavaImport, content)...)
		info.Classes = append(info.Classes, submatches(reJavaClass, content)...)
		for _, m := range submatches(reJavaMethod, content) {
			if !javaKeywords[m] {
				info.Functions = append(info.Functions, m)
			}
		}
	case C, Cpp:
		info.Imports = append(info.Imports, submatches(reCInclude, content)...)
		for _, m := range submatches(reCFunction, content) {
			if !cKeywords[m] {
				info.Functions = append(info.Functions, m)
			}
		}
		if strings.Contains(content, "int main(") {
			info.HasMain = true
		}
	}
	finish(info, content, exported)
}

var javaKeywords = map[string]bool{"if": true, "for": true, "while": true, "switch": true, "catch": true, "return": true, "new": true}

var cKeywords = map[string]bool{"if": true, "for": true, "while": true, "switch": true, "return": true, "sizeof": true}

func submatches(re *regexp.Regexp, s string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if len(m) > 1 && m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}
