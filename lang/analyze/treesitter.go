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
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Capture names used by the queries below:
// @import, @function, @class, @export, and @callee/@require for
// CommonJS require calls.
const (
	goQuery = `
(import_spec path: (_) @import)
(function_declaration name: (identifier) @function)
(method_declaration name: (field_identifier) @function)
(type_spec name: (type_identifier) @class)
`
	pythonQuery = `
(import_statement name: (dotted_name) @import)
(import_statement name: (aliased_import name: (dotted_name) @import))
(import_from_statement module_name: (dotted_name) @import)
(import_from_statement module_name: (relative_import) @import)
(function_definition name: (identifier) @function)
(class_definition name: (identifier) @class)
`
	javascriptQuery = `
(import_statement source: (string) @import)
(call_expression function: (identifier) @callee arguments: (arguments (string) @require))
(function_declaration name: (identifier) @function)
(class_declaration name: (identifier) @class)
(export_statement) @export
`
	typescriptQuery = `
(import_statement source: (string) @import)
(call_expression function: (identifier) @callee arguments: (arguments (string) @require))
(function_declaration name: (identifier) @function)
(class_declaration name: (type_identifier) @class)
(interface_declaration name: (type_identifier) @class)
(export_statement) @export
`
	javaQuery = `
(import_declaration (scoped_identifier) @import)
(import_declaration (identifier) @import)
(class_declaration name: (identifier) @class)
(interface_declaration name: (identifier) @class)
(enum_declaration name: (identifier) @class)
(method_declaration name: (identifier) @function)
`
)

type grammar struct {
	lang  func() *sitter.Language
	query string

	once sync.Once
	q    *sitter.Query
	err  error
}

func (g *grammar) compile() (*sitter.Query, error) {
	g.once.Do(func() {
		g.q, g.err = sitter.NewQuery([]byte(g.query), g.lang())
	})
	return g.q, g.err
}

var (
	goGrammar     = &grammar{lang: golang.GetLanguage, query: goQuery}
	pythonGrammar = &grammar{lang: python.GetLanguage, query: pythonQuery}
	jsGrammar     = &grammar{lang: javascript.GetLanguage, query: javascriptQuery}
	tsGrammar     = &grammar{lang: typescript.GetLanguage, query: typescriptQuery}
	tsxGrammar    = &grammar{lang: tsx.GetLanguage, query: typescriptQuery}
	javaGrammar   = &grammar{lang: java.GetLanguage, query: javaQuery}
)

func grammarFor(info *FileInfo) *grammar {
	switch info.Language {
	case Go:
		return goGrammar
	case Python:
		return pythonGrammar
	case JavaScript:
		return jsGrammar
	case TypeScript:
		if strings.EqualFold(path.Ext(info.Path), ".tsx") {
			return tsxGrammar
		}
		return tsGrammar
	case Java:
		return javaGrammar
	}
	return nil
}

func extractTreeSitter(info *FileInfo, src []byte) error {
	g := grammarFor(info)
	if g == nil {
		return fmt.Errorf("no grammar for %s", info.Language)
	}
	q, err := g.compile()
	if err != nil {
		return err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.lang())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return err
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	exported := false
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var callee, required string
		for _, c := range m.Captures {
			text := c.Node.Content(src)
			switch q.CaptureNameForId(c.Index) {
			case "import":
				if imp := cleanImport(info.Language, text); imp != "" {
					info.Imports = append(info.Imports, imp)
				}
			case "function":
				info.Functions = append(info.Functions, text)
			case "class":
				info.Classes = append(info.Classes, text)
			case "export":
				exported = true
			case "callee":
				callee = text
			case "require":
				required = unquote(text)
			}
		}
		if callee == "require" && required != "" {
			info.Imports = append(info.Imports, required)
		}
	}

	finish(info, string(src), exported)
	return nil
}

// finish derives HasMain and Exports from the extracted declarations.
func finish(info *FileInfo, content string, exported bool) {
	for _, f := range info.Functions {
		if f == "main" {
			info.HasMain = true
		}
	}
	switch info.Language {
	case Python:
		if strings.Contains(content, `__name__ == "__main__"`) || strings.Contains(content, `__name__ == '__main__'`) {
			info.HasMain = true
		}
	case Go:
		for _, n := range append(append([]string{}, info.Functions...), info.Classes...) {
			if isExported(n) {
				info.Exports = append(info.Exports, n)
			}
		}
	case JavaScript, TypeScript:
		if exported {
			if strings.Contains(content, "export default") {
				info.Exports = append(info.Exports, "default")
			} else {
				info.Exports = append(info.Exports, "named")
			}
		}
	}
}

func cleanImport(lang Language, text string) string {
	switch lang {
	case Python:
		// relative imports keep only the module part, like "from .utils import x"
		return strings.TrimLeft(text, ".")
	case Go, JavaScript, TypeScript:
		return unquote(text)
	}
	return text
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
