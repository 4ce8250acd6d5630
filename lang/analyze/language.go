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
	"path"
	"strings"
)

type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Go         Language = "go"
	Java       Language = "java"
	C          Language = "c"
	Cpp        Language = "cpp"
	Rust       Language = "rust"
	Ruby       Language = "ruby"
	PHP        Language = "php"
	Swift      Language = "swift"
	Kotlin     Language = "kotlin"
	Unknown    Language = "unknown"
)

var extLanguages = map[string]Language{
	".py":    Python,
	".pyi":   Python,
	".pyx":   Python,
	".js":    JavaScript,
	".jsx":   JavaScript,
	".ts":    TypeScript,
	".tsx":   TypeScript,
	".go":    Go,
	".java":  Java,
	".c":     C,
	".h":     C,
	".cpp":   Cpp,
	".cc":    Cpp,
	".cxx":   Cpp,
	".rs":    Rust,
	".rb":    Ruby,
	".php":   PHP,
	".swift": Swift,
	".kt":    Kotlin,
}

// DetectLanguage maps a file extension to its language.
func DetectLanguage(p string) Language {
	if l, ok := extLanguages[strings.ToLower(path.Ext(p))]; ok {
		return l
	}
	return Unknown
}

// extract fills imports, exports and declarations. Tree-sitter is used
// where a grammar is available; otherwise, or when parsing fails, regular
// expressions.
func extract(info *FileInfo, src []byte) {
	switch info.Language {
	case Python, JavaScript, TypeScript, Go, Java:
		if err := extractTreeSitter(info, src); err == nil {
			return
		}
		extractRegex(info, string(src))
	case C, Cpp:
		extractRegex(info, string(src))
	}
}

func isExported(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
