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
	"fmt"
	"os"
	"text/template"
)

type Prompt interface {
	String() string
}

// FilePrompt is a prompt loaded from disk, either verbatim or as a Go
// template executed with Data.
type FilePrompt struct {
	Type PromptType `json:"type" yaml:"type"`
	Path string     `json:"path" yaml:"path"`
	Data any        `json:"data" yaml:"data"`
	text string
}

type PromptType string

const (
	PromptTypePlainText  PromptType = "text"
	PromptTypeDummy      PromptType = "dummy"
	PromptTypeGoTemplate PromptType = "go-template"
)

func (p *FilePrompt) String() string {
	return p.text
}

// NewFilePrompt reads c.Path according to c.Type. Templates are rendered
// once, at load time.
func NewFilePrompt(c *FilePrompt) (Prompt, error) {
	switch c.Type {
	case PromptTypePlainText, "":
		bs, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, err
		}
		c.text = string(bs)
		return c, nil
	case PromptTypeDummy:
		return TextPrompt(""), nil
	case PromptTypeGoTemplate:
		tpl, err := template.New(c.Path).Funcs(funcs).ParseFiles(c.Path)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := tpl.ExecuteTemplate(&buf, templateBase(c.Path), c.Data); err != nil {
			return nil, err
		}
		c.text = buf.String()
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported prompt type %q", c.Type)
	}
}

type TextPrompt string

func (p TextPrompt) String() string {
	return string(p)
}

func NewTextPrompt(content string) Prompt {
	return TextPrompt(content)
}
