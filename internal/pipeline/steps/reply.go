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

package steps

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNoYAMLBlock = errors.New("reply has no ```yaml block")

// ExtractYAML returns the body of the first ```yaml fenced block of reply.
// An unterminated block runs to the end of the reply.
func ExtractYAML(reply string) (string, error) {
	_, rest, ok := strings.Cut(reply, "```yaml")
	if !ok {
		return "", ErrNoYAMLBlock
	}
	body, _, _ := strings.Cut(rest, "```")
	return strings.TrimSpace(body), nil
}

// decodeReply decodes the YAML block of reply into a T.
func decodeReply[T any](reply string) (T, error) {
	var out T
	body, err := ExtractYAML(reply)
	if err != nil {
		return out, err
	}
	if err := yaml.Unmarshal([]byte(body), &out); err != nil {
		return out, fmt.Errorf("decode yaml reply: %w", err)
	}
	return out, nil
}

// requireKeys checks that the YAML block of reply is a mapping holding
// every key of keys.
func requireKeys(reply string, keys ...string) error {
	m, err := decodeReply[map[string]any](reply)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("yaml reply is not a mapping")
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("yaml reply is missing %q", k)
		}
	}
	return nil
}
