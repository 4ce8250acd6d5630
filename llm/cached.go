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

package llm

import (
	"context"
	"errors"

	"github.com/cloudwego/agentdoc/internal/log"
)

// CachedGenerator consults a Cache before calling the wrapped Generator.
// Cache failures never fail a call.
type CachedGenerator struct {
	Generator
	Cache Cache
}

func NewCachedGenerator(g Generator, c Cache) *CachedGenerator {
	return &CachedGenerator{Generator: g, Cache: c}
}

// Generate calls the model for prompt. With cacheable set, a cached reply
// is returned when present and a fresh reply is stored. Retried attempts
// should pass cacheable=false so a bad cached answer is not replayed.
func (g *CachedGenerator) Generate(ctx context.Context, prompt string, cacheable bool) (string, error) {
	useCache := cacheable && g.Cache != nil
	key := CacheKey(prompt)
	if useCache {
		v, err := g.Cache.Get(ctx, key)
		switch {
		case err == nil:
			log.Debug("llm cache hit %s", key[:12])
			return v, nil
		case !errors.Is(err, ErrCacheMiss):
			log.Error("llm cache get: %v", err)
		}
	}

	out, err := g.Generator.Call(ctx, prompt)
	if err != nil {
		return "", err
	}
	if g.Cache != nil {
		if err := g.Cache.Set(ctx, key, out); err != nil {
			log.Error("llm cache set: %v", err)
		}
	}
	return out, nil
}

// Call implements Generator with caching enabled.
func (g *CachedGenerator) Call(ctx context.Context, prompt string) (string, error) {
	return g.Generate(ctx, prompt, true)
}
