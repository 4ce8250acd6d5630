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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores model replies keyed by prompt.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey is the hex sha256 of the prompt.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// FileCache keeps all entries in one JSON file, rewritten on every Set.
type FileCache struct {
	path    string
	mu      sync.Mutex
	entries map[string]string
}

// NewFileCache loads path if it exists. A corrupt file is logged and
// replaced by an empty cache.
func NewFileCache(path string) (*FileCache, error) {
	c := &FileCache{path: path, entries: map[string]string{}}
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, utils.WrapError(err, "read cache file %s", path)
	}
	if err := json.Unmarshal(bs, &c.entries); err != nil {
		log.Error("cache file %s is corrupt, starting empty: %v", path, err)
		c.entries = map[string]string{}
	}
	return c, nil
}

func (c *FileCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *FileCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	bs, err := utils.MarshalJSONIndent(c.entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, []byte(bs), 0o644); err != nil {
		return utils.WrapError(err, "write cache file %s", c.path)
	}
	return nil
}

// Len reports the number of cached entries.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache stores entries under prefix+key with an optional TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to url, e.g. redis://localhost:6379/0.
func NewRedisCache(url, prefix string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, utils.WrapError(err, "parse redis url")
	}
	if prefix == "" {
		prefix = "agentdoc:llm:"
	}
	return &RedisCache{client: redis.NewClient(opts), prefix: prefix, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
