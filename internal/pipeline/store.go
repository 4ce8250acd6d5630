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

package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

// Store is the single shared state of a run. Steps read it in Prepare and
// write it in Finalize. Keys are never deleted; they can only be added or
// overwritten.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore creates a store seeded with a copy of seed.
func NewStore(seed map[string]any) *Store {
	data := make(map[string]any, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &Store{data: data}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Get reads key from s as a T.
func Get[T any](s *Store, key string) (T, error) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T, want %T", ErrKeyType, key, v, zero)
	}
	return t, nil
}

// GetOr reads key from s as a T, returning def if it is absent or of
// another type.
func GetOr[T any](s *Store, key string, def T) T {
	v, err := Get[T](s, key)
	if err != nil {
		return def
	}
	return v
}
