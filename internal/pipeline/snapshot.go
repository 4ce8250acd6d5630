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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Snapshot is an immutable copy of a Store taken at one point of a run.
// Values are copied shallowly; steps overwrite keys instead of mutating the
// values they hold, so a snapshot stays valid after later steps run.
type Snapshot struct {
	Hash   string // hex-encoded sha256 of the JSON encoding of Values
	Values map[string]any
}

// Snapshot copies the current store content.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	values := make(map[string]any, len(s.data))
	for k, v := range s.data {
		values[k] = v
	}
	s.mu.RUnlock()
	return &Snapshot{
		Hash:   hashValues(values),
		Values: values,
	}
}

// Restore creates a fresh store holding the snapshot's values.
func (sn *Snapshot) Restore() *Store {
	return NewStore(sn.Values)
}

func hashValues(values map[string]any) string {
	// encoding/json sorts map keys, so equal stores hash equally.
	raw, err := json.Marshal(values)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", values))
	}
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}
