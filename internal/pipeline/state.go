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
	"sync"
	"time"
)

// StepRecord is an immutable log entry for one Execute call or fallback.
type StepRecord struct {
	StepName string
	Index    int // batch item index, -1 for single steps
	Attempt  int
	Status   StepStatus
	Error    string
	Time     time.Time
}

// StepStatus is the outcome of an Execute call.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepFailed   StepStatus = "failed"
	StepRetry    StepStatus = "retry"
	StepFallback StepStatus = "fallback"
)

// RunReport summarises one Flow run.
type RunReport struct {
	Flow       string
	Path       []string // visited steps in order
	HaltStep   string
	HaltAction Action
	History    []StepRecord
	Started    time.Time
	Finished   time.Time
}

// Visits returns the number of step visits.
func (r *RunReport) Visits() int {
	return len(r.Path)
}

// Attempts returns how many times Execute ran for step, over all items
// and visits.
func (r *RunReport) Attempts(step string) int {
	n := 0
	for _, rec := range r.History {
		if rec.StepName == step && rec.Status != StepFallback {
			n++
		}
	}
	return n
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

type history struct {
	mu      sync.Mutex
	records []StepRecord
}

func (h *history) add(rec StepRecord) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

func (h *history) list() []StepRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StepRecord, len(h.records))
	copy(out, h.records)
	return out
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
