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

package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/fsnotify/fsnotify"
)

// WatchDir watches dir and all its subdirectories, calling fn for every
// event until ctx is done. Hidden directories are skipped. New
// subdirectories are added as they appear.
func WatchDir(ctx context.Context, dir string, fn func(op fsnotify.Op, file string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return WrapError(err, "new watcher")
	}
	if err := addRecursive(w, dir); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create != 0 {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						if err := addRecursive(w, ev.Name); err != nil {
							log.Error("watch %s: %v", ev.Name, err)
						}
					}
				}
				fn(ev.Op, ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watch %s: %v", dir, err)
			}
		}
	}()
	return nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return WrapError(w.Add(path), "watch %s", path)
	})
}

// Debounce returns a trigger that calls fn once no trigger happened for d.
// fn runs on the debouncer's goroutine, which exits with ctx.
func Debounce(ctx context.Context, d time.Duration, fn func()) func() {
	events := make(chan struct{}, 1)
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case <-events:
				if timer == nil {
					timer = time.NewTimer(d)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(d)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				fn()
			}
		}
	}()
	return func() {
		select {
		case events <- struct{}{}:
		default:
		}
	}
}
