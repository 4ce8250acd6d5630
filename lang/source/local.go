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

package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
)

// Local reads files from a directory on disk.
type Local struct{}

var _ Fetcher = (*Local)(nil)

func (l *Local) Fetch(ctx context.Context, req Request) ([]File, error) {
	root := req.LocalDir
	info, err := os.Stat(root)
	if err != nil {
		return nil, utils.WrapError(err, "stat %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if req.Filter.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !req.Filter.Match(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !req.Filter.SizeOK(fi.Size()) {
			log.Debug("skip %s: %d bytes over limit", rel, fi.Size())
			return nil
		}
		bs, err := os.ReadFile(p)
		if err != nil {
			log.Info("skip %s: %v", rel, err)
			return nil
		}
		if !utf8.Valid(bs) {
			log.Debug("skip %s: not utf-8", rel)
			return nil
		}
		files = append(files, File{Path: rel, Content: string(bs)})
		return nil
	})
	if err != nil {
		return nil, utils.WrapError(err, "walk %s", root)
	}
	sortFiles(files)
	return files, nil
}
