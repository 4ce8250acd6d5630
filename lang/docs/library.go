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

package docs

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/cloudwego/agentdoc/internal/utils"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

var ErrNotFound = errors.New("document not found")

// Library reads documentation trees back from a bucket. Each top-level
// directory of the bucket is one project.
type Library struct {
	bucket *blob.Bucket
}

func NewLibrary(bucket *blob.Bucket) *Library {
	return &Library{bucket: bucket}
}

// Projects lists the project directories that contain an index.
func (l *Library) Projects(ctx context.Context) ([]string, error) {
	dirs, err := l.list(ctx, "", true)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range dirs {
		name := strings.TrimSuffix(d, "/")
		ok, err := l.bucket.Exists(ctx, path.Join(name, IndexFile))
		if err != nil {
			return nil, utils.WrapError(err, "stat %s", name)
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// Docs lists the markdown documents of project, sorted by name.
func (l *Library) Docs(ctx context.Context, project string) ([]string, error) {
	if !validSegment(project) {
		return nil, ErrNotFound
	}
	keys, err := l.list(ctx, project+"/", false)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".md") {
			out = append(out, path.Base(k))
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Read returns the content of one document.
func (l *Library) Read(ctx context.Context, project, name string) (string, error) {
	if !validSegment(project) || !validSegment(name) {
		return "", ErrNotFound
	}
	data, err := l.bucket.ReadAll(ctx, path.Join(project, name))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", ErrNotFound
		}
		return "", utils.WrapError(err, "read %s/%s", project, name)
	}
	return string(data), nil
}

func (l *Library) list(ctx context.Context, prefix string, dirs bool) ([]string, error) {
	it := l.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var out []string
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, utils.WrapError(err, "list %q", prefix)
		}
		if obj.IsDir == dirs {
			out = append(out, obj.Key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// validSegment rejects empty names and anything that could escape the
// bucket root.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
