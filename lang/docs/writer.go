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
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Bucket is the part of *blob.Bucket the writer needs.
type Bucket interface {
	ReadAll(ctx context.Context, key string) ([]byte, error)
	WriteAll(ctx context.Context, key string, p []byte, opts *blob.WriterOptions) error
	Delete(ctx context.Context, key string) error
}

// Writer stores documentation trees in a bucket.
type Writer struct {
	bucket   Bucket
	location string
	closer   func() error
}

// NewWriter writes into bucket. location is the human readable root of
// the bucket, used to build the path WriteTree reports.
func NewWriter(bucket Bucket, location string) *Writer {
	return &Writer{bucket: bucket, location: location}
}

// OpenWriter opens target, either a bucket URL such as "s3://docs?region=us-east-1"
// or "mem://", or a local directory which is created when missing.
func OpenWriter(ctx context.Context, target string) (*Writer, error) {
	b, location, err := OpenBucket(ctx, target)
	if err != nil {
		return nil, err
	}
	w := NewWriter(b, location)
	w.closer = b.Close
	return w, nil
}

// OpenBucket opens target the same way OpenWriter does and returns the
// location paths are reported against.
func OpenBucket(ctx context.Context, target string) (*blob.Bucket, string, error) {
	if IsBucketURL(target) {
		b, err := blob.OpenBucket(ctx, target)
		if err != nil {
			return nil, "", utils.WrapError(err, "open bucket %s", target)
		}
		return b, target, nil
	}
	dir, err := filepath.Abs(target)
	if err != nil {
		return nil, "", utils.WrapError(err, "resolve %s", target)
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, "", utils.WrapError(err, "open directory %s", dir)
	}
	return b, dir, nil
}

// IsBucketURL reports whether target names a bucket by URL rather than a
// local directory.
func IsBucketURL(target string) bool {
	return strings.Contains(target, "://")
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer()
}

// WriteTree writes every document of t below t.Dir() and returns the
// location of that directory. Either all documents are written or, on
// failure, the bucket is put back the way it was: new documents are
// removed and overwritten ones get their previous content back.
func (w *Writer) WriteTree(ctx context.Context, t *Tree) (string, error) {
	docs, err := t.Render()
	if err != nil {
		return "", err
	}
	dir := t.Dir()
	written := make([]writtenDoc, 0, len(docs))
	for _, d := range docs {
		key := path.Join(dir, d.Name)
		prev, err := w.bucket.ReadAll(ctx, key)
		existed := err == nil
		if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			w.rollback(written)
			return "", utils.WrapError(err, "read %s", key)
		}
		if err := w.bucket.WriteAll(ctx, key, []byte(d.Content), markdownOptions()); err != nil {
			w.rollback(written)
			return "", utils.WrapError(err, "write %s", key)
		}
		written = append(written, writtenDoc{key: key, prev: prev, existed: existed})
		log.Debug("wrote %s", key)
	}
	return w.join(dir), nil
}

type writtenDoc struct {
	key     string
	prev    []byte
	existed bool
}

func markdownOptions() *blob.WriterOptions {
	return &blob.WriterOptions{ContentType: "text/markdown; charset=utf-8"}
}

func (w *Writer) rollback(keys []writtenDoc) {
	// the run context may already be cancelled
	ctx := context.Background()
	for i := len(keys) - 1; i >= 0; i-- {
		k := keys[i]
		if k.existed {
			if err := w.bucket.WriteAll(ctx, k.key, k.prev, markdownOptions()); err != nil {
				log.Error("rollback %s: restore: %v", k.key, err)
			}
			continue
		}
		if err := w.bucket.Delete(ctx, k.key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			log.Error("rollback %s: %v", k.key, err)
		}
	}
}

func (w *Writer) join(dir string) string {
	if !IsBucketURL(w.location) {
		return filepath.Join(w.location, dir)
	}
	u, err := url.Parse(w.location)
	if err != nil {
		return strings.TrimSuffix(w.location, "/") + "/" + dir
	}
	u.Path = path.Join(u.Path, dir)
	return u.String()
}
