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
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDownloads bounds blob requests per fetch.
const maxConcurrentDownloads = 8

// GitHub fetches a repository through the GitHub REST API: one recursive
// tree listing, then one raw blob request per selected file.
type GitHub struct {
	client *github.Client
}

var _ Fetcher = (*GitHub)(nil)

// NewGitHub creates a fetcher. token may be empty for public repositories;
// baseURL overrides the API endpoint (GitHub Enterprise, tests).
func NewGitHub(token, baseURL string) (*GitHub, error) {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API url: %w", err)
		}
		client.BaseURL = u
	}
	return &GitHub{client: client}, nil
}

func (g *GitHub) Fetch(ctx context.Context, req Request) ([]File, error) {
	loc, err := ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}
	owner, repo, ok := strings.Cut(loc.Project, "/")
	if !ok {
		return nil, fmt.Errorf("invalid GitHub project %q", loc.Project)
	}

	ref := req.Ref
	if ref == "" {
		ref = loc.Ref
	}
	if ref == "" {
		r, _, err := g.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return nil, utils.WrapError(err, "get repository %s", loc.Project)
		}
		ref = r.GetDefaultBranch()
	}

	tree, _, err := g.client.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, utils.WrapError(err, "list tree %s@%s", loc.Project, ref)
	}
	if tree.GetTruncated() {
		log.Info("GitHub tree of %s is truncated, some files will be missing", loc.Project)
	}

	prefix := strings.Trim(loc.SubPath, "/")
	var (
		mu    sync.Mutex
		files []File
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDownloads)
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		rel, ok := relativeTo(e.GetPath(), prefix)
		if !ok || !req.Filter.Match(rel) {
			continue
		}
		if !req.Filter.SizeOK(int64(e.GetSize())) {
			log.Debug("skip %s: %d bytes over limit", rel, e.GetSize())
			continue
		}
		sha := e.GetSHA()
		eg.Go(func() error {
			bs, _, err := g.client.Git.GetBlobRaw(ectx, owner, repo, sha)
			if err != nil {
				return utils.WrapError(err, "download %s", rel)
			}
			if !utf8.Valid(bs) {
				log.Debug("skip %s: not utf-8", rel)
				return nil
			}
			mu.Lock()
			files = append(files, File{Path: rel, Content: string(bs)})
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sortFiles(files)
	return files, nil
}

// relativeTo strips the directory prefix from p; ok is false when p lies
// outside it.
func relativeTo(p, prefix string) (string, bool) {
	if prefix == "" {
		return p, true
	}
	if !strings.HasPrefix(p, prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, prefix+"/"), true
}
