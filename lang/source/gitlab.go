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
	"sync"
	"unicode/utf8"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/xanzy/go-gitlab"
	"golang.org/x/sync/errgroup"
)

// GitLab fetches a project through the GitLab REST API.
type GitLab struct {
	client *gitlab.Client
}

var _ Fetcher = (*GitLab)(nil)

// NewGitLab creates a fetcher for the instance at baseURL (empty means
// gitlab.com).
func NewGitLab(token, baseURL string) (*GitLab, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, utils.WrapError(err, "create gitlab client")
	}
	return &GitLab{client: client}, nil
}

func (g *GitLab) Fetch(ctx context.Context, req Request) ([]File, error) {
	loc, err := ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}
	pid := loc.Project

	ref := req.Ref
	if ref == "" {
		ref = loc.Ref
	}
	if ref == "" {
		p, _, err := g.client.Projects.GetProject(pid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return nil, utils.WrapError(err, "get project %s", pid)
		}
		ref = p.DefaultBranch
	}

	var paths []string
	prefix := loc.SubPath
	opt := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100, Page: 1},
		Recursive:   gitlab.Ptr(true),
		Ref:         gitlab.Ptr(ref),
	}
	if prefix != "" {
		opt.Path = gitlab.Ptr(prefix)
	}
	for {
		nodes, resp, err := g.client.Repositories.ListTree(pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, utils.WrapError(err, "list tree %s@%s", pid, ref)
		}
		for _, n := range nodes {
			if n.Type == "blob" {
				paths = append(paths, n.Path)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	var (
		mu    sync.Mutex
		files []File
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDownloads)
	for _, full := range paths {
		rel, ok := relativeTo(full, prefix)
		if !ok || !req.Filter.Match(rel) {
			continue
		}
		eg.Go(func() error {
			bs, _, err := g.client.RepositoryFiles.GetRawFile(pid, full,
				&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ectx))
			if err != nil {
				return utils.WrapError(err, "download %s", full)
			}
			// the tree listing carries no sizes
			if !req.Filter.SizeOK(int64(len(bs))) {
				log.Debug("skip %s: %d bytes over limit", rel, len(bs))
				return nil
			}
			if !utf8.Valid(bs) {
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
	if len(paths) == 0 {
		return nil, fmt.Errorf("gitlab project %s has no files at %s", pid, ref)
	}
	sortFiles(files)
	return files, nil
}
