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

// Package source fetches the files of a code repository from a local
// directory, GitHub or GitLab.
package source

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// File is one fetched source file. Path is relative and slash separated.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Request describes what to fetch. Exactly one of RepoURL and LocalDir is
// set.
type Request struct {
	RepoURL  string
	LocalDir string
	// Ref is a branch, tag or commit. Empty means the default branch, or
	// the ref embedded in RepoURL.
	Ref    string
	Filter *Filter
}

// Fetcher returns the files matching the request's filter, sorted by path.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]File, error)
}

// Options carries credentials for remote fetchers.
type Options struct {
	GitHubToken string
	GitLabToken string
	// GitLabURL is the GitLab instance, default https://gitlab.com.
	GitLabURL string
	// GitHubBaseURL overrides the GitHub API endpoint.
	GitHubBaseURL string
}

// New picks the fetcher for req.
func New(req Request, opts Options) (Fetcher, error) {
	if req.LocalDir != "" {
		return &Local{}, nil
	}
	loc, err := ParseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}
	switch {
	case loc.Host == "github.com" || strings.HasPrefix(loc.Host, "github."):
		return NewGitHub(opts.GitHubToken, opts.GitHubBaseURL)
	case strings.Contains(loc.Host, "gitlab"):
		base := opts.GitLabURL
		if base == "" || !strings.Contains(base, loc.Host) {
			base = loc.Scheme + "://" + loc.Host
		}
		return NewGitLab(opts.GitLabToken, base)
	default:
		return nil, fmt.Errorf("unsupported repository host %q", loc.Host)
	}
}

// RepoLocation is a parsed repository URL.
type RepoLocation struct {
	Scheme string
	Host   string
	// Project is "owner/repo", or "group/subgroup/repo" on GitLab.
	Project string
	Ref     string
	// SubPath restricts fetching to a directory of the repository.
	SubPath string
}

// ParseRepoURL understands
//
//	https://github.com/owner/repo(.git)
//	https://github.com/owner/repo/tree/<ref>/<path>
//	https://gitlab.com/group/sub/repo/-/tree/<ref>/<path>
//	git@github.com:owner/repo.git
func ParseRepoURL(raw string) (RepoLocation, error) {
	var loc RepoLocation
	if raw == "" {
		return loc, fmt.Errorf("empty repository url")
	}
	if strings.HasPrefix(raw, "git@") {
		host, path, ok := strings.Cut(strings.TrimPrefix(raw, "git@"), ":")
		if !ok {
			return loc, fmt.Errorf("invalid SSH URL %q", raw)
		}
		raw = "https://" + host + "/" + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return loc, fmt.Errorf("invalid repository url %q: %w", raw, err)
	}
	if u.Host == "" {
		return loc, fmt.Errorf("invalid repository url %q: missing host", raw)
	}
	loc.Scheme, loc.Host = u.Scheme, u.Host
	if loc.Scheme == "" {
		loc.Scheme = "https"
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var project []string
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		if p == "-" {
			continue
		}
		if p == "tree" || p == "blob" {
			if i+1 < len(parts) {
				loc.Ref = parts[i+1]
				loc.SubPath = strings.Join(parts[i+2:], "/")
			}
			break
		}
		project = append(project, p)
	}
	if len(project) < 2 {
		return loc, fmt.Errorf("invalid repository url %q: want owner/repo", raw)
	}
	project[len(project)-1] = strings.TrimSuffix(project[len(project)-1], ".git")
	loc.Project = strings.Join(project, "/")
	return loc, nil
}

// ProjectName derives a project name: the last URL segment without
// ".git", or the base name of the local directory.
func ProjectName(repoURL, localDir string) string {
	if repoURL != "" {
		trimmed := strings.TrimRight(repoURL, "/")
		seg := trimmed[strings.LastIndex(trimmed, "/")+1:]
		return strings.ReplaceAll(seg, ".git", "")
	}
	abs, err := filepath.Abs(localDir)
	if err != nil {
		abs = localDir
	}
	return filepath.Base(abs)
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
