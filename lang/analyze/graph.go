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

package analyze

import (
	"path"
	"strings"
)

// jsSuffixes are tried, in order, when resolving a relative JS/TS import.
var jsSuffixes = []string{"", ".js", ".jsx", ".ts", ".tsx", "/index.js", "/index.ts"}

// buildDependencies maps each file to the files it imports. Imports are
// resolved by dotted path ("pkg.mod" -> pkg/mod.py), by base name, by Go
// import path under a go.mod module, and by relative JS/TS path.
func buildDependencies(files map[string]*FileInfo, paths []string, manifests []Manifest) map[string][]string {
	exists := make(map[string]bool, len(paths))
	byModule := map[string]string{}
	for _, p := range paths {
		exists[p] = true
		byModule[strings.TrimSuffix(strings.ReplaceAll(p, "/", "."), ".py")] = p
		byModule[strings.TrimSuffix(path.Base(p), path.Ext(p))] = p
	}
	goPkgs := goPackages(files, paths, manifests)

	deps := map[string][]string{}
	for _, p := range paths {
		info := files[p]
		var targets []string
		for _, imp := range info.Imports {
			for _, t := range resolve(p, imp, info.Language, byModule, goPkgs, exists) {
				if t != p {
					targets = append(targets, t)
				}
			}
		}
		if targets = uniqueSorted(targets); len(targets) > 0 {
			deps[p] = targets
		}
	}
	return deps
}

func resolve(from, imp string, lang Language, byModule map[string]string, goPkgs map[string][]string, exists map[string]bool) []string {
	if lang == Go {
		if fs, ok := goPkgs[imp]; ok {
			return fs
		}
	}
	if (lang == JavaScript || lang == TypeScript) && strings.HasPrefix(imp, ".") {
		base := path.Join(path.Dir(from), imp)
		for _, s := range jsSuffixes {
			if exists[base+s] {
				return []string{base + s}
			}
		}
		return nil
	}
	if t, ok := byModule[imp]; ok {
		return []string{t}
	}
	return nil
}

// goPackages maps Go import paths of modules declared by go.mod files to
// the non-test files of each package directory.
func goPackages(files map[string]*FileInfo, paths []string, manifests []Manifest) map[string][]string {
	out := map[string][]string{}
	for _, m := range manifests {
		if m.Kind != ManifestGoMod || m.Module == "" {
			continue
		}
		root := path.Dir(m.Path)
		for _, p := range paths {
			if files[p].Language != Go || strings.HasSuffix(p, "_test.go") {
				continue
			}
			rel, ok := relDir(root, path.Dir(p))
			if !ok {
				continue
			}
			ip := m.Module
			if rel != "" {
				ip += "/" + rel
			}
			out[ip] = append(out[ip], p)
		}
	}
	return out
}

func relDir(root, dir string) (string, bool) {
	switch {
	case root == ".":
		if dir == "." {
			return "", true
		}
		return dir, true
	case dir == root:
		return "", true
	case strings.HasPrefix(dir, root+"/"):
		return strings.TrimPrefix(dir, root+"/"), true
	}
	return "", false
}
