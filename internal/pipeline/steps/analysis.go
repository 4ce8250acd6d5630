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

package steps

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/lang/analyze"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/cloudwego/agentdoc/llm/prompt"
)

var ErrNoFiles = errors.New("no files fetched")

type fetchInput struct {
	Request     source.Request
	ProjectName string
}

func fetchRepo(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageFetch, opts, pipeline.StepFuncs[fetchInput, []source.File]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (fetchInput, error) {
			filter, err := source.NewFilter(
				pipeline.GetOr[[]string](st, KeyIncludePatterns, nil),
				pipeline.GetOr[[]string](st, KeyExcludePatterns, nil),
				pipeline.GetOr(st, KeyMaxFileSize, int64(source.DefaultMaxFileSize)),
			)
			if err != nil {
				return fetchInput{}, err
			}
			req := source.Request{
				RepoURL:  pipeline.GetOr(st, KeyRepoURL, ""),
				LocalDir: pipeline.GetOr(st, KeyLocalDir, ""),
				Ref:      pipeline.GetOr(st, KeyRef, ""),
				Filter:   filter,
			}
			if req.RepoURL == "" && req.LocalDir == "" {
				return fetchInput{}, fmt.Errorf("neither %s nor %s is set", KeyRepoURL, KeyLocalDir)
			}
			return fetchInput{Request: req, ProjectName: pipeline.GetOr(st, KeyProjectName, "")}, nil
		},
		Execute: func(ctx context.Context, in fetchInput) ([]source.File, error) {
			f, err := d.NewFetcher(in.Request)
			if err != nil {
				return nil, pipeline.Permanent(err)
			}
			files, err := f.Fetch(ctx, in.Request)
			if err != nil {
				return nil, err
			}
			if len(files) == 0 {
				return nil, pipeline.Permanent(ErrNoFiles)
			}
			log.Info("Fetched %d files.", len(files))
			return files, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, in fetchInput, files []source.File) (pipeline.Action, error) {
			if in.ProjectName == "" {
				st.Set(KeyProjectName, source.ProjectName(in.Request.RepoURL, in.Request.LocalDir))
			}
			st.Set(KeyFiles, files)
			return pipeline.DefaultAction, nil
		},
	})
}

type structureInput struct {
	genInput
	Files []source.File
}

func analyzeStructure(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageStructure, opts, pipeline.StepFuncs[structureInput, *Structure]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (structureInput, error) {
			files, err := pipeline.Get[[]source.File](st, KeyFiles)
			return structureInput{genInput: readGenInput(st), Files: files}, err
		},
		Execute: func(ctx context.Context, in structureInput) (*Structure, error) {
			log.Info("Analyzing codebase structure for %s...", in.ProjectName)
			report := analyze.Analyze(in.Files)
			reply, err := d.generate(ctx, in.genInput, prompt.Structure, prompt.StructureData{
				ProjectName: in.ProjectName,
				Summary:     report.Summary(),
			})
			if err != nil {
				return nil, err
			}
			insights, err := decodeReply[StructureInsights](reply)
			if err != nil {
				return nil, err
			}
			raw, err := decodeReply[map[string]any](reply)
			if err != nil {
				return nil, err
			}
			return &Structure{Report: report, Insights: insights, Raw: raw}, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ structureInput, s *Structure) (pipeline.Action, error) {
			st.Set(KeyStructure, s)
			log.Info("Structural analysis complete. Found %d entry points and %d core modules.",
				len(s.Report.EntryPoints), len(s.Report.CoreModules))
			return pipeline.DefaultAction, nil
		},
	})
}

type coreInput struct {
	genInput
	Files     []source.File
	Structure *Structure
}

func identifyCore(d *Deps, limit *CoreLimit, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageCore, opts, pipeline.StepFuncs[coreInput, []int]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (coreInput, error) {
			files, err := pipeline.Get[[]source.File](st, KeyFiles)
			if err != nil {
				return coreInput{}, err
			}
			s, err := pipeline.Get[*Structure](st, KeyStructure)
			return coreInput{genInput: readGenInput(st), Files: files, Structure: s}, err
		},
		Execute: func(ctx context.Context, in coreInput) ([]int, error) {
			n, err := limit.Eval(len(in.Files))
			if err != nil {
				return nil, pipeline.Permanent(err)
			}
			reply, err := d.generate(ctx, in.genInput, prompt.Core, coreData(in, n))
			if err != nil {
				return nil, err
			}
			if err := requireKeys(reply, "core_files"); err != nil {
				return nil, err
			}
			sel, err := decodeReply[coreSelection](reply)
			if err != nil {
				return nil, err
			}
			var picked []int
			for _, f := range sel.CoreFiles {
				if f.Index != nil {
					picked = append(picked, *f.Index)
				}
			}
			core := validIndices(picked, len(in.Files))
			if len(core) == 0 {
				return nil, fmt.Errorf("reply selects no valid core file")
			}
			log.Info("Selected %d core files out of %d total files.", len(core), len(in.Files))
			return core, nil
		},
		// Without a usable selection, fall back to what the structural
		// analysis ranks highest.
		Fallback: func(ctx context.Context, in coreInput, err error) ([]int, error) {
			n, lerr := limit.Eval(len(in.Files))
			if lerr != nil {
				return nil, err
			}
			core := heuristicCore(in.Files, in.Structure.Report, n)
			if len(core) == 0 {
				return nil, err
			}
			log.Info("Model selection failed (%v), using %d structurally central files.", err, len(core))
			return core, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ coreInput, core []int) (pipeline.Action, error) {
			st.Set(KeyCoreFiles, core)
			return pipeline.DefaultAction, nil
		},
	})
}

func coreData(in coreInput, limit int) prompt.CoreData {
	r := in.Structure.Report
	data := prompt.CoreData{
		ProjectName:  in.ProjectName,
		Limit:        limit,
		EntryPoints:  r.EntryPoints,
		Architecture: string(in.Structure.Insights.Architecture.Description),
	}
	for i, f := range in.Files {
		var size, lines int
		if info, ok := r.Files[f.Path]; ok {
			size, lines = info.Size, info.Lines
		}
		data.Files = append(data.Files, fmt.Sprintf("%d: %s (%d bytes, %d lines)", i, f.Path, size, lines))
	}
	for _, m := range r.CoreModules {
		data.CoreModules = append(data.CoreModules, fmt.Sprintf("%s (imported by %d files)", m.Path, m.Dependents))
	}
	for _, a := range in.Structure.Insights.CoreAreas {
		name, desc := string(a.Name), string(a.Description)
		if name == "" {
			name = "Unknown"
		}
		if desc == "" {
			desc = "No description"
		}
		data.Areas = append(data.Areas, name+": "+desc)
	}
	return data
}

// heuristicCore picks entry points first, then the most imported files.
func heuristicCore(files []source.File, r *analyze.Report, limit int) []int {
	index := make(map[string]int, len(files))
	for i, f := range files {
		index[f.Path] = i
	}
	var picked []int
	for _, p := range r.EntryPoints {
		if i, ok := index[p]; ok {
			picked = append(picked, i)
		}
	}
	for _, m := range r.CoreModules {
		if i, ok := index[m.Path]; ok {
			picked = append(picked, i)
		}
	}
	out := validIndices(picked, len(files))
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// validIndices keeps the indices within [0, n), first occurrence only.
func validIndices(idx []int, n int) []int {
	seen := make(map[int]bool, len(idx))
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

type abstractionsInput struct {
	genInput
	Files     []source.File
	Core      []int
	Structure *Structure
}

func identifyAbstractions(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageAbstractions, opts, pipeline.StepFuncs[abstractionsInput, []Abstraction]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (abstractionsInput, error) {
			files, err := pipeline.Get[[]source.File](st, KeyFiles)
			if err != nil {
				return abstractionsInput{}, err
			}
			core, err := pipeline.Get[[]int](st, KeyCoreFiles)
			if err != nil {
				return abstractionsInput{}, err
			}
			s, err := pipeline.Get[*Structure](st, KeyStructure)
			return abstractionsInput{genInput: readGenInput(st), Files: files, Core: core, Structure: s}, err
		},
		Execute: func(ctx context.Context, in abstractionsInput) ([]Abstraction, error) {
			data := prompt.AbstractionsData{ProjectName: in.ProjectName, Structure: in.Structure.Context()}
			for _, i := range validIndices(in.Core, len(in.Files)) {
				data.CoreFiles = append(data.CoreFiles, prompt.SourceFile{
					Index:   i,
					Path:    in.Files[i].Path,
					Content: in.Files[i].Content,
				})
			}
			reply, err := d.generate(ctx, in.genInput, prompt.Abstractions, data)
			if err != nil {
				return nil, err
			}
			res, err := decodeReply[struct {
				Abstractions []Abstraction `yaml:"abstractions"`
			}](reply)
			if err != nil {
				return nil, err
			}
			var out []Abstraction
			for _, a := range res.Abstractions {
				a.Name = strings.TrimSpace(a.Name)
				if a.Name == "" {
					continue
				}
				a.Files = validIndices(a.Files, len(in.Files))
				out = append(out, a)
			}
			if len(out) == 0 {
				return nil, fmt.Errorf("no abstractions identified")
			}
			log.Info("Identified %d abstractions.", len(out))
			return out, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ abstractionsInput, out []Abstraction) (pipeline.Action, error) {
			st.Set(KeyAbstractions, out)
			return pipeline.DefaultAction, nil
		},
	})
}

// fileTypes lists the lower-case extensions of files, sorted.
func fileTypes(files []source.File) []string {
	set := map[string]bool{}
	for _, f := range files {
		if ext := strings.TrimPrefix(path.Ext(f.Path), "."); ext != "" {
			set[strings.ToLower(ext)] = true
		}
	}
	out := make([]string, 0, len(set))
	for ext := range set {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
