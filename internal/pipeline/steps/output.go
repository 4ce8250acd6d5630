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
	"fmt"
	"strings"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/lang/source"
	"github.com/cloudwego/agentdoc/llm/prompt"
	"gopkg.in/yaml.v3"
)

type overviewInput struct {
	genInput
	Files         []source.File
	Structure     *Structure
	Abstractions  []Abstraction
	Relationships *Relationships
}

func writeOverview(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageOverview, opts, pipeline.StepFuncs[overviewInput, string]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (overviewInput, error) {
			files, err := pipeline.Get[[]source.File](st, KeyFiles)
			if err != nil {
				return overviewInput{}, err
			}
			s, err := pipeline.Get[*Structure](st, KeyStructure)
			if err != nil {
				return overviewInput{}, err
			}
			return overviewInput{
				genInput:      readGenInput(st),
				Files:         files,
				Structure:     s,
				Abstractions:  pipeline.GetOr[[]Abstraction](st, KeyAbstractions, nil),
				Relationships: pipeline.GetOr(st, KeyRelationships, &Relationships{}),
			}, nil
		},
		Execute: func(ctx context.Context, in overviewInput) (string, error) {
			rel, err := yaml.Marshal(in.Relationships)
			if err != nil {
				return "", pipeline.Permanent(err)
			}
			data := prompt.OverviewData{
				ProjectName:   in.ProjectName,
				Structure:     in.Structure.Context(),
				Relationships: string(rel),
				FileTypes:     fileTypes(in.Files),
			}
			for _, a := range in.Abstractions {
				data.Components = append(data.Components, fmt.Sprintf("- **%s**: %s", a.Name, a.PrimaryResponsibility))
			}
			out, err := d.generate(ctx, in.genInput, prompt.Overview, data)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "", fmt.Errorf("empty project overview")
			}
			return out, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ overviewInput, out string) (pipeline.Action, error) {
			st.Set(KeyProjectOverview, out)
			return pipeline.DefaultAction, nil
		},
	})
}

type chapterItem struct {
	genInput
	Component int
	Data      prompt.ChapterData
}

func writeChapters(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewBatchStep(StageChapters, opts, pipeline.BatchFuncs[chapterItem, string]{
		Prepare: func(ctx context.Context, st *pipeline.Store) ([]chapterItem, error) {
			order, err := pipeline.Get[[]int](st, KeyChapterOrder)
			if err != nil {
				return nil, err
			}
			abs, err := pipeline.Get[[]Abstraction](st, KeyAbstractions)
			if err != nil {
				return nil, err
			}
			files, err := pipeline.Get[[]source.File](st, KeyFiles)
			if err != nil {
				return nil, err
			}
			rel := pipeline.GetOr(st, KeyRelationships, &Relationships{})
			gi := readGenInput(st)

			items := make([]chapterItem, 0, len(order))
			for _, idx := range order {
				if !inRange(idx, len(abs)) {
					return nil, fmt.Errorf("chapter order refers to unknown abstraction %d", idx)
				}
				items = append(items, chapterItem{
					genInput:  gi,
					Component: idx,
					Data:      chapterData(idx, abs, rel, files),
				})
			}
			return items, nil
		},
		Execute: func(ctx context.Context, it chapterItem) (string, error) {
			log.Info("Writing chapter for %s...", it.Data.Name)
			out, err := d.generate(ctx, it.genInput, prompt.Chapter, it.Data)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "", fmt.Errorf("empty chapter for %s", it.Data.Name)
			}
			return out, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, items []chapterItem, results []pipeline.ItemResult[string]) (pipeline.Action, error) {
			chapters := make([]string, len(results))
			for i, r := range results {
				chapters[i] = r.Value
			}
			var failures []ChapterFailure
			for _, r := range pipeline.Failed(results) {
				name := items[r.Index].Data.Name
				failures = append(failures, ChapterFailure{Component: name, Attempts: r.Attempts, Error: r.Err.Error()})
				chapters[r.Index] = missingChapter(name)
				log.Error("chapter %s failed after %d attempt(s): %v", name, r.Attempts, r.Err)
			}
			st.Set(KeyChapters, chapters)
			st.Set(KeyChapterFailures, failures)
			return pipeline.DefaultAction, nil
		},
	})
}

func missingChapter(name string) string {
	return fmt.Sprintf("# %s\n\nDocumentation for this component could not be generated.\n", name)
}

func chapterData(idx int, abs []Abstraction, rel *Relationships, files []source.File) prompt.ChapterData {
	a := abs[idx]
	data := prompt.ChapterData{
		Name:                   a.Name,
		PrimaryResponsibility:  string(a.PrimaryResponsibility),
		ImplementationApproach: string(a.ImplementationApproach),
		KeyInterfaces:          string(a.KeyInterfaces),
		TechnicalDetails:       string(a.TechnicalDetails),
		Dependencies:           string(a.Dependencies),
		UsageContext:           string(a.UsageContext),
	}
	for _, r := range rel.ComponentRelationships {
		var other int
		switch idx {
		case r.From:
			other = r.To
		case r.To:
			other = r.From
		default:
			continue
		}
		if !inRange(other, len(abs)) {
			continue
		}
		desc := string(r.Description)
		if desc == "" {
			desc = "No description"
		}
		data.Related = append(data.Related, fmt.Sprintf("- **%s**: %s", abs[other].Name, desc))
	}
	for _, fi := range a.Files {
		if inRange(fi, len(files)) {
			data.Sources = append(data.Sources, prompt.SourceFile{Index: fi, Path: files[fi].Path, Content: files[fi].Content})
		}
	}
	return data
}

type combineResult struct {
	Dir       string
	Documents []string
}

func combineTutorial(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageCombine, opts, pipeline.StepFuncs[*docs.Tree, combineResult]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (*docs.Tree, error) {
			abs, err := pipeline.Get[[]Abstraction](st, KeyAbstractions)
			if err != nil {
				return nil, err
			}
			order, err := pipeline.Get[[]int](st, KeyChapterOrder)
			if err != nil {
				return nil, err
			}
			chapters, err := pipeline.Get[[]string](st, KeyChapters)
			if err != nil {
				return nil, err
			}
			if len(chapters) != len(order) {
				return nil, fmt.Errorf("%d chapters for %d ordered components", len(chapters), len(order))
			}
			rel := pipeline.GetOr(st, KeyRelationships, &Relationships{})
			return buildTree(pipeline.GetOr(st, KeyProjectName, "Unknown Project"),
				pipeline.GetOr(st, KeyProjectOverview, ""), abs, rel, order, chapters), nil
		},
		Execute: func(ctx context.Context, t *docs.Tree) (combineResult, error) {
			rendered, err := t.Render()
			if err != nil {
				return combineResult{}, pipeline.Permanent(err)
			}
			dir, err := d.Writer.WriteTree(ctx, t)
			if err != nil {
				return combineResult{}, err
			}
			res := combineResult{Dir: dir}
			for _, doc := range rendered {
				res.Documents = append(res.Documents, doc.Name)
			}
			return res, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ *docs.Tree, res combineResult) (pipeline.Action, error) {
			st.Set(KeyFinalOutputDir, res.Dir)
			st.Set(KeyDocuments, res.Documents)
			log.Info("Documentation generated in %s (%d files).", res.Dir, len(res.Documents))
			return pipeline.DefaultAction, nil
		},
	})
}

func buildTree(project, overview string, abs []Abstraction, rel *Relationships, order []int, chapters []string) *docs.Tree {
	t := &docs.Tree{
		ProjectName:  project,
		Overview:     overview,
		Summary:      string(rel.Summary),
		Architecture: string(rel.ArchitectureOverview),
	}
	for _, a := range abs {
		t.Components = append(t.Components, docs.Component{Name: a.Name, Responsibility: string(a.PrimaryResponsibility)})
	}
	for _, r := range rel.ComponentRelationships {
		t.Edges = append(t.Edges, docs.Edge{From: r.From, To: r.To, Type: string(r.RelationshipType)})
	}
	for _, f := range rel.DataFlow {
		t.DataFlows = append(t.DataFlows, f.Components)
	}
	for i, idx := range order {
		t.Chapters = append(t.Chapters, docs.Chapter{Component: idx, Content: chapters[i]})
	}
	return t
}
