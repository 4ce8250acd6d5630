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

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/pipeline"
	"github.com/cloudwego/agentdoc/llm/prompt"
)

type relationshipsInput struct {
	genInput
	Abstractions []Abstraction
	Structure    *Structure
}

func analyzeRelationships(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageRelationships, opts, pipeline.StepFuncs[relationshipsInput, *Relationships]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (relationshipsInput, error) {
			abs, err := pipeline.Get[[]Abstraction](st, KeyAbstractions)
			if err != nil {
				return relationshipsInput{}, err
			}
			s, err := pipeline.Get[*Structure](st, KeyStructure)
			return relationshipsInput{genInput: readGenInput(st), Abstractions: abs, Structure: s}, err
		},
		Execute: func(ctx context.Context, in relationshipsInput) (*Relationships, error) {
			reply, err := d.generate(ctx, in.genInput, prompt.Relationships, prompt.RelationshipsData{
				ProjectName: in.ProjectName,
				Components:  componentList(in.Abstractions),
				Structure:   in.Structure.Context(),
			})
			if err != nil {
				return nil, err
			}
			if err := requireKeys(reply, "summary", "architecture_overview", "component_relationships"); err != nil {
				return nil, err
			}
			rel, err := decodeReply[Relationships](reply)
			if err != nil {
				return nil, err
			}
			log.Info("Found %d component relationships and %d data flows.",
				len(rel.ComponentRelationships), len(rel.DataFlow))
			return &rel, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ relationshipsInput, rel *Relationships) (pipeline.Action, error) {
			st.Set(KeyRelationships, rel)
			return pipeline.DefaultAction, nil
		},
	})
}

// componentList renders "i: name - responsibility" lines.
func componentList(abs []Abstraction) []string {
	out := make([]string, len(abs))
	for i, a := range abs {
		out[i] = fmt.Sprintf("%d: %s - %s", i, a.Name, a.PrimaryResponsibility)
	}
	return out
}

type orderInput struct {
	genInput
	Abstractions  []Abstraction
	Relationships *Relationships
}

func orderChapters(d *Deps, opts pipeline.StepOptions) pipeline.Step {
	return pipeline.NewStep(StageOrder, opts, pipeline.StepFuncs[orderInput, []int]{
		Prepare: func(ctx context.Context, st *pipeline.Store) (orderInput, error) {
			abs, err := pipeline.Get[[]Abstraction](st, KeyAbstractions)
			if err != nil {
				return orderInput{}, err
			}
			rel := pipeline.GetOr(st, KeyRelationships, &Relationships{})
			return orderInput{genInput: readGenInput(st), Abstractions: abs, Relationships: rel}, nil
		},
		Execute: func(ctx context.Context, in orderInput) ([]int, error) {
			n := len(in.Abstractions)
			data := prompt.OrderData{
				Components:           componentList(in.Abstractions),
				ArchitectureOverview: string(in.Relationships.ArchitectureOverview),
			}
			for _, r := range in.Relationships.ComponentRelationships {
				if !inRange(r.From, n) || !inRange(r.To, n) {
					continue
				}
				data.Relationships = append(data.Relationships, fmt.Sprintf("%s -> %s (%s)",
					in.Abstractions[r.From].Name, in.Abstractions[r.To].Name, relationType(r.RelationshipType)))
			}
			reply, err := d.generate(ctx, in.genInput, prompt.Order, data)
			if err != nil {
				return nil, err
			}
			if err := requireKeys(reply, "chapter_order"); err != nil {
				return nil, err
			}
			res, err := decodeReply[chapterOrder](reply)
			if err != nil {
				return nil, err
			}
			var picked []int
			for _, v := range res.ChapterOrder {
				if i, ok := v.(int); ok {
					picked = append(picked, i)
				}
			}
			order := validIndices(picked, n)
			if len(order) == 0 {
				order = sequence(n)
			}
			log.Info("Ordered %d components for documentation.", len(order))
			return order, nil
		},
		Finalize: func(ctx context.Context, st *pipeline.Store, _ orderInput, order []int) (pipeline.Action, error) {
			st.Set(KeyChapterOrder, order)
			return pipeline.DefaultAction, nil
		},
	})
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func relationType(t Text) string {
	if t == "" {
		return "relates_to"
	}
	return string(t)
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
