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
	"strings"

	"github.com/cloudwego/agentdoc/lang/analyze"
	"gopkg.in/yaml.v3"
)

// Text is a free-form model answer. Models sometimes answer a string field
// with a list or a mapping; those are flattened instead of failing the
// decode.
type Text string

func (t *Text) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*t = Text(n.Value)
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			var s Text
			if err := s.UnmarshalYAML(c); err != nil {
				return err
			}
			parts = append(parts, string(s))
		}
		*t = Text(strings.Join(parts, ", "))
	case yaml.AliasNode:
		return t.UnmarshalYAML(n.Alias)
	default:
		bs, err := yaml.Marshal(n)
		if err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(string(bs)))
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Structure is the structural report plus the model's reading of it.
type Structure struct {
	Report   *analyze.Report   `json:"report"`
	Insights StructureInsights `json:"insights"`
	// Raw is the decoded architecture reply, passed on as context.
	Raw map[string]any `json:"raw"`
}

// Context is the structure description given to later prompts.
func (s *Structure) Context() string {
	return s.Report.Context(s.Raw)
}

type StructureInsights struct {
	Architecture struct {
		Type        Text `yaml:"type" json:"type"`
		Pattern     Text `yaml:"pattern" json:"pattern"`
		Description Text `yaml:"description" json:"description"`
	} `yaml:"architecture" json:"architecture"`
	KeyDirectories []struct {
		Name       Text `yaml:"name" json:"name"`
		Importance Text `yaml:"importance" json:"importance"`
		Purpose    Text `yaml:"purpose" json:"purpose"`
	} `yaml:"key_directories" json:"key_directories"`
	TechnologyStack []Text `yaml:"technology_stack" json:"technology_stack"`
	EntryPoints     []Text `yaml:"entry_points" json:"entry_points"`
	CoreAreas       []struct {
		Name        Text   `yaml:"name" json:"name"`
		Files       []Text `yaml:"files" json:"files"`
		Description Text   `yaml:"description" json:"description"`
	} `yaml:"core_areas" json:"core_areas"`
}

type coreSelection struct {
	CoreFiles []struct {
		Index      *int `yaml:"index"`
		Path       Text `yaml:"path"`
		Importance Text `yaml:"importance"`
		Reason     Text `yaml:"reason"`
	} `yaml:"core_files"`
}

// Abstraction is one technical component identified in the core files.
type Abstraction struct {
	Name                   string `yaml:"name" json:"name"`
	PrimaryResponsibility  Text   `yaml:"primary_responsibility" json:"primary_responsibility"`
	ImplementationApproach Text   `yaml:"implementation_approach" json:"implementation_approach"`
	KeyInterfaces          Text   `yaml:"key_interfaces" json:"key_interfaces"`
	TechnicalDetails       Text   `yaml:"technical_details" json:"technical_details"`
	Dependencies           Text   `yaml:"dependencies" json:"dependencies"`
	UsageContext           Text   `yaml:"usage_context" json:"usage_context"`
	// Files are indices into the fetched file list.
	Files []int `yaml:"files" json:"files"`
}

type ComponentRelationship struct {
	From             int  `yaml:"from" json:"from"`
	To               int  `yaml:"to" json:"to"`
	RelationshipType Text `yaml:"relationship_type" json:"relationship_type"`
	Description      Text `yaml:"description" json:"description"`
	InterfaceDetails Text `yaml:"interface_details" json:"interface_details"`
}

type DataFlow struct {
	FlowName    Text  `yaml:"flow_name" json:"flow_name"`
	Description Text  `yaml:"description" json:"description"`
	Components  []int `yaml:"components" json:"components"`
	Details     Text  `yaml:"details" json:"details"`
}

type APIInterface struct {
	Component     int    `yaml:"component" json:"component"`
	InterfaceName Text   `yaml:"interface_name" json:"interface_name"`
	Methods       []Text `yaml:"methods" json:"methods"`
	Description   Text   `yaml:"description" json:"description"`
}

// Relationships is the architectural analysis across abstractions.
type Relationships struct {
	Summary                Text                    `yaml:"summary" json:"summary"`
	ArchitectureOverview   Text                    `yaml:"architecture_overview" json:"architecture_overview"`
	ComponentRelationships []ComponentRelationship `yaml:"component_relationships" json:"component_relationships"`
	DataFlow               []DataFlow              `yaml:"data_flow" json:"data_flow"`
	APIInterfaces          []APIInterface          `yaml:"api_interfaces" json:"api_interfaces"`
}

type chapterOrder struct {
	ChapterOrder []any `yaml:"chapter_order"`
	Reasoning    Text  `yaml:"reasoning"`
}

// ChapterFailure records a chapter that could not be written.
type ChapterFailure struct {
	Component string `json:"component"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}
