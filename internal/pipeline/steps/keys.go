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

// Package steps implements the documentation stages run by the pipeline
// engine.
package steps

// Store keys. Inputs are seeded before the flow starts; every stage adds
// the keys listed next to it.
const (
	KeyRepoURL         = "repo_url"         // string
	KeyLocalDir        = "local_dir"        // string
	KeyRef             = "ref"              // string
	KeyProjectName     = "project_name"     // string, derived by fetch when empty
	KeyIncludePatterns = "include_patterns" // []string
	KeyExcludePatterns = "exclude_patterns" // []string
	KeyMaxFileSize     = "max_file_size"    // int64
	KeyLanguage        = "language"         // string, English name of the output language
	KeyUseCache        = "use_cache"        // bool
	KeyOutputDir       = "output_dir"       // string

	KeyFiles           = "files"            // []source.File, fetch_repo
	KeyStructure       = "structure"        // *Structure, analyze_structure
	KeyCoreFiles       = "core_files"       // []int, identify_core
	KeyAbstractions    = "abstractions"     // []Abstraction, identify_abstractions
	KeyRelationships   = "relationships"    // *Relationships, analyze_relationships
	KeyChapterOrder    = "chapter_order"    // []int, order_chapters
	KeyProjectOverview = "project_overview" // string, write_overview
	KeyChapters        = "chapters"         // []string, write_chapters
	KeyChapterFailures = "chapter_failures" // []ChapterFailure, write_chapters
	KeyFinalOutputDir  = "final_output_dir" // string, combine_tutorial
	KeyDocuments       = "documents"        // []string, combine_tutorial
)

// Stage names, in flow order.
const (
	StageFetch         = "fetch_repo"
	StageStructure     = "analyze_structure"
	StageCore          = "identify_core"
	StageAbstractions  = "identify_abstractions"
	StageRelationships = "analyze_relationships"
	StageOrder         = "order_chapters"
	StageOverview      = "write_overview"
	StageChapters      = "write_chapters"
	StageCombine       = "combine_tutorial"
)

// Stages lists the stage names in the order they run.
var Stages = []string{
	StageFetch,
	StageStructure,
	StageCore,
	StageAbstractions,
	StageRelationships,
	StageOrder,
	StageOverview,
	StageChapters,
	StageCombine,
}
