/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Tool struct {
	mcp.Tool
	Handler server.ToolHandlerFunc
}

// NewTool adapts a typed handler to an MCP tool. Arguments are bound into R
// and the response is returned as JSON text. Handler errors are reported
// as tool errors, not protocol errors.
func NewTool[R any, T any](name string, desc string, schema json.RawMessage, handler func(ctx context.Context, req R) (*T, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, schema),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return nil, err
			}
			var final string
			var isError bool
			if resp, err := handler(ctx, req); err != nil {
				isError = true
				final = err.Error()
			} else if js, err := utils.MarshalJSONBytes(resp); err != nil {
				isError = true
				final = err.Error()
			} else {
				final = string(js)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(final),
				},
				IsError: isError,
			}, nil
		},
	}
}

// GetJSONSchema reflects the input schema of a request type.
func GetJSONSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	js, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("schema of %T: %v", v, err))
	}
	return js
}

const (
	ToolListProjects = "list_projects"
	ToolListDocs     = "list_docs"
	ToolReadDoc      = "read_doc"

	DescListProjects = "List the projects that have generated documentation."
	DescListDocs     = "List the markdown documents of one project: the overview, the index and one chapter per component."
	DescReadDoc      = "Read one markdown document of a project."
)

var (
	SchemaListProjects = GetJSONSchema(ListProjectsReq{})
	SchemaListDocs     = GetJSONSchema(ListDocsReq{})
	SchemaReadDoc      = GetJSONSchema(ReadDocReq{})
)

type ListProjectsReq struct{}

type ListProjectsResp struct {
	Projects []string `json:"projects"`
}

type ListDocsReq struct {
	Project string `json:"project" jsonschema:"description=the project directory name as returned by list_projects"`
}

type ListDocsResp struct {
	Project string   `json:"project"`
	Docs    []string `json:"docs"`
}

type ReadDocReq struct {
	Project string `json:"project" jsonschema:"description=the project directory name"`
	Name    string `json:"name" jsonschema:"description=the document file name such as index.md"`
}

type ReadDocResp struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DocTools serves a docs.Library to MCP clients.
type DocTools struct {
	lib *docs.Library
}

func NewDocTools(lib *docs.Library) *DocTools {
	return &DocTools{lib: lib}
}

func (d *DocTools) ListProjects(ctx context.Context, _ ListProjectsReq) (*ListProjectsResp, error) {
	projects, err := d.lib.Projects(ctx)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []string{}
	}
	return &ListProjectsResp{Projects: projects}, nil
}

func (d *DocTools) ListDocs(ctx context.Context, req ListDocsReq) (*ListDocsResp, error) {
	names, err := d.lib.Docs(ctx, req.Project)
	if err != nil {
		return nil, notFound(err, "project %q", req.Project)
	}
	return &ListDocsResp{Project: req.Project, Docs: names}, nil
}

func (d *DocTools) ReadDoc(ctx context.Context, req ReadDocReq) (*ReadDocResp, error) {
	content, err := d.lib.Read(ctx, req.Project, req.Name)
	if err != nil {
		return nil, notFound(err, "document %s/%s", req.Project, req.Name)
	}
	return &ReadDocResp{Project: req.Project, Name: req.Name, Content: content}, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, docs.ErrNotFound) {
		return fmt.Errorf(format+" not found", args...)
	}
	return err
}

func getDocTools(lib *docs.Library) []Tool {
	d := NewDocTools(lib)
	return []Tool{
		NewTool(ToolListProjects, DescListProjects, SchemaListProjects, d.ListProjects),
		NewTool(ToolListDocs, DescListDocs, SchemaListDocs, d.ListDocs),
		NewTool(ToolReadDoc, DescReadDoc, SchemaReadDoc, d.ReadDoc),
	}
}

const PromptExplainProject = "explain_project"

func explainProjectPrompt() mcp.Prompt {
	return mcp.NewPrompt(PromptExplainProject,
		mcp.WithPromptDescription("Walk through a project using its generated documentation"),
		mcp.WithArgument("project",
			mcp.ArgumentDescription("the project directory name"),
			mcp.RequiredArgument(),
		),
	)
}

func (d *DocTools) handleExplainProject(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	project := request.Params.Arguments["project"]
	overview, err := d.lib.Read(ctx, project, docs.OverviewFile)
	if err != nil {
		return nil, notFound(err, "project %q", project)
	}
	text := fmt.Sprintf("Below is the overview of the %s project. Explain its architecture to a new contributor. "+
		"Use the %s and %s tools to read individual chapters when a component needs more detail.\n\n%s",
		project, ToolListDocs, ToolReadDoc, overview)
	return &mcp.GetPromptResult{
		Description: "Explain " + project,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}, nil
}
