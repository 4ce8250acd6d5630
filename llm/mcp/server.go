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
	"io"
	stdlog "log"
	"log/slog"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/mark3labs/mcp-go/server"
)

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool
	// Library is the documentation served by the tools.
	Library *docs.Library
}

type Server struct {
	Server  *server.MCPServer
	verbose bool
}

// NewServer registers the documentation tools and prompts.
func NewServer(opts ServerOptions) *Server {
	s := server.NewMCPServer(opts.ServerName, opts.ServerVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range getDocTools(opts.Library) {
		s.AddTool(t.Tool, t.Handler)
	}
	d := NewDocTools(opts.Library)
	s.AddPrompt(explainProjectPrompt(), d.handleExplainProject)
	return &Server{Server: s, verbose: opts.Verbose}
}

// ServeStdio serves requests on stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	logger := stdlog.New(io.Discard, "", 0)
	if s.verbose {
		logger = slog.NewLogLogger(log.Logger().Handler(), slog.LevelError)
	}
	log.Info("serving MCP on stdio")
	return server.ServeStdio(s.Server, server.WithErrorLogger(logger))
}
