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
	"encoding/xml"
	"path"

	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/vifraa/gopom"
	"golang.org/x/mod/modfile"
)

type ManifestKind string

const (
	ManifestGoMod ManifestKind = "go.mod"
	ManifestMaven ManifestKind = "pom.xml"
)

// Manifest is a build file describing a module and its dependencies.
type Manifest struct {
	Path string       `json:"path" yaml:"path"`
	Kind ManifestKind `json:"kind" yaml:"kind"`
	// Module is the Go module path or the Maven groupId:artifactId.
	Module  string `json:"module" yaml:"module"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Language is the go directive of a go.mod.
	Language string `json:"language_version,omitempty" yaml:"language_version,omitempty"`
	// Dependencies are "path@version" (Go) or "group:artifact:version".
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Modules lists Maven sub-modules.
	Modules []string `json:"modules,omitempty" yaml:"modules,omitempty"`
}

func parseManifest(p, content string) (Manifest, bool) {
	switch path.Base(p) {
	case "go.mod":
		m, err := parseGoMod(p, []byte(content))
		if err != nil {
			log.Debug("skip manifest %s: %v", p, err)
			return Manifest{}, false
		}
		return m, true
	case "pom.xml":
		m, err := parsePom(p, []byte(content))
		if err != nil {
			log.Debug("skip manifest %s: %v", p, err)
			return Manifest{}, false
		}
		return m, true
	}
	return Manifest{}, false
}

func parseGoMod(p string, data []byte) (Manifest, error) {
	f, err := modfile.ParseLax(p, data, nil)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Path: p, Kind: ManifestGoMod}
	if f.Module != nil {
		m.Module = f.Module.Mod.Path
	}
	if f.Go != nil {
		m.Language = f.Go.Version
	}
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		m.Dependencies = append(m.Dependencies, r.Mod.Path+"@"+r.Mod.Version)
	}
	return m, nil
}

func parsePom(p string, data []byte) (Manifest, error) {
	var proj gopom.Project
	if err := xml.Unmarshal(data, &proj); err != nil {
		return Manifest{}, err
	}
	group := deref(proj.GroupID)
	if group == "" && proj.Parent != nil {
		group = deref(proj.Parent.GroupID)
	}
	m := Manifest{
		Path:    p,
		Kind:    ManifestMaven,
		Module:  group + ":" + deref(proj.ArtifactID),
		Version: deref(proj.Version),
	}
	if proj.Dependencies != nil {
		for _, d := range *proj.Dependencies {
			dep := deref(d.GroupID) + ":" + deref(d.ArtifactID)
			if v := deref(d.Version); v != "" {
				dep += ":" + v
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	if proj.Modules != nil {
		m.Modules = append(m.Modules, *proj.Modules...)
	}
	return m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
