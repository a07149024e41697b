// Package codebase implements classifier enrichment from a project map file.
//
// The map is a YAML file maintained alongside the repository describing file
// couplings and recorded design decisions. It is loaded once at startup;
// lookups are read-only and never touch the filesystem afterwards.
package codebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decision is one recorded design decision with the files and domains it
// applies to.
type Decision struct {
	Title   string   `yaml:"title"`
	Files   []string `yaml:"files,omitempty"`
	Domains []string `yaml:"domains,omitempty"`
}

// projectMap is the on-disk YAML shape.
type projectMap struct {
	// RelatedFiles maps a file path to the files coupled to it.
	RelatedFiles map[string][]string `yaml:"related_files"`

	Decisions []Decision `yaml:"decisions"`
}

// Map provides related-file and related-decision lookups.
type Map struct {
	relatedFiles map[string][]string
	decisions    []Decision
}

// Load reads a project map from a YAML file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project map: %w", err)
	}

	var pm projectMap
	if err := yaml.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("failed to parse project map %s: %w", path, err)
	}

	m := &Map{
		relatedFiles: make(map[string][]string, len(pm.RelatedFiles)),
		decisions:    pm.Decisions,
	}
	for file, related := range pm.RelatedFiles {
		m.relatedFiles[normalizePath(file)] = related
	}
	return m, nil
}

// RelatedFiles returns files coupled to the given file.
func (m *Map) RelatedFiles(ctx context.Context, file string) ([]string, error) {
	return m.relatedFiles[normalizePath(file)], nil
}

// RelatedDecisions returns decision titles matching the file or domain.
// A decision matches on file when its file list contains the path, and on
// domain when its domain list contains the keyword.
func (m *Map) RelatedDecisions(ctx context.Context, file, domain string) ([]string, error) {
	file = normalizePath(file)

	var titles []string
	for _, d := range m.decisions {
		if matchesDecision(d, file, domain) {
			titles = append(titles, d.Title)
		}
	}
	return titles, nil
}

func matchesDecision(d Decision, file, domain string) bool {
	if file != "" {
		for _, f := range d.Files {
			if normalizePath(f) == file {
				return true
			}
		}
	}
	if domain != "" {
		for _, dom := range d.Domains {
			if dom == domain {
				return true
			}
		}
	}
	return false
}

// normalizePath canonicalizes separators so Windows-style paths from tool
// output match map entries.
func normalizePath(p string) string {
	return filepath.ToSlash(strings.TrimSpace(p))
}
