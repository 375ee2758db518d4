package schema

import (
	"fmt"
	"sort"
	"time"
)

// DefaultModule is the bucket for paths that match no category.
const DefaultModule = "core"

// SemanticAnnotation is human- or tool-supplied meaning for a file. Any
// field may be empty.
type SemanticAnnotation struct {
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// IsZero reports whether no field is set.
func (a SemanticAnnotation) IsZero() bool {
	return a.Description == "" && a.Pattern == "" && a.Tag == ""
}

// Over returns a copy of a with every empty field filled from base. Use it
// to layer a higher-precedence annotation over a lower one.
func (a SemanticAnnotation) Over(base SemanticAnnotation) SemanticAnnotation {
	out := base
	if a.Description != "" {
		out.Description = a.Description
	}
	if a.Pattern != "" {
		out.Pattern = a.Pattern
	}
	if a.Tag != "" {
		out.Tag = a.Tag
	}
	return out
}

// MergeAnnotations layers direct staging over work-derived over prior
// annotations. It returns nil when the result carries nothing.
func MergeAnnotations(prior, work, direct *SemanticAnnotation) *SemanticAnnotation {
	var out SemanticAnnotation
	for _, layer := range []*SemanticAnnotation{prior, work, direct} {
		if layer != nil {
			out = layer.Over(out)
		}
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

// IndexEntry pairs a file's structural record with its annotation.
// MethodNotes holds descriptions staged for individual functions, keyed like
// Record.Functions.
type IndexEntry struct {
	Path        string              `json:"path"`
	Module      string              `json:"module"`
	Record      StructuralRecord    `json:"record"`
	Semantic    *SemanticAnnotation `json:"semantic,omitempty"`
	MethodNotes map[string]string   `json:"method_notes,omitempty"`
	IndexedAt   time.Time           `json:"indexed_at"`
	SourceMtime time.Time           `json:"source_mtime"`
}

// Annotated reports whether the entry carries a non-empty annotation.
func (e *IndexEntry) Annotated() bool {
	return e.Semantic != nil && !e.Semantic.IsZero()
}

// ModuleIndex is the unit of persistence: every entry of one module bucket.
type ModuleIndex struct {
	Module    string                 `json:"module"`
	UpdatedAt time.Time              `json:"updated_at"`
	Files     map[string]*IndexEntry `json:"files"`
}

// NewModuleIndex returns an empty module document.
func NewModuleIndex(name string) *ModuleIndex {
	return &ModuleIndex{Module: name, Files: make(map[string]*IndexEntry)}
}

// Validate checks the document is internally consistent.
func (m *ModuleIndex) Validate() error {
	if m.Module == "" {
		return fmt.Errorf("module is required")
	}
	for path, e := range m.Files {
		if e == nil {
			return fmt.Errorf("entry %s is null", path)
		}
		if e.Path != path {
			return fmt.Errorf("entry key %s does not match path %s", path, e.Path)
		}
	}
	return nil
}

// Paths returns the file paths in sorted order.
func (m *ModuleIndex) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a deep-enough copy: the map is new, entries are shared.
// Entries are never mutated in place once stored.
func (m *ModuleIndex) Clone() *ModuleIndex {
	out := &ModuleIndex{Module: m.Module, UpdatedAt: m.UpdatedAt, Files: make(map[string]*IndexEntry, len(m.Files))}
	for k, v := range m.Files {
		out.Files[k] = v
	}
	return out
}

// Alert kinds.
const (
	AlertOversized        = "oversized"
	AlertMissingSemantics = "missing-semantics"
)

// Alert flags a file that needs attention.
type Alert struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// ModuleRollup is the per-module slice of a Summary.
type ModuleRollup struct {
	Files      int `json:"files"`
	Methods    int `json:"methods"`
	Classes    int `json:"classes"`
	Interfaces int `json:"interfaces"`
	Lines      int `json:"lines"`
}

// HealthScore is the composite quality metric and its inputs.
type HealthScore struct {
	Score           float64 `json:"score"`
	Freshness       float64 `json:"freshness"`
	Coverage        float64 `json:"coverage"`
	InterfaceHealth float64 `json:"interface_health"`
	Penalty         float64 `json:"penalty"`
	Drifted         int     `json:"drifted"`
	UnusedExports   int     `json:"unused_exports"`
	Alerts          int     `json:"alerts"`
}

// Summary aggregates the whole index.
type Summary struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Files       int                     `json:"files"`
	Methods     int                     `json:"methods"`
	Classes     int                     `json:"classes"`
	Interfaces  int                     `json:"interfaces"`
	Lines       int                     `json:"lines"`
	Modules     map[string]ModuleRollup `json:"modules"`
	Alerts      []Alert                 `json:"alerts,omitempty"`
	Health      HealthScore             `json:"health"`
}
