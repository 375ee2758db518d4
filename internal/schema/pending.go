package schema

import (
	"fmt"
	"strings"
	"time"
)

// Pending annotation sources. Work-derived entries carry "work:<participant>".
const (
	SourceDirect     = "direct"
	SourceWorkPrefix = "work:"
)

// PendingAnnotation is one staged annotation line in pending.jsonl.
type PendingAnnotation struct {
	Timestamp   time.Time `json:"timestamp"`
	Path        string    `json:"path"`
	Method      string    `json:"method,omitempty"`
	Description string    `json:"description,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Validate rejects entries that cannot be applied.
func (p *PendingAnnotation) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	if p.Annotation().IsZero() {
		return fmt.Errorf("annotation for %s is empty", p.Path)
	}
	return nil
}

// WorkDerived reports whether the entry was staged from a completed work unit.
func (p *PendingAnnotation) WorkDerived() bool {
	return strings.HasPrefix(p.Source, SourceWorkPrefix)
}

// Annotation returns the annotation fields of the entry.
func (p *PendingAnnotation) Annotation() SemanticAnnotation {
	return SemanticAnnotation{Description: p.Description, Pattern: p.Pattern, Tag: p.Tag}
}
