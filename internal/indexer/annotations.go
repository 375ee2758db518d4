package indexer

import (
	"sort"

	"github.com/steveyegge/atlas/internal/schema"
)

// layer holds one precedence class of staged annotations.
type layer struct {
	file  map[string]*schema.SemanticAnnotation
	notes map[string]map[string]string
}

func newLayer() layer {
	return layer{
		file:  make(map[string]*schema.SemanticAnnotation),
		notes: make(map[string]map[string]string),
	}
}

// add folds p into the layer. Later entries win field by field.
func (l layer) add(path string, p schema.PendingAnnotation) {
	if p.Method != "" {
		note := p.Description
		if note == "" {
			note = p.Pattern
		}
		if note == "" {
			note = p.Tag
		}
		if l.notes[path] == nil {
			l.notes[path] = make(map[string]string)
		}
		l.notes[path][p.Method] = note
		return
	}
	a := p.Annotation()
	if prev := l.file[path]; prev != nil {
		a = a.Over(*prev)
	}
	l.file[path] = &a
}

// staged is a pending batch grouped by path and precedence.
type staged struct {
	work   layer
	direct layer
	seen   map[string]struct{}
}

func stage(entries []schema.PendingAnnotation, normalize func(string) (string, bool)) *staged {
	s := &staged{work: newLayer(), direct: newLayer(), seen: make(map[string]struct{})}
	for _, p := range entries {
		path, ok := normalize(p.Path)
		if !ok {
			continue
		}
		s.seen[path] = struct{}{}
		if p.WorkDerived() {
			s.work.add(path, p)
		} else {
			s.direct.add(path, p)
		}
	}
	return s
}

func (s *staged) paths() []string {
	out := make([]string, 0, len(s.seen))
	for p := range s.seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// apply sets e's annotation from the staged layers over prior's.
func (s *staged) apply(e, prior *schema.IndexEntry) {
	var base *schema.SemanticAnnotation
	notes := make(map[string]string)
	if prior != nil {
		base = prior.Semantic
		for k, v := range prior.MethodNotes {
			notes[k] = v
		}
	}
	e.Semantic = schema.MergeAnnotations(base, s.work.file[e.Path], s.direct.file[e.Path])

	for _, l := range []layer{s.work, s.direct} {
		for k, v := range l.notes[e.Path] {
			notes[k] = v
		}
	}
	if len(notes) > 0 {
		e.MethodNotes = notes
	} else {
		e.MethodNotes = nil
	}
}
