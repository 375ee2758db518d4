package cache

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
)

// Hit types.
const (
	HitFile      = "file"
	HitClass     = "class"
	HitInterface = "interface"
	HitMethod    = "method"
	HitFunction  = "function"
)

// Hit is one Find match.
type Hit struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Signature string `json:"signature,omitempty"`
	Module    string `json:"module"`
}

// Find matches keyword case-insensitively against file base names, class
// and interface names, and function and method names. Hits are ordered by
// path then line.
func (c *Cache) Find(keyword string) []Hit {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return []Hit{}
	}
	s := c.current()
	key := findKey{generation: s.generation, keyword: kw}
	if hits, ok := c.finds.Get(key); ok {
		return hits
	}
	hits := find(s, kw)
	c.finds.Add(key, hits)
	return hits
}

func find(s *snapshot, kw string) []Hit {
	hits := []Hit{}
	for _, e := range s.files {
		var fileHits []Hit
		if base := path.Base(e.Path); strings.Contains(strings.ToLower(base), kw) {
			fileHits = append(fileHits, Hit{Type: HitFile, Name: base, Path: e.Path, Line: 1, Module: e.Module})
		}
		for _, cls := range e.Record.Classes {
			if !strings.Contains(strings.ToLower(cls.Name), kw) {
				continue
			}
			typ := HitClass
			sig := "class " + cls.Name
			if cls.Kind == schema.KindInterface {
				typ = HitInterface
				sig = "interface " + cls.Name
			}
			if cls.Extends != "" {
				sig += " extends " + cls.Extends
			}
			fileHits = append(fileHits, Hit{Type: typ, Name: cls.Name, Path: e.Path, Line: cls.Line, Signature: sig, Module: e.Module})
		}
		for name, fn := range e.Record.Functions {
			short := name
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				short = name[i+1:]
			}
			if !strings.Contains(strings.ToLower(name), kw) {
				continue
			}
			typ := HitFunction
			if fn.Class != "" {
				typ = HitMethod
			}
			fileHits = append(fileHits, Hit{Type: typ, Name: name, Path: e.Path, Line: fn.Line, Signature: fn.Signature(short), Module: e.Module})
		}
		sort.SliceStable(fileHits, func(i, j int) bool {
			if fileHits[i].Line != fileHits[j].Line {
				return fileHits[i].Line < fileHits[j].Line
			}
			return fileHits[i].Name < fileHits[j].Name
		})
		hits = append(hits, fileHits...)
	}
	return hits
}

// ClassScope is a class or interface in a Scope result.
type ClassScope struct {
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	Extends string   `json:"extends,omitempty"`
	Methods []string `json:"methods,omitempty"`
}

// FileScope is the denormalized view of one file.
type FileScope struct {
	Path        string                     `json:"path"`
	Module      string                     `json:"module"`
	Lines       int                        `json:"lines"`
	Semantic    *schema.SemanticAnnotation `json:"semantic,omitempty"`
	Classes     []ClassScope               `json:"classes,omitempty"`
	Interfaces  []ClassScope               `json:"interfaces,omitempty"`
	Functions   []string                   `json:"functions,omitempty"`
	Imports     []string                   `json:"imports,omitempty"`
	Exports     []string                   `json:"exports,omitempty"`
	MethodNotes map[string]string          `json:"method_notes,omitempty"`
}

// MatchesScope reports whether p starts with or contains one of prefixes.
func MatchesScope(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "./")
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(p, prefix) || strings.Contains(p, prefix) {
			return true
		}
	}
	return false
}

// Scope returns the files matching any of prefixes, ordered by path.
func (c *Cache) Scope(prefixes []string) []FileScope {
	s := c.current()
	out := []FileScope{}
	for _, e := range s.files {
		if MatchesScope(e.Path, prefixes) {
			out = append(out, scopeOf(e))
		}
	}
	return out
}

func scopeOf(e *schema.IndexEntry) FileScope {
	fs := FileScope{
		Path:        e.Path,
		Module:      e.Module,
		Lines:       e.Record.Lines,
		Semantic:    e.Semantic,
		Exports:     e.Record.Exports,
		MethodNotes: e.MethodNotes,
	}
	for _, cls := range e.Record.Classes {
		cs := ClassScope{Name: cls.Name, Line: cls.Line, Extends: cls.Extends}
		for _, m := range cls.Methods {
			if fn, ok := e.Record.Functions[cls.Name+"."+m]; ok {
				cs.Methods = append(cs.Methods, fn.Signature(m))
			} else {
				cs.Methods = append(cs.Methods, m)
			}
		}
		if cls.Kind == schema.KindInterface {
			fs.Interfaces = append(fs.Interfaces, cs)
		} else {
			fs.Classes = append(fs.Classes, cs)
		}
	}

	type standalone struct {
		line int
		sig  string
	}
	var fns []standalone
	for name, fn := range e.Record.Functions {
		if fn.Class == "" {
			fns = append(fns, standalone{line: fn.Line, sig: fn.Signature(name)})
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].line < fns[j].line })
	for _, fn := range fns {
		fs.Functions = append(fs.Functions, fn.sig)
	}

	for _, imp := range e.Record.Imports {
		fs.Imports = append(fs.Imports, imp.Module)
	}
	return fs
}

// Stats describes the current snapshot.
type Stats struct {
	LoadedAt   time.Time `json:"loaded_at"`
	Generation uint64    `json:"generation"`
	Files      int       `json:"files"`
	Methods    int       `json:"methods"`
	Classes    int       `json:"classes"`
	Interfaces int       `json:"interfaces"`
	Lines      int       `json:"lines"`
	Modules    []string  `json:"modules"`
	Dirty      int       `json:"dirty"`
	Health     float64   `json:"health"`
}

// Stats returns aggregate counts for the current snapshot.
func (c *Cache) Stats() Stats {
	s := c.current()
	st := Stats{
		LoadedAt:   s.loadedAt,
		Generation: s.generation,
		Modules:    make([]string, 0, len(s.modules)),
		Dirty:      c.DirtyCount(),
	}
	for name := range s.modules {
		st.Modules = append(st.Modules, name)
	}
	sort.Strings(st.Modules)
	for _, e := range s.files {
		st.Files++
		st.Methods += len(e.Record.Functions)
		st.Classes += e.Record.ClassCount()
		st.Interfaces += e.Record.Interfaces()
		st.Lines += e.Record.Lines
	}
	if s.summary != nil {
		st.Health = s.summary.Health.Score
	}
	return st
}
