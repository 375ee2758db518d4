package health

import (
	"path"
	"sort"
	"strings"

	"github.com/steveyegge/atlas/internal/schema"
)

// Import names that consume every export of the matched file.
const (
	wildcardImport = "*"
	defaultImport  = "default"
)

// UnusedExport is an exported symbol no import appears to reference.
type UnusedExport struct {
	Path   string `json:"path"`
	Module string `json:"module"`
	Symbol string `json:"symbol"`
}

// InterfaceReport is the result of Validate.
type InterfaceReport struct {
	// Exports counts exported symbols of non-barrel files.
	Exports int            `json:"exports"`
	Unused  []UnusedExport `json:"unused"`
}

// IsBarrel reports whether p is an aggregator file that re-exports its
// directory.
func IsBarrel(p string) bool {
	base := path.Base(p)
	switch base {
	case "mod.rs", "__init__.py":
		return true
	}
	return strings.TrimSuffix(base, path.Ext(base)) == "index"
}

// normalizeImport reduces an import specifier to a comparable slash path:
// relative prefixes, path aliases and the extension are dropped.
func normalizeImport(spec string) string {
	spec = strings.TrimSpace(spec)
	for _, alias := range []string{"@/", "~/"} {
		spec = strings.TrimPrefix(spec, alias)
	}
	var parts []string
	for _, seg := range strings.Split(spec, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	switch ext := path.Ext(last); ext {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".go":
		parts[len(parts)-1] = strings.TrimSuffix(last, ext)
	}
	return strings.Join(parts, "/")
}

// tails returns every trailing segment run of p, longest first.
func tails(p string) []string {
	out := []string{p}
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[i+1:])
		}
	}
	return out
}

// importIndex answers "which names are imported from paths matching c".
type importIndex struct {
	exact map[string]map[string]bool
	tail  map[string]map[string]bool
}

func newImportIndex(modules map[string]*schema.ModuleIndex) *importIndex {
	idx := &importIndex{
		exact: make(map[string]map[string]bool),
		tail:  make(map[string]map[string]bool),
	}
	add := func(m map[string]map[string]bool, key string, names []string) {
		set := m[key]
		if set == nil {
			set = make(map[string]bool)
			m[key] = set
		}
		for _, n := range names {
			set[n] = true
		}
	}
	for _, m := range modules {
		for _, e := range m.Files {
			for _, imp := range e.Record.Imports {
				key := normalizeImport(imp.Module)
				if key == "" {
					continue
				}
				add(idx.exact, key, imp.Names)
				for _, t := range tails(key) {
					add(idx.tail, t, imp.Names)
				}
			}
		}
	}
	return idx
}

// uses reports whether some import whose key equals candidate, ends with
// "/"+candidate, or is itself a trailing run of candidate names symbol.
func (idx *importIndex) uses(candidate, symbol string) bool {
	check := func(set map[string]bool) bool {
		return set[symbol] || set[wildcardImport] || set[defaultImport]
	}
	if check(idx.tail[candidate]) {
		return true
	}
	for _, t := range tails(candidate)[1:] {
		if check(idx.exact[t]) {
			return true
		}
	}
	return false
}

// exporterCandidates returns the import keys under which p can be imported:
// the path without extension and its directory.
func exporterCandidates(p string) []string {
	noExt := strings.TrimSuffix(p, path.Ext(p))
	out := []string{noExt}
	if dir := path.Dir(p); dir != "." && dir != "/" {
		out = append(out, dir)
	}
	return out
}

// Validate flags exported symbols that no import references. Matching is
// textual: false positives are expected for dynamic or aliased imports.
func Validate(modules map[string]*schema.ModuleIndex) InterfaceReport {
	idx := newImportIndex(modules)
	report := InterfaceReport{Unused: []UnusedExport{}}

	for _, m := range modules {
		for _, e := range m.Files {
			if IsBarrel(e.Path) {
				continue
			}
			candidates := exporterCandidates(e.Path)
			for _, symbol := range e.Record.Exports {
				report.Exports++
				used := false
				for _, c := range candidates {
					if idx.uses(c, symbol) {
						used = true
						break
					}
				}
				if !used {
					report.Unused = append(report.Unused, UnusedExport{Path: e.Path, Module: e.Module, Symbol: symbol})
				}
			}
		}
	}
	sort.Slice(report.Unused, func(i, j int) bool {
		a, b := report.Unused[i], report.Unused[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Symbol < b.Symbol
	})
	return report
}
