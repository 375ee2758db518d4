package schema

import "bytes"

// Class kinds.
const (
	KindClass     = "class"
	KindInterface = "interface"
)

// StructuralRecord is the parsed shape of one file version. It is replaced
// wholesale whenever the file is re-parsed.
type StructuralRecord struct {
	Language  string                  `json:"language"`
	Lines     int                     `json:"lines"`
	Classes   []ClassInfo             `json:"classes,omitempty"`
	Exports   []string                `json:"exports,omitempty"`
	Imports   []ImportInfo            `json:"imports,omitempty"`
	Functions map[string]FunctionInfo `json:"functions,omitempty"` // "name" or "Class.method"
}

// ClassInfo describes a declared class or interface.
type ClassInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"` // class, interface
	Line    int      `json:"line"`
	EndLine int      `json:"end_line,omitempty"`
	Extends string   `json:"extends,omitempty"`
	Methods []string `json:"methods,omitempty"`
}

// ImportInfo is one import statement. Names holds the imported symbols;
// "*" marks a namespace or whole-package import and "default" a default
// import.
type ImportInfo struct {
	Module string   `json:"module"`
	Names  []string `json:"names,omitempty"`
}

// FunctionInfo describes a function or method.
type FunctionInfo struct {
	Line     int    `json:"line"`
	EndLine  int    `json:"end_line,omitempty"`
	Params   string `json:"params,omitempty"`
	Returns  string `json:"returns,omitempty"`
	Async    bool   `json:"async,omitempty"`
	Exported bool   `json:"exported,omitempty"`
	Class    string `json:"class,omitempty"`
}

// Signature renders a one-line signature for display.
func (f FunctionInfo) Signature(name string) string {
	sig := name + f.Params
	if f.Params == "" {
		sig = name + "()"
	}
	if f.Returns != "" {
		sig += ": " + f.Returns
	}
	if f.Async {
		sig = "async " + sig
	}
	return sig
}

// Interfaces returns the number of interface declarations.
func (r *StructuralRecord) Interfaces() int {
	n := 0
	for _, c := range r.Classes {
		if c.Kind == KindInterface {
			n++
		}
	}
	return n
}

// ClassCount returns the number of class declarations (interfaces excluded).
func (r *StructuralRecord) ClassCount() int {
	return len(r.Classes) - r.Interfaces()
}

// CountLines counts lines the way editors do: a trailing newline does not
// start a new line, and an empty file has zero lines.
func CountLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
