package parser

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/steveyegge/atlas/internal/schema"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds the tree-sitter grammar for a file type and the walker that
// turns its syntax tree into a StructuralRecord.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// extract fills rec from the root node of a successfully parsed file.
	extract func(root *sitter.Node, source []byte, rec *schema.StructuralRecord)
}

// NewParser creates a fresh tree-sitter parser for this language.
// Parsers are not safe for concurrent use; create one per parse.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

var (
	extensionMap  map[string]*Language
	extensionOnce sync.Once
)

func getExtensionMap() map[string]*Language {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]*Language)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l
			}
		}
	})
	return extensionMap
}

// ForPath returns the language for a file path, or nil if unsupported.
func ForPath(path string) *Language {
	return getExtensionMap()[strings.ToLower(filepath.Ext(path))]
}

// nodeText returns the source text of a tree-sitter node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// collapseWhitespace replaces runs of whitespace with a single space and trims.
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func startLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }
func endLine(n *sitter.Node) int { return int(n.EndPoint().Row) + 1 }

// hasToken reports whether n has a direct anonymous child of the given type,
// such as "async" or "default".
func hasToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == token {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

// recorder accumulates a StructuralRecord without duplicate exports.
type recorder struct {
	rec      *schema.StructuralRecord
	exported map[string]bool
}

func newRecorder(rec *schema.StructuralRecord) *recorder {
	if rec.Functions == nil {
		rec.Functions = make(map[string]schema.FunctionInfo)
	}
	return &recorder{rec: rec, exported: make(map[string]bool)}
}

func (r *recorder) export(name string) {
	if name == "" || r.exported[name] {
		return
	}
	r.exported[name] = true
	r.rec.Exports = append(r.rec.Exports, name)
}

func (r *recorder) function(key string, fn schema.FunctionInfo) {
	r.rec.Functions[key] = fn
}

func (r *recorder) addImport(imp schema.ImportInfo) {
	if imp.Module == "" {
		return
	}
	r.rec.Imports = append(r.rec.Imports, imp)
}
