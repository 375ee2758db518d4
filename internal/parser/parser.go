// Package parser extracts StructuralRecords from source files using
// tree-sitter grammars for TypeScript, TSX, JavaScript, Go and Python.
package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/atlas/internal/schema"
)

// ErrUnsupported is returned for files whose extension has no grammar.
var ErrUnsupported = errors.New("unsupported file type")

// ErrSyntax is returned when the syntax tree contains errors.
var ErrSyntax = errors.New("syntax error")

// Parser turns file contents into a StructuralRecord.
type Parser interface {
	Parse(path string, src []byte) (*schema.StructuralRecord, error)
	Supports(path string) bool
}

// TreeSitter is the default Parser. It is safe for concurrent use.
type TreeSitter struct{}

// New returns the tree-sitter parser.
func New() *TreeSitter {
	return &TreeSitter{}
}

// Supports reports whether path has a registered grammar.
func (t *TreeSitter) Supports(path string) bool {
	return ForPath(path) != nil
}

// Parse parses src as the language implied by path.
func (t *TreeSitter) Parse(path string, src []byte) (*schema.StructuralRecord, error) {
	lang := ForPath(path)
	if lang == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	rec := &schema.StructuralRecord{
		Language:  lang.Name,
		Lines:     schema.CountLines(src),
		Functions: make(map[string]schema.FunctionInfo),
	}
	if len(src) == 0 {
		return rec, nil
	}

	tree, err := lang.NewParser().ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w", path, ErrSyntax)
	}
	lang.extract(root, src, rec)
	return rec, nil
}
