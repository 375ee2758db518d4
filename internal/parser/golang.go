package parser

import (
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/steveyegge/atlas/internal/schema"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		extract:    extractGo,
	}
}

func isExportedName(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// extractGo records imports (whole-package, so names are "*"), exported
// functions and types, struct types as classes with their methods, and
// interface types with their method sets.
func extractGo(root *sitter.Node, source []byte, rec *schema.StructuralRecord) {
	r := newRecorder(rec)
	text := func(n *sitter.Node) string { return nodeText(n, source) }

	classIndex := make(map[string]int)
	var methods []struct{ recv, name string }

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "import_declaration":
			goImports(n, text, r)

		case "function_declaration":
			name := text(n.ChildByFieldName("name"))
			exported := isExportedName(name)
			r.function(name, schema.FunctionInfo{
				Line:     startLine(n),
				EndLine:  endLine(n),
				Params:   collapseWhitespace(text(n.ChildByFieldName("parameters"))),
				Returns:  collapseWhitespace(text(n.ChildByFieldName("result"))),
				Exported: exported,
			})
			if exported {
				r.export(name)
			}

		case "method_declaration":
			name := text(n.ChildByFieldName("name"))
			recv := goReceiverType(n.ChildByFieldName("receiver"), text)
			r.function(recv+"."+name, schema.FunctionInfo{
				Line:     startLine(n),
				EndLine:  endLine(n),
				Params:   collapseWhitespace(text(n.ChildByFieldName("parameters"))),
				Returns:  collapseWhitespace(text(n.ChildByFieldName("result"))),
				Exported: isExportedName(name) && isExportedName(recv),
				Class:    recv,
			})
			methods = append(methods, struct{ recv, name string }{recv, name})

		case "type_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				spec := n.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				name := text(spec.ChildByFieldName("name"))
				typ := spec.ChildByFieldName("type")
				if name == "" || typ == nil {
					continue
				}
				if isExportedName(name) {
					r.export(name)
				}
				switch typ.Type() {
				case "struct_type":
					classIndex[name] = len(rec.Classes)
					rec.Classes = append(rec.Classes, schema.ClassInfo{
						Name: name, Kind: schema.KindClass, Line: startLine(spec), EndLine: endLine(spec),
					})
				case "interface_type":
					info := schema.ClassInfo{
						Name: name, Kind: schema.KindInterface, Line: startLine(spec), EndLine: endLine(spec),
					}
					for k := 0; k < int(typ.NamedChildCount()); k++ {
						elem := typ.NamedChild(k)
						if elem.Type() != "method_elem" && elem.Type() != "method_spec" {
							continue
						}
						method := text(elem.ChildByFieldName("name"))
						info.Methods = append(info.Methods, method)
						r.function(name+"."+method, schema.FunctionInfo{
							Line:     startLine(elem),
							EndLine:  endLine(elem),
							Params:   collapseWhitespace(text(elem.ChildByFieldName("parameters"))),
							Returns:  collapseWhitespace(text(elem.ChildByFieldName("result"))),
							Exported: isExportedName(method),
							Class:    name,
						})
					}
					rec.Classes = append(rec.Classes, info)
				}
			}
		}
	}

	for _, m := range methods {
		if idx, ok := classIndex[m.recv]; ok {
			rec.Classes[idx].Methods = append(rec.Classes[idx].Methods, m.name)
		}
	}
}

func goImports(n *sitter.Node, text func(*sitter.Node) string, r *recorder) {
	var visit func(*sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			r.addImport(schema.ImportInfo{
				Module: unquote(text(n.ChildByFieldName("path"))),
				Names:  []string{"*"},
			})
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(n)
}

// goReceiverType extracts the receiver type name, unwrapping pointers and
// type parameters.
func goReceiverType(recv *sitter.Node, text func(*sitter.Node) string) string {
	if recv == nil {
		return ""
	}
	var find func(*sitter.Node) string
	find = func(n *sitter.Node) string {
		if n.Type() == "type_identifier" {
			return text(n)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "identifier" {
				continue
			}
			if name := find(c); name != "" {
				return name
			}
		}
		return ""
	}
	return find(recv)
}
