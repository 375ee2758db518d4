package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/steveyegge/atlas/internal/schema"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		lang:       python.GetLanguage(),
		extract:    extractPython,
	}
}

// pythonModulePath turns a dotted module name into a slash path so imports
// can be matched against file paths: "..models.user" becomes "../models/user".
func pythonModulePath(dotted string) string {
	dots := len(dotted) - len(strings.TrimLeft(dotted, "."))
	rest := strings.ReplaceAll(dotted[dots:], ".", "/")
	switch {
	case dots == 0:
		return rest
	case dots == 1:
		return "./" + rest
	default:
		return strings.Repeat("../", dots-1) + rest
	}
}

// extractPython records top-level classes, functions and imports. Names
// starting with an underscore are treated as private.
func extractPython(root *sitter.Node, source []byte, rec *schema.StructuralRecord) {
	r := newRecorder(rec)
	text := func(n *sitter.Node) string { return nodeText(n, source) }

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "decorated_definition" {
			if def := n.ChildByFieldName("definition"); def != nil {
				n = def
			}
		}
		switch n.Type() {
		case "import_statement":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				name := c
				if c.Type() == "aliased_import" {
					name = c.ChildByFieldName("name")
				}
				r.addImport(schema.ImportInfo{Module: pythonModulePath(text(name)), Names: []string{"*"}})
			}

		case "import_from_statement":
			module := n.ChildByFieldName("module_name")
			imp := schema.ImportInfo{Module: pythonModulePath(text(module))}
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				if module != nil && c.StartByte() == module.StartByte() {
					continue
				}
				switch c.Type() {
				case "wildcard_import":
					imp.Names = append(imp.Names, "*")
				case "aliased_import":
					imp.Names = append(imp.Names, text(c.ChildByFieldName("name")))
				case "dotted_name":
					imp.Names = append(imp.Names, text(c))
				}
			}
			r.addImport(imp)

		case "function_definition":
			name := text(n.ChildByFieldName("name"))
			exported := !strings.HasPrefix(name, "_")
			r.function(name, pythonFunction(n, text, exported, ""))
			if exported {
				r.export(name)
			}

		case "class_definition":
			name := text(n.ChildByFieldName("name"))
			exported := !strings.HasPrefix(name, "_")
			info := schema.ClassInfo{Name: name, Kind: schema.KindClass, Line: startLine(n), EndLine: endLine(n)}
			if supers := n.ChildByFieldName("superclasses"); supers != nil && supers.NamedChildCount() > 0 {
				info.Extends = text(supers.NamedChild(0))
			}
			if body := n.ChildByFieldName("body"); body != nil {
				for j := 0; j < int(body.NamedChildCount()); j++ {
					m := body.NamedChild(j)
					if m.Type() == "decorated_definition" {
						if def := m.ChildByFieldName("definition"); def != nil {
							m = def
						}
					}
					if m.Type() != "function_definition" {
						continue
					}
					method := text(m.ChildByFieldName("name"))
					info.Methods = append(info.Methods, method)
					r.function(name+"."+method, pythonFunction(m, text, exported && !strings.HasPrefix(method, "_"), name))
				}
			}
			rec.Classes = append(rec.Classes, info)
			if exported {
				r.export(name)
			}
		}
	}
}

func pythonFunction(n *sitter.Node, text func(*sitter.Node) string, exported bool, class string) schema.FunctionInfo {
	return schema.FunctionInfo{
		Line:     startLine(n),
		EndLine:  endLine(n),
		Params:   collapseWhitespace(text(n.ChildByFieldName("parameters"))),
		Returns:  collapseWhitespace(text(n.ChildByFieldName("return_type"))),
		Async:    hasToken(n, "async"),
		Exported: exported,
		Class:    class,
	}
}
