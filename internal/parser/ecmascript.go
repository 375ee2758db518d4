package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/steveyegge/atlas/internal/schema"
)

func init() {
	Languages["typescript"] = &Language{
		Name:       "typescript",
		Extensions: []string{".ts", ".mts", ".cts"},
		lang:       typescript.GetLanguage(),
		extract:    extractECMAScript,
	}
	Languages["tsx"] = &Language{
		Name:       "tsx",
		Extensions: []string{".tsx"},
		lang:       tsx.GetLanguage(),
		extract:    extractECMAScript,
	}
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		lang:       javascript.GetLanguage(),
		extract:    extractECMAScript,
	}
}

// ecmaWalker handles the shared shape of the TypeScript, TSX and JavaScript
// grammars. Only top-level statements are visited.
type ecmaWalker struct {
	*recorder
	src []byte
}

func extractECMAScript(root *sitter.Node, source []byte, rec *schema.StructuralRecord) {
	w := &ecmaWalker{recorder: newRecorder(rec), src: source}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.statement(root.NamedChild(i), false)
	}
}

func (w *ecmaWalker) text(n *sitter.Node) string { return nodeText(n, w.src) }

func (w *ecmaWalker) statement(n *sitter.Node, exported bool) {
	switch n.Type() {
	case "import_statement":
		w.importStatement(n)
	case "export_statement":
		w.exportStatement(n)
	case "function_declaration", "generator_function_declaration", "function_signature":
		w.functionDeclaration(n, exported)
	case "class_declaration", "abstract_class_declaration":
		w.class(n, exported)
	case "interface_declaration":
		w.iface(n, exported)
	case "lexical_declaration", "variable_declaration":
		w.variables(n, exported)
	case "type_alias_declaration", "enum_declaration":
		if exported {
			w.export(w.text(n.ChildByFieldName("name")))
		}
	case "expression_statement":
		w.commonJSExport(n)
	}
}

func (w *ecmaWalker) importStatement(n *sitter.Node) {
	imp := schema.ImportInfo{Module: unquote(w.text(n.ChildByFieldName("source")))}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				imp.Names = append(imp.Names, "default")
			case "namespace_import":
				imp.Names = append(imp.Names, "*")
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() == "import_specifier" {
						imp.Names = append(imp.Names, w.text(spec.ChildByFieldName("name")))
					}
				}
			}
		}
	}
	w.addImport(imp)
}

func (w *ecmaWalker) exportStatement(n *sitter.Node) {
	isDefault := hasToken(n, "default")

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		w.statement(decl, true)
		if isDefault {
			w.export("default")
		}
		return
	}

	// Re-export: export { a as b } from './x' or export * from './x'.
	if source := n.ChildByFieldName("source"); source != nil {
		imp := schema.ImportInfo{Module: unquote(w.text(source))}
		clause := w.exportClause(n)
		if clause == nil {
			imp.Names = []string{"*"}
		} else {
			for _, spec := range w.exportSpecs(clause) {
				imp.Names = append(imp.Names, spec[0])
				w.export(spec[1])
			}
		}
		w.addImport(imp)
		return
	}

	if clause := w.exportClause(n); clause != nil {
		for _, spec := range w.exportSpecs(clause) {
			w.export(spec[1])
		}
		return
	}

	if isDefault {
		w.export("default")
	}
}

func (w *ecmaWalker) exportClause(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "export_clause" {
			return c
		}
	}
	return nil
}

// exportSpecs returns [local, exported] name pairs.
func (w *ecmaWalker) exportSpecs(clause *sitter.Node) [][2]string {
	var specs [][2]string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		local := w.text(spec.ChildByFieldName("name"))
		exported := local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			exported = w.text(alias)
		}
		specs = append(specs, [2]string{local, exported})
	}
	return specs
}

func (w *ecmaWalker) functionDeclaration(n *sitter.Node, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	w.function(name, w.functionInfo(n, exported, ""))
	if exported {
		w.export(name)
	}
}

// functionInfo reads parameters, return type and async from any function-like
// node (declaration, method, arrow function, function expression).
func (w *ecmaWalker) functionInfo(n *sitter.Node, exported bool, class string) schema.FunctionInfo {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		params = n.ChildByFieldName("parameter")
	}
	paramText := collapseWhitespace(w.text(params))
	if params != nil && params.Type() == "identifier" {
		paramText = "(" + paramText + ")"
	}
	return schema.FunctionInfo{
		Line:     startLine(n),
		EndLine:  endLine(n),
		Params:   paramText,
		Returns:  w.returnType(n),
		Async:    hasToken(n, "async"),
		Exported: exported,
		Class:    class,
	}
}

func (w *ecmaWalker) returnType(n *sitter.Node) string {
	rt := n.ChildByFieldName("return_type")
	if rt == nil {
		return ""
	}
	return collapseWhitespace(strings.TrimPrefix(strings.TrimSpace(w.text(rt)), ":"))
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func (w *ecmaWalker) class(n *sitter.Node, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	info := schema.ClassInfo{
		Name:    name,
		Kind:    schema.KindClass,
		Line:    startLine(n),
		EndLine: endLine(n),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "class_heritage" {
			info.Extends = w.heritage(c)
		}
	}

	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			var method string
			var fnNode *sitter.Node
			switch member.Type() {
			case "method_definition", "method_signature", "abstract_method_signature":
				method = w.text(member.ChildByFieldName("name"))
				fnNode = member
			case "public_field_definition", "field_definition":
				value := member.ChildByFieldName("value")
				if !isFunctionValue(value) {
					continue
				}
				nameNode := member.ChildByFieldName("name")
				if nameNode == nil {
					nameNode = member.ChildByFieldName("property")
				}
				method = w.text(nameNode)
				fnNode = value
			}
			if method == "" {
				continue
			}
			info.Methods = append(info.Methods, method)
			fn := w.functionInfo(fnNode, exported, name)
			fn.Line = startLine(member)
			fn.EndLine = endLine(member)
			w.function(name+"."+method, fn)
		}
	}

	w.rec.Classes = append(w.rec.Classes, info)
	if exported {
		w.export(name)
	}
}

func (w *ecmaWalker) heritage(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "extends_clause":
			if v := c.ChildByFieldName("value"); v != nil {
				return w.text(v)
			}
			if c.NamedChildCount() > 0 {
				return w.text(c.NamedChild(0))
			}
		case "identifier", "member_expression":
			return w.text(c)
		}
	}
	return ""
}

func (w *ecmaWalker) iface(n *sitter.Node, exported bool) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	info := schema.ClassInfo{
		Name:    name,
		Kind:    schema.KindInterface,
		Line:    startLine(n),
		EndLine: endLine(n),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "extends_type_clause" && c.NamedChildCount() > 0 {
			info.Extends = w.text(c.NamedChild(0))
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member.Type() != "method_signature" {
				continue
			}
			method := w.text(member.ChildByFieldName("name"))
			if method == "" {
				continue
			}
			info.Methods = append(info.Methods, method)
			w.function(name+"."+method, w.functionInfo(member, exported, name))
		}
	}
	w.rec.Classes = append(w.rec.Classes, info)
	if exported {
		w.export(name)
	}
}

func (w *ecmaWalker) variables(n *sitter.Node, exported bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		value := decl.ChildByFieldName("value")

		if imp, ok := w.requireCall(nameNode, value); ok {
			w.addImport(imp)
			continue
		}
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := w.text(nameNode)
		if isFunctionValue(value) {
			fn := w.functionInfo(value, exported, "")
			fn.Line = startLine(decl)
			w.function(name, fn)
		}
		if exported {
			w.export(name)
		}
	}
}

// requireCall recognises const x = require('m') and const {a, b} = require('m').
func (w *ecmaWalker) requireCall(nameNode, value *sitter.Node) (schema.ImportInfo, bool) {
	if value == nil || value.Type() != "call_expression" {
		return schema.ImportInfo{}, false
	}
	if w.text(value.ChildByFieldName("function")) != "require" {
		return schema.ImportInfo{}, false
	}
	args := value.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 || args.NamedChild(0).Type() != "string" {
		return schema.ImportInfo{}, false
	}
	imp := schema.ImportInfo{Module: unquote(w.text(args.NamedChild(0)))}
	if nameNode != nil && nameNode.Type() == "object_pattern" {
		for i := 0; i < int(nameNode.NamedChildCount()); i++ {
			p := nameNode.NamedChild(i)
			switch p.Type() {
			case "shorthand_property_identifier_pattern", "shorthand_property_identifier":
				imp.Names = append(imp.Names, w.text(p))
			case "pair_pattern":
				imp.Names = append(imp.Names, w.text(p.ChildByFieldName("key")))
			}
		}
	} else {
		imp.Names = []string{"*"}
	}
	return imp, true
}

// commonJSExport recognises module.exports = ... and exports.name = ...
func (w *ecmaWalker) commonJSExport(n *sitter.Node) {
	if n.NamedChildCount() == 0 {
		return
	}
	assign := n.NamedChild(0)
	if assign.Type() != "assignment_expression" {
		return
	}
	left := w.text(assign.ChildByFieldName("left"))
	right := assign.ChildByFieldName("right")

	switch {
	case left == "module.exports":
		if right != nil && right.Type() == "object" {
			for i := 0; i < int(right.NamedChildCount()); i++ {
				prop := right.NamedChild(i)
				switch prop.Type() {
				case "shorthand_property_identifier":
					w.export(w.text(prop))
				case "pair", "method_definition":
					key := prop.ChildByFieldName("key")
					if key == nil {
						key = prop.ChildByFieldName("name")
					}
					w.export(unquote(w.text(key)))
				}
			}
			return
		}
		if right != nil && right.Type() == "identifier" {
			w.export(w.text(right))
		}
		w.export("default")
	case strings.HasPrefix(left, "module.exports."):
		w.export(strings.TrimPrefix(left, "module.exports."))
	case strings.HasPrefix(left, "exports."):
		w.export(strings.TrimPrefix(left, "exports."))
	}
}
