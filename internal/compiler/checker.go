package compiler

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"hotswap/internal/resolver"
)

// Glue identifiers are reserved; source may not declare them.
const (
	glueNewPrefix  = "HotswapNew_"
	glueCallPrefix = "HotswapCall_"
)

// Checker inspects parsed source before it reaches the interpreter.
type Checker struct {
	warningsAsErrors bool
}

// NewChecker creates a checker. With warningsAsErrors set, every warning is
// escalated and blocks the compile.
func NewChecker(warningsAsErrors bool) *Checker {
	return &Checker{warningsAsErrors: warningsAsErrors}
}

// Check returns the diagnostics for one file.
func (c *Checker) Check(fset *token.FileSet, file *ast.File, refs resolver.References) []Diagnostic {
	v := &checkVisitor{fset: fset}

	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			v.add(SeverityError, CodeParse, imp.Pos(), "malformed import path %s", imp.Path.Value)
			continue
		}
		if !refs.Allows(p) {
			v.add(SeverityError, CodeForbiddenImport, imp.Pos(), "import %q is not in the reference set", p)
		}
		if imp.Name != nil && imp.Name.Name == "." {
			v.add(SeverityWarning, CodeDotImport, imp.Pos(), "dot import of %q hides which names come from the unit", p)
		}
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			v.checkFunc(d)
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				v.checkTypes(d)
			}
		}
	}

	ast.Walk(v, file)

	if c.warningsAsErrors {
		for i := range v.diags {
			if v.diags[i].Severity == SeverityWarning {
				v.diags[i].Escalated = true
			}
		}
	}
	return v.diags
}

type checkVisitor struct {
	fset  *token.FileSet
	diags []Diagnostic
}

func (v *checkVisitor) add(sev Severity, code string, pos token.Pos, format string, args ...interface{}) {
	p := v.fset.Position(pos)
	v.diags = append(v.diags, Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Line:     p.Line,
		Column:   p.Column,
	})
}

func (v *checkVisitor) checkFunc(d *ast.FuncDecl) {
	name := d.Name.Name
	if reserved(name) {
		v.add(SeverityError, CodeReserved, d.Pos(), "identifier %s uses a reserved prefix", name)
	}
	if d.Recv != nil {
		return
	}
	switch name {
	case "main":
		v.add(SeverityError, CodeMainFunc, d.Pos(), "units are libraries; func main is not allowed")
	case "init":
		v.add(SeverityWarning, CodeInitFunc, d.Pos(), "init runs on every reload of this unit")
	}
}

func (v *checkVisitor) checkTypes(d *ast.GenDecl) {
	for _, spec := range d.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		if reserved(ts.Name.Name) {
			v.add(SeverityError, CodeReserved, ts.Pos(), "identifier %s uses a reserved prefix", ts.Name.Name)
		}
		if _, isStruct := ts.Type.(*ast.StructType); isStruct && ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
			v.add(SeverityInfo, CodeGenericType, ts.Pos(), "generic type %s is not registered", ts.Name.Name)
		}
	}
}

// Visit implements ast.Visitor.
func (v *checkVisitor) Visit(node ast.Node) ast.Visitor {
	switch n := node.(type) {
	case *ast.GoStmt:
		v.add(SeverityWarning, CodeGoroutine, n.Pos(), "goroutine started by a unit keeps running after reload")
	case *ast.CallExpr:
		if id, ok := n.Fun.(*ast.Ident); ok && id.Name == "panic" && id.Obj == nil {
			v.add(SeverityWarning, CodePanic, n.Pos(), "panic in unit code")
		}
	}
	return v
}

func reserved(name string) bool {
	return strings.HasPrefix(name, glueNewPrefix) || strings.HasPrefix(name, glueCallPrefix)
}
