package compiler

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"hotswap/internal/unit"
)

// typeDecl is a struct type declared by a unit, with what the glue needs.
type typeDecl struct {
	Name    string
	Line    int
	Fields  []unit.FieldDescriptor
	Methods []*methodDecl
	Ctor    string // NewT() *T when declared

	glue string
}

type methodDecl struct {
	Name     string
	Params   []unit.ParamDescriptor
	Results  []string
	Variadic bool

	glue string
}

// extractDecls collects non-generic struct types with their methods and
// zero-argument constructors, in declaration order. Type text is taken
// verbatim from src.
func extractDecls(fset *token.FileSet, file *ast.File, src []byte) []*typeDecl {
	text := func(n ast.Node) string {
		start := fset.Position(n.Pos()).Offset
		end := fset.Position(n.End()).Offset
		return string(src[start:end])
	}

	var decls []*typeDecl
	byName := make(map[string]*typeDecl)

	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || ts.Assign.IsValid() {
				continue
			}
			if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			td := &typeDecl{Name: ts.Name.Name, Line: fset.Position(ts.Pos()).Line}
			for _, f := range st.Fields.List {
				typ := text(f.Type)
				if len(f.Names) == 0 {
					td.Fields = append(td.Fields, unit.FieldDescriptor{Name: embeddedName(f.Type), TypeName: typ})
					continue
				}
				for _, n := range f.Names {
					if n.Name == "_" {
						continue
					}
					td.Fields = append(td.Fields, unit.FieldDescriptor{Name: n.Name, TypeName: typ})
				}
			}
			decls = append(decls, td)
			byName[td.Name] = td
		}
	}

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Name.Name == "_" {
			continue
		}
		if fd.Recv == nil {
			if td := byName[strings.TrimPrefix(fd.Name.Name, "New")]; td != nil && isCtor(fd, td.Name) {
				td.Ctor = fd.Name.Name
			}
			continue
		}
		if len(fd.Recv.List) != 1 {
			continue
		}
		base, ok := receiverBase(fd.Recv.List[0].Type)
		if !ok {
			continue
		}
		td := byName[base]
		if td == nil {
			continue
		}

		md := &methodDecl{Name: fd.Name.Name}
		for _, p := range fd.Type.Params.List {
			if _, ok := p.Type.(*ast.Ellipsis); ok {
				md.Variadic = true
			}
			typ := text(p.Type)
			if len(p.Names) == 0 {
				md.Params = append(md.Params, unit.ParamDescriptor{Name: fmt.Sprintf("a%d", len(md.Params)), TypeName: typ})
				continue
			}
			for _, n := range p.Names {
				name := n.Name
				if name == "_" {
					name = fmt.Sprintf("a%d", len(md.Params))
				}
				md.Params = append(md.Params, unit.ParamDescriptor{Name: name, TypeName: typ})
			}
		}
		if fd.Type.Results != nil {
			for _, r := range fd.Type.Results.List {
				typ := text(r.Type)
				count := len(r.Names)
				if count == 0 {
					count = 1
				}
				for k := 0; k < count; k++ {
					md.Results = append(md.Results, typ)
				}
			}
		}
		td.Methods = append(td.Methods, md)
	}

	return decls
}

func isCtor(fd *ast.FuncDecl, typeName string) bool {
	if fd.Name.Name != "New"+typeName || fd.Type.TypeParams != nil {
		return false
	}
	if len(fd.Type.Params.List) != 0 || fd.Type.Results == nil || fd.Type.Results.NumFields() != 1 {
		return false
	}
	star, ok := fd.Type.Results.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	id, ok := star.X.(*ast.Ident)
	return ok && id.Name == typeName
}

// receiverBase returns the named type of a receiver. Generic receivers are
// rejected.
func receiverBase(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.ParenExpr:
		return receiverBase(e.X)
	case *ast.StarExpr:
		return receiverBase(e.X)
	case *ast.Ident:
		return e.Name, true
	default:
		return "", false
	}
}

func embeddedName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(e.X)
	case *ast.SelectorExpr:
		return e.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(e.X)
	case *ast.IndexListExpr:
		return embeddedName(e.X)
	case *ast.Ident:
		return e.Name
	default:
		return ""
	}
}
