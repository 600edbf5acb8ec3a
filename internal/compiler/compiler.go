// Package compiler turns Go source text into loaded units. Each compile runs
// in a fresh yaegi interpreter, so two versions of the same type can be live
// at once without colliding.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"golang.org/x/sync/errgroup"

	"hotswap/internal/logging"
	"hotswap/internal/resolver"
	"hotswap/internal/unit"
)

// DefaultTimeout bounds interpretation of one source.
const DefaultTimeout = 10 * time.Second

// ReferenceSource supplies the reference set for a compile.
type ReferenceSource interface {
	Resolve() (resolver.References, []resolver.Warning)
}

// Options configures a Compiler.
type Options struct {
	WarningsAsErrors bool
	Timeout          time.Duration
	Parallelism      int // bound for CompileAll; <= 0 means unbounded

	// Output of the interpreted code. Nil uses the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Result of compiling one source.
type Result struct {
	Source      Source
	Unit        *unit.Unit
	Diagnostics []Diagnostic
}

// Compiler compiles sources into units. Safe for concurrent use.
type Compiler struct {
	refs    ReferenceSource
	opts    Options
	checker *Checker
}

// New creates a compiler over the given reference source.
func New(refs ReferenceSource, opts Options) *Compiler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Compiler{
		refs:    refs,
		opts:    opts,
		checker: NewChecker(opts.WarningsAsErrors),
	}
}

// Compile compiles one source. On any blocking diagnostic it returns a
// *CompileError and no unit. Non-blocking diagnostics are returned with the
// result either way.
func (c *Compiler) Compile(ctx context.Context, src Source) (*Result, error) {
	log := logging.Get(logging.CategoryCompiler)
	start := time.Now()
	name := unit.UniqueName(src.Name)
	res := &Result{Source: src}

	fail := func() (*Result, error) {
		log.Warn("compile %s failed after %v: %d diagnostic(s)", src.Label(), time.Since(start), len(res.Diagnostics))
		return res, &CompileError{Unit: src.Name, Diagnostics: res.Diagnostics}
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, src.Label(), src.Text, parser.ParseComments)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) {
			res.Diagnostics = scannerDiagnostics(list)
		} else {
			res.Diagnostics = []Diagnostic{{Severity: SeverityError, Code: CodeParse, Message: err.Error()}}
		}
		return fail()
	}

	refs, warnings := c.refs.Resolve()
	for _, w := range warnings {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SeverityInfo,
			Code:     CodeReference,
			Message:  fmt.Sprintf("%s: %s", w.Package, w.Message),
		})
	}

	res.Diagnostics = append(res.Diagnostics, c.checker.Check(fset, file, refs)...)
	if hasBlocking(res.Diagnostics) {
		return fail()
	}

	raw := []byte(src.Text)
	decls := extractDecls(fset, file, raw)
	if len(decls) == 0 {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SeverityInfo,
			Code:     CodeNoTypes,
			Message:  "unit declares no struct types",
		})
	}
	program := asMain(fset, file, raw) + generateGlue(decls)
	sourceLines := strings.Count(src.Text, "\n") + 1

	i := interp.New(interp.Options{Stdout: c.opts.Stdout, Stderr: c.opts.Stderr})
	if err := i.Use(refs.Exports); err != nil {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Code:     CodeInterp,
			Message:  fmt.Sprintf("failed to load references: %v", err),
		})
		return fail()
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if _, err := i.EvalWithContext(evalCtx, program); err != nil {
		res.Diagnostics = append(res.Diagnostics, interpDiagnostics(err, sourceLines)...)
		return fail()
	}

	u := &unit.Unit{Name: name, Base: src.Name, Dynamic: true, LoadedAt: time.Now()}
	for _, td := range decls {
		t, diags := c.describe(i, name, td)
		res.Diagnostics = append(res.Diagnostics, diags...)
		if t != nil {
			u.Types = append(u.Types, t)
		}
	}
	if hasBlocking(res.Diagnostics) {
		return fail()
	}

	res.Unit = u
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityWarning {
			log.Warn("%s: %s", src.Label(), d)
		}
	}
	log.Info("compiled %s as %s: %d type(s) in %v", src.Label(), name, len(u.Types), time.Since(start))
	return res, nil
}

// describe builds the descriptor for one declared type from its glue.
func (c *Compiler) describe(i *interp.Interpreter, unitName string, td *typeDecl) (*unit.TypeDescriptor, []Diagnostic) {
	var diags []Diagnostic
	glueErr := func(format string, args ...interface{}) {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Code:     CodeGlue,
			Message:  fmt.Sprintf(format, args...),
			Line:     td.Line,
		})
	}

	newFn, err := i.Eval("main." + td.glue)
	if err != nil || newFn.Kind() != reflect.Func {
		glueErr("type %s: constructor glue unavailable: %v", td.Name, err)
		return nil, diags
	}
	rtype := newFn.Type().Out(0)
	ctor := func() (reflect.Value, error) {
		return newFn.Call(nil)[0], nil
	}

	fields, missing := unit.ResolveFields(rtype, td.Fields)
	for _, f := range missing {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeGlue,
			Message:  fmt.Sprintf("type %s: field %s has no runtime counterpart and is not migrated", td.Name, f),
			Line:     td.Line,
		})
	}

	methods := make([]*unit.MethodDescriptor, 0, len(td.Methods))
	for _, md := range td.Methods {
		fn, err := i.Eval("main." + md.glue)
		if err != nil {
			glueErr("method %s.%s: call glue unavailable: %v", td.Name, md.Name, err)
			continue
		}
		m, err := unit.NewMethod(md.Name, md.Params, md.Results, fn)
		if err != nil {
			glueErr("%v", err)
			continue
		}
		methods = append(methods, m)
	}

	return unit.NewType(td.Name, unitName, true, rtype, ctor, fields, methods), diags
}

// asMain rewrites the package clause to main in place. Only the identifier
// changes, so line and column positions in the source stay valid.
func asMain(fset *token.FileSet, file *ast.File, src []byte) string {
	start := fset.Position(file.Name.Pos()).Offset
	end := fset.Position(file.Name.End()).Offset
	return string(src[:start]) + "main" + string(src[end:])
}

// CompileAll compiles sources concurrently. Results are in input order. The
// returned error joins every *CompileError; a nil error means every source
// produced a unit.
func (c *Compiler) CompileAll(ctx context.Context, srcs []Source) ([]*Result, error) {
	results := make([]*Result, len(srcs))
	errs := make([]error, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.Parallelism > 0 {
		g.SetLimit(c.opts.Parallelism)
	}
	for idx, src := range srcs {
		idx, src := idx, src
		g.Go(func() error {
			results[idx], errs[idx] = c.Compile(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
