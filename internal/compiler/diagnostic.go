package compiler

import (
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"regexp"
	"strconv"
	"strings"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic codes.
const (
	CodeParse           = "parse_error"
	CodeForbiddenImport = "forbidden_import"
	CodeDotImport       = "dot_import"
	CodeMainFunc        = "main_func"
	CodeInitFunc        = "init_func"
	CodePanic           = "panic"
	CodeGoroutine       = "goroutine"
	CodeGenericType     = "generic_type"
	CodeReserved        = "reserved_identifier"
	CodeReference       = "reference_skipped"
	CodeInterp          = "interp_error"
	CodeTimeout         = "timeout"
	CodeGlue            = "glue_error"
	CodeNoTypes         = "no_types"
)

// Diagnostic is one compiler finding. Line is 1-based; 0 means no position.
type Diagnostic struct {
	Severity  Severity
	Code      string
	Message   string
	Line      int
	Column    int
	Escalated bool // warning promoted to error
}

// Blocking reports whether the diagnostic fails the compile.
func (d Diagnostic) Blocking() bool {
	return d.Severity == SeverityError || d.Escalated
}

func (d Diagnostic) String() string {
	sev := d.Severity.String()
	if d.Escalated {
		sev = "warning(as error)"
	}
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s[%s]: %s", d.Line, sev, d.Code, d.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", sev, d.Code, d.Message)
}

// CompileError is returned when a source fails to compile. It blocks the
// reload cycle; no live state is touched.
type CompileError struct {
	Unit        string
	Diagnostics []Diagnostic
}

// Errors returns the blocking diagnostics.
func (e *CompileError) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range e.Diagnostics {
		if d.Blocking() {
			out = append(out, d)
		}
	}
	return out
}

func (e *CompileError) Error() string {
	errs := e.Errors()
	if len(errs) == 0 {
		return fmt.Sprintf("compile %s failed", e.Unit)
	}
	parts := make([]string, len(errs))
	for i, d := range errs {
		parts[i] = d.String()
	}
	return fmt.Sprintf("compile %s failed with %d error(s): %s", e.Unit, len(errs), strings.Join(parts, "; "))
}

func hasBlocking(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Blocking() {
			return true
		}
	}
	return false
}

func scannerDiagnostics(list scanner.ErrorList) []Diagnostic {
	out := make([]Diagnostic, 0, len(list))
	for _, e := range list {
		out = append(out, Diagnostic{
			Severity: SeverityError,
			Code:     CodeParse,
			Message:  e.Msg,
			Line:     e.Pos.Line,
			Column:   e.Pos.Column,
		})
	}
	return out
}

// positioned matches "file:line:col: msg" and "line:col: msg".
var positioned = regexp.MustCompile(`^(?:.*?:)?(\d+):(\d+): (.*)$`)

// interpDiagnostics converts an interpreter error into diagnostics. Lines
// beyond sourceLines point into generated glue and are reported without a
// position.
func interpDiagnostics(err error, sourceLines int) []Diagnostic {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return []Diagnostic{{Severity: SeverityError, Code: CodeTimeout, Message: err.Error()}}
	}
	var list scanner.ErrorList
	if errors.As(err, &list) {
		return scannerDiagnostics(list)
	}

	var out []Diagnostic
	for _, line := range strings.Split(strings.TrimSpace(err.Error()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d := Diagnostic{Severity: SeverityError, Code: CodeInterp, Message: line}
		if m := positioned.FindStringSubmatch(line); m != nil {
			ln, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			d.Message = m[3]
			if ln <= sourceLines {
				d.Line, d.Column = ln, col
			} else {
				d.Code = CodeGlue
			}
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = append(out, Diagnostic{Severity: SeverityError, Code: CodeInterp, Message: "interpreter failed without a message"})
	}
	return out
}
