package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Source is one submitted source text.
type Source struct {
	Name string // base name for the unit
	Path string // file path, empty for in-memory text
	Text string
}

// FromText wraps in-memory source text.
func FromText(name, text string) Source {
	return Source{Name: name, Text: text}
}

// ErrNotUTF8 is wrapped by SourceError for undecodable files.
var ErrNotUTF8 = errors.New("source is not valid UTF-8")

// SourceError reports a source file that could not be read.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// LoadFile reads a source file. The unit name defaults to the file's base
// name without extension.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, &SourceError{Path: path, Err: err}
	}
	if !utf8.Valid(data) {
		return Source{}, &SourceError{Path: path, Err: ErrNotUTF8}
	}
	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	return Source{Name: name, Path: path, Text: string(data)}, nil
}

// Label identifies the source in logs and errors.
func (s Source) Label() string {
	if s.Path != "" {
		return s.Path
	}
	if s.Name != "" {
		return s.Name
	}
	return "<source>"
}
