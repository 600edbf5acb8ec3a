// Package resolver assembles the reference set offered to the compiler: the
// symbol tables submitted source may import.
package resolver

import (
	"path"
	"reflect"
	"sort"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"hotswap/internal/logging"
	"hotswap/pkg/host"
)

// Library is a set of compiled-in packages exposed to the interpreter,
// keyed "importpath/name" like yaegi's own symbol tables.
type Library struct {
	Name      string
	Symbols   map[string]map[string]reflect.Value
	Generated bool // produced by the engine; never offered as a reference
}

// HostLibrary is the framework library every unit may import.
var HostLibrary = Library{Name: "host", Symbols: host.Symbols}

// References is one resolved reference set.
type References struct {
	Exports  interp.Exports
	Packages []string // importable paths, sorted
}

// Allows reports whether source may import the given path.
func (r References) Allows(importPath string) bool {
	i := sort.SearchStrings(r.Packages, importPath)
	return i < len(r.Packages) && r.Packages[i] == importPath
}

// Warning reports a reference that was skipped.
type Warning struct {
	Package string
	Message string
}

// Resolver builds reference sets. Safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	allowed   []string
	libraries []Library
}

// New creates a resolver over the allowlisted stdlib packages and the given
// libraries. The host library is always included.
func New(allowed []string, libs ...Library) *Resolver {
	r := &Resolver{allowed: append([]string(nil), allowed...)}
	r.libraries = append(r.libraries, HostLibrary)
	r.libraries = append(r.libraries, libs...)
	return r
}

// Register adds a compiled-in library.
func (r *Resolver) Register(lib Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries = append(r.libraries, lib)
}

// Resolve returns the current reference set. An allowlisted package without
// a symbol table is skipped with a warning rather than failing resolution.
func (r *Resolver) Resolve() (References, []Warning) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := logging.Get(logging.CategoryResolver)
	refs := References{Exports: interp.Exports{}}
	var warnings []Warning
	seen := make(map[string]bool)

	for _, p := range r.allowed {
		key := p + "/" + path.Base(p)
		syms, ok := stdlib.Symbols[key]
		if !ok {
			log.Warn("skipping reference %q: no symbol table", p)
			warnings = append(warnings, Warning{Package: p, Message: "no symbol table for package"})
			continue
		}
		refs.Exports[key] = syms
		if !seen[p] {
			seen[p] = true
			refs.Packages = append(refs.Packages, p)
		}
	}

	for _, lib := range r.libraries {
		if lib.Generated {
			log.Debug("excluding generated library %s from references", lib.Name)
			continue
		}
		for key, syms := range lib.Symbols {
			refs.Exports[key] = syms
			p := path.Dir(key)
			if !seen[p] {
				seen[p] = true
				refs.Packages = append(refs.Packages, p)
			}
		}
	}

	sort.Strings(refs.Packages)
	log.Debug("resolved %d references (%d skipped)", len(refs.Packages), len(warnings))
	return refs, warnings
}
