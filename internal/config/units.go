package config

import (
	"path/filepath"
	"strings"
)

// UnitConfig names one source unit.
type UnitConfig struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path"`
}

// UnitName returns the configured name, or the file name without extension.
func (u UnitConfig) UnitName() string {
	if u.Name != "" {
		return u.Name
	}
	return strings.TrimSuffix(filepath.Base(u.Path), filepath.Ext(u.Path))
}

// ObjectConfig describes a tracked object. When Container is set the object
// is host-owned and lives in that container; otherwise it is a managed
// instance in the registry under Key.
type ObjectConfig struct {
	Key       string       `yaml:"key,omitempty"`
	Type      string       `yaml:"type"`
	Container string       `yaml:"container,omitempty"`
	Calls     []CallConfig `yaml:"calls,omitempty"`
}

// ObjectKey returns the registry key (defaults to the type name).
func (o ObjectConfig) ObjectKey() string {
	if o.Key != "" {
		return o.Key
	}
	return o.Type
}

// IsHostOwned reports whether the object lives in a host container.
func (o ObjectConfig) IsHostOwned() bool {
	return o.Container != ""
}

// CallConfig is a method call request.
type CallConfig struct {
	Method string        `yaml:"method"`
	Params []ParamConfig `yaml:"params,omitempty"`
}

// ParamConfig is one typed argument.
// Value holds a scalar for string/int/float/bool and a three-element list
// (or x/y/z map) for vector3.
type ParamConfig struct {
	Name  string      `yaml:"name,omitempty"`
	Kind  string      `yaml:"kind"`
	Value interface{} `yaml:"value"`
}

var kinds = map[string]bool{
	"string":  true,
	"int":     true,
	"float":   true,
	"bool":    true,
	"vector3": true,
}

func validKind(kind string) bool {
	return kinds[strings.ToLower(kind)]
}
