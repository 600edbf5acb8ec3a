// Package unit defines the data model shared by the reload engine: code units,
// the type descriptors they carry, live instances of those types, and the
// engine-owned table that maps a simple type name to its freshest version.
package unit

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotStruct is returned when a value is not a non-nil pointer to a struct.
	ErrNotStruct = errors.New("value is not a pointer to a struct")
	// ErrNoConstructor is returned by New on a descriptor without a constructor.
	ErrNoConstructor = errors.New("type has no constructor")
	// ErrFieldNotFound is returned when a declared field has no runtime counterpart.
	ErrFieldNotFound = errors.New("field not found")
)

// Unit is one loaded batch of type definitions. A successful recompilation
// produces a new Unit; existing units are never mutated.
type Unit struct {
	Name     string // unique, e.g. player_3f2a...
	Base     string // name the unit was submitted under
	Dynamic  bool   // produced by the compiler at runtime
	Types    []*TypeDescriptor
	LoadedAt time.Time
}

// Lookup returns the unit's type with the given simple name.
func (u *Unit) Lookup(name string) (*TypeDescriptor, bool) {
	for _, t := range u.Types {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TypeNames lists the simple names of the unit's types.
func (u *Unit) TypeNames() []string {
	names := make([]string, len(u.Types))
	for i, t := range u.Types {
		names[i] = t.Name
	}
	return names
}

// UniqueName derives a never-reused unit name from base.
func UniqueName(base string) string {
	base = strings.TrimSuffix(base, ".go")
	if base == "" {
		base = "unit"
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FieldDescriptor describes one declared field.
// GoName is the reflect-level name, which differs from Name when the runtime
// representation renames unexported fields.
type FieldDescriptor struct {
	Name     string
	GoName   string
	TypeName string
}

// ParamDescriptor describes one declared method parameter.
type ParamDescriptor struct {
	Name     string
	TypeName string
}

// MethodDescriptor describes a callable method. fn takes the receiver first.
type MethodDescriptor struct {
	Name     string
	Params   []ParamDescriptor
	Results  []string
	Variadic bool
	In       []reflect.Type // parameter types, receiver excluded
	Out      []reflect.Type

	fn reflect.Value
}

// NewMethod builds a descriptor around a receiver-first function value.
func NewMethod(name string, params []ParamDescriptor, results []string, fn reflect.Value) (*MethodDescriptor, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("method %s: not a function", name)
	}
	ft := fn.Type()
	if ft.NumIn() < 1 {
		return nil, fmt.Errorf("method %s: function has no receiver parameter", name)
	}
	m := &MethodDescriptor{
		Name:     name,
		Params:   params,
		Results:  results,
		Variadic: ft.IsVariadic(),
		fn:       fn,
	}
	for i := 1; i < ft.NumIn(); i++ {
		m.In = append(m.In, ft.In(i))
	}
	for i := 0; i < ft.NumOut(); i++ {
		m.Out = append(m.Out, ft.Out(i))
	}
	if len(m.Params) == 0 && len(m.In) > 0 {
		for i, in := range m.In {
			m.Params = append(m.Params, ParamDescriptor{Name: fmt.Sprintf("a%d", i), TypeName: in.String()})
		}
	}
	return m, nil
}

// Call invokes the method on recv. Panics from the method propagate.
func (m *MethodDescriptor) Call(recv reflect.Value, args []reflect.Value) []reflect.Value {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, recv)
	in = append(in, args...)
	if m.Variadic {
		return m.fn.CallSlice(in)
	}
	return m.fn.Call(in)
}

// Signature renders the method as Name(T1, T2).
func (m *MethodDescriptor) Signature() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = p.TypeName
	}
	return m.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Constructor creates a fresh value: a non-nil pointer to the type's struct.
type Constructor func() (reflect.Value, error)

// TypeDescriptor describes one type of a unit.
type TypeDescriptor struct {
	Name    string
	Unit    string
	Dynamic bool
	Fields  []FieldDescriptor
	Methods []*MethodDescriptor

	rtype reflect.Type // pointer type
	ctor  Constructor
}

// NewType assembles a descriptor. rtype is the pointer type values have.
func NewType(name, unitName string, dynamic bool, rtype reflect.Type, ctor Constructor, fields []FieldDescriptor, methods []*MethodDescriptor) *TypeDescriptor {
	return &TypeDescriptor{
		Name:    name,
		Unit:    unitName,
		Dynamic: dynamic,
		Fields:  fields,
		Methods: methods,
		rtype:   rtype,
		ctor:    ctor,
	}
}

// QualifiedName returns unit.Name.
func (t *TypeDescriptor) QualifiedName() string {
	return t.Unit + "." + t.Name
}

func (t *TypeDescriptor) String() string {
	return t.QualifiedName()
}

// ReflectType returns the pointer type of the type's values.
func (t *TypeDescriptor) ReflectType() reflect.Type {
	return t.rtype
}

// Field looks up a declared field by name.
func (t *TypeDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// MethodNames lists every declared method name in declaration order.
func (t *TypeDescriptor) MethodNames() []string {
	names := make([]string, len(t.Methods))
	for i, m := range t.Methods {
		names[i] = m.Name
	}
	return names
}

// New default-constructs an instance. A panicking constructor is reported as
// an error.
func (t *TypeDescriptor) New() (inst *Instance, err error) {
	if t.ctor == nil {
		return nil, fmt.Errorf("%s: %w", t.QualifiedName(), ErrNoConstructor)
	}
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = fmt.Errorf("%s: constructor panicked: %v\n%s", t.QualifiedName(), r, debug.Stack())
		}
	}()
	v, err := t.ctor()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.QualifiedName(), err)
	}
	if !isStructPtr(v) {
		return nil, fmt.Errorf("%s: constructor result: %w", t.QualifiedName(), ErrNotStruct)
	}
	return NewInstance(t, v), nil
}

// Instance is a live object of a known type.
// The (Type, Value) pair never changes; a migration replaces the Instance.
type Instance struct {
	ID    string
	Type  *TypeDescriptor
	Value reflect.Value
}

// NewInstance pairs a value with its descriptor under a fresh ID.
func NewInstance(t *TypeDescriptor, v reflect.Value) *Instance {
	return &Instance{ID: uuid.NewString(), Type: t, Value: v}
}

// Interface returns the underlying Go value.
func (i *Instance) Interface() interface{} {
	return i.Value.Interface()
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s#%s", i.Type.QualifiedName(), shortID(i.ID))
}

// FieldValue returns a settable view of a declared field, including
// unexported ones.
func (i *Instance) FieldValue(f FieldDescriptor) (reflect.Value, error) {
	return settableField(i.Value, f.GoName)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func isStructPtr(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}
