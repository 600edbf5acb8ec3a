package unit

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// StaticUnitName names the pseudo-unit of compiled-in types whose package
// path is empty.
const StaticUnitName = "static"

var describeCache sync.Map // reflect.Type -> *TypeDescriptor

// Describe builds (and caches) the descriptor of a compiled-in struct type.
// t may be the struct type or a pointer to it. Every field is described;
// only exported methods are callable, since reflection cannot reach others.
func Describe(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, fmt.Errorf("%v: %w", t, ErrNotStruct)
	}
	if cached, ok := describeCache.Load(t); ok {
		return cached.(*TypeDescriptor), nil
	}

	unitName := t.PkgPath()
	if unitName == "" {
		unitName = StaticUnitName
	}

	fields := make([]FieldDescriptor, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fields = append(fields, FieldDescriptor{Name: f.Name, GoName: f.Name, TypeName: f.Type.String()})
	}

	pt := reflect.PointerTo(t)
	methods := make([]*MethodDescriptor, 0, pt.NumMethod())
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		var results []string
		for j := 0; j < m.Type.NumOut(); j++ {
			results = append(results, m.Type.Out(j).String())
		}
		md, err := NewMethod(m.Name, nil, results, m.Func)
		if err != nil {
			return nil, err
		}
		methods = append(methods, md)
	}

	st := t
	ctor := func() (reflect.Value, error) { return reflect.New(st), nil }
	desc := NewType(t.Name(), unitName, false, pt, ctor, fields, methods)

	actual, _ := describeCache.LoadOrStore(t, desc)
	return actual.(*TypeDescriptor), nil
}

// Wrap turns a compiled-in pointer-to-struct into an Instance.
func Wrap(v interface{}) (*Instance, error) {
	if inst, ok := v.(*Instance); ok {
		if inst == nil {
			return nil, ErrNotStruct
		}
		return inst, nil
	}
	rv := reflect.ValueOf(v)
	if !isStructPtr(rv) {
		return nil, fmt.Errorf("%T: %w", v, ErrNotStruct)
	}
	desc, err := Describe(rv.Type())
	if err != nil {
		return nil, err
	}
	return NewInstance(desc, rv), nil
}

// NewStatic groups compiled-in types into a non-dynamic unit. Each sample is
// a value or pointer of the struct type to register.
func NewStatic(name string, samples ...interface{}) (*Unit, error) {
	u := &Unit{Name: name, Base: name, LoadedAt: time.Now()}
	for _, s := range samples {
		desc, err := Describe(reflect.TypeOf(s))
		if err != nil {
			return nil, err
		}
		u.Types = append(u.Types, desc)
	}
	return u, nil
}
