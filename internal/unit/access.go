package unit

import (
	"fmt"
	"reflect"
	"unsafe"
)

// settableField returns a settable reflect view of the named field of the
// struct ptr points to. Unexported fields are reached through their address.
func settableField(ptr reflect.Value, goName string) (reflect.Value, error) {
	if !isStructPtr(ptr) {
		return reflect.Value{}, ErrNotStruct
	}
	fv := ptr.Elem().FieldByName(goName)
	if !fv.IsValid() {
		return reflect.Value{}, fmt.Errorf("%s: %w", goName, ErrFieldNotFound)
	}
	if fv.CanSet() {
		return fv, nil
	}
	if !fv.CanAddr() {
		return reflect.Value{}, fmt.Errorf("%s: field is not addressable", goName)
	}
	return reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem(), nil
}

// goFieldName finds the reflect-level name of a declared field on st.
// Interpreted struct types carry unexported fields under an exported alias,
// so the declared name is tried first and the X-prefixed alias second.
func goFieldName(st reflect.Type, declared string) (string, bool) {
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return "", false
	}
	if _, ok := st.FieldByName(declared); ok {
		return declared, true
	}
	alias := "X" + declared
	if _, ok := st.FieldByName(alias); ok {
		return alias, true
	}
	return "", false
}

// ResolveFields fills GoName on every declared field that exists on rtype.
// Fields without a runtime counterpart are returned separately.
func ResolveFields(rtype reflect.Type, declared []FieldDescriptor) (resolved []FieldDescriptor, missing []string) {
	for _, f := range declared {
		name, ok := goFieldName(rtype, f.Name)
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		f.GoName = name
		resolved = append(resolved, f)
	}
	return resolved, missing
}
