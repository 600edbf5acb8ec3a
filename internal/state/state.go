// Package state captures the field-level state of live instances and
// transfers it onto instances of a replacement type.
//
// Transfer is name-keyed and structural: a snapshot entry lands in the
// same-named field of the new type when its value is assignable there, and is
// dropped with a warning otherwise. Nothing here knows about compilers; the
// functions are pure over (snapshot, descriptor).
package state

import (
	"fmt"
	"reflect"
	"time"

	"hotswap/internal/unit"
)

// FieldValue is one captured field.
type FieldValue struct {
	Name     string
	TypeName string
	Value    reflect.Value // detached copy; invalid means absent
}

// FieldSnapshot is the flat, ordered capture of one instance's fields.
type FieldSnapshot struct {
	OwnerKey   string
	TypeName   string // simple name of the captured type
	InstanceID string
	Fields     []FieldValue
	CapturedAt time.Time
}

// Get returns the captured value of a field.
func (s FieldSnapshot) Get(name string) (reflect.Value, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return reflect.Value{}, false
}

// Names lists captured field names in declaration order.
func (s FieldSnapshot) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Reason classifies a field-level migration problem.
type Reason string

const (
	ReasonUnreadable   Reason = "unreadable"
	ReasonUnwritable   Reason = "unwritable"
	ReasonMissingField Reason = "missing_field"
	ReasonIncompatible Reason = "incompatible_type"
)

// FieldWarning reports one field that could not be captured or restored.
// Only that field is affected.
type FieldWarning struct {
	OwnerKey string
	Field    string
	Reason   Reason
	Detail   string
}

func (w FieldWarning) Error() string {
	return fmt.Sprintf("field %s.%s: %s: %s", w.OwnerKey, w.Field, w.Reason, w.Detail)
}

// Result summarizes a restore.
type Result struct {
	Restored int
	Warnings []FieldWarning
}

// Capture copies every declared field of inst, exported or not. Fields whose
// value cannot be read are skipped with a warning.
func Capture(ownerKey string, inst *unit.Instance) (FieldSnapshot, []FieldWarning) {
	snap := FieldSnapshot{
		OwnerKey:   ownerKey,
		TypeName:   inst.Type.Name,
		InstanceID: inst.ID,
		CapturedAt: time.Now(),
	}
	var warnings []FieldWarning
	for _, f := range inst.Type.Fields {
		v, err := readField(inst, f)
		if err != nil {
			warnings = append(warnings, FieldWarning{OwnerKey: ownerKey, Field: f.Name, Reason: ReasonUnreadable, Detail: err.Error()})
			continue
		}
		snap.Fields = append(snap.Fields, FieldValue{Name: f.Name, TypeName: f.TypeName, Value: v})
	}
	return snap, warnings
}

func readField(inst *unit.Instance, f unit.FieldDescriptor) (out reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read panicked: %v", r)
		}
	}()
	fv, err := inst.FieldValue(f)
	if err != nil {
		return reflect.Value{}, err
	}
	cp := reflect.New(fv.Type()).Elem()
	cp.Set(fv)
	return cp, nil
}

// Restore writes snapshot values into inst's same-named, type-compatible
// fields. Every snapshot entry that cannot be placed produces one warning.
func Restore(snap FieldSnapshot, inst *unit.Instance) Result {
	var res Result
	for _, fv := range snap.Fields {
		fd, ok := inst.Type.Field(fv.Name)
		if !ok {
			res.Warnings = append(res.Warnings, FieldWarning{
				OwnerKey: snap.OwnerKey, Field: fv.Name, Reason: ReasonMissingField,
				Detail: fmt.Sprintf("%s has no field %q", inst.Type.QualifiedName(), fv.Name),
			})
			continue
		}
		target, err := inst.FieldValue(fd)
		if err != nil {
			res.Warnings = append(res.Warnings, FieldWarning{OwnerKey: snap.OwnerKey, Field: fv.Name, Reason: ReasonUnwritable, Detail: err.Error()})
			continue
		}
		value, ok := assignableValue(fv.Value, target.Type())
		if !ok {
			res.Warnings = append(res.Warnings, FieldWarning{
				OwnerKey: snap.OwnerKey, Field: fv.Name, Reason: ReasonIncompatible,
				Detail: fmt.Sprintf("%s -> %s", describeValueType(fv), target.Type()),
			})
			continue
		}
		if err := writeField(target, value); err != nil {
			res.Warnings = append(res.Warnings, FieldWarning{OwnerKey: snap.OwnerKey, Field: fv.Name, Reason: ReasonUnwritable, Detail: err.Error()})
			continue
		}
		res.Restored++
	}
	return res
}

func writeField(target, value reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write panicked: %v", r)
		}
	}()
	target.Set(value)
	return nil
}

// Migrate default-constructs newType and restores snap into it.
// A construction failure is returned as an error; field problems are
// reported in the result.
func Migrate(snap FieldSnapshot, newType *unit.TypeDescriptor) (*unit.Instance, Result, error) {
	inst, err := newType.New()
	if err != nil {
		return nil, Result{}, err
	}
	return inst, Restore(snap, inst), nil
}

// Assignable reports whether v may be stored in a field of type target,
// including the "absent value into a nillable field" case.
func Assignable(v reflect.Value, target reflect.Type) bool {
	_, ok := assignableValue(v, target)
	return ok
}

func assignableValue(v reflect.Value, target reflect.Type) (reflect.Value, bool) {
	if isAbsent(v) {
		if admitsAbsent(target) {
			return reflect.Zero(target), true
		}
		return reflect.Value{}, false
	}
	if v.Type().AssignableTo(target) {
		return v, true
	}
	// An interface-typed field holding a concrete value: judge by the value.
	if v.Kind() == reflect.Interface && v.Elem().Type().AssignableTo(target) {
		return v.Elem(), true
	}
	return reflect.Value{}, false
}

func isAbsent(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}

func admitsAbsent(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

func describeValueType(fv FieldValue) string {
	if !fv.Value.IsValid() {
		return "nil"
	}
	return fv.Value.Type().String()
}
