// Package invoke calls methods on live instances by name, with arguments
// given as kinded parameters.
package invoke

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime/debug"
	"strings"

	"hotswap/internal/logging"
	"hotswap/internal/registry"
	"hotswap/internal/unit"
)

var (
	// ErrMethodNotFound is returned when no method matches the request.
	ErrMethodNotFound = errors.New("method not found")
	// ErrArgumentMismatch is returned when arguments do not fit the method.
	ErrArgumentMismatch = errors.New("argument mismatch")
	// ErrPanic is wrapped when the method panics.
	ErrPanic = errors.New("method panicked")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Request names a method and its arguments.
type Request struct {
	Method string
	Params []Param
}

func (r Request) String() string {
	parts := make([]string, len(r.Params))
	for i, p := range r.Params {
		parts[i] = string(p.Kind)
	}
	return r.Method + "(" + strings.Join(parts, ", ") + ")"
}

// Error is an invocation failure. Available lists every declared method when
// the name did not resolve.
type Error struct {
	Method    string
	Type      string
	Available []string
	Stack     string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("invoke %s on %s: %v", e.Method, e.Type, e.Err)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Result holds the non-error return values of a call.
type Result struct {
	Method *unit.MethodDescriptor
	Values []interface{}
}

// Resolve picks the method for name and the given argument types. An
// exact-case name is preferred over a case-folded one; within those, a
// candidate whose parameter types equal the argument types wins, and
// otherwise the first candidate by name is used.
func Resolve(t *unit.TypeDescriptor, name string, argTypes []reflect.Type) (*unit.MethodDescriptor, error) {
	var exact, folded []*unit.MethodDescriptor
	for _, m := range t.Methods {
		switch {
		case m.Name == name:
			exact = append(exact, m)
		case strings.EqualFold(m.Name, name):
			folded = append(folded, m)
		}
	}
	candidates := append(exact, folded...)
	if len(candidates) == 0 {
		return nil, &Error{Method: name, Type: t.QualifiedName(), Available: t.MethodNames(), Err: ErrMethodNotFound}
	}
	for _, m := range candidates {
		if signatureMatches(m, argTypes) {
			return m, nil
		}
	}
	return candidates[0], nil
}

func signatureMatches(m *unit.MethodDescriptor, argTypes []reflect.Type) bool {
	if !m.Variadic {
		if len(argTypes) != len(m.In) {
			return false
		}
		for i, in := range m.In {
			if argTypes[i] != in {
				return false
			}
		}
		return true
	}
	fixed := len(m.In) - 1
	if len(argTypes) < fixed {
		return false
	}
	for i := 0; i < fixed; i++ {
		if argTypes[i] != m.In[i] {
			return false
		}
	}
	elem := m.In[fixed].Elem()
	for _, at := range argTypes[fixed:] {
		if at != elem {
			return false
		}
	}
	return true
}

// Invoke calls req.Method on inst. Panics and non-nil trailing errors are
// recovered, logged with their stack, and returned as *Error.
func Invoke(inst *unit.Instance, req Request) (*Result, error) {
	log := logging.Get(logging.CategoryInvoke)
	if inst == nil || !inst.Value.IsValid() {
		return nil, &Error{Method: req.Method, Err: registry.ErrNilInstance}
	}
	typeName := inst.Type.QualifiedName()
	fail := func(err *Error) (*Result, error) {
		err.Method, err.Type = req.Method, typeName
		if err.Stack != "" {
			log.Error("%v\n%s", err, err.Stack)
		} else {
			log.Warn("%v", err)
		}
		return nil, err
	}

	args := make([]reflect.Value, len(req.Params))
	argTypes := make([]reflect.Type, len(req.Params))
	for i, p := range req.Params {
		v, err := p.Marshal()
		if err != nil {
			return fail(&Error{Err: fmt.Errorf("%w: %v", ErrArgumentMismatch, err)})
		}
		args[i], argTypes[i] = v, v.Type()
	}

	m, err := Resolve(inst.Type, req.Method, argTypes)
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			return fail(ie)
		}
		return fail(&Error{Err: err})
	}

	in, err := bindArgs(m, args)
	if err != nil {
		return fail(&Error{Err: err})
	}

	out, stack, err := call(m, inst.Value, in)
	if err != nil {
		return fail(&Error{Err: err, Stack: stack})
	}

	res := &Result{Method: m}
	for i, o := range out {
		if i == len(out)-1 && m.Out[i] == errorType {
			if !o.IsNil() {
				return fail(&Error{Err: o.Interface().(error), Stack: string(debug.Stack())})
			}
			continue
		}
		res.Values = append(res.Values, o.Interface())
	}
	log.Debug("invoked %s on %s", m.Signature(), inst)
	return res, nil
}

// bindArgs converts args to the method's parameter types. Variadic trailing
// arguments are packed into the final slice.
func bindArgs(m *unit.MethodDescriptor, args []reflect.Value) ([]reflect.Value, error) {
	if !m.Variadic {
		if len(args) != len(m.In) {
			return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrArgumentMismatch, m.Signature(), len(m.In), len(args))
		}
		out := make([]reflect.Value, len(args))
		for i, a := range args {
			v, ok := coerce(a, m.In[i])
			if !ok {
				return nil, fmt.Errorf("%w: argument %d: cannot use %s as %s", ErrArgumentMismatch, i, a.Type(), m.In[i])
			}
			out[i] = v
		}
		return out, nil
	}

	fixed := len(m.In) - 1
	if len(args) < fixed {
		return nil, fmt.Errorf("%w: %s expects at least %d argument(s), got %d", ErrArgumentMismatch, m.Signature(), fixed, len(args))
	}
	out := make([]reflect.Value, 0, len(m.In))
	for i := 0; i < fixed; i++ {
		v, ok := coerce(args[i], m.In[i])
		if !ok {
			return nil, fmt.Errorf("%w: argument %d: cannot use %s as %s", ErrArgumentMismatch, i, args[i].Type(), m.In[i])
		}
		out = append(out, v)
	}
	sliceType := m.In[fixed]
	rest := reflect.MakeSlice(sliceType, 0, len(args)-fixed)
	for i := fixed; i < len(args); i++ {
		v, ok := coerce(args[i], sliceType.Elem())
		if !ok {
			return nil, fmt.Errorf("%w: argument %d: cannot use %s as %s", ErrArgumentMismatch, i, args[i].Type(), sliceType.Elem())
		}
		rest = reflect.Append(rest, v)
	}
	return append(out, rest), nil
}

// coerce converts v to t when assignable, between numeric kinds without
// loss, or between types of the same kind.
func coerce(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	vt := v.Type()
	if vt.AssignableTo(t) {
		return v, true
	}
	if isNumeric(vt.Kind()) && isNumeric(t.Kind()) {
		return convertNumeric(v, t)
	}
	if vt.Kind() == t.Kind() && vt.ConvertibleTo(t) {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

// convertNumeric converts v to t only when the value survives unchanged:
// no overflow, no dropped fraction, no negative into unsigned.
func convertNumeric(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	zero := reflect.Zero(t)
	switch {
	case isInt(t.Kind()):
		var n int64
		switch {
		case isInt(v.Kind()):
			n = v.Int()
		case isUint(v.Kind()):
			u := v.Uint()
			if u > math.MaxInt64 {
				return reflect.Value{}, false
			}
			n = int64(u)
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, false
			}
			n = int64(f)
		}
		if zero.OverflowInt(n) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(n).Convert(t), true

	case isUint(t.Kind()):
		var u uint64
		switch {
		case isInt(v.Kind()):
			n := v.Int()
			if n < 0 {
				return reflect.Value{}, false
			}
			u = uint64(n)
		case isUint(v.Kind()):
			u = v.Uint()
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return reflect.Value{}, false
			}
			u = uint64(f)
		}
		if zero.OverflowUint(u) {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(u).Convert(t), true

	default:
		if isInt(v.Kind()) || isUint(v.Kind()) {
			// integers above 2^53 do not round-trip through a float
			out := v.Convert(t)
			if !out.Convert(v.Type()).Equal(v) {
				return reflect.Value{}, false
			}
			return out, true
		}
		if zero.OverflowFloat(v.Float()) {
			return reflect.Value{}, false
		}
		return v.Convert(t), true
	}
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func call(m *unit.MethodDescriptor, recv reflect.Value, in []reflect.Value) (out []reflect.Value, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			stack = string(debug.Stack())
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return m.Call(recv, in), "", nil
}
