package invoke

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"hotswap/pkg/host"
)

// Kind is the declared kind of a call parameter.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindBool    Kind = "bool"
	KindVector3 Kind = "vector3"
)

var kindTypes = map[Kind]reflect.Type{
	KindString:  reflect.TypeOf(""),
	KindInt:     reflect.TypeOf(0),
	KindFloat:   reflect.TypeOf(float64(0)),
	KindBool:    reflect.TypeOf(false),
	KindVector3: reflect.TypeOf(host.Vector3{}),
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindTypes[k]; !ok {
		return "", fmt.Errorf("unknown parameter kind %q", s)
	}
	return k, nil
}

// GoType returns the Go type a kind marshals to.
func (k Kind) GoType() reflect.Type {
	return kindTypes[k]
}

// Param is one named, kinded call argument.
type Param struct {
	Name  string
	Kind  Kind
	Value interface{}
}

// Marshal converts the parameter to its Go value. Values decoded from
// configuration are accepted in their natural YAML shapes.
func (p Param) Marshal() (reflect.Value, error) {
	v, err := marshalValue(p.Kind, p.Value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("param %s (%s): %w", p.Name, p.Kind, err)
	}
	return reflect.ValueOf(v), nil
}

func marshalValue(k Kind, raw interface{}) (interface{}, error) {
	switch k {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return s, nil
	case KindInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int(v), nil
		case string:
			return strconv.Atoi(strings.TrimSpace(v))
		}
	case KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		}
	case KindVector3:
		return marshalVector(raw)
	default:
		return nil, fmt.Errorf("unknown kind %q", k)
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, k)
}

func marshalVector(raw interface{}) (host.Vector3, error) {
	var parts []interface{}
	switch v := raw.(type) {
	case host.Vector3:
		return v, nil
	case *host.Vector3:
		if v == nil {
			return host.Vector3{}, fmt.Errorf("nil vector")
		}
		return *v, nil
	case []interface{}:
		parts = v
	case map[string]interface{}:
		parts = []interface{}{v["x"], v["y"], v["z"]}
	case []float64:
		for _, f := range v {
			parts = append(parts, f)
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			parts = append(parts, strings.TrimSpace(s))
		}
	default:
		return host.Vector3{}, fmt.Errorf("cannot use %T as vector3", raw)
	}
	if len(parts) != 3 {
		return host.Vector3{}, fmt.Errorf("vector3 needs 3 components, got %d", len(parts))
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := marshalValue(KindFloat, p)
		if err != nil {
			return host.Vector3{}, fmt.Errorf("component %d: %w", i, err)
		}
		xyz[i] = f.(float64)
	}
	return host.V3(xyz[0], xyz[1], xyz[2]), nil
}

// ParseParam parses the command-line form name:kind=value. The name is
// optional (kind=value); vector3 values are written x,y,z.
func ParseParam(s string) (Param, error) {
	lhs, value, ok := strings.Cut(s, "=")
	if !ok {
		return Param{}, fmt.Errorf("param %q: want name:kind=value", s)
	}
	name, kindName, hasName := strings.Cut(lhs, ":")
	if !hasName {
		name, kindName = "", lhs
	}
	k, err := ParseKind(kindName)
	if err != nil {
		return Param{}, fmt.Errorf("param %q: %w", s, err)
	}
	p := Param{Name: name, Kind: k, Value: value}
	if _, err := p.Marshal(); err != nil {
		return Param{}, err
	}
	return p, nil
}
