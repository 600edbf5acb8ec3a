package state

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/internal/unit"
)

type playerV1 struct {
	a    int
	b    string
	tags []string
}

type playerRenamed struct {
	a int
	c string
}

type playerRetyped struct {
	a string
	b string
}

type holder struct {
	Any interface{}
	Ptr *int
}

type counted struct {
	Any int
	Ptr int
}

func describe(t *testing.T, sample interface{}) *unit.TypeDescriptor {
	t.Helper()
	desc, err := unit.Describe(reflect.TypeOf(sample))
	require.NoError(t, err)
	return desc
}

func capture(t *testing.T, key string, v interface{}) FieldSnapshot {
	t.Helper()
	inst, err := unit.Wrap(v)
	require.NoError(t, err)
	snap, warnings := Capture(key, inst)
	require.Empty(t, warnings)
	return snap
}

func TestCapture_IncludesUnexportedFields(t *testing.T) {
	snap := capture(t, "hero", &playerV1{a: 5, b: "x"})

	assert.Equal(t, "hero", snap.OwnerKey)
	assert.Equal(t, "playerV1", snap.TypeName)
	assert.Equal(t, []string{"a", "b", "tags"}, snap.Names())

	a, ok := snap.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(5), a.Int())
	_, ok = snap.Get("zzz")
	assert.False(t, ok)
}

func TestCapture_IsDetachedFromSource(t *testing.T) {
	p := &playerV1{a: 5}
	snap := capture(t, "hero", p)
	p.a = 99

	a, _ := snap.Get("a")
	assert.Equal(t, int64(5), a.Int())
}

func TestMigrate_RoundTrip(t *testing.T) {
	snap := capture(t, "hero", &playerV1{a: 5, b: "x"})

	inst, res, err := Migrate(snap, describe(t, playerV1{}))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 3, res.Restored)

	got := inst.Interface().(*playerV1)
	assert.Equal(t, 5, got.a)
	assert.Equal(t, "x", got.b)
	assert.Nil(t, got.tags)
}

func TestMigrate_FieldRenameDropsOldValue(t *testing.T) {
	snap := capture(t, "hero", &playerRenamed{a: 5, c: "unused"})
	snap = FieldSnapshot{OwnerKey: "hero", Fields: []FieldValue{
		snap.Fields[0],
		{Name: "b", TypeName: "string", Value: reflect.ValueOf("x")},
	}}

	inst, res, err := Migrate(snap, describe(t, playerRenamed{}))
	require.NoError(t, err)

	got := inst.Interface().(*playerRenamed)
	assert.Equal(t, 5, got.a)
	assert.Equal(t, "", got.c)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ReasonMissingField, res.Warnings[0].Reason)
	assert.Equal(t, "b", res.Warnings[0].Field)
}

func TestMigrate_IncompatibleTypeIsSkippedNotCoerced(t *testing.T) {
	snap := capture(t, "hero", &playerV1{a: 5, b: "x"})

	inst, res, err := Migrate(snap, describe(t, playerRetyped{}))
	require.NoError(t, err)

	got := inst.Interface().(*playerRetyped)
	assert.Equal(t, "", got.a)
	assert.Equal(t, "x", got.b)

	reasons := map[string]Reason{}
	for _, w := range res.Warnings {
		reasons[w.Field] = w.Reason
	}
	assert.Equal(t, ReasonIncompatible, reasons["a"])
	assert.Equal(t, ReasonMissingField, reasons["tags"])
	assert.Contains(t, res.Warnings[0].Error(), "int -> string")
}

func TestRestore_InterfaceAndAbsentValues(t *testing.T) {
	snap := capture(t, "h", &holder{Any: 3})

	inst, err := unit.Wrap(&counted{Ptr: 4})
	require.NoError(t, err)
	res := Restore(snap, inst)

	got := inst.Interface().(*counted)
	assert.Equal(t, 3, got.Any, "interface holding an int lands in an int field")
	assert.Equal(t, 4, got.Ptr, "nil pointer cannot clear a non-nillable field")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Ptr", res.Warnings[0].Field)
}

func TestRestore_AbsentIntoNillable(t *testing.T) {
	snap := capture(t, "h", &playerV1{})
	dst := &playerV1{tags: []string{"stale"}}
	inst, err := unit.Wrap(dst)
	require.NoError(t, err)

	res := Restore(snap, inst)
	assert.Empty(t, res.Warnings)
	assert.Nil(t, dst.tags)
}

// interpreted mimics how an interpreter lays out a struct with unexported
// fields: the reflect-level names carry an X prefix.
type interpreted struct {
	Xa int
	Xb string
}

func interpretedType() *unit.TypeDescriptor {
	rtype := reflect.TypeOf(&interpreted{})
	fields, _ := unit.ResolveFields(rtype, []unit.FieldDescriptor{
		{Name: "a", TypeName: "int"},
		{Name: "b", TypeName: "string"},
	})
	return unit.NewType("playerV1", "player_2", true, rtype, func() (reflect.Value, error) {
		return reflect.New(rtype.Elem()), nil
	}, fields, nil)
}

func TestMigrate_IntoInterpretedLayout(t *testing.T) {
	snap := capture(t, "hero", &playerV1{a: 5, b: "x"})

	inst, res, err := Migrate(snap, interpretedType())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Restored)

	got := inst.Interface().(*interpreted)
	assert.Equal(t, interpreted{Xa: 5, Xb: "x"}, *got)

	back, warnings := Capture("hero", inst)
	require.Empty(t, warnings)
	assert.Equal(t, []string{"a", "b"}, back.Names())
}

func TestMigrate_ConstructorFailure(t *testing.T) {
	broken := unit.NewType("playerV1", "player_3", true, nil, nil, nil, nil)
	_, _, err := Migrate(FieldSnapshot{OwnerKey: "hero"}, broken)
	assert.Error(t, err)
}

func TestCapture_UnreadableFieldIsSkipped(t *testing.T) {
	rtype := reflect.TypeOf(&interpreted{})
	desc := unit.NewType("ghosty", "u", true, rtype, nil, []unit.FieldDescriptor{
		{Name: "a", GoName: "Xa", TypeName: "int"},
		{Name: "gone", GoName: "Xgone", TypeName: "int"},
	}, nil)
	inst := unit.NewInstance(desc, reflect.ValueOf(&interpreted{Xa: 1}))

	snap, warnings := Capture("g", inst)
	assert.Equal(t, []string{"a"}, snap.Names())
	require.Len(t, warnings, 1)
	assert.Equal(t, ReasonUnreadable, warnings[0].Reason)
}

func TestAssignable(t *testing.T) {
	intT := reflect.TypeOf(0)
	sliceT := reflect.TypeOf([]int(nil))
	assert.True(t, Assignable(reflect.ValueOf(1), intT))
	assert.False(t, Assignable(reflect.ValueOf("1"), intT))
	assert.True(t, Assignable(reflect.Value{}, sliceT))
	assert.False(t, Assignable(reflect.Value{}, intT))
}
