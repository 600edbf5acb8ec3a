package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/internal/state"
	"hotswap/internal/unit"
)

type enemy struct {
	Name string
	hp   int
}

type exploding struct{ Armed bool }

func lookupFor(types ...*unit.TypeDescriptor) Lookup {
	return func(name string) (*unit.TypeDescriptor, bool) {
		for _, t := range types {
			if t.Name == name {
				return t, true
			}
		}
		return nil, false
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	inst, err := r.RegisterValue("boss", &enemy{Name: "ogre", hp: 40})
	require.NoError(t, err)

	got, ok := r.Get("boss")
	require.True(t, ok)
	assert.Same(t, inst, got)
	assert.Equal(t, "ogre", got.Interface().(*enemy).Name)
	assert.Equal(t, []string{"boss"}, r.Keys())
	assert.Equal(t, 1, r.Len())
}

func TestRegister_AbsentInstanceIsANoOp(t *testing.T) {
	r := New()

	err := r.Register("ghost", nil)
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "register", re.Op)
	assert.True(t, errors.Is(err, ErrNilInstance))

	_, err = r.RegisterValue("ghost", nil)
	assert.True(t, errors.Is(err, ErrNilInstance))

	_, err = r.RegisterValue("ghost", (*enemy)(nil))
	assert.True(t, errors.Is(err, unit.ErrNotStruct))

	err = r.Register("", &unit.Instance{})
	assert.True(t, errors.Is(err, ErrEmptyKey))

	assert.Zero(t, r.Len())
}

func TestCreateAndRegister(t *testing.T) {
	desc, err := unit.Describe(reflect.TypeOf(enemy{}))
	require.NoError(t, err)
	r := New()

	inst, err := r.CreateAndRegister("e1", "enemy", lookupFor(desc))
	require.NoError(t, err)
	assert.Same(t, desc, inst.Type)

	_, err = r.CreateAndRegister("e2", "dragon", lookupFor(desc))
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "dragon", re.TypeName)
	assert.True(t, errors.Is(err, ErrTypeNotFound))

	_, ok := r.Get("e2")
	assert.False(t, ok)
}

func TestCreateAndRegister_ConstructorPanic(t *testing.T) {
	desc := unit.NewType("exploding", "test", true, reflect.TypeOf(&exploding{}),
		func() (reflect.Value, error) { panic("kaboom") }, nil, nil)
	r := New()

	_, err := r.CreateAndRegister("x", "exploding", lookupFor(desc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Zero(t, r.Len())
}

func TestSwap_ComparesCurrentInstance(t *testing.T) {
	r := New()
	a, err := r.RegisterValue("k", &enemy{Name: "a"})
	require.NoError(t, err)
	b, err := unit.Wrap(&enemy{Name: "b"})
	require.NoError(t, err)
	c, err := unit.Wrap(&enemy{Name: "c"})
	require.NoError(t, err)

	assert.True(t, r.Swap("k", a, b))
	assert.False(t, r.Swap("k", a, c), "stale old instance must not swap")
	assert.False(t, r.Swap("missing", a, c))

	got, _ := r.Get("k")
	assert.Same(t, b, got)
}

func TestSnapshotsAndClear(t *testing.T) {
	r := New()
	inst, err := r.RegisterValue("k", &enemy{Name: "troll", hp: 9})
	require.NoError(t, err)

	snap, warnings := state.Capture("k", inst)
	require.Empty(t, warnings)
	r.StoreSnapshot(snap)

	got, ok := r.Snapshot("k")
	require.True(t, ok)
	assert.Equal(t, []string{"Name", "hp"}, got.Names())
	assert.Len(t, r.Snapshots(), 1)

	r.ClearSnapshots()
	_, ok = r.Snapshot("k")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	r.StoreSnapshot(snap)
	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshots())
}

func TestRemove(t *testing.T) {
	r := New()
	_, err := r.RegisterValue("k", &enemy{})
	require.NoError(t, err)
	assert.True(t, r.Remove("k"))
	assert.False(t, r.Remove("k"))
}

func TestInfo(t *testing.T) {
	r := New()
	_, err := r.RegisterValue("b", &enemy{})
	require.NoError(t, err)
	_, err = r.RegisterValue("a", &exploding{})
	require.NoError(t, err)

	info := r.Info()
	require.Len(t, info, 2)
	assert.Equal(t, "a", info[0].Key)
	assert.Equal(t, "hotswap/internal/registry.exploding", info[0].Type)
	assert.False(t, info[0].Dynamic)
	assert.Equal(t, "b", info[1].Key)
}

func TestConcurrentRegister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.RegisterValue(string(rune('a'+i%8)), &enemy{hp: i})
			_, _ = r.Get("a")
			_ = r.Keys()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, r.Len())
}
