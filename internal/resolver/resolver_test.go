package resolver

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/pkg/host"
)

func TestResolve_StdlibAndHost(t *testing.T) {
	r := New([]string{"strings", "math/rand"})
	refs, warnings := r.Resolve()

	assert.Empty(t, warnings)
	assert.True(t, refs.Allows("strings"))
	assert.True(t, refs.Allows("math/rand"))
	assert.True(t, refs.Allows(host.ImportPath))
	assert.False(t, refs.Allows("os/exec"))

	assert.Contains(t, refs.Exports, "strings/strings")
	assert.Contains(t, refs.Exports, "math/rand/rand")
	assert.Contains(t, refs.Exports, "hotswap/pkg/host/host")
}

func TestResolve_UnknownPackageIsSkipped(t *testing.T) {
	r := New([]string{"strings", "not/a/pkg"})
	refs, warnings := r.Resolve()

	require.Len(t, warnings, 1)
	assert.Equal(t, "not/a/pkg", warnings[0].Package)
	assert.True(t, refs.Allows("strings"))
	assert.False(t, refs.Allows("not/a/pkg"))
}

func TestResolve_GeneratedLibrariesExcluded(t *testing.T) {
	r := New(nil)
	r.Register(Library{
		Name:    "gamelib",
		Symbols: map[string]map[string]reflect.Value{"game/lib/lib": {"Max": reflect.ValueOf(func(a, b int) int { return a })}},
	})
	r.Register(Library{
		Name:      "player_1234",
		Generated: true,
		Symbols:   map[string]map[string]reflect.Value{"player_1234/main": {}},
	})

	refs, _ := r.Resolve()
	assert.True(t, refs.Allows("game/lib"))
	assert.False(t, refs.Allows("player_1234"))
	assert.NotContains(t, refs.Exports, "player_1234/main")
}
