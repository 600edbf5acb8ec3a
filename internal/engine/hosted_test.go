package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/internal/unit"
	"hotswap/pkg/host"
)

// flakyNode fails the next n attaches.
type flakyNode struct {
	*host.Node
	failures int
}

func (f *flakyNode) Attach(t *unit.TypeDescriptor) (*unit.Instance, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("attach refused")
	}
	return f.Node.Attach(t)
}

func hostedPlayer(t *testing.T, e *Engine, c host.Container, name string) {
	t.Helper()
	ctx := context.Background()
	if _, ok := e.Lookup("Player"); !ok {
		_, err := e.Reload(ctx, src("player", playerV1))
		require.NoError(t, err)
	}
	typ, ok := e.Lookup("Player")
	require.True(t, ok)
	_, err := c.Attach(typ)
	require.NoError(t, err)
	e.TrackHosted(name, c, "Player")

	_, err = e.InvokeHosted(ctx, name, call("AddScore", intParam(4)))
	require.NoError(t, err)
}

func TestHosted_ComponentReplacedWithState(t *testing.T) {
	e := newTestEngine(Options{})
	node := host.NewNode("hero")
	hostedPlayer(t, e, node, "hero")

	rep, err := e.Reload(context.Background(), src("player", playerV2))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Replaced)
	assert.Empty(t, rep.Warnings)

	comps := node.Components()
	require.Len(t, comps, 1)
	assert.Equal(t, rep.Units[0].Name, comps[0].Type.Unit)
	assert.Equal(t, 4, field(t, comps[0], "Score"))

	comp, ok := e.Component(context.Background(), "hero")
	require.True(t, ok)
	assert.Same(t, comps[0], comp)

	res, err := e.InvokeHosted(context.Background(), "hero", call("Bonus"))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{8}, res.Values)
}

// countingScheduler runs tasks inline and counts them.
type countingScheduler struct {
	mu    sync.Mutex
	tasks int
}

func (c *countingScheduler) Do(ctx context.Context, fn func()) error {
	c.mu.Lock()
	c.tasks++
	c.mu.Unlock()
	return host.Inline{}.Do(ctx, fn)
}

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks
}

func TestHosted_ComponentLookupRunsOnScheduler(t *testing.T) {
	sched := &countingScheduler{}
	e := newTestEngine(Options{Scheduler: sched})
	node := host.NewNode("hero")
	hostedPlayer(t, e, node, "hero")

	before := sched.count()
	comp, ok := e.Component(context.Background(), "hero")
	require.True(t, ok)
	assert.Same(t, node.Components()[0], comp)
	assert.Equal(t, before+1, sched.count())

	loop := host.NewLoop()
	loop.Close()
	e2 := newTestEngine(Options{Scheduler: loop})
	e2.TrackHosted("hero", node, "Player")
	_, ok = e2.Component(context.Background(), "hero")
	assert.False(t, ok)
}

func TestHosted_QualifiedTypeNameIsTrackedBySimpleName(t *testing.T) {
	e := newTestEngine(Options{})
	ctx := context.Background()
	_, err := e.Reload(ctx, src("player", playerV1))
	require.NoError(t, err)
	typ, ok := e.Lookup("Player")
	require.True(t, ok)

	node := host.NewNode("hero")
	_, err = node.Attach(typ)
	require.NoError(t, err)
	e.TrackHosted("hero", node, typ.QualifiedName())

	_, ok = e.Component(ctx, "hero")
	require.True(t, ok)

	rep, err := e.Reload(ctx, src("player", playerV2))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Replaced)
	assert.Empty(t, rep.Warnings)
	assert.Len(t, node.Components(), 1)
}

func TestHosted_AlreadyLatestIsSkipped(t *testing.T) {
	e := newTestEngine(Options{})
	node := host.NewNode("hero")
	hostedPlayer(t, e, node, "hero")
	before := node.Components()[0]

	rep := &Report{}
	e.replaceHosted(context.Background(), rep)
	assert.Zero(t, rep.Replaced)
	assert.Empty(t, rep.Warnings)
	assert.Same(t, before, node.Components()[0])
}

func TestHosted_MissingComponentWarns(t *testing.T) {
	e := newTestEngine(Options{})
	e.TrackHosted("empty", host.NewNode("empty"), "Player")

	rep, err := e.Reload(context.Background(), src("player", playerV1))
	require.NoError(t, err)
	assert.Zero(t, rep.Replaced)

	var rw *ReplacementWarning
	require.Len(t, rep.Warnings, 1)
	require.True(t, errors.As(rep.Warnings[0], &rw))
	assert.Equal(t, "empty", rw.Object)
	assert.Contains(t, rw.Detail, "component not found")
}

func TestHosted_UnknownTypeWarns(t *testing.T) {
	e := newTestEngine(Options{})
	e.TrackHosted("ghost", host.NewNode("ghost"), "Ghost")

	rep, err := e.Reload(context.Background(), src("enemy", enemySource))
	require.NoError(t, err)

	var rw *ReplacementWarning
	require.Len(t, rep.Warnings, 1)
	require.True(t, errors.As(rep.Warnings[0], &rw))
	assert.Equal(t, "type not found", rw.Detail)
}

func TestHosted_AttachFailureRollsBack(t *testing.T) {
	e := newTestEngine(Options{})
	node := &flakyNode{Node: host.NewNode("hero")}
	hostedPlayer(t, e, node, "hero")
	oldType := node.Components()[0].Type

	node.failures = 1
	rep, err := e.Reload(context.Background(), src("player", playerV2))
	require.NoError(t, err)
	assert.Zero(t, rep.Replaced)

	var rw *ReplacementWarning
	require.Len(t, rep.Warnings, 1)
	require.True(t, errors.As(rep.Warnings[0], &rw))
	assert.True(t, rw.RolledBack)

	comps := node.Components()
	require.Len(t, comps, 1)
	assert.Same(t, oldType, comps[0].Type)
	assert.Equal(t, 4, field(t, comps[0], "Score"))
}

func TestHosted_InvokeUntracked(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.InvokeHosted(context.Background(), "nobody", call("AddScore"))
	assert.True(t, errors.Is(err, ErrNotTracked))

	e.TrackHosted("x", host.NewNode("x"), "Player")
	_, err = e.InvokeHosted(context.Background(), "x", call("AddScore"))
	assert.True(t, errors.Is(err, host.ErrComponentNotFound))

	e.Untrack("x")
	_, ok := e.Component(context.Background(), "x")
	assert.False(t, ok)
}
