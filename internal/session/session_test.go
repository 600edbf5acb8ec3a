package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotswap/internal/config"
	"hotswap/internal/engine"
	"hotswap/internal/invoke"
)

const counterV1 = `package game

type Counter struct {
	N int
}

func (c *Counter) Add(n int) int {
	c.N += n
	return c.N
}
`

const counterV2 = `package game

type Counter struct {
	N int
}

func (c *Counter) Add(n int) int {
	c.N += n * 10
	return c.N
}

func (c *Counter) Double() int { return c.N * 2 }
`

func writeUnit(t *testing.T, path, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
}

func addCall(n int) config.CallConfig {
	return config.CallConfig{
		Method: "Add",
		Params: []config.ParamConfig{{Name: "n", Kind: "int", Value: n}},
	}
}

func testConfig(t *testing.T, unitPath string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Enabled = false
	cfg.Watch.Debounce = "50ms"
	cfg.Units = []config.UnitConfig{{Path: unitPath}}
	cfg.Objects = []config.ObjectConfig{
		{Key: "managed", Type: "Counter", Calls: []config.CallConfig{addCall(2)}},
		{Key: "hosted", Type: "Counter", Container: "root", Calls: []config.CallConfig{addCall(3)}},
	}
	return cfg
}

func newSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func values(t *testing.T, outcomes []CallOutcome) map[string][]interface{} {
	t.Helper()
	got := make(map[string][]interface{}, len(outcomes))
	for _, oc := range outcomes {
		require.NoError(t, oc.Err, "%s.%s", oc.Object, oc.Call)
		got[oc.Object] = oc.Values
	}
	return got
}

func TestSessionReloadRunsCallsAndKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	s := newSession(t, testConfig(t, path))
	ctx := context.Background()

	rep, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Empty(t, rep.Warnings)

	got := values(t, s.RunCalls(ctx))
	assert.Equal(t, []interface{}{2}, got["managed"])
	assert.Equal(t, []interface{}{3}, got["hosted"])

	writeUnit(t, path, counterV2)
	rep, err = s.Reload(ctx, engine.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Migrated)
	assert.Equal(t, 1, rep.Replaced)

	got = values(t, s.RunCalls(ctx))
	assert.Equal(t, []interface{}{22}, got["managed"])
	assert.Equal(t, []interface{}{33}, got["hosted"])

	// One component per container across cycles.
	assert.Len(t, s.Scene().Node("root").Components(), 1)
}

func TestSessionCompileFailureKeepsRunningVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	s := newSession(t, testConfig(t, path))
	ctx := context.Background()

	_, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)
	s.RunCalls(ctx)

	writeUnit(t, path, "package game\n\nfunc broken( {\n")
	rep, err := s.Reload(ctx, engine.TriggerManual)
	require.Error(t, err)
	assert.False(t, rep.OK())

	got := values(t, s.RunCalls(ctx))
	assert.Equal(t, []interface{}{4}, got["managed"])
	assert.Equal(t, []interface{}{6}, got["hosted"])
}

func TestSessionCallFailuresAreReportedPerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	cfg := testConfig(t, path)
	cfg.Objects[0].Calls = append([]config.CallConfig{{Method: "Missing"}}, cfg.Objects[0].Calls...)
	s := newSession(t, cfg)
	ctx := context.Background()

	_, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)

	out := s.RunCalls(ctx)
	require.Len(t, out, 3)
	assert.ErrorIs(t, out[0].Err, invoke.ErrMethodNotFound)
	assert.NoError(t, out[1].Err)
	assert.Equal(t, []interface{}{2}, out[1].Values)
	assert.Equal(t, "Add(int)", out[1].Call)
}

func TestSessionUnknownHostedTypeWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	cfg := testConfig(t, path)
	cfg.Objects = append(cfg.Objects, config.ObjectConfig{Key: "ghost", Type: "Ghost", Container: "attic"})
	s := newSession(t, cfg)

	rep, err := s.Reload(context.Background(), engine.TriggerRun)
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0].Error(), "Ghost")

	_, tracked := s.Engine().Component(context.Background(), "hosted")
	assert.True(t, tracked)
	_, tracked = s.Engine().Component(context.Background(), "ghost")
	assert.False(t, tracked)
}

func TestSessionHostedObjectWithQualifiedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	s := newSession(t, testConfig(t, path))
	ctx := context.Background()

	_, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)
	typ, ok := s.Engine().Lookup("Counter")
	require.True(t, ok)
	s.cfg.Objects = append(s.cfg.Objects, config.ObjectConfig{Key: "pinned", Type: typ.QualifiedName(), Container: "pinbox"})

	for i := 0; i < 2; i++ {
		rep, err := s.Reload(ctx, engine.TriggerManual)
		require.NoError(t, err)
		assert.Empty(t, rep.Warnings)
	}
	assert.Len(t, s.Scene().Node("pinbox").Components(), 1)

	oc := s.Call(ctx, "pinned", "", invoke.Request{Method: "Add", Params: []invoke.Param{{Kind: invoke.KindInt, Value: 1}}})
	require.NoError(t, oc.Err)
	assert.Equal(t, []interface{}{1}, oc.Values)
}

func TestSessionSourcesFiltersByPath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	writeUnit(t, a, counterV1)
	writeUnit(t, b, "package game\n\ntype Enemy struct{ HP int }\n")

	cfg := testConfig(t, a)
	cfg.Units = []config.UnitConfig{{Path: a}, {Name: "enemies", Path: b}}
	s := newSession(t, cfg)

	all, err := s.Sources()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "enemies", all[1].Name)

	some, err := s.Sources(b)
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "enemies", some[0].Name)
}

func TestSessionRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.go")
	writeUnit(t, path, counterV1)
	cfg := testConfig(t, path)
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(dir, "history.db")
	s := newSession(t, cfg)
	ctx := context.Background()

	rep, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)

	cycles, err := s.History().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, rep.ID, cycles[0].ID)
	assert.Equal(t, engine.TriggerRun, cycles[0].Trigger)
}

func TestRequestRejectsUnknownKind(t *testing.T) {
	_, err := Request(config.CallConfig{
		Method: "Move",
		Params: []config.ParamConfig{{Kind: "quaternion", Value: 1}},
	})
	assert.Error(t, err)

	req, err := Request(config.CallConfig{
		Method: "Move",
		Params: []config.ParamConfig{{Kind: "Vector3", Value: []interface{}{1, 2, 3}}},
	})
	require.NoError(t, err)
	assert.Equal(t, invoke.KindVector3, req.Params[0].Kind)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reload.Policy = "sometimes"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSessionWatchReloadsChangedUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	s := newSession(t, testConfig(t, path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)

	reports := make(chan *engine.Report, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(rep *engine.Report, err error, calls []CallOutcome) {
			if err == nil {
				reports <- rep
			}
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeUnit(t, path, counterV2)

	select {
	case rep := <-reports:
		assert.Equal(t, engine.TriggerWatch, rep.Trigger)
		require.Len(t, rep.Units, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSessionCallByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.go")
	writeUnit(t, path, counterV1)
	s := newSession(t, testConfig(t, path))
	ctx := context.Background()

	_, err := s.Reload(ctx, engine.TriggerRun)
	require.NoError(t, err)

	req := invoke.Request{Method: "Add", Params: []invoke.Param{{Kind: invoke.KindInt, Value: 5}}}

	oc := s.Call(ctx, "hosted", "", req)
	require.NoError(t, oc.Err)
	assert.Equal(t, []interface{}{5}, oc.Values)

	// Unconfigured key: created from the given type.
	oc = s.Call(ctx, "extra", "Counter", req)
	require.NoError(t, oc.Err)
	assert.Equal(t, []interface{}{5}, oc.Values)
	_, ok := s.Engine().Registry().Get("extra")
	assert.True(t, ok)

	oc = s.Call(ctx, "nobody", "", req)
	assert.Error(t, oc.Err)
}
