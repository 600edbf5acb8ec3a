package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		watchFlag, callType, initForce, historyPrune = false, "", false, 0
		historyLimit = 20
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "hotswap.yaml")
	out, err := executeCmd(t, "init", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "initialized")
	return cfgPath
}

func TestInitWritesConfigAndUnit(t *testing.T) {
	cfgPath := initProject(t)

	assert.FileExists(t, cfgPath)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfgPath), "units", "mover.go"))

	_, err := executeCmd(t, "init", "--config", cfgPath)
	assert.Error(t, err)

	_, err = executeCmd(t, "init", "--config", cfgPath, "--force")
	assert.NoError(t, err)
}

func TestRunCheckAndHistory(t *testing.T) {
	cfgPath := initProject(t)

	out, err := executeCmd(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "mover.Move(vector3)")
	assert.NotContains(t, out, "✗")

	out, err = executeCmd(t, "check", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "mover.go")

	out, err = executeCmd(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 cycle(s)")
	assert.Contains(t, out, "run")

	_, err = executeCmd(t, "history", "show", "no-such-cycle", "--config", cfgPath)
	assert.Error(t, err)
}

func TestCheckReportsDiagnostics(t *testing.T) {
	cfgPath := initProject(t)
	unitPath := filepath.Join(filepath.Dir(cfgPath), "units", "mover.go")
	require.NoError(t, os.WriteFile(unitPath, []byte("package game\n\nimport \"os\"\n\nvar _ = os.Args\n"), 0644))

	out, err := executeCmd(t, "check", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, out, "forbidden_import")
	assert.True(t, strings.Contains(out, "3:"), out)
}

func TestCallParsesParams(t *testing.T) {
	cfgPath := initProject(t)

	out, err := executeCmd(t, "call", "mover", "Move", "by:vector3=1,2,3", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "mover.Move(vector3)")

	_, err = executeCmd(t, "call", "mover", "Move", "by:quaternion=1", "--config", cfgPath)
	assert.Error(t, err)
}
