package lifecycle

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingReloader struct {
	calls  int
	result bool
}

func (r *countingReloader) Reload() bool {
	r.calls++
	return r.result
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestManager_OnReload(t *testing.T) {
	r := &countingReloader{result: true}
	m := NewManager("n", Resolved{}, r, testLogger())

	assert.True(t, m.OnReload("api"))
	assert.True(t, m.OnReload(""))
	assert.Equal(t, 2, r.calls)
}

func TestManager_OnReloadWithoutReloader(t *testing.T) {
	m := NewManager("n", Resolved{}, nil, nil)
	assert.False(t, m.OnReload("signal"))
}

func TestTeardown_NothingPresent(t *testing.T) {
	dir := t.TempDir()

	var removed []string
	assert.NotPanics(t, func() {
		removed = Teardown(testLogger(), "ghost", Layout{ConfigDir: dir}, Files{ClientCertRequired: true})
	})
	assert.Empty(t, removed)
}

func TestTeardown_RemovesDerivedFiles(t *testing.T) {
	dir := t.TempDir()
	l := Layout{ConfigDir: dir}

	touch(t, l.SideConfigPath("n"))
	touch(t, l.CertPath("n"))
	touch(t, l.KeyPath("n"))

	removed := Teardown(testLogger(), "n", l, Files{ClientCertRequired: true})

	assert.ElementsMatch(t, []string{l.SideConfigPath("n"), l.CertPath("n"), l.KeyPath("n")}, removed)
	for _, p := range removed {
		assert.NoFileExists(t, p)
	}
}

func TestTeardown_LeavesCertsWithoutClientCertRequirement(t *testing.T) {
	dir := t.TempDir()
	l := Layout{ConfigDir: dir}

	touch(t, l.SideConfigPath("n"))
	touch(t, l.CertPath("n"))
	touch(t, l.KeyPath("n"))

	removed := Teardown(testLogger(), "n", l, Files{})

	assert.Equal(t, []string{l.SideConfigPath("n")}, removed)
	assert.FileExists(t, l.CertPath("n"))
	assert.FileExists(t, l.KeyPath("n"))
}

func TestTeardown_ExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	files := Files{
		SideConfig: filepath.Join(dir, "custom-side.yml"),
		CertFile:   filepath.Join(dir, "client.crt"),
		KeyFile:    filepath.Join(dir, "client.key"),
	}
	touch(t, files.SideConfig)
	touch(t, files.CertFile)
	touch(t, files.KeyFile)

	removed := Teardown(testLogger(), "n", Layout{ConfigDir: dir}, files)

	assert.Len(t, removed, 3)
	assert.NoFileExists(t, files.SideConfig)
	assert.NoFileExists(t, files.CertFile)
	assert.NoFileExists(t, files.KeyFile)
}

// TestTeardown_SwallowsRemovalFailures places a non-empty directory where the
// side config should be, so os.Remove fails with something other than
// "not exist". Teardown must log it and carry on with the remaining files.
func TestTeardown_SwallowsRemovalFailures(t *testing.T) {
	dir := t.TempDir()
	l := Layout{ConfigDir: dir}

	blocker := l.SideConfigPath("n")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o700))
	touch(t, l.CertPath("n"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	removed := Teardown(logger, "n", l, Files{ClientCertRequired: true})

	assert.Equal(t, []string{l.CertPath("n")}, removed)
	assert.DirExists(t, blocker)
	assert.Contains(t, buf.String(), "failed to remove node file")
}

func TestManager_OnTeardown(t *testing.T) {
	dir := t.TempDir()
	l := Layout{ConfigDir: dir}
	resolved := l.Resolve("n", Files{})
	touch(t, resolved.SideConfig)

	m := NewManager("n", resolved, nil, testLogger())

	assert.Equal(t, []string{resolved.SideConfig}, m.OnTeardown())
	assert.Empty(t, m.OnTeardown(), "second teardown finds nothing")
	assert.Equal(t, resolved, m.Files())
}
