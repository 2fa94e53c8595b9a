package hostexec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRoot(t *testing.T, flatpakInfo, hostProc bool) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc"), 0o755))
	if flatpakInfo {
		require.NoError(t, os.WriteFile(filepath.Join(root, ".flatpak-info"), []byte("[Application]\n"), 0o644))
	}
	if hostProc {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "run/host/proc"), 0o755))
	}
	return root
}

func TestSandboxDetection(t *testing.T) {
	t.Run("unconfined", func(t *testing.T) {
		r := newRunner(fakeRoot(t, false, false))
		assert.False(t, r.Sandboxed())
		assert.Equal(t, []string{"ps", "-e"}, r.Argv([]string{"ps", "-e"}))
	})

	t.Run("sandboxed", func(t *testing.T) {
		r := newRunner(fakeRoot(t, true, true))
		assert.True(t, r.Sandboxed())
		assert.Equal(t,
			[]string{"flatpak-spawn", "--host", "ps", "-e"},
			r.Argv([]string{"ps", "-e"}))
	})
}

func TestProcRootSelection(t *testing.T) {
	t.Run("plain proc when no host mount", func(t *testing.T) {
		root := fakeRoot(t, false, false)
		r := newRunner(root)
		assert.Equal(t, filepath.Join(root, "proc"), r.ProcRoot())
	})

	t.Run("relocated host mount preferred", func(t *testing.T) {
		root := fakeRoot(t, true, true)
		r := newRunner(root)
		assert.Equal(t, filepath.Join(root, "run/host/proc"), r.ProcRoot())
	})
}

func TestRunCapturesStdout(t *testing.T) {
	r := newRunner(fakeRoot(t, false, false))
	out := r.Run([]string{"echo", "hello"}, time.Second)
	assert.Equal(t, "hello\n", out)
}

func TestRunSwallowsFailures(t *testing.T) {
	r := newRunner(fakeRoot(t, false, false))

	t.Run("missing binary", func(t *testing.T) {
		assert.Equal(t, "", r.Run([]string{"definitely-not-a-command-9c1f"}, time.Second))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		assert.Equal(t, "", r.Run([]string{"false"}, time.Second))
	})
}

func TestRunCheckedReportsFailures(t *testing.T) {
	r := newRunner(fakeRoot(t, false, false))

	_, err := r.RunChecked([]string{"sh", "-c", "echo oops >&2; exit 1"}, time.Second)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "oops"))

	out, err := r.RunChecked([]string{"echo", "ok"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}
