package process_test

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-sandbox/internal/sandbox/process"
)

// requireTool skips the test when a helper binary is not installed.
func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func sh(script string) process.Command {
	return process.Command{Path: "sh", Args: []string{"-c", script}}
}

func asProcessError(t *testing.T, err error) *process.Error {
	t.Helper()
	var perr *process.Error
	require.True(t, errors.As(err, &perr), "expected *process.Error, got %T: %v", err, err)
	return perr
}

func TestRun_Success(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New()

	res, err := sup.Run(context.Background(), sh("printf hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.Truncated)
}

func TestRun_NonZeroExit(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New()

	t.Run("stderr wins", func(t *testing.T) {
		res, err := sup.Run(context.Background(), sh("echo boom >&2; exit 3"))
		perr := asProcessError(t, err)
		assert.Equal(t, process.KindExit, perr.Kind)
		assert.Equal(t, 3, res.ExitCode)
		assert.Equal(t, "boom\n", perr.Diagnostic())
	})

	t.Run("falls back to the error message", func(t *testing.T) {
		_, err := sup.Run(context.Background(), sh("exit 4"))
		perr := asProcessError(t, err)
		assert.Equal(t, process.KindExit, perr.Kind)
		assert.Equal(t, "exit status 4", perr.Diagnostic())
	})

	t.Run("stdout is still captured", func(t *testing.T) {
		res, err := sup.Run(context.Background(), sh("printf partial; exit 1"))
		require.Error(t, err)
		assert.Equal(t, "partial", res.Stdout)
	})
}

func TestRun_SpawnFailure(t *testing.T) {
	sup := process.New()

	res, err := sup.Run(context.Background(), process.Command{Path: "no-such-binary-8f3a2c"})
	perr := asProcessError(t, err)
	assert.Equal(t, process.KindSpawn, perr.Kind)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, perr.Diagnostic(), "no-such-binary-8f3a2c")
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestRun_Timeout(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New(process.WithWaitDelay(200 * time.Millisecond))

	cmd := sh("while :; do :; done")
	cmd.Timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := sup.Run(context.Background(), cmd)
	elapsed := time.Since(start)

	perr := asProcessError(t, err)
	assert.Equal(t, process.KindTimeout, perr.Kind)
	assert.Contains(t, perr.Diagnostic(), "timed out after 300ms")
	assert.Less(t, elapsed, 3*time.Second, "Run must return close to the deadline")
}

func TestRun_TimeoutKeepsStderr(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New()

	cmd := sh("echo warming up >&2; sleep 10")
	cmd.Timeout = 300 * time.Millisecond

	_, err := sup.Run(context.Background(), cmd)
	perr := asProcessError(t, err)
	require.Equal(t, process.KindTimeout, perr.Kind)

	lines := strings.Split(perr.Diagnostic(), "\n")
	assert.Contains(t, lines[0], "timed out")
	assert.Contains(t, perr.Diagnostic(), "warming up")
}

func TestRun_KilledBySignal(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New()

	_, err := sup.Run(context.Background(), sh("kill -9 $$"))
	perr := asProcessError(t, err)
	assert.Equal(t, process.KindSignal, perr.Kind)
	assert.Contains(t, perr.Diagnostic(), "killed")
}

func TestRun_ArgumentsAreNotShellExpanded(t *testing.T) {
	echo := requireTool(t, "echo")
	sup := process.New()

	payload := "$(touch pwned); `id` | cat > x && echo $HOME"
	dir := t.TempDir()

	res, err := sup.Run(context.Background(), process.Command{
		Path: echo,
		Args: []string{payload},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, payload+"\n", res.Stdout)
	assert.NoFileExists(t, filepath.Join(dir, "pwned"))
	assert.NoFileExists(t, filepath.Join(dir, "x"))
}

func TestRun_OutputIsCapped(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New(process.WithMaxOutputBytes(1000))

	res, err := sup.Run(context.Background(), sh("i=0; while [ $i -lt 500 ]; do echo 0123456789; i=$((i+1)); done"))
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 1000)
	assert.True(t, res.Truncated)
}

func TestRun_WorkingDirectory(t *testing.T) {
	requireTool(t, "sh")
	sup := process.New()
	dir := t.TempDir()

	res, err := sup.Run(context.Background(), process.Command{Path: "sh", Args: []string{"-c", "pwd -P"}, Dir: dir})
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(res.Stdout))
}
