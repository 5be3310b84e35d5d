//go:build unix

package proc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_Run(t *testing.T) {
	r := NewExec()
	ctx := context.Background()

	tests := []struct {
		name       string
		cmd        Command
		wantCode   int
		wantStdout string
		wantStderr string
		wantOK     bool
	}{
		{
			name:       "success captures stdout",
			cmd:        Command{Name: "sh", Args: []string{"-c", "echo hello"}},
			wantStdout: "hello\n",
			wantOK:     true,
		},
		{
			name:       "non-zero exit is not an error",
			cmd:        Command{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}},
			wantCode:   3,
			wantStderr: "oops\n",
		},
		{
			name:       "env is appended",
			cmd:        Command{Name: "sh", Args: []string{"-c", "printf %s \"$AGITEGEN_TEST\""}, Env: []string{"AGITEGEN_TEST=yes"}},
			wantStdout: "yes",
			wantOK:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Run(ctx, tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantStdout, res.Stdout)
			assert.Equal(t, tt.wantStderr, res.Stderr)
			assert.Equal(t, tt.wantOK, res.OK())
		})
	}
}

func TestExec_RunDir(t *testing.T) {
	dir := t.TempDir()
	res, err := NewExec().Run(context.Background(), Command{Name: "pwd", Dir: dir})
	require.NoError(t, err)

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	assert.Equal(t, want, got)
}

func TestExec_Timeout(t *testing.T) {
	res, err := NewExec().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
		Group:   true,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.OK())
	assert.Less(t, res.Duration, 4*time.Second)
}

func TestExec_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExec().Run(ctx, Command{Name: "sh", Args: []string{"-c", "true"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExec_MissingBinary(t *testing.T) {
	_, err := NewExec().Run(context.Background(), Command{Name: "agitegen-no-such-binary"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestExec_Tee(t *testing.T) {
	var live strings.Builder
	res, err := NewExec().Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "echo streamed"},
		Stdout: &live,
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", res.Stdout)
	assert.Equal(t, "streamed\n", live.String())
}

func TestBackground_StopTerminatesGroup(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "child.pid")

	// The backgrounded sleep is a grandchild; SIGTERM to the group reaches it too.
	script := "sleep 30 & echo $! > " + marker + "; wait"
	bg, err := StartBackground(Command{Name: "sh", Args: []string{"-c", script}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, bg.Stop(2*time.Second))
	select {
	case <-bg.Done():
	default:
		t.Fatal("leader still running after Stop")
	}

	// Second Stop is a no-op.
	assert.NoError(t, bg.Stop(time.Second))
}

func TestBackground_KillsAfterGrace(t *testing.T) {
	bg, err := StartBackground(Command{Name: "sh", Args: []string{"-c", "trap '' TERM; while true; do sleep 0.1; done"}})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, bg.Stop(200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}
