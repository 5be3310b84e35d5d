package testrun

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/proc"
	"github.com/mark3labs/agitegen/internal/proc/proctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func quietConsole() *console.Console {
	var buf bytes.Buffer
	return console.New(&buf, &buf)
}

type fakeEmulator struct {
	events   *[]string
	startErr error
}

func (f *fakeEmulator) Name() string { return "fake" }

func (f *fakeEmulator) Start(context.Context, string) error {
	*f.events = append(*f.events, "start")
	return f.startErr
}

func (f *fakeEmulator) Stop() error {
	*f.events = append(*f.events, "stop")
	return nil
}

func TestRun_LintPassesUnitFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"scripts":{"lint":"eslint .","test":"jest"}}`)

	runner := proctest.New().
		On("npm run lint", proctest.Response{Result: proc.Result{Stdout: "lint ok"}}).
		On("npm test", proctest.Response{Result: proc.Result{ExitCode: 1, Stdout: "1 failed", Stderr: "FAIL app.test.ts"}})

	out, err := New(Config{Runner: runner, Console: quietConsole()}).Run(context.Background(), root, "rn")
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, []string{"npm run lint", "npm test"}, runner.Lines())

	lint := strings.Index(out.Log, "=== Log for: `npm run lint` ===")
	unit := strings.Index(out.Log, "=== Log for: `npm test` ===")
	require.GreaterOrEqual(t, lint, 0)
	require.Greater(t, unit, lint, "logs must be concatenated in execution order")
	for _, want := range []string{"lint ok", "1 failed", "FAIL app.test.ts", "--- stdout ---", "--- stderr ---"} {
		assert.Contains(t, out.Log, want)
	}

	// The integration script is not declared, so that step is skipped.
	require.Len(t, out.Steps, 3)
	assert.True(t, out.Steps[2].Skipped)
}

func TestRun_SkippedStepsDoNotCount(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		framework string
		wantLines []string
	}{
		{
			name:      "no manifest runs nothing",
			framework: "rn",
			wantLines: nil,
		},
		{
			name:      "flutter runs every step without integration_test dir",
			files:     map[string]string{"pubspec.yaml": "name: app\n"},
			framework: "flutter-web",
			wantLines: []string{"flutter analyze", "flutter test", "flutter test integration_test"},
		},
		{
			name:      "undeclared lint and test still run",
			files:     map[string]string{"package.json": `{"scripts":{"test":"jest"}}`},
			framework: "next",
			wantLines: []string{"npm run lint", "npm test"},
		},
		{
			name:      "declared integration script runs",
			files:     map[string]string{"package.json": `{"scripts":{"test:integration":"detox test"}}`},
			framework: "rn",
			wantLines: []string{"npm run lint", "npm test", "npm run test:integration"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, root, name, content)
			}
			runner := proctest.New()

			out, err := New(Config{Runner: runner, Console: quietConsole()}).Run(context.Background(), root, tt.framework)
			require.NoError(t, err)
			assert.True(t, out.Success)
			assert.Equal(t, tt.wantLines, runner.Lines())
		})
	}
}

func TestRun_FailingCommandsWithoutScriptsFail(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"app"}`)
	runner := proctest.New().Exit("npm", 1, "")

	out, err := New(Config{Runner: runner, Console: quietConsole()}).Run(context.Background(), root, "rn")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, []string{"npm run lint", "npm test"}, runner.Lines())
	assert.Contains(t, out.Log, "=== Log for: `npm run lint` ===")
	assert.Contains(t, out.Log, "=== Log for: `npm test` ===")
}

func TestRun_UnknownFramework(t *testing.T) {
	runner := proctest.New()
	out, err := New(Config{Runner: runner, Console: quietConsole()}).Run(context.Background(), t.TempDir(), "cobol")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Unknown framework", out.Log)
	assert.Empty(t, runner.Calls())
}

func TestRun_TimeoutAndStartErrorFail(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pubspec.yaml", "name: app\n")

	runner := proctest.New().
		On("flutter analyze", proctest.Response{Result: proc.Result{TimedOut: true, ExitCode: -1}}).
		On("flutter test", proctest.Response{Err: errors.New("exec: \"flutter\": executable file not found")})

	out, err := New(Config{Runner: runner, Console: quietConsole(), Timeout: time.Second}).Run(context.Background(), root, "flutter")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Log, "Command timed out after 1s.")
	assert.Contains(t, out.Log, "Error executing command:")
}

func TestRun_StepsUseTimeoutAndProcessGroup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pubspec.yaml", "name: app\n")
	runner := proctest.New()

	_, err := New(Config{Runner: runner, Console: quietConsole(), Timeout: 42 * time.Second}).Run(context.Background(), root, "flutter")
	require.NoError(t, err)
	for _, c := range runner.Calls() {
		assert.Equal(t, 42*time.Second, c.Timeout)
		assert.True(t, c.Group)
		assert.Equal(t, root, c.Dir)
	}
}

func TestRun_EmulatorWrapsIntegration(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pubspec.yaml", "name: app\n")
	writeFile(t, root, "integration_test/app_test.dart", "")

	var events []string
	runner := proctest.New().On("flutter", proctest.Response{
		Do: func(c proc.Command) { events = append(events, c.String()) },
	})
	emu := &fakeEmulator{events: &events}

	out, err := New(Config{Runner: runner, Console: quietConsole(), Emulator: emu}).Run(context.Background(), root, "flutter")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{
		"flutter analyze",
		"flutter test",
		"start",
		"flutter test integration_test",
		"stop",
	}, events)
}

func TestRun_EmulatorNotStartedWithoutIntegration(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"scripts":{"lint":"eslint .","test":"jest"}}`)

	var events []string
	emu := &fakeEmulator{events: &events}
	_, err := New(Config{Runner: proctest.New(), Console: quietConsole(), Emulator: emu}).Run(context.Background(), root, "rn")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRun_EmulatorStartFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"scripts":{"test:integration":"detox test"}}`)

	var events []string
	emu := &fakeEmulator{events: &events, startErr: errors.New("docker not running")}
	runner := proctest.New()

	out, err := New(Config{Runner: runner, Console: quietConsole(), Emulator: emu}).Run(context.Background(), root, "rn")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Log, "docker not running")
	assert.Equal(t, []string{"npm run lint", "npm test"}, runner.Lines(), "integration step must not run without its emulator")
	assert.Equal(t, []string{"start", "stop"}, events, "teardown runs even when start fails")
}

func TestRun_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pubspec.yaml", "name: app\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{Runner: proctest.New(), Console: quietConsole()}).Run(ctx, root, "flutter")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTail(t *testing.T) {
	log := "1\n2\n3\n4\n5\n"
	assert.Equal(t, "4\n5", Tail(log, 2))
	assert.Equal(t, "1\n2\n3\n4\n5", Tail(log, 100))
}

func TestDetectFramework(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, "", DetectFramework(root))
	writeFile(t, root, "package.json", "{}")
	assert.Equal(t, FrameworkRN, DetectFramework(root))
	writeFile(t, root, "pubspec.yaml", "name: x\n")
	assert.Equal(t, FrameworkFlutter, DetectFramework(root))
}

func TestWatchWriter_MarkerSplitAcrossWrites(t *testing.T) {
	w := newWatchWriter(readyMarker)
	half := len(readyMarker) / 2
	_, _ = w.Write([]byte("starting\n" + readyMarker[:half]))
	select {
	case <-w.found:
		t.Fatal("marker reported before it was complete")
	default:
	}
	_, _ = w.Write([]byte(readyMarker[half:] + "\n"))
	select {
	case <-w.found:
	default:
		t.Fatal("split marker not detected")
	}

	// Later output never closes found twice.
	_, _ = w.Write([]byte(readyMarker + "\n"))
}

func TestWatchWriter_KeepsBoundedTail(t *testing.T) {
	w := newWatchWriter(readyMarker)
	line := strings.Repeat("x", 99) + "\n"
	for range 1000 {
		_, _ = w.Write([]byte(line))
	}
	_, _ = w.Write([]byte("Error: port 8080 taken\n"))

	assert.LessOrEqual(t, len(w.String()), watchTail)
	assert.Equal(t, "Error: port 8080 taken", lastLine(w.String()))
	select {
	case <-w.found:
		t.Fatal("marker never written")
	default:
	}
}
