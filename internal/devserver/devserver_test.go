//go:build unix

package devserver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/proc"
)

func lookPath(available ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func names(ts []Target) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Name+"="+t.Cmd.String())
	}
	return out
}

func touch(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, nil, 0644))
}

func TestTargets(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		bins  []string
		goos  string
		want  []string
	}{
		{
			name: "nothing",
			goos: "linux",
		},
		{
			name: "npm needs package.json",
			bins: []string{"npm"},
			goos: "linux",
		},
		{
			name:  "next project",
			files: []string{"package.json"},
			bins:  []string{"npm"},
			goos:  "linux",
			want:  []string{"web=npm run dev"},
		},
		{
			name:  "expo on linux",
			files: []string{"package.json", "node_modules/.bin/expo"},
			bins:  []string{"npm"},
			goos:  "linux",
			want:  []string{"web=npm run dev", "android=npx expo run:android"},
		},
		{
			name:  "expo on macOS",
			files: []string{"package.json"},
			bins:  []string{"npm", "expo"},
			goos:  "darwin",
			want:  []string{"web=npm run dev", "android=npx expo run:android", "ios=npx expo run:ios"},
		},
		{
			name:  "flutter on macOS",
			files: []string{"pubspec.yaml"},
			bins:  []string{"flutter"},
			goos:  "darwin",
			want:  []string{"chrome=flutter run -d chrome", "flutter-ios=flutter run -d ios"},
		},
		{
			name: "flutter without pubspec",
			bins: []string{"flutter"},
			goos: "linux",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, f := range tt.files {
				touch(t, root, f)
			}
			got := Targets(root, Env{GOOS: tt.goos, LookPath: lookPath(tt.bins...)})
			assert.Equal(t, tt.want, names(got))
			for _, tg := range got {
				assert.Equal(t, root, tg.Cmd.Dir)
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newServer(out *syncBuffer) *Server {
	s := New(console.New(out, out))
	s.Grace = 500 * time.Millisecond
	return s
}

func TestRun_PrefixesOutputAndStopsOnCancel(t *testing.T) {
	out := &syncBuffer{}
	s := newServer(out)
	targets := []Target{
		{Name: "web", Cmd: proc.Command{Name: "sh", Args: []string{"-c", "echo hello; sleep 30"}}},
		{Name: "android", Cmd: proc.Command{Name: "sh", Args: []string{"-c", "echo world; sleep 30"}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, targets) }()

	require.Eventually(t, func() bool {
		o := out.String()
		return strings.Contains(o, "hello") && strings.Contains(o, "world")
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if strings.Contains(line, "hello") {
			assert.Contains(t, line, "[web]")
		}
		if strings.Contains(line, "world") {
			assert.Contains(t, line, "[android]")
		}
	}
}

func TestRun_ReturnsWhenAllExit(t *testing.T) {
	out := &syncBuffer{}
	s := newServer(out)
	err := s.Run(context.Background(), []Target{
		{Name: "quick", Cmd: proc.Command{Name: "sh", Args: []string{"-c", "echo done"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "done")
}

func TestRun_NoTargets(t *testing.T) {
	s := newServer(&syncBuffer{})
	assert.True(t, errors.Is(s.Run(context.Background(), nil), ErrNoTargets))

	s.Start = func(proc.Command) (*proc.Background, error) { return nil, errors.New("exec: not found") }
	err := s.Run(context.Background(), []Target{{Name: "web", Cmd: proc.Command{Name: "npm"}}})
	assert.True(t, errors.Is(err, ErrNoTargets))
}

func TestPrefixWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	w := &prefixWriter{mu: &sync.Mutex{}, out: &buf, prefix: "> "}
	_, _ = w.Write([]byte("a\nb"))
	_, _ = w.Write([]byte("c\n"))
	assert.Equal(t, "> a\n> bc\n", buf.String())
}
