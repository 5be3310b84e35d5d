package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/agitegen/internal/nats"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	e, err := nats.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return NewStore(e.JS, e.Stream)
}

func TestBuildLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	run := NewRunID()

	require.NoError(t, store.BuildStart(ctx, run, BuildInfo{Project: "shop", Backend: "supabase", Framework: "rn", MaxPasses: 5}))
	require.NoError(t, store.RecordPass(ctx, run, Pass{Number: 1, Model: "planner", Unmet: []string{"UserLogin"}, Edited: true, Changed: []string{"src/login.ts"}}))
	require.NoError(t, store.RecordPass(ctx, run, Pass{Number: 2, TestsOK: true}))
	require.NoError(t, store.BuildFinish(ctx, run, OutcomeConverged))

	b, err := store.LoadBuild(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, "shop", b.Project)
	assert.Equal(t, "supabase", b.Backend)
	assert.Equal(t, 5, b.MaxPasses)
	assert.Equal(t, OutcomeConverged, b.Outcome)
	assert.False(t, b.StartedAt.IsZero())
	assert.False(t, b.EndedAt.IsZero())

	require.Len(t, b.Passes, 2)
	assert.Equal(t, 1, b.Passes[0].Number)
	assert.Equal(t, []string{"UserLogin"}, b.Passes[0].Unmet)
	assert.Equal(t, []string{"src/login.ts"}, b.Passes[0].Changed)
	assert.True(t, b.Passes[0].Edited)
	assert.True(t, b.Passes[1].TestsOK)
}

func TestLoadBuild_Unknown(t *testing.T) {
	b, err := newStore(t).LoadBuild(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", b.Run)
	assert.Empty(t, b.Passes)
}

func TestListBuilds_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Now().Add(-time.Hour)

	for i, project := range []string{"first", "second", "third"} {
		_, err := store.PublishEvent(ctx, Event{
			Run:       project + "-run",
			Type:      nats.EventTypeBuild,
			Action:    "start",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Meta:      []byte(`{"project":"` + project + `"}`),
		})
		require.NoError(t, err)
	}

	all, err := store.ListBuilds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Project)
	assert.Equal(t, "first", all[2].Project)

	limited, err := store.ListBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[1].Project)
}

func TestReplay_SkipsMalformed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.js.Publish(ctx, nats.SubjectForEvent("r1", nats.EventTypePass), []byte("not json"))
	require.NoError(t, err)
	require.NoError(t, store.RecordPass(ctx, "r1", Pass{Number: 1}))

	b, err := store.LoadBuild(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, b.Passes, 1)
}
