package docs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Client

Intro text.

## Auth

Sign users in with signInWithPassword.

### Database access

Query a table.

## Storage

Upload files.
`

func TestSplitAndFilter(t *testing.T) {
	chunks := Split(sampleDoc)
	require.Len(t, chunks, 4)
	assert.Contains(t, chunks[1], "signInWithPassword")

	got := Filter(chunks, DefaultKeywords)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "Sign users in")
	assert.Contains(t, got[1], "Query a table")

	assert.Len(t, Filter(chunks, []string{"UPLOAD"}), 1, "matching ignores case")
}

func TestStore_AddPeek(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	defer s.Close()

	for _, text := range []string{"third? no, first", "second", "last"} {
		added, err := s.Add(text)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := s.Add("second")
	require.NoError(t, err)
	assert.False(t, added, "duplicate text is not stored twice")

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	chunks, err := s.Peek(2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "third? no, first", chunks[0].Text)
	assert.Equal(t, "second", chunks[1].Text)
	assert.Equal(t, ChunkID("second"), chunks[1].ID)
	assert.Len(t, chunks[0].ID, 40)
}

func TestPeekDir_Missing(t *testing.T) {
	got, err := PeekDir(t.TempDir(), 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleDoc))
	}))
	defer srv.Close()

	root := t.TempDir()
	e := &Embedder{Client: srv.Client(), URLs: map[string]string{"supabase": srv.URL}}

	res := e.Embed(context.Background(), "supabase", DefaultKeywords, root)
	require.False(t, res.Skipped, res.Reason)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 2, res.Added)

	again := e.Embed(context.Background(), "supabase", DefaultKeywords, root)
	assert.Zero(t, again.Added, "re-embedding stores nothing new")

	texts, err := PeekDir(root, 3)
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "signInWithPassword")
}

func TestEmbedder_FetchFailureSkips(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := t.TempDir()
	e := &Embedder{Client: srv.Client(), URLs: map[string]string{"firebase": srv.URL}}
	res := e.Embed(context.Background(), "firebase", DefaultKeywords, root)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.Reason, "404")
	assert.False(t, Exists(root), "nothing is created when the fetch fails")

	res = e.Embed(context.Background(), "none", DefaultKeywords, root)
	assert.True(t, res.Skipped)
}
