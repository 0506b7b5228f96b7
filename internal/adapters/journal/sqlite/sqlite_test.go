package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/ports"
)

func setupTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "journal.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendRecent(t *testing.T) {
	s := setupTestStore(t, 0)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, ports.JournalEntry{JobID: "abc123", Phase: "queued", Status: "Render queued (Job ID: abc123)", Generation: 2, RecordedAt: at}))
	require.NoError(t, s.Append(ctx, ports.JournalEntry{
		JobID: "abc123", Phase: "completed", ServerState: "completed",
		Status: "Render completed", ResultURL: "https://api.example.com/files/abc123.mp4",
		Polls: 2, Generation: 3, RecordedAt: at.Add(4 * time.Second),
	}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "completed", got[0].Phase)
	assert.Equal(t, "https://api.example.com/files/abc123.mp4", got[0].ResultURL)
	assert.Equal(t, 2, got[0].Polls)
	assert.EqualValues(t, 3, got[0].Generation)
	assert.True(t, at.Add(4*time.Second).Equal(got[0].RecordedAt))
	assert.Equal(t, "queued", got[1].Phase)
}

func TestStore_Keep(t *testing.T) {
	s := setupTestStore(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Append(ctx, ports.JournalEntry{JobID: id, Phase: "queued", RecordedAt: time.Now()}))
	}

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].JobID)
	assert.Equal(t, "c", got[2].JobID)
}

func TestStore_EmptyAndPing(t *testing.T) {
	s := setupTestStore(t, 0)

	got, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "sqlite", s.Driver())
}
