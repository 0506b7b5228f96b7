package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/config"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
)

type memStore struct {
	mu      sync.Mutex
	entries []ports.JournalEntry
	block   chan struct{}
}

func (m *memStore) Driver() string { return "mem" }

func (m *memStore) Append(_ context.Context, e ports.JournalEntry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Recent(context.Context, int) ([]ports.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.JournalEntry(nil), m.entries...), nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func snap(id string, phase render.Phase, state, status string) render.Snapshot {
	return render.Snapshot{
		Job:    render.Job{ID: id, Phase: phase, ServerState: state, UpdatedAt: time.Now()},
		Status: status,
	}
}

func TestRecorder_CollapsesRepeatedTicks(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 16, logger.Discard())

	r.Observe(render.Snapshot{Job: render.Job{Phase: render.PhaseSubmitting}, Status: "Sending render request..."})
	r.Observe(snap("abc123", render.PhaseQueued, "", "Render queued (Job ID: abc123)"))
	r.Observe(snap("abc123", render.PhaseProcessing, "processing", "Status: processing"))
	r.Observe(snap("abc123", render.PhaseProcessing, "processing", "Status: processing"))
	r.Observe(snap("abc123", render.PhaseProcessing, "processing", "Status: processing"))
	r.Observe(snap("abc123", render.PhaseCompleted, "completed", "Render completed"))

	require.NoError(t, r.Close())

	got, _ := store.Recent(context.Background(), 10)
	require.Len(t, got, 3)
	assert.Equal(t, "queued", got[0].Phase)
	assert.Equal(t, "processing", got[1].Phase)
	assert.Equal(t, "completed", got[2].Phase)
	assert.Zero(t, r.Dropped())
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	r := NewRecorder(store, 1, logger.Discard())

	for i, p := range []render.Phase{render.PhaseQueued, render.PhaseProcessing, render.PhaseCompleted} {
		r.Observe(snap("job", p, "", ""))
		if i == 0 {
			// let the writer pick up the first entry and block on it
			time.Sleep(20 * time.Millisecond)
		}
	}

	assert.Equal(t, 1, r.Dropped())
	close(store.block)
	require.NoError(t, r.Close())

	got, _ := store.Recent(context.Background(), 10)
	assert.Len(t, got, 2)
}

func TestRecorder_ObserveAfterClose(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 4, logger.Discard())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	r.Observe(snap("abc123", render.PhaseQueued, "", ""))

	got, _ := store.Recent(context.Background(), 10)
	assert.Empty(t, got)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.JournalConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, config.JournalConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "j.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Driver())
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.JournalConfig{Driver: "mongo"})
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}
