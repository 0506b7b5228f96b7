package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func queuedJob(t *testing.T) Job {
	t.Helper()
	j, err := NewSubmitting(t0).Accept("abc123", t0)
	require.NoError(t, err)
	return j
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "transport_error", PhaseTransportError.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestPhase_Classes(t *testing.T) {
	for _, p := range []Phase{PhaseCompleted, PhaseFailed, PhaseTransportError} {
		assert.True(t, p.Terminal(), p.String())
		assert.False(t, p.Active(), p.String())
	}
	for _, p := range []Phase{PhaseSubmitting, PhaseQueued, PhaseProcessing} {
		assert.True(t, p.Active(), p.String())
		assert.False(t, p.Terminal(), p.String())
	}
	assert.False(t, PhaseIdle.Active())
	assert.False(t, PhaseIdle.Terminal())
}

func TestJob_Accept(t *testing.T) {
	j := queuedJob(t)
	assert.Equal(t, "abc123", j.ID)
	assert.Equal(t, PhaseQueued, j.Phase)

	_, err := j.Accept("again", t0)
	assert.ErrorIs(t, err, ErrPhase)

	_, err = NewSubmitting(t0).Accept("", t0)
	assert.ErrorIs(t, err, ErrPhase)
}

func TestJob_Observe(t *testing.T) {
	j := queuedJob(t)

	j, err := j.Observe("processing", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, PhaseProcessing, j.Phase)
	assert.Equal(t, 1, j.Polls)

	j, err = j.Observe("queued", t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, PhaseQueued, j.Phase)
	assert.Equal(t, 2, j.Polls)

	j, err = j.Observe("rendering-audio", t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, PhaseProcessing, j.Phase)
	assert.Equal(t, "rendering-audio", j.ServerState)
}

func TestJob_TerminalTransitionsAreFinal(t *testing.T) {
	base := queuedJob(t)

	done, err := base.Complete("completed", "https://api.example.com/files/abc123.mp4", t0)
	require.NoError(t, err)
	failed, err := base.Fail("failed", "encode error", t0)
	require.NoError(t, err)
	broken, err := base.Break("Status HTTP 502", t0)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/files/abc123.mp4", done.ResultURL)
	assert.Empty(t, done.ErrorMessage)
	assert.Equal(t, "encode error", failed.ErrorMessage)
	assert.Empty(t, failed.ResultURL)
	assert.Equal(t, PhaseTransportError, broken.Phase)

	for _, j := range []Job{done, failed, broken} {
		_, err := j.Observe("processing", t0)
		assert.ErrorIs(t, err, ErrTerminal)
		_, err = j.Complete("completed", "x", t0)
		assert.ErrorIs(t, err, ErrTerminal)
		_, err = j.Abandon(t0)
		assert.ErrorIs(t, err, ErrTerminal)
	}
}

func TestJob_TransitionsDoNotMutateReceiver(t *testing.T) {
	j := queuedJob(t)
	_, err := j.Fail("failed", "boom", t0)
	require.NoError(t, err)

	assert.Equal(t, PhaseQueued, j.Phase)
	assert.Empty(t, j.ErrorMessage)
}

func TestJob_PollRequiresJobID(t *testing.T) {
	_, err := NewSubmitting(t0).Observe("processing", t0)
	assert.ErrorIs(t, err, ErrPhase)
}

func TestJob_Abandon(t *testing.T) {
	j, err := queuedJob(t).Abandon(t0)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, j.Phase)
	assert.Equal(t, "abc123", j.ID)
}

func TestJob_JSON(t *testing.T) {
	j, err := queuedJob(t).Complete("completed", "https://api.example.com/files/abc123.mp4", t0)
	require.NoError(t, err)

	b, err := json.Marshal(j)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "completed", got["phase"])
	assert.Equal(t, "abc123", got["id"])
	assert.NotContains(t, got, "error")

	var back Job
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, j, back)
}

func TestPhase_UnmarshalText(t *testing.T) {
	for p := PhaseIdle; p <= PhaseTransportError; p++ {
		b, err := p.MarshalText()
		require.NoError(t, err)

		var got Phase
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, p, got)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("unknown")))
	assert.Error(t, json.Unmarshal([]byte(`{"phase":"done"}`), &Job{}))
}
