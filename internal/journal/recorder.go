// Package journal records render phase changes into a ports.JournalStore.
package journal

import (
	"context"
	"sync"
	"time"

	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
)

const writeTimeout = 5 * time.Second

// Recorder is a render.Observer that hands snapshots to a writer
// goroutine. Observe never blocks: when the buffer is full the entry is
// dropped and counted.
type Recorder struct {
	store ports.JournalStore
	log   *logger.Logger
	now   func() time.Time

	entries chan ports.JournalEntry
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	last    ports.JournalEntry
	dropped int
}

func NewRecorder(store ports.JournalStore, buffer int, log *logger.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logger.NewDefault()
	}
	r := &Recorder{
		store:   store,
		log:     log.WithComponent("journal"),
		now:     time.Now,
		entries: make(chan ports.JournalEntry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe records s when it starts a new phase or server state of a job
// that has an id. Repeated "still processing" ticks collapse into one
// entry.
func (r *Recorder) Observe(s render.Snapshot) {
	if s.Job.ID == "" {
		return
	}
	e := entryFrom(s, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || sameStep(r.last, e) {
		return
	}
	r.last = e

	select {
	case r.entries <- e:
	default:
		r.dropped++
		r.log.Warn("journal buffer full, entry dropped", "job_id", e.JobID, "phase", e.Phase, "dropped", r.dropped)
	}
}

// Dropped reports how many entries were lost to a full buffer.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting entries and waits until the buffered ones are
// written. It does not close the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Append(ctx, e); err != nil {
			r.log.WithError(err).Error("journal append failed", "job_id", e.JobID, "phase", e.Phase)
		}
		cancel()
	}
}

func entryFrom(s render.Snapshot, now time.Time) ports.JournalEntry {
	at := s.Job.UpdatedAt
	if at.IsZero() {
		at = now
	}
	return ports.JournalEntry{
		JobID:        s.Job.ID,
		Phase:        s.Job.Phase.String(),
		ServerState:  s.Job.ServerState,
		Status:       s.Status,
		ResultURL:    s.Job.ResultURL,
		ErrorMessage: s.Job.ErrorMessage,
		Polls:        s.Job.Polls,
		Generation:   s.Generation,
		RecordedAt:   at.UTC(),
	}
}

func sameStep(a, b ports.JournalEntry) bool {
	return a.JobID == b.JobID && a.Phase == b.Phase && a.ServerState == b.ServerState
}
