package ports

import (
	"context"
	"time"
)

// JournalEntry is one phase change of one job.
type JournalEntry struct {
	JobID        string    `json:"job_id"`
	Phase        string    `json:"phase"`
	ServerState  string    `json:"server_state,omitempty"`
	Status       string    `json:"status"`
	ResultURL    string    `json:"result_url,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Polls        int       `json:"polls"`
	Generation   uint64    `json:"generation"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// JournalStore keeps the render history (sqlite, postgres, redis).
type JournalStore interface {
	Driver() string
	Append(ctx context.Context, e JournalEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
	Ping(ctx context.Context) error
	Close() error
}
