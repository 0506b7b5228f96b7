package render

import "context"

// Snapshot is what the host UI renders: the current job, the status line,
// and whether a poll sequence is running.
type Snapshot struct {
	Job        Job    `json:"job"`
	Status     string `json:"status"`
	Polling    bool   `json:"polling"`
	Generation uint64 `json:"generation"`
}

// Observer receives every snapshot, in order. It is called with the
// controller lock held: it must not block and must not call back into the
// Controller.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// NoticeKind classifies a terminal outcome.
type NoticeKind string

const (
	NoticeCompleted       NoticeKind = "completed"
	NoticeFailed          NoticeKind = "failed"
	NoticeTransportError  NoticeKind = "transport_error"
	NoticeSubmissionError NoticeKind = "submission_error"
)

// Notification is the interruptive alert raised once per finished job or
// rejected submission.
type Notification struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Job     Job        `json:"job"`
	Err     error      `json:"-"`
}

// IsError reports whether the notification is about a failure.
func (n Notification) IsError() bool {
	return n.Kind != NoticeCompleted
}

// Notifier alerts the user. Same locking rules as Observer; ctx is
// canceled when the controller closes.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(context.Context, Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
