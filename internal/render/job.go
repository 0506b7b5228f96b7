package render

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Phase is the lifecycle stage of a render job as seen by the client.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseQueued
	PhaseProcessing
	PhaseCompleted
	PhaseFailed
	PhaseTransportError
)

var phaseNames = [...]string{
	PhaseIdle:           "idle",
	PhaseSubmitting:     "submitting",
	PhaseQueued:         "queued",
	PhaseProcessing:     "processing",
	PhaseCompleted:      "completed",
	PhaseFailed:         "failed",
	PhaseTransportError: "transport_error",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("render: unknown phase %q", b)
}

// Terminal reports whether no further transitions may happen.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseTransportError
}

// Active reports whether the job is being submitted or polled.
func (p Phase) Active() bool {
	return p == PhaseSubmitting || p == PhaseQueued || p == PhaseProcessing
}

var (
	// ErrTerminal is returned by transitions applied to a finished job.
	ErrTerminal = stderrors.New("render: job is in a terminal phase")
	// ErrPhase is returned by transitions not allowed from the current phase.
	ErrPhase = stderrors.New("render: transition not allowed from this phase")
)

// Job is one server-side render task as observed by the client. Jobs are
// values: every transition returns a new Job and leaves the receiver as is.
type Job struct {
	ID    string `json:"id,omitempty"`
	Phase Phase  `json:"phase"`
	// ServerState is the last raw state string the service reported.
	ServerState  string    `json:"server_state,omitempty"`
	ResultURL    string    `json:"result_url,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Polls        int       `json:"polls"`
	SubmittedAt  time.Time `json:"submitted_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// NewSubmitting returns the job that exists while a request is in flight.
func NewSubmitting(now time.Time) Job {
	return Job{Phase: PhaseSubmitting, SubmittedAt: now, UpdatedAt: now}
}

// Accept assigns the server's job id and moves the job to queued.
func (j Job) Accept(id string, now time.Time) (Job, error) {
	if j.Phase != PhaseSubmitting {
		return j, ErrPhase
	}
	if j.ID != "" || id == "" {
		return j, ErrPhase
	}
	j.ID = id
	j.Phase = PhaseQueued
	j.UpdatedAt = now
	return j, nil
}

// Observe records a non-terminal server state from one poll tick.
func (j Job) Observe(state string, now time.Time) (Job, error) {
	if err := j.pollable(); err != nil {
		return j, err
	}
	j.ServerState = state
	if state == "queued" {
		j.Phase = PhaseQueued
	} else {
		j.Phase = PhaseProcessing
	}
	j.Polls++
	j.UpdatedAt = now
	return j, nil
}

// Complete finishes the job with the resolved location of the video.
func (j Job) Complete(state, resultURL string, now time.Time) (Job, error) {
	if err := j.pollable(); err != nil {
		return j, err
	}
	j.ServerState = state
	j.Phase = PhaseCompleted
	j.ResultURL = resultURL
	j.Polls++
	j.UpdatedAt = now
	return j, nil
}

// Fail finishes the job because the service reported the render failed.
func (j Job) Fail(state, msg string, now time.Time) (Job, error) {
	if err := j.pollable(); err != nil {
		return j, err
	}
	j.ServerState = state
	j.Phase = PhaseFailed
	j.ErrorMessage = msg
	j.Polls++
	j.UpdatedAt = now
	return j, nil
}

// Break finishes the job because its status could not be obtained.
func (j Job) Break(msg string, now time.Time) (Job, error) {
	if err := j.pollable(); err != nil {
		return j, err
	}
	j.Phase = PhaseTransportError
	j.ErrorMessage = msg
	j.Polls++
	j.UpdatedAt = now
	return j, nil
}

// Abandon returns an active job to idle, keeping its id for reference.
// Terminal jobs are left untouched.
func (j Job) Abandon(now time.Time) (Job, error) {
	if j.Phase.Terminal() {
		return j, ErrTerminal
	}
	j.Phase = PhaseIdle
	j.UpdatedAt = now
	return j, nil
}

func (j Job) pollable() error {
	if j.Phase.Terminal() {
		return ErrTerminal
	}
	if j.Phase != PhaseQueued && j.Phase != PhaseProcessing {
		return ErrPhase
	}
	return nil
}
