// Package render drives one render job at a time: it submits the request,
// polls the service until the job finishes, and publishes every phase
// change to observers.
package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	v1 "trendmaker/internal/contracts/automontage/v1"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/renderer"
)

// DefaultPollInterval is the cadence of status requests.
const DefaultPollInterval = 2 * time.Second

const (
	msgSubmitFallback = "could not start render"
	msgStatusFallback = "could not fetch status"
	msgFailedFallback = "unknown"
)

type Deps struct {
	Client renderer.Client
	// BaseURL resolves the server-relative url of finished jobs.
	BaseURL  string
	Interval time.Duration
	// MaxPolls ends a job that is still running after this many ticks.
	// Zero polls until the service reports a terminal state.
	MaxPolls  int
	Log       *logger.Logger
	Notifiers []Notifier
	Observers []Observer
	Now       func() time.Time
}

// Controller owns the active job and the poll sequence watching it. At
// most one sequence runs at a time; starting a new one, Cancel and Close
// all stop the previous one first.
type Controller struct {
	api       renderer.Client
	baseURL   string
	interval  time.Duration
	maxPolls  int
	log       *logger.Logger
	notifiers []Notifier
	observers []Observer
	now       func() time.Time

	// ctx is handed to notifiers and canceled by Close.
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	job    Job
	status string
	// gen is bumped whenever a submission or poll sequence is started or
	// stopped. Responses carrying an older gen are dropped.
	gen    uint64
	stop   context.CancelFunc
	closed bool
}

func New(d Deps) *Controller {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		api:       d.Client,
		baseURL:   d.BaseURL,
		interval:  interval,
		maxPolls:  d.MaxPolls,
		log:       log.WithComponent("render"),
		notifiers: d.Notifiers,
		observers: d.Observers,
		now:       now,
		ctx:       ctx,
		ctxCancel: cancel,
	}
}

// Submit cancels whatever is running, sends req and, once the service
// hands back a job id, starts polling it. A rejected submission leaves
// the controller idle and returns a CodeSubmission error. If Cancel, Close
// or another Submit happens while the request is in flight, the response
// is dropped and a CodeCanceled error is returned.
func (c *Controller) Submit(ctx context.Context, req RenderRequest) (Job, error) {
	req = req.normalized()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Job{}, errors.Unavailable("render controller")
	}
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.setLocked(NewSubmitting(c.now()), "Sending render request...")
	c.mu.Unlock()

	log := c.log.WithGeneration(gen)
	log.Info("submitting render", "title", req.Title, "duration", req.DurationSeconds)

	res, err := c.api.Submit(ctx, req.wire())

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		log.Debug("dropping superseded submission response")
		return Job{}, errors.Canceled("render.submit")
	}

	if err == nil && (!res.OK || res.JobID == "") {
		err = errors.Submission(firstNonEmpty(res.Error, msgSubmitFallback))
	}
	if err != nil && !errors.IsCode(err, errors.CodeSubmission) {
		err = errors.WrapWithCode(err, errors.CodeSubmission, "render.submit", errors.UserMessage(err))
	}
	if err != nil {
		msg := errors.UserMessage(err)
		log.Warn("render submission failed", "error", err.Error())

		idle := Job{Phase: PhaseIdle, UpdatedAt: c.now()}
		c.setLocked(idle, "Error: "+msg)
		c.notifyLocked(Notification{
			Kind:    NoticeSubmissionError,
			Title:   "Error",
			Message: msg,
			Job:     idle,
			Err:     err,
		})
		return idle, err
	}

	job, terr := c.job.Accept(res.JobID, c.now())
	if terr != nil {
		return c.job, errors.WrapWithCode(terr, errors.CodeInternal, "render.submit", "unexpected job state")
	}

	c.startLocked(job.ID)
	c.setLocked(job, fmt.Sprintf("Render queued (Job ID: %s)", job.ID))
	log.WithJobID(job.ID).Info("render queued")
	return job, nil
}

// StartPolling watches an existing job id, replacing any job the
// controller was tracking.
func (c *Controller) StartPolling(jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.Validation("job id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Job{}, errors.Unavailable("render controller")
	}
	c.stopLocked()

	now := c.now()
	job := Job{ID: jobID, Phase: PhaseQueued, UpdatedAt: now}
	c.startLocked(jobID)
	c.setLocked(job, fmt.Sprintf("Render queued (Job ID: %s)", jobID))
	return job, nil
}

// Cancel stops the running poll sequence, if any, and returns an active
// job to idle. Finished jobs are kept for display. Safe to call any
// number of times.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Close cancels like Cancel, refuses further work, and waits until every
// poll goroutine has returned. After Close no observer or notifier is
// invoked again.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancelLocked()
	c.closed = true
	c.mu.Unlock()

	c.ctxCancel()
	c.wg.Wait()
	c.log.Debug("render controller closed")
	return nil
}

// Snapshot returns the current job and status line.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Polling reports whether a poll sequence is running.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *Controller) cancelLocked() {
	stopped := c.stopLocked()
	if !c.job.Phase.Active() {
		return
	}
	if !stopped {
		// A submission is in flight; make its response stale.
		c.gen++
	}
	job, err := c.job.Abandon(c.now())
	if err != nil {
		return
	}
	c.log.WithJobID(job.ID).Info("render canceled")
	c.setLocked(job, "Canceled")
}

func (c *Controller) startLocked(jobID string) {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.ctx)
	c.stop = cancel

	c.wg.Add(1)
	go c.poll(ctx, gen, jobID)
}

// stopLocked releases the poll sequence. It reports whether one was
// running.
func (c *Controller) stopLocked() bool {
	if c.stop == nil {
		return false
	}
	c.stop()
	c.stop = nil
	c.gen++
	return true
}

func (c *Controller) poll(ctx context.Context, gen uint64, jobID string) {
	defer c.wg.Done()

	log := c.log.WithJobID(jobID).WithGeneration(gen)
	log.Debug("poll sequence started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("poll sequence stopped")
			return
		case <-ticker.C:
		}

		res, err := c.api.Status(ctx, jobID)
		if !c.apply(gen, jobID, res, err) {
			return
		}
	}
}

// apply folds one status response into the job. It reports whether the
// sequence should keep polling.
func (c *Controller) apply(gen uint64, jobID string, res v1.StatusResponse, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.WithJobID(jobID).WithGeneration(gen)
	if gen != c.gen || c.stop == nil {
		log.Debug("dropping stale status response")
		return false
	}

	now := c.now()

	if err != nil {
		return c.breakLocked(errors.UserMessage(err), err)
	}
	if !res.OK {
		msg := firstNonEmpty(res.Error, msgStatusFallback)
		return c.breakLocked(msg, errors.Transport(jobID, msg))
	}

	switch {
	case res.State == v1.StateCompleted && res.URL != "":
		job, terr := c.job.Complete(res.State, renderer.Resolve(c.baseURL, res.URL), now)
		if terr != nil {
			return c.illegalLocked(terr)
		}
		c.stopLocked()
		c.setLocked(job, "Render completed")
		log.Info("render completed", "result_url", job.ResultURL, "polls", job.Polls)
		c.notifyLocked(Notification{
			Kind:    NoticeCompleted,
			Title:   "Render completed",
			Message: job.ResultURL,
			Job:     job,
		})
		return false

	case res.State == v1.StateFailed:
		msg := firstNonEmpty(res.Error, msgFailedFallback)
		job, terr := c.job.Fail(res.State, msg, now)
		if terr != nil {
			return c.illegalLocked(terr)
		}
		c.stopLocked()
		c.setLocked(job, "Render failed: "+msg)
		log.Warn("render failed", "error", msg, "polls", job.Polls)
		c.notifyLocked(Notification{
			Kind:    NoticeFailed,
			Title:   "Render Error",
			Message: msg,
			Job:     job,
			Err:     errors.JobFailed(jobID, msg),
		})
		return false
	}

	if polls := c.job.Polls + 1; c.maxPolls > 0 && polls >= c.maxPolls {
		msg := fmt.Sprintf("no result after %d status checks", polls)
		return c.breakLocked(msg, errors.New(errors.CodeTimeout, msg).WithField("job_id", jobID))
	}
	job, terr := c.job.Observe(res.State, now)
	if terr != nil {
		return c.illegalLocked(terr)
	}
	c.setLocked(job, "Status: "+firstNonEmpty(res.State, "unknown"))
	log.Debug("render still running", "state", res.State, "polls", job.Polls)
	return true
}

func (c *Controller) breakLocked(msg string, cause error) bool {
	job, terr := c.job.Break(msg, c.now())
	if terr != nil {
		return c.illegalLocked(terr)
	}
	c.stopLocked()
	c.setLocked(job, "Status error: "+msg)
	c.log.WithJobID(job.ID).Warn("render status unavailable", "error", cause.Error(), "polls", job.Polls)
	c.notifyLocked(Notification{
		Kind:    NoticeTransportError,
		Title:   "Status Error",
		Message: msg,
		Job:     job,
		Err:     cause,
	})
	return false
}

// illegalLocked stops polling after a transition the job refused.
func (c *Controller) illegalLocked(err error) bool {
	c.log.WithJobID(c.job.ID).Error("refused job transition", "phase", c.job.Phase.String(), "error", err.Error())
	c.stopLocked()
	return false
}

func (c *Controller) setLocked(job Job, status string) {
	c.job = job
	c.status = status
	snap := c.snapshotLocked()
	for _, o := range c.observers {
		o.Observe(snap)
	}
}

func (c *Controller) notifyLocked(n Notification) {
	for _, nt := range c.notifiers {
		nt.Notify(c.ctx, n)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Job:        c.job,
		Status:     c.status,
		Polling:    c.stop != nil,
		Generation: c.gen,
	}
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
