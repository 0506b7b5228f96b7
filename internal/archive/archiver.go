// Package archive copies finished renders into a storage provider.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
)

// Entry describes one archived render.
type Entry struct {
	JobID      string    `json:"job_id"`
	SourceURL  string    `json:"source_url"`
	Provider   string    `json:"provider"`
	ObjectKey  string    `json:"object_key"`
	Size       int64     `json:"size"`
	// ArchivedAt is zero for entries restored from storage.
	ArchivedAt time.Time `json:"archived_at,omitzero"`
}

type Deps struct {
	Storage ports.StorageProvider
	// HTTPClient downloads results; defaults to one with Timeout.
	HTTPClient *http.Client
	Prefix     string
	Format     string
	Timeout    time.Duration
	Log        *logger.Logger
}

// Archiver is a render.Notifier. Completed jobs are downloaded and
// stored in the background; Close waits for copies in flight.
type Archiver struct {
	sp      ports.StorageProvider
	client  *http.Client
	prefix  string
	format  string
	timeout time.Duration
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]Entry
	closed  bool
}

func New(d Deps) *Archiver {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	format := d.Format
	if format == "" {
		format = "mp4"
	}
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Archiver{
		sp:      d.Storage,
		client:  client,
		prefix:  d.Prefix,
		format:  format,
		timeout: timeout,
		log:     log.WithComponent("archive"),
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]Entry{},
	}
}

// Notify starts archiving completed jobs and ignores everything else.
func (a *Archiver) Notify(_ context.Context, n render.Notification) {
	if n.Kind != render.NoticeCompleted || n.Job.ID == "" || n.Job.ResultURL == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.wg.Add(1)
	go func(job render.Job) {
		defer a.wg.Done()
		if _, err := a.Archive(a.ctx, job.ID, job.ResultURL); err != nil {
			a.log.WithJobID(job.ID).WithError(err).Error("archive failed", "source_url", job.ResultURL)
		}
	}(n.Job)
}

// Archive downloads sourceURL and stores it as <prefix>/<jobID>.<format>.
func (a *Archiver) Archive(ctx context.Context, jobID, sourceURL string) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log := a.log.WithJobID(jobID)
	start := time.Now()

	tmp, size, contentType, err := a.download(ctx, sourceURL)
	if err != nil {
		return Entry{}, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	out, err := a.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   a.ObjectKey(jobID),
		ContentType: contentType,
		Reader:      tmp,
		Size:        size,
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "archive.Archive", "store render").WithField("job_id", jobID)
	}

	e := Entry{
		JobID:      jobID,
		SourceURL:  sourceURL,
		Provider:   a.sp.Provider(),
		ObjectKey:  out.ObjectKey,
		Size:       out.Size,
		ArchivedAt: time.Now().UTC(),
	}
	a.mu.Lock()
	a.entries[jobID] = e
	a.mu.Unlock()

	log.Info("render archived",
		"provider", e.Provider,
		"object_key", e.ObjectKey,
		"size", e.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return e, nil
}

// ObjectKey is the key a job is stored under.
func (a *Archiver) ObjectKey(jobID string) string {
	name := fmt.Sprintf("%s.%s", jobID, a.format)
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Find returns the archive entry of jobID. A job missing from the index
// is looked up in storage under ObjectKey, so renders archived by an
// earlier process are found again.
func (a *Archiver) Find(ctx context.Context, jobID string) (Entry, error) {
	if e, ok := a.Lookup(jobID); ok {
		return e, nil
	}
	if jobID == "" {
		return Entry{}, notArchived(jobID)
	}

	key := a.ObjectKey(jobID)
	rc, _, size, err := a.sp.GetObject(ctx, key)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) || errors.IsCode(err, errors.CodeValidation) {
			return Entry{}, notArchived(jobID)
		}
		return Entry{}, err
	}
	rc.Close()

	e := Entry{JobID: jobID, Provider: a.sp.Provider(), ObjectKey: key, Size: size}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.entries[jobID]; ok {
		return cur, nil
	}
	a.entries[jobID] = e
	return e, nil
}

// Restore indexes renders an earlier process archived and returns how
// many were found. Jobs missing from storage are skipped.
func (a *Archiver) Restore(ctx context.Context, jobIDs []string) (int, error) {
	n := 0
	for _, id := range jobIDs {
		if _, err := a.Find(ctx, id); err != nil {
			if errors.IsCode(err, errors.CodeNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Lookup returns the indexed archive entry of jobID.
func (a *Archiver) Lookup(jobID string) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[jobID]
	return e, ok
}

// List returns every archived entry.
func (a *Archiver) List() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	return out
}

// Open streams an archived render back from storage.
func (a *Archiver) Open(ctx context.Context, jobID string) (io.ReadCloser, string, int64, error) {
	e, err := a.Find(ctx, jobID)
	if err != nil {
		return nil, "", 0, err
	}
	return a.sp.GetObject(ctx, e.ObjectKey)
}

// SignedURL returns a direct link when the provider can sign one.
func (a *Archiver) SignedURL(ctx context.Context, jobID string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	e, err := a.Find(ctx, jobID)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	return a.sp.GetSignedURL(ctx, e.ObjectKey, expiresIn)
}

// Delete removes an archived render.
func (a *Archiver) Delete(ctx context.Context, jobID string) error {
	e, err := a.Find(ctx, jobID)
	if err != nil {
		return err
	}
	if err := a.sp.DeleteObject(ctx, e.ObjectKey); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.entries, jobID)
	a.mu.Unlock()
	return nil
}

func notArchived(jobID string) error {
	return errors.New(errors.CodeNotFound, "render not archived").WithField("job_id", jobID)
}

// Provider names the storage backend.
func (a *Archiver) Provider() string { return a.sp.Provider() }

// Ping checks the storage backend.
func (a *Archiver) Ping(ctx context.Context) error { return a.sp.Ping(ctx) }

// Close waits for archives in flight, up to ctx. When ctx expires the
// remaining copies are canceled.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}

// download spools sourceURL into a temp file so every provider gets a
// seekable body with a known size.
func (a *Archiver) download(ctx context.Context, sourceURL string) (*os.File, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, 0, "", errors.WrapWithCode(err, errors.CodeValidation, "archive.download", "invalid result url")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, "", errors.WrapWithCode(err, errors.CodeUnavailable, "archive.download", "download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, "", errors.Newf(errors.CodeUnavailable, "download failed: HTTP %d", resp.StatusCode).
			WithField("source_url", sourceURL)
	}

	tmp, err := os.CreateTemp("", "trendmaker-render-*")
	if err != nil {
		return nil, 0, "", errors.Wrap(err, "archive.download", "create temp file")
	}

	n, err := io.Copy(tmp, resp.Body)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, "", errors.WrapWithCode(err, errors.CodeUnavailable, "archive.download", "download interrupted")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/" + a.format
	}
	return tmp, n, contentType, nil
}
