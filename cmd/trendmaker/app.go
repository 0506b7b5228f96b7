package main

import (
	"context"
	"time"

	"trendmaker/internal/archive"
	"trendmaker/internal/config"
	"trendmaker/internal/journal"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/pkg/shutdown"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
	"trendmaker/internal/renderer"
	"trendmaker/internal/storage"
	"trendmaker/internal/stream"
)

// app is the wired process: controller plus whatever optional parts the
// config turns on. Nil fields are disabled.
type app struct {
	controller *render.Controller
	journal    ports.JournalStore
	recorder   *journal.Recorder
	archiver   *archive.Archiver
	hub        *stream.Hub
}

// options carries the per-mode listeners main attaches.
type options struct {
	withHub   bool
	observers []render.Observer
	notifiers []render.Notifier
}

// newApp connects the configured backends and registers their cleanup
// with mgr, so that a failure half way through still releases what was
// opened.
func newApp(ctx context.Context, cfg config.Config, log *logger.Logger, mgr *shutdown.Manager, opt options) (*app, error) {
	a := &app{}
	observers := append([]render.Observer(nil), opt.observers...)
	notifiers := append([]render.Notifier(nil), opt.notifiers...)

	// Journal
	store, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("journal connected", "driver", store.Driver())
		a.journal = store
		mgr.Register("journal-store", func(context.Context) error { return store.Close() })

		a.recorder = journal.NewRecorder(store, cfg.Journal.Buffer, log)
		mgr.Register("journal-recorder", func(context.Context) error { return a.recorder.Close() })
		observers = append(observers, a.recorder)
	}

	// Archive
	sp, err := storage.NewProvider(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	if sp != nil {
		log.Info("storage provider initialized", "provider", sp.Provider())
		a.archiver = archive.New(archive.Deps{
			Storage: sp,
			Prefix:  cfg.Archive.Prefix,
			Timeout: cfg.Archive.Timeout,
			Log:     log,
		})
		mgr.Register("archiver", a.archiver.Close)
		notifiers = append(notifiers, a.archiver)

		if a.journal != nil {
			a.restoreArchive(ctx, cfg.Journal.Keep, log)
		}
	}

	// Live stream
	if opt.withHub {
		a.hub = stream.NewHub(log)
		observers = append(observers, a.hub)
		notifiers = append(notifiers, a.hub)
	}

	a.controller = render.New(render.Deps{
		Client:    renderer.NewHTTPClient(cfg.API.BaseURL, cfg.API.RequestTimeout),
		BaseURL:   cfg.API.BaseURL,
		Interval:  cfg.API.PollInterval,
		MaxPolls:  cfg.API.MaxPolls,
		Log:       log,
		Notifiers: notifiers,
		Observers: observers,
	})
	mgr.Register("render-controller", func(context.Context) error { return a.controller.Close() })

	log.Info("render controller ready",
		"base_url", cfg.API.BaseURL,
		"poll_interval", cfg.API.PollInterval.String(),
		"max_polls", cfg.API.MaxPolls,
	)
	return a, nil
}

// terminalWatcher hands the first terminal notification to done.
func terminalWatcher(done chan<- render.Notification) render.Notifier {
	return render.NotifierFunc(func(_ context.Context, n render.Notification) {
		select {
		case done <- n:
		default:
		}
	})
}

// statusPrinter writes each new status line through out.
func statusPrinter(out func(string)) render.Observer {
	var last string
	return render.ObserverFunc(func(s render.Snapshot) {
		if s.Status == "" || s.Status == last {
			return
		}
		last = s.Status
		out(time.Now().Format("15:04:05") + "  " + s.Status)
	})
}

// restoreArchive re-indexes the completed jobs the journal remembers.
// Failures are logged; the archive still serves new renders.
func (a *app) restoreArchive(ctx context.Context, limit int, log *logger.Logger) {
	if limit <= 0 {
		limit = 500
	}
	entries, err := a.journal.Recent(ctx, limit)
	if err != nil {
		log.WithError(err).Warn("archive index not restored")
		return
	}

	seen := map[string]bool{}
	var ids []string
	for _, e := range entries {
		if e.Phase != render.PhaseCompleted.String() || e.JobID == "" || seen[e.JobID] {
			continue
		}
		seen[e.JobID] = true
		ids = append(ids, e.JobID)
	}
	if len(ids) == 0 {
		return
	}

	n, err := a.archiver.Restore(ctx, ids)
	if err != nil {
		log.WithError(err).Warn("archive index partially restored", "restored", n)
		return
	}
	log.Info("archive index restored", "restored", n, "completed_jobs", len(ids))
}
