// Command trendmaker submits render jobs to the Big Trend Maker service and
// follows them until they finish. Without -title it serves the companion
// API the host UI talks to.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"trendmaker/internal/config"
	"trendmaker/internal/httpapi"
	"trendmaker/internal/journal"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/pkg/middleware"
	"trendmaker/internal/pkg/shutdown"
	"trendmaker/internal/render"
	"trendmaker/internal/stream"

	redisjournal "trendmaker/internal/adapters/journal/redis"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

type flags struct {
	config   string
	title    string
	duration string
	jobID    string
	serve    bool
	follow   bool
	token    time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env is optional
	_ = godotenv.Load()

	var f flags
	fs := flag.NewFlagSet("trendmaker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "TOML config file (default $"+config.PathEnv+")")
	fs.StringVar(&f.title, "title", "", "submit a render with this title and wait for it")
	fs.StringVar(&f.duration, "duration", "", "render duration in seconds (default 5)")
	fs.StringVar(&f.jobID, "job", "", "follow an existing job id instead of submitting")
	fs.BoolVar(&f.serve, "serve", false, "run the companion API even when -title or -job is given")
	fs.BoolVar(&f.follow, "follow", false, "print journal entries published by other processes (redis journal only)")
	fs.DurationVar(&f.token, "token", 0, "print an API access token valid for this long and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintln(stderr, "trendmaker:", errors.UserMessage(err))
		return exitUsage
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: "trendmaker",
		Output:      stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case f.token > 0:
		return printToken(cfg, f.token, stdout, stderr)
	case f.follow:
		return follow(ctx, cfg, log, stdout)
	case !f.serve && (f.title != "" || f.jobID != ""):
		return once(ctx, cfg, log, f, stdout)
	default:
		return serve(ctx, cfg, log)
	}
}

func printToken(cfg config.Config, ttl time.Duration, stdout, stderr io.Writer) int {
	if cfg.Server.AuthSecret == "" {
		fmt.Fprintln(stderr, "trendmaker: server.auth_secret is not set; the API is open")
		return exitUsage
	}
	token, err := middleware.IssueToken(cfg.Server.AuthSecret, "trendmaker-ui", ttl)
	if err != nil {
		fmt.Fprintln(stderr, "trendmaker:", err)
		return exitFailed
	}
	fmt.Fprintln(stdout, token)
	return exitOK
}

// once submits (or adopts) a single job and blocks until it reaches a
// terminal state. The exit code is 0 only when the render completed.
func once(ctx context.Context, cfg config.Config, log *logger.Logger, f flags, stdout io.Writer) int {
	mgr := shutdown.NewManager(log, cfg.Archive.Timeout)
	defer func() { _ = mgr.Shutdown() }()

	done := make(chan render.Notification, 1)
	a, err := newApp(ctx, cfg, log, mgr, options{
		observers: []render.Observer{statusPrinter(func(s string) { fmt.Fprintln(stdout, s) })},
		notifiers: []render.Notifier{terminalWatcher(done)},
	})
	if err != nil {
		log.Error("startup failed", "error", err.Error())
		return exitFailed
	}

	if f.jobID != "" {
		_, err = a.controller.StartPolling(f.jobID)
	} else {
		_, err = a.controller.Submit(ctx, render.NewRenderRequest(f.title, f.duration))
	}
	if err != nil {
		// the status line already carries the message
		return exitFailed
	}

	select {
	case n := <-done:
		if n.IsError() {
			return exitFailed
		}
		fmt.Fprintln(stdout, n.Job.ResultURL)
		return exitOK
	case <-ctx.Done():
		a.controller.Cancel()
		return exitFailed
	}
}

// serve runs the companion API until SIGINT/SIGTERM.
func serve(ctx context.Context, cfg config.Config, log *logger.Logger) int {
	log.Info("starting trendmaker API", "version", version)

	mgr := shutdown.NewManager(log, cfg.Archive.Timeout)

	a, err := newApp(ctx, cfg, log, mgr, options{withHub: true})
	if err != nil {
		log.Error("startup failed", "error", err.Error())
		_ = mgr.Shutdown()
		return exitFailed
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Renders:        a.controller,
		Journal:        a.journal,
		Archive:        a.archiver,
		Events:         stream.NewHandler(a.hub, a.controller.Snapshot, cfg.Server.AllowedOrigins),
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthSecret:     cfg.Server.AuthSecret,
		SubmitTimeout:  cfg.API.RequestTimeout,
		Version:        version,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	mgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", server.Addr, "auth", cfg.Server.AuthSecret != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "main.serve", "HTTP server failed")
		}
		return nil
	})

	g.Go(func() error {
		return mgr.Wait(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("trendmaker stopped", "error", err.Error())
		return exitFailed
	}
	return exitOK
}

// follow tails the redis journal channel, printing every entry other
// trendmaker processes record.
func follow(ctx context.Context, cfg config.Config, log *logger.Logger, stdout io.Writer) int {
	store, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		log.Error("journal unavailable", "error", err.Error())
		return exitFailed
	}
	rs, ok := store.(*redisjournal.Store)
	if !ok {
		if store != nil {
			_ = store.Close()
		}
		log.Error("-follow needs the redis journal driver", "driver", cfg.Journal.Driver)
		return exitUsage
	}
	defer rs.Close()

	log.Info("following journal", "channel", rs.Channel())
	for e := range rs.Subscribe(ctx) {
		line := fmt.Sprintf("%s  %-10s %-16s %s", e.RecordedAt.Local().Format("15:04:05"), e.JobID, e.Phase, e.Status)
		if e.ResultURL != "" {
			line += "  " + e.ResultURL
		}
		fmt.Fprintln(stdout, line)
	}
	return exitOK
}
