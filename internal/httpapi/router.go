// Package httpapi is the local API the host UI uses to start renders and
// follow their progress.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"trendmaker/internal/archive"
	"trendmaker/internal/httpapi/handlers"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/pkg/middleware"
	"trendmaker/internal/ports"
)

// DefaultOrigins are the Expo web and Vite dev servers.
var DefaultOrigins = []string{
	"http://localhost:8081",
	"http://localhost:19006",
	"http://localhost:5173",
}

// routeTimeout bounds short request/response routes.
const routeTimeout = 30 * time.Second

type Deps struct {
	Renders handlers.Renders
	Journal ports.JournalStore
	Archive *archive.Archiver
	// Events serves /renders/events; nil leaves the route unmounted.
	Events http.Handler

	Log            *logger.Logger
	AllowedOrigins []string
	AuthSecret     string
	// SubmitTimeout is the renderer's per-request timeout. When set,
	// POST /renders is bounded a little past it; zero leaves it unbounded.
	SubmitTimeout time.Duration
	Version       string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	}).Handler)

	h := handlers.New(handlers.Deps{
		Renders: d.Renders,
		Journal: d.Journal,
		Archive: d.Archive,
		Log:     log,
		Version: d.Version,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.AuthSecret))

		bounded := r.With(middleware.Timeout(routeTimeout))
		submit := r
		if d.SubmitTimeout > 0 {
			submit = r.With(middleware.Timeout(d.SubmitTimeout + 5*time.Second))
		}

		// ---- RENDERS ----
		submit.Post("/renders", wrap(h.PostRender))
		r.Get("/renders/current", h.GetCurrent)
		r.Delete("/renders/current", h.DeleteCurrent)
		bounded.Get("/renders/history", wrap(h.History))
		if d.Events != nil {
			r.Method(http.MethodGet, "/renders/events", d.Events)
		}

		// ---- ARCHIVE ----
		r.Get("/archive", wrap(h.ListArchive))
		r.Get("/archive/{jobId}", wrap(h.GetArchive))
		bounded.Get("/archive/{jobId}/url", wrap(h.GetArchiveURL))
		r.Get("/archive/{jobId}/content", wrap(h.StreamArchive))
		bounded.Delete("/archive/{jobId}", wrap(h.DeleteArchive))
	})

	return r
}
