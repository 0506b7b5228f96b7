package handlers

import (
	"context"

	"trendmaker/internal/archive"
	"trendmaker/internal/pkg/logger"
	"trendmaker/internal/ports"
	"trendmaker/internal/render"
)

// Renders is the part of the render controller the API drives.
type Renders interface {
	Submit(ctx context.Context, req render.RenderRequest) (render.Job, error)
	Cancel()
	Snapshot() render.Snapshot
}

type Deps struct {
	Renders Renders
	// Journal is nil when the journal is disabled.
	Journal ports.JournalStore
	// Archive is nil when archiving is disabled.
	Archive *archive.Archiver
	Log     *logger.Logger
	Version string
}

type Handler struct {
	renders Renders
	journal ports.JournalStore
	archive *archive.Archiver
	log     *logger.Logger
	version string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		renders: d.Renders,
		journal: d.Journal,
		archive: d.Archive,
		log:     log.WithComponent("httpapi"),
		version: version,
	}
}
