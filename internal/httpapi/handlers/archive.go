package handlers

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trendmaker/internal/httpkit"
	"trendmaker/internal/pkg/errors"
)

const signedURLTTL = 30 * time.Minute

func (h *Handler) archiveEnabled() error {
	if h.archive == nil {
		return errors.Unavailable("archive")
	}
	return nil
}

// ListArchive lists archived renders, newest first.
func (h *Handler) ListArchive(w http.ResponseWriter, r *http.Request) error {
	if err := h.archiveEnabled(); err != nil {
		return err
	}
	entries := h.archive.List()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ArchivedAt.After(entries[j].ArchivedAt)
	})
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"provider": h.archive.Provider(),
		"entries":  entries,
	})
	return nil
}

func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) error {
	if err := h.archiveEnabled(); err != nil {
		return err
	}
	jobID := chi.URLParam(r, "jobId")
	e, err := h.archive.Find(r.Context(), jobID)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return errors.NotFound("render", jobID)
		}
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"entry": e})
	return nil
}

// GetArchiveURL returns a direct link to the archived file. Providers
// that cannot sign links are served through /content instead.
func (h *Handler) GetArchiveURL(w http.ResponseWriter, r *http.Request) error {
	if err := h.archiveEnabled(); err != nil {
		return err
	}
	jobID := chi.URLParam(r, "jobId")

	out, err := h.archive.SignedURL(r.Context(), jobID, signedURLTTL)
	if err != nil {
		return err
	}
	url := out.URL
	if url == "" {
		url = "/archive/" + jobID + "/content"
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"job_id":     jobID,
		"url":        url,
		"expires_at": out.ExpiresAt,
	})
	return nil
}

func (h *Handler) StreamArchive(w http.ResponseWriter, r *http.Request) error {
	if err := h.archiveEnabled(); err != nil {
		return err
	}
	jobID := chi.URLParam(r, "jobId")

	rc, contentType, size, err := h.archive.Open(r.Context(), jobID)
	if err != nil {
		return err
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("archive stream interrupted", "job_id", jobID, "error", err.Error())
	}
	return nil
}

func (h *Handler) DeleteArchive(w http.ResponseWriter, r *http.Request) error {
	if err := h.archiveEnabled(); err != nil {
		return err
	}
	if err := h.archive.Delete(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
