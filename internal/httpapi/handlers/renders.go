package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"trendmaker/internal/httpkit"
	"trendmaker/internal/pkg/errors"
	"trendmaker/internal/render"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type submitRequest struct {
	Title string `json:"title"`
	// Duration comes straight from a form field, so both "7" and 7 are
	// accepted.
	Duration json.RawMessage `json:"duration"`
}

func (s submitRequest) durationInput() string {
	raw := bytes.TrimSpace(s.Duration)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return str
	}
	return string(raw)
}

// PostRender submits a new render, replacing whatever job was tracked.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var body submitRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		return err
	}

	req := render.NewRenderRequest(body.Title, body.durationInput())
	if _, err := h.renders.Submit(r.Context(), req); err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, h.renders.Snapshot())
	return nil
}

func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, h.renders.Snapshot())
}

// DeleteCurrent cancels polling; a finished job stays visible.
func (h *Handler) DeleteCurrent(w http.ResponseWriter, r *http.Request) {
	h.renders.Cancel()
	httpkit.WriteJSON(w, http.StatusOK, h.renders.Snapshot())
}

// History lists journal entries, newest first. The list is empty when
// the journal is disabled.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) error {
	limit, err := httpkit.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		return err
	}

	if h.journal == nil {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"entries": []any{}, "driver": "none"})
		return nil
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		return errors.Wrap(err, "handlers.History", "could not read journal")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "driver": h.journal.Driver()})
	return nil
}
