package handlers

import (
	"context"
	"net/http"
	"time"

	"trendmaker/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also pings the journal and
// the archive storage; a failing check turns the status to "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "trendmaker",
		"version": h.version,
		"polling": h.renders.Snapshot().Polling,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]map[string]any{
			"journal": h.checkJournal(ctx),
			"storage": h.checkStorage(ctx),
		}
		health["checks"] = checks

		for _, c := range checks {
			if c["status"] == "error" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkJournal(ctx context.Context) map[string]any {
	if h.journal == nil {
		return map[string]any{"status": "disabled"}
	}
	result := probe(ctx, h.journal.Ping)
	result["driver"] = h.journal.Driver()
	return result
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	if h.archive == nil {
		return map[string]any{"status": "disabled"}
	}
	result := probe(ctx, h.archive.Ping)
	result["provider"] = h.archive.Provider()
	return result
}

func probe(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
