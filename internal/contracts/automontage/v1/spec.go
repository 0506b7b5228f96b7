// Package v1 holds the JSON contract of the automontage render service.
//
//	POST {base}/v1/automontage/render        RenderRequest  -> RenderResponse
//	GET  {base}/v1/automontage/status/{id}                  -> StatusResponse
package v1

const (
	RenderPath = "/v1/automontage/render"
	StatusPath = "/v1/automontage/status/"

	// FormatMP4 is the only output format this client requests.
	FormatMP4 = "mp4"
)

// States reported by the status endpoint. The service may report others;
// anything not terminal is treated as still running.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

type RenderRequest struct {
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Format   string `json:"format"`
}

type RenderResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId,omitempty"`
	Error string `json:"error,omitempty"`
}

type StatusResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	// URL is server-relative or absolute; set once State is completed.
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}
