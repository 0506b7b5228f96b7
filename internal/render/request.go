package render

import (
	"math"
	"strconv"
	"strings"

	v1 "trendmaker/internal/contracts/automontage/v1"
)

// DefaultDurationSeconds replaces a missing, unparsable or non-positive
// duration.
const DefaultDurationSeconds = 5

// RenderRequest is what the user asked to render.
type RenderRequest struct {
	Title           string
	DurationSeconds int
	Format          string
}

// NewRenderRequest builds a request from raw form input. The title is kept
// verbatim; validity is the service's call.
func NewRenderRequest(title, durationInput string) RenderRequest {
	return RenderRequest{
		Title:           title,
		DurationSeconds: ParseDuration(durationInput),
		Format:          v1.FormatMP4,
	}
}

// ParseDuration reads a duration in seconds from user input. Fractions are
// truncated; anything that does not yield a positive whole number of
// seconds becomes DefaultDurationSeconds.
func ParseDuration(input string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 {
		return DefaultDurationSeconds
	}
	n := int(f)
	if n <= 0 {
		return DefaultDurationSeconds
	}
	return n
}

// normalized fixes up a request built without NewRenderRequest.
func (r RenderRequest) normalized() RenderRequest {
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	r.Format = v1.FormatMP4
	return r
}

func (r RenderRequest) wire() v1.RenderRequest {
	return v1.RenderRequest{
		Title:    r.Title,
		Duration: r.DurationSeconds,
		Format:   r.Format,
	}
}
