package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "trendmaker/internal/contracts/automontage/v1"
	"trendmaker/internal/pkg/errors"
)

// maxBody caps how much of a response is decoded.
const maxBody = 1 << 20

// Client talks to the automontage render service.
type Client interface {
	Submit(ctx context.Context, req v1.RenderRequest) (v1.RenderResponse, error)
	Status(ctx context.Context, jobID string) (v1.StatusResponse, error)
}

// HTTPClient implements Client over JSON/HTTP.
//
// Submit returns CodeSubmission errors and Status returns CodeTransport
// errors for network failures, non-2xx answers and undecodable bodies. The
// ok flag of a decoded body is left for the caller to interpret.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for baseURL. A zero timeout means requests
// are bounded only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service base address without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) Submit(ctx context.Context, spec v1.RenderRequest) (v1.RenderResponse, error) {
	var out v1.RenderResponse

	body, err := json.Marshal(spec)
	if err != nil {
		return out, errors.WrapWithCode(err, errors.CodeSubmission, "renderer.submit", "could not encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+v1.RenderPath, bytes.NewReader(body))
	if err != nil {
		return out, errors.WrapWithCode(err, errors.CodeSubmission, "renderer.submit", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.do(req, &out); err != nil {
		return out, errors.WrapWithCode(err, errors.CodeSubmission, "renderer.submit", errors.UserMessage(err))
	}
	return out, nil
}

func (c *HTTPClient) Status(ctx context.Context, jobID string) (v1.StatusResponse, error) {
	var out v1.StatusResponse

	endpoint := c.baseURL + v1.StatusPath + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, errors.WrapWithCode(err, errors.CodeTransport, "renderer.status", err.Error())
	}
	req.Header.Set("Accept", "application/json")

	if err := c.do(req, &out); err != nil {
		msg := errors.UserMessage(err)
		if errors.IsCode(err, errors.CodeUnavailable) {
			msg = "Status " + msg
		}
		return out, errors.WrapWithCode(err, errors.CodeTransport, "renderer.status", msg).
			WithField("job_id", jobID)
	}
	return out, nil
}

// do sends req and decodes a 2xx JSON body into v.
func (c *HTTPClient) do(req *http.Request, v any) error {
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBody))
		return errors.Newf(errors.CodeUnavailable, "HTTP %d", res.StatusCode).
			WithField("status", res.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, maxBody)).Decode(v); err != nil {
		return errors.WrapWithCode(err, errors.CodeInternal, "renderer.decode", "invalid response body")
	}
	return nil
}

// Resolve turns the url reported for a finished job into a playable
// location. Absolute URLs are returned unchanged; anything else is joined
// onto base with exactly one slash.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimLeft(ref, "/"))
}
