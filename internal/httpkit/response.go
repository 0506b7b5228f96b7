// Package httpkit holds the JSON helpers shared by the API handlers.
package httpkit

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"trendmaker/internal/pkg/errors"
)

// MaxBodyBytes caps request bodies; render requests are tiny.
const MaxBodyBytes = 64 << 10

// DecodeJSON reads one JSON object from the request body. Unknown fields
// and trailing data are rejected.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "httpkit.DecodeJSON", "invalid JSON body")
	}
	if dec.More() {
		return errors.Validation("invalid JSON body: trailing data")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// QueryInt reads a positive integer query parameter, falling back to def
// when absent and clamping to limit.
func QueryInt(r *http.Request, key string, def, limit int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Validation(key+" must be a positive integer").WithField(key, raw)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}
