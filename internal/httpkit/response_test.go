package httpkit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/pkg/errors"
)

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Title string `json:"title"`
	}
	r := httptest.NewRequest("POST", "/renders", strings.NewReader(`{"title":"Hello"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "Hello", v.Title)

	for _, body := range []string{``, `{"title":`, `{"nope":1}`, `{"title":"a"} {"title":"b"}`} {
		r := httptest.NewRequest("POST", "/renders", strings.NewReader(body))
		err := DecodeJSON(r, &v)
		require.Error(t, err, body)
		assert.Equal(t, errors.CodeValidation, errors.GetCode(err), body)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, 202, map[string]any{"ok": true})

	assert.Equal(t, 202, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"?limit=10", 10, false},
		{"?limit=9999", 500, false},
		{"?limit=0", 0, true},
		{"?limit=abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/renders/history"+tt.query, nil)
			got, err := QueryInt(r, "limit", 50, 500)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
