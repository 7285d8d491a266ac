package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Component: ComponentDispatcher, Output: &buf})

	logger.Info("settled", NewFields().WithStatus("complete").ToSlice()...)
	logger.Debug("dropped")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, ComponentDispatcher, rec[FieldComponent])
	assert.Equal(t, "complete", rec[FieldStatus])
	assert.Equal(t, ComponentDispatcher, logger.Component())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf}).WithComponent(ComponentStore)

	logger.Info("hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, ComponentStore, rec[FieldComponent])
}

func TestFields_WithError(t *testing.T) {
	f := NewFields().WithError(nil)
	assert.NotContains(t, f, FieldError)

	f = NewFields().WithError(assert.AnError).WithOperation(OpFetch)
	assert.Equal(t, assert.AnError.Error(), f[FieldError])
	assert.Equal(t, OpFetch, f[FieldOperation])
	assert.Len(t, f.ToSlice(), 4)
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentHTTP, Output: &buf})

	var seen *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/aws/cost?limit=3", nil))

	assert.Same(t, logger, seen)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(http.StatusTeapot), entry[FieldStatusCode])
	assert.Equal(t, "limit=3", entry[FieldQuery])
	assert.Equal(t, false, entry[FieldSuccess])
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(t.Context())
	require.NotNil(t, l)
	assert.Equal(t, "unknown", l.Component())
}
