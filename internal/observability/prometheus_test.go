package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnandSundar/go-reportsync/internal/observability"
)

func TestNewPrometheus_ServesFetchMetrics(t *testing.T) {
	t.Parallel()

	mp, handler, err := observability.NewPrometheus()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	fm, err := observability.NewFetchMetrics(mp.Meter("reportsync"))
	require.NoError(t, err)
	fm.RecordFetch(context.Background(), "aws/cost", observability.StatusOK, 50*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "reportsync_fetch")
	assert.Contains(t, rec.Body.String(), "target_info")
}
