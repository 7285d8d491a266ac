package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cost-management/v1/reports/aws/costs/", r.URL.Path)
		assert.Equal(t, "filter[resolution]=monthly", r.URL.RawQuery)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{"count":1,"total":{"cost":{"value":100,"units":"USD"}}},"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/cost-management/v1", "secret")

	r, err := c.Fetch(context.Background(), "reports/aws/costs/", "filter[resolution]=monthly")
	require.NoError(t, err)
	require.NotNil(t, r.TotalCost())
	assert.Equal(t, 100.0, r.TotalCost().Value)
	assert.Equal(t, "USD", r.TotalCost().Units)
	assert.Equal(t, 1, r.Meta.Count)
}

func TestClient_NoTokenNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"meta":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "/tags/aws/", "")
	require.NoError(t, err)
}

func TestClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"api error document", http.StatusBadRequest, `{"errors":[{"detail":"Unsupported parameter","source":"group_by"}]}`, "group_by: Unsupported parameter"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"empty body", http.StatusForbidden, "", "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "t").Fetch(context.Background(), "reports/aws/costs/", "")

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.HTTPStatus())
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestClient_IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "reports/aws/costs/", "")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(assert.AnError))
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "reports/aws/costs/", "")
	require.Error(t, err)
	var apiErr *Error
	assert.NotErrorAs(t, err, &apiErr)
}

func TestClient_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, "").Fetch(ctx, "reports/aws/costs/", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Export(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("date,cost\n2024-07,100\n"))
	}))
	defer srv.Close()

	data, err := NewClient(srv.URL, "").Export(context.Background(), "reports/aws/costs/", "filter[resolution]=monthly")
	require.NoError(t, err)
	assert.Equal(t, "date,cost\n2024-07,100\n", string(data))
}

func TestClient_WithTimeoutKeepsSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}

	c := NewClient("http://example.invalid", "", WithHTTPClient(shared), WithTimeout(time.Second))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)

	c = NewClient("http://example.invalid", "", WithTimeout(time.Second), WithHTTPClient(shared))
	assert.Same(t, shared, c.httpClient)
}
