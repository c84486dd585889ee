package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecuteReturnsDecodedJSONBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	client := New()
	resp, err := client.Execute(context.Background(), Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, map[string]interface{}{"id": float64(7)}, resp.Body)
}

func TestExecuteAppliesQueryParams(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("name")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()
	_, err := client.Execute(context.Background(), Request{Method: "GET", URL: server.URL, Query: map[string]string{"name": "flow"}})
	require.NoError(t, err)
	require.Equal(t, "flow", gotQuery)
}

func TestExecuteTimesOut(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()
	_, err := client.Execute(context.Background(), Request{Method: "GET", URL: server.URL, TimeoutMs: 1})
	require.Error(t, err)
}

func TestExecuteEncodesJSONBody(t *testing.T) {
	t.Parallel()

	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()
	_, err := client.Execute(context.Background(), Request{Method: "POST", URL: server.URL, Body: map[string]interface{}{"a": 1}})
	require.NoError(t, err)
	require.Equal(t, "application/json", gotContentType)
}
