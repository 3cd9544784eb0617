package sentiment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAndCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"18","value_classification":"Extreme Fear"}]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL)
	require.NoError(t, p.Fetch(context.Background()))
	assert.Equal(t, 18, p.Current())
}

func TestCurrentDefaultsToNeutral(t *testing.T) {
	p := NewPoller("http://127.0.0.1:0")
	assert.Equal(t, 50, p.Current())
}

func TestFetchFailureKeepsLastValue(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"value":"65"}]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL)
	require.NoError(t, p.Fetch(context.Background()))
	require.Equal(t, 65, p.Current())

	assert.Error(t, p.Fetch(context.Background()))
	assert.Equal(t, 65, p.Current())
}

func TestFetchRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL)
	assert.Error(t, p.Fetch(context.Background()))
	assert.Equal(t, 50, p.Current())
}
