package marketaux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHeadlinesSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/news/all", r.URL.Path)
		assert.Equal(t, "in", q.Get("countries"))
		assert.Equal(t, "true", q.Get("filter_entities"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "secret", q.Get("api_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"found":1},"data":[{"uuid":"u1","title":"Sensex rallies","url":"https://example.com/a","published_at":"2024-01-15T04:00:00.000000Z","source":"example.com"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/news/all", APIKey: "secret", Countries: "in", Language: "en", Limit: 100}, nil)
	got, err := c.FetchHeadlines(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UUID)
	assert.Equal(t, "Sensex rallies", got[0].Title)
}

func TestFetchHeadlinesEmptyDataIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	got, err := New(Config{BaseURL: srv.URL}, nil).FetchHeadlines(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchHeadlinesMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"usage_limit_reached"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, nil).FetchHeadlines(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFetchHeadlinesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, nil).FetchHeadlines(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
