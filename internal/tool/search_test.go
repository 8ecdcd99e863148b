package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley0/parley/internal/log"
)

func TestNewSearchValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSearch(SearchConfig{Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewSearch(SearchConfig{APIKey: "k"})
	assert.Error(t, err)

	s, err := NewSearch(SearchConfig{APIKey: "k", Logger: log.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchBaseURL, s.baseURL)
	assert.Equal(t, DefaultSearchMaxResults, s.maxResults)
}

func TestSearchArgument(t *testing.T) {
	t.Parallel()

	s, err := NewSearch(SearchConfig{APIKey: "k", Logger: log.NewNop()})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "valid", payload: `{"query": "weather in Paris"}`, want: "weather in Paris"},
		{name: "empty query", payload: `{"query": ""}`, wantErr: true},
		{name: "whitespace query", payload: `{"query": "   "}`, wantErr: true},
		{name: "malformed json", payload: `{"query":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.Argument(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchDetect(t *testing.T) {
	t.Parallel()

	s, err := NewSearch(SearchConfig{APIKey: "k", Logger: log.NewNop()})
	require.NoError(t, err)

	q, ok := s.Detect("Let me check. <search>go generics</search>")
	require.True(t, ok)
	assert.Equal(t, "go generics", q)

	_, ok = s.Detect("no directive here")
	assert.False(t, ok)

	_, ok = s.Detect("<search></search>")
	assert.False(t, ok)
}

func TestSearchExecute(t *testing.T) {
	t.Parallel()

	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["q"]

		json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]string{
				{"title": "Video", "snippet": "watch this", "link": "https://www.youtube.com/watch?v=1"},
				{"title": "One", "snippet": "first snippet", "link": "https://one.example/a"},
				{"title": "Two", "snippet": "second snippet", "link": "https://two.example/b"},
				{"title": "Three", "snippet": "third snippet", "link": "https://three.example/c"},
				{"title": "Four", "snippet": "fourth snippet", "link": "https://four.example/d"},
			},
		})
	}))
	defer srv.Close()

	s, err := NewSearch(SearchConfig{APIKey: "secret", Logger: log.NewNop(), BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := s.Execute(context.Background(), "weather in Paris")
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "weather in Paris", gotQuery)

	// Video results are skipped, then the top three remaining are kept.
	assert.NotContains(t, out, "youtube.com")
	assert.Contains(t, out, "first snippet")
	assert.Contains(t, out, "https://one.example/a")
	assert.Contains(t, out, "third snippet")
	assert.NotContains(t, out, "fourth snippet")
	assert.Equal(t, 3, strings.Count(out, "<result>"))
}

func TestSearchExecuteNoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"organic": []map[string]string{}})
	}))
	defer srv.Close()

	s, err := NewSearch(SearchConfig{APIKey: "k", Logger: log.NewNop(), BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := s.Execute(context.Background(), "nothing at all")
	require.NoError(t, err)
	assert.Equal(t, "No results found", out)
}

func TestSearchExecuteUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := NewSearch(SearchConfig{APIKey: "k", Logger: log.NewNop(), BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "q")
	assert.Error(t, err)
}
