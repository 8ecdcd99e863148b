package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/parley0/parley/internal/log"
)

// DefaultSearchBaseURL is the serper.dev endpoint.
const DefaultSearchBaseURL = "https://google.serper.dev/search"

// DefaultSearchMaxResults limits how many organic hits are forwarded.
const DefaultSearchMaxResults = 3

var searchTagPattern = regexp.MustCompile(`<search>(.*?)</search>`)

// SearchConfig contains all required parameters for the Search tool.
type SearchConfig struct {
	APIKey string     // required
	Logger log.Logger // required

	BaseURL    string        // defaults to DefaultSearchBaseURL
	MaxResults int           // defaults to DefaultSearchMaxResults
	Timeout    time.Duration // defaults to 15s
	Client     *http.Client  // overrides Timeout when set
}

// Search queries a web search API and formats the top organic results.
type Search struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
	logger     log.Logger
}

// NewSearch creates a Search tool.
func NewSearch(cfg SearchConfig) (*Search, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("search API key is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultSearchBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultSearchMaxResults
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Search{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		client:     client,
		logger:     cfg.Logger,
	}, nil
}

// Name implements Tool.
func (s *Search) Name() string { return "search_web" }

// Description implements Tool.
func (s *Search) Description() string {
	return "Search the web for up-to-date information. Returns the top results with snippets and source links."
}

// Parameters implements Tool.
func (s *Search) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "The search query.",
			},
		},
		Required: []string{"query"},
	}
}

// Argument implements Tool. The payload is the JSON object produced by the
// completion endpoint.
func (s *Search) Argument(payload string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		return "", fmt.Errorf("decode search arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", errors.New("query is empty")
	}
	return args.Query, nil
}

// Detect implements Tool. It recognizes an inline search directive in
// assistant text.
func (s *Search) Detect(text string) (string, bool) {
	m := searchTagPattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return m[1], true
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

// Execute implements Tool. It posts the query and formats the top organic
// hits, skipping video results that cannot be read as text.
func (s *Search) Execute(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return "", fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("search request: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var b strings.Builder
	kept := 0
	for _, hit := range parsed.Organic {
		if kept >= s.maxResults {
			break
		}
		if strings.Contains(hit.Link, "youtube.com") {
			continue
		}
		fmt.Fprintf(&b, "<result>\n%s\n%s\n</result>\n", hit.Snippet, hit.Link)
		kept++
	}

	if kept == 0 {
		s.logger.Info("search returned no usable results", "query", query)
		return "No results found", nil
	}

	s.logger.Info("search completed", "query", query, "results", kept)
	return b.String(), nil
}
