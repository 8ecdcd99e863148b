package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nurl "net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/parley0/parley/internal/log"
)

// LoadFailed is returned as the tool result text when a page cannot be
// fetched or yields no readable content. It is a result, not an error, so
// the model can react to it.
const LoadFailed = "ERROR : Failed to load url."

const (
	defaultPageCacheSize = 20
	defaultPageTimeout   = 20 * time.Second
	maxPageBodyBytes     = 4 << 20
)

var loadTagPattern = regexp.MustCompile(`<load>(.*?)</load>`)

// WebpageConfig contains all required parameters for the Webpage tool.
type WebpageConfig struct {
	Logger log.Logger // required

	Parallelism int           // concurrent fetches per collector, defaults to 2
	Delay       time.Duration // inter-request delay, defaults to none
	Timeout     time.Duration // per-fetch timeout, defaults to 20s
	CacheSize   int           // recently loaded pages kept, defaults to 20
}

// Webpage fetches a URL and extracts its readable text. Recently loaded
// pages are cached so the model can re-reference a page within a
// conversation without refetching.
type Webpage struct {
	logger      log.Logger
	parallelism int
	delay       time.Duration
	timeout     time.Duration

	mu        sync.Mutex
	cache     map[string]string
	order     []string
	cacheSize int
}

// NewWebpage creates a Webpage tool.
func NewWebpage(cfg WebpageConfig) (*Webpage, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPageTimeout
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultPageCacheSize
	}

	return &Webpage{
		logger:      cfg.Logger,
		parallelism: parallelism,
		delay:       cfg.Delay,
		timeout:     timeout,
		cache:       make(map[string]string, cacheSize),
		cacheSize:   cacheSize,
	}, nil
}

// Name implements Tool.
func (w *Webpage) Name() string { return "load_webpage" }

// Description implements Tool.
func (w *Webpage) Description() string {
	return "Load a webpage and return its readable text content. Use after a search to read a promising result."
}

// Parameters implements Tool.
func (w *Webpage) Parameters() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"url": {
				Type:        "string",
				Description: "The URL to load.",
			},
		},
		Required: []string{"url"},
	}
}

// Argument implements Tool.
func (w *Webpage) Argument(payload string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		return "", fmt.Errorf("decode load arguments: %w", err)
	}
	if strings.TrimSpace(args.URL) == "" {
		return "", errors.New("url is empty")
	}
	return args.URL, nil
}

// Detect implements Tool.
func (w *Webpage) Detect(text string) (string, bool) {
	m := loadTagPattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return m[1], true
}

// Execute implements Tool. Fetch or extraction failures come back as the
// LoadFailed result text rather than an error.
func (w *Webpage) Execute(ctx context.Context, url string) (string, error) {
	if cached, ok := w.lookup(url); ok {
		w.logger.Info("webpage served from cache", "url", url)
		return cached, nil
	}

	body, finalURL, err := w.fetch(ctx, url)
	if err != nil {
		w.logger.Warn("webpage fetch failed", "url", url, "error", err)
		return LoadFailed, nil
	}

	text := w.extract(body, finalURL)
	if text == "" {
		w.logger.Warn("webpage yielded no readable content", "url", url)
		return LoadFailed, nil
	}

	w.store(url, text)
	w.logger.Info("webpage loaded", "url", url, "chars", len(text))
	return text, nil
}

// fetch downloads the page body. A fresh collector per call keeps fetches
// independent of each other's state.
func (w *Webpage) fetch(ctx context.Context, url string) ([]byte, string, error) {
	c := colly.NewCollector(
		colly.MaxBodySize(maxPageBodyBytes),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(w.timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: w.parallelism,
		Delay:       w.delay,
	}); err != nil {
		return nil, "", fmt.Errorf("configure collector: %w", err)
	}

	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, "", fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, "", fetchErr
	}
	if len(body) == 0 {
		return nil, "", errors.New("empty response body")
	}
	return body, finalURL, nil
}

// extract pulls readable article text, falling back to stripped body text
// when the page has no article structure.
func (w *Webpage) extract(body []byte, pageURL string) string {
	parsed, _ := nurl.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Find("body").Text())
}

func (w *Webpage) lookup(url string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	text, ok := w.cache[url]
	return text, ok
}

// store caches the extracted text, evicting the oldest entry when full.
func (w *Webpage) store(url, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cache[url]; ok {
		return
	}
	if len(w.order) >= w.cacheSize {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.cache, oldest)
	}
	w.cache[url] = text
	w.order = append(w.order, url)
}
