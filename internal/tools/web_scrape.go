package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultScrapeMaxChars    = 50000
	defaultScrapeMaxRedirect = 3
	defaultErrorMaxChars     = 4000
	scrapeTimeoutSeconds     = 30
	scrapeUserAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Below this many extracted characters an HTML page is assumed to be
	// client-rendered and worth a browser pass.
	browserFallbackMinChars = 200
)

// WebScrapeTool fetches a URL and extracts its content. Static fetch
// first; when the page looks client-rendered and a browser is configured,
// it re-fetches through headless Chrome.
type WebScrapeTool struct {
	maxChars int
	cache    *webCache
	browser  *browserRenderer
}

// WebScrapeConfig holds configuration for the web scrape tool.
type WebScrapeConfig struct {
	MaxChars        int
	CacheTTL        time.Duration
	BrowserEnabled  bool
	BrowserHeadless bool
}

func NewWebScrapeTool(cfg WebScrapeConfig) *WebScrapeTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultScrapeMaxChars
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	var browser *browserRenderer
	if cfg.BrowserEnabled {
		browser = newBrowserRenderer(cfg.BrowserHeadless)
	}
	return &WebScrapeTool{
		maxChars: maxChars,
		cache:    newWebCache(defaultCacheMaxEntries, ttl),
		browser:  browser,
	}
}

func (t *WebScrapeTool) Name() string { return "web_scrape" }

func (t *WebScrapeTool) Description() string {
	return "Fetch a URL and extract its content. Supports HTML (converted to markdown/text), JSON, and plain text. Includes SSRF protection."
}

func (t *WebScrapeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"extract_mode": map[string]interface{}{
				"type":        "string",
				"description": `Extraction mode ("markdown" or "text"). Default: "markdown".`,
				"enum":        []string{"markdown", "text"},
			},
			"max_chars": map[string]interface{}{
				"type":        "number",
				"description": "Maximum characters to return (truncates when exceeded).",
				"minimum":     100.0,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebScrapeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if parsed.Host == "" {
		return ErrorResult("missing hostname in URL")
	}

	if err := checkSSRF(rawURL); err != nil {
		return ErrorResult(fmt.Sprintf("SSRF protection: %v", err))
	}

	extractMode := "markdown"
	if em, ok := args["extract_mode"].(string); ok && (em == "markdown" || em == "text") {
		extractMode = em
	}

	maxChars := t.maxChars
	if mc, ok := args["max_chars"].(float64); ok && int(mc) >= 100 {
		maxChars = int(mc)
	}

	cacheKey := fmt.Sprintf("scrape:%s:%s:%d", rawURL, extractMode, maxChars)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_scrape cache hit", "url", rawURL)
		return NewResult(cached)
	}

	result, err := t.doFetch(ctx, rawURL, extractMode, maxChars)
	if err != nil {
		errMsg := truncateStr(err.Error(), defaultErrorMaxChars)
		return ErrorResult(fmt.Sprintf("fetch failed: %s", errMsg))
	}

	wrapped := wrapExternalContent(result, "Web Scrape", true)
	t.cache.set(cacheKey, wrapped)
	return NewResult(wrapped)
}

func (t *WebScrapeTool) doFetch(ctx context.Context, rawURL, extractMode string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	redirectCount := 0
	client := &http.Client{
		Timeout: time.Duration(scrapeTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectCount++
			if redirectCount > defaultScrapeMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultScrapeMaxRedirect)
			}
			if err := checkSSRF(req.URL.String()); err != nil {
				return fmt.Errorf("redirect SSRF protection: %w", err)
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Limit body reading to avoid memory issues
	limitReader := io.LimitReader(resp.Body, int64(maxChars*4)) // read extra for HTML overhead
	body, err := io.ReadAll(limitReader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	finalURL := resp.Request.URL.String()

	var text string
	var extractor string

	switch {
	case strings.Contains(contentType, "application/json"):
		text, extractor = extractJSON(body)

	case strings.Contains(contentType, "text/markdown"):
		text = string(body)
		extractor = "markdown"
		if extractMode == "text" {
			text = markdownToText(text)
		}

	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		text, extractor = t.extractHTML(ctx, string(body), finalURL, extractMode)

	default:
		text = string(body)
		extractor = "raw"
	}

	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("URL: %s\n", finalURL))
	sb.WriteString(fmt.Sprintf("Status: %d\n", resp.StatusCode))
	sb.WriteString(fmt.Sprintf("Extractor: %s\n", extractor))
	if truncated {
		sb.WriteString(fmt.Sprintf("Truncated: true (limit: %d chars)\n", maxChars))
	}
	sb.WriteString(fmt.Sprintf("Length: %d\n", len(text)))
	sb.WriteString("\n")
	sb.WriteString(text)

	return sb.String(), nil
}

// extractHTML converts static HTML, retrying through the browser when the
// static pass yields almost nothing.
func (t *WebScrapeTool) extractHTML(ctx context.Context, html, pageURL, extractMode string) (string, string) {
	convert := func(raw string) string {
		if extractMode == "markdown" {
			return htmlToMarkdown(raw)
		}
		return htmlToText(raw)
	}
	extractor := "html-to-" + extractMode

	text := convert(html)
	if len(text) >= browserFallbackMinChars || t.browser == nil {
		return text, extractor
	}

	rendered, err := t.browser.render(ctx, pageURL)
	if err != nil {
		slog.Warn("browser render failed, keeping static extraction", "url", pageURL, "error", err)
		return text, extractor
	}
	if renderedText := convert(rendered); len(renderedText) > len(text) {
		return renderedText, "browser-" + extractor
	}
	return text, extractor
}
