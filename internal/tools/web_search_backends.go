package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func searchHTTPClient() *http.Client {
	return &http.Client{Timeout: searchTimeoutSeconds * time.Second}
}

// braveBackend speaks the Brave Search REST API.
type braveBackend struct {
	token  string
	client *http.Client
}

func newBraveSearchProvider(apiKey string) *braveBackend {
	return &braveBackend{token: apiKey, client: searchHTTPClient()}
}

func (b *braveBackend) Name() string { return "brave" }

type braveWebPayload struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *braveBackend) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("count", strconv.Itoa(params.Count))
	for key, val := range map[string]string{
		"country":     params.Country,
		"search_lang": params.SearchLang,
		"ui_lang":     params.UILang,
		"freshness":   normalizeFreshness(params.Freshness),
	} {
		if val != "" {
			q.Set(key, val)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave API returned %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var payload braveWebPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]searchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return results, nil
}

// ddgBackend scrapes the DuckDuckGo HTML endpoint. Keyless, so it serves
// as the fallback when no Brave subscription is configured.
type ddgBackend struct {
	client *http.Client
}

func newDuckDuckGoSearchProvider() *ddgBackend {
	return &ddgBackend{client: searchHTTPClient()}
}

func (d *ddgBackend) Name() string { return "duckduckgo" }

func (d *ddgBackend) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(params.Query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseDDGResults(string(body), params.Count), nil
}

var (
	ddgResultLinkRe = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe    = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	anyHTMLTagRe    = regexp.MustCompile(`<[^>]+>`)
)

func parseDDGResults(page string, count int) []searchResult {
	links := ddgResultLinkRe.FindAllStringSubmatch(page, count+5)
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, count+5)

	var results []searchResult
	for i, link := range links {
		if len(results) >= count {
			break
		}
		r := searchResult{
			Title: strings.TrimSpace(anyHTMLTagRe.ReplaceAllString(link[2], "")),
			URL:   ddgUnwrapRedirect(link[1]),
		}
		if i < len(snippets) {
			r.Description = strings.TrimSpace(anyHTMLTagRe.ReplaceAllString(snippets[i][1], ""))
		}
		results = append(results, r)
	}
	return results
}

// ddgUnwrapRedirect resolves DDG's //duckduckgo.com/l/?uddg=... wrapper
// to the destination URL.
func ddgUnwrapRedirect(raw string) string {
	if !strings.Contains(raw, "uddg=") {
		return raw
	}
	ref := raw
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	if u, err := url.Parse(ref); err == nil {
		if dest := u.Query().Get("uddg"); dest != "" {
			return dest
		}
	}
	// Fall back to manual carving for malformed wrappers.
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		if idx := strings.Index(unescaped, "uddg="); idx != -1 {
			dest := unescaped[idx+len("uddg="):]
			if amp := strings.Index(dest, "&"); amp != -1 {
				dest = dest[:amp]
			}
			return dest
		}
	}
	return raw
}
