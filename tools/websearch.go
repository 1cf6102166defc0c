package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultSearchBaseURL is a DuckDuckGo-style instant-answer endpoint.
const DefaultSearchBaseURL = "https://api.duckduckgo.com"

// SearchResult is one related hit in a search payload.
type SearchResult struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// SearchReport is the web_search payload.
type SearchReport struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results,omitempty"`
	Time    time.Time      `json:"time"`
	Source  string         `json:"source"`
}

// WebSearch is the general-purpose lookup used directly and as the
// executor's fallback tier when a data tool fails.
type WebSearch struct {
	baseURL string
	client  *APIClient
}

// NewWebSearch creates the tool. baseURL empty means the default
// instant-answer endpoint.
func NewWebSearch(baseURL string, client *APIClient) *WebSearch {
	if baseURL == "" {
		baseURL = DefaultSearchBaseURL
	}
	if client == nil {
		client = NewAPIClient()
	}
	return &WebSearch{baseURL: baseURL, client: client}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Searches the web for current information"
}

// Execute runs params{query}. Without an explicit query the remaining
// parameter values are joined as a last resort.
func (w *WebSearch) Execute(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	query := strings.TrimSpace(params["query"])
	if query == "" {
		query = queryFromParams(params)
	}
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("format", "json")
	values.Set("no_html", "1")
	values.Set("skip_disambig", "1")

	var data struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Answer        string `json:"Answer"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := w.client.GetJSON(ctx, w.baseURL+"/", nil, values, &data); err != nil {
		return nil, fmt.Errorf("search failed for %q: %w", query, err)
	}

	report := &SearchReport{
		Query:  query,
		Time:   time.Now(),
		Source: "web search",
	}
	switch {
	case data.Answer != "":
		report.Answer = data.Answer
	case data.AbstractText != "":
		report.Answer = data.AbstractText
	}
	for _, t := range data.RelatedTopics {
		if t.Text == "" {
			continue
		}
		report.Results = append(report.Results, SearchResult{Text: t.Text, URL: t.FirstURL})
		if len(report.Results) == 5 {
			break
		}
	}
	if report.Answer == "" && len(report.Results) == 0 {
		return nil, fmt.Errorf("no search results for %q", query)
	}
	return marshalPayload(report)
}

// queryFromParams joins parameter values sorted by key for stability.
func queryFromParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "query" || strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, params[k])
	}
	return strings.Join(parts, " ")
}
