package tools

import (
	"regexp"
	"strings"

	"github.com/trademaster-ai/trademaster/core"
)

// Matcher maps free-form chat text to tool requests. Patterns are
// ordered most-specific first; the first one that yields a request wins.
type Matcher struct {
	patterns []intentPattern
}

type intentPattern struct {
	re    *regexp.Regexp
	build func(m []string, text string) (core.ToolRequest, bool)
}

// symbolStopwords are capture-group false positives ("the price").
var symbolStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"is": true, "was": true, "it": true, "its": true, "this": true,
	"that": true, "my": true, "your": true, "what": true, "whats": true,
	"in": true, "on": true, "at": true, "to": true, "and": true,
	"current": true, "todays": true, "stock": true, "crypto": true,
	"coin": true, "token": true, "share": true, "market": true,
}

// NewMatcher builds the standard intent table.
func NewMatcher() *Matcher {
	return &Matcher{patterns: []intentPattern{
		// Trend family first: these carry no symbol and would otherwise
		// shadow into the price captures.
		{
			re: regexp.MustCompile(`(?i)\b(?:top|biggest|best)\s+(gainers|losers)\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return trendRequest(strings.ToLower(m[1]), text), true
			},
		},
		{
			re: regexp.MustCompile(`(?i)\b(gainers|losers)\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return trendRequest(strings.ToLower(m[1]), text), true
			},
		},
		{
			re: regexp.MustCompile(`(?i)\b(?:trending|market\s+trends?|(?:what'?s|whats)\s+(?:hot|moving))\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return trendRequest("trending", text), true
			},
		},

		// Price family.
		{
			re: regexp.MustCompile(`(?i)\b(?:price|value|worth|cost)\s+(?:of|for)\s+\$?([A-Za-z]{1,5})\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return priceRequest(m[1], text)
			},
		},
		{
			re: regexp.MustCompile(`(?i)\bhow\s+much\s+is\s+(?:a\s+|one\s+)?\$?([A-Za-z]{1,5})\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return priceRequest(m[1], text)
			},
		},
		{
			re: regexp.MustCompile(`(?i)\$([A-Za-z]{1,5})\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return priceRequest(m[1], text)
			},
		},
		{
			re: regexp.MustCompile(`(?i)\b([A-Za-z]{1,5})\s+(?:price|quote)\b`),
			build: func(m []string, text string) (core.ToolRequest, bool) {
				return priceRequest(m[1], text)
			},
		},
	}}
}

// Match returns the first tool request the message maps to.
func (m *Matcher) Match(message string) (core.ToolRequest, bool) {
	for _, p := range m.patterns {
		sub := p.re.FindStringSubmatch(message)
		if sub == nil {
			continue
		}
		if req, ok := p.build(sub, message); ok {
			return req, true
		}
	}
	return core.ToolRequest{}, false
}

func priceRequest(symbol, text string) (core.ToolRequest, bool) {
	if symbolStopwords[strings.ToLower(symbol)] {
		return core.ToolRequest{}, false
	}
	params := map[string]string{"symbol": strings.ToUpper(symbol)}
	if mt := namedMarketType(text); mt != "" {
		params["market_type"] = mt
	}
	return core.ToolRequest{Tool: "price_checker", Params: params}, true
}

func trendRequest(category, text string) core.ToolRequest {
	marketType := namedMarketType(text)
	if marketType == "" {
		marketType = "crypto"
	}
	return core.ToolRequest{
		Tool: "market_trends",
		Params: map[string]string{
			"market_type": marketType,
			"category":    category,
		},
	}
}

// namedMarketType returns the market type only when the text names one.
func namedMarketType(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "stock") || strings.Contains(lower, "share") || strings.Contains(lower, "equit"):
		return "stock"
	case strings.Contains(lower, "crypto") || strings.Contains(lower, "coin") || strings.Contains(lower, "token"):
		return "crypto"
	}
	return ""
}
