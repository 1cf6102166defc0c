package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/trademaster-ai/trademaster/core"
)

// ExecutorConfig tunes tool invocation.
type ExecutorConfig struct {
	// CallTimeout bounds a single tool invocation.
	CallTimeout time.Duration
	// FallbackTool names the search tool tried when a data lookup
	// fails. Empty disables the fallback tier.
	FallbackTool string
}

// DefaultExecutorConfig matches production tuning.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CallTimeout:  15 * time.Second,
		FallbackTool: "web_search",
	}
}

// fallbackEligible marks the data-lookup tools whose failures are worth
// a search retry. Unknown tools and the search tool itself never
// fall back.
var fallbackEligible = map[string]bool{
	"price_checker": true,
	"market_trends": true,
}

// Executor runs tool requests against a registry with a sequential
// two-tier fallback. The tiers never run concurrently.
type Executor struct {
	config   ExecutorConfig
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(config ExecutorConfig, registry *Registry) *Executor {
	if config.CallTimeout == 0 {
		config.CallTimeout = 15 * time.Second
	}
	return &Executor{config: config, registry: registry}
}

// Execute resolves and runs a request. The returned outcome always
// names the requested tool; Provenance marks data served by the
// fallback tier. On a double failure the primary error is preserved
// verbatim.
func (e *Executor) Execute(ctx context.Context, req core.ToolRequest) core.ToolOutcome {
	start := time.Now()

	tool, ok := e.registry.Get(req.Tool)
	if !ok {
		return core.ToolOutcome{
			Tool:    req.Tool,
			Err:     fmt.Sprintf("tool not found: %s", req.Tool),
			Elapsed: time.Since(start),
		}
	}

	data, err := e.invoke(ctx, tool, req.Params)
	if err == nil {
		return core.ToolOutcome{
			Tool:    req.Tool,
			Data:    data,
			Elapsed: time.Since(start),
		}
	}
	log.Printf("[executor] %s failed: %v", req.Tool, err)

	if e.config.FallbackTool == "" || !fallbackEligible[req.Tool] {
		return core.ToolOutcome{
			Tool:    req.Tool,
			Err:     err.Error(),
			Elapsed: time.Since(start),
		}
	}

	fallback, ok := e.registry.Get(e.config.FallbackTool)
	if !ok {
		return core.ToolOutcome{
			Tool:    req.Tool,
			Err:     err.Error(),
			Elapsed: time.Since(start),
		}
	}

	data, fbErr := e.invoke(ctx, fallback, map[string]string{"query": fallbackQuery(req)})
	if fbErr != nil {
		log.Printf("[executor] fallback %s also failed: %v", e.config.FallbackTool, fbErr)
		return core.ToolOutcome{
			Tool:    req.Tool,
			Err:     err.Error(), // primary error, verbatim
			Elapsed: time.Since(start),
		}
	}

	return core.ToolOutcome{
		Tool:       req.Tool,
		Data:       data,
		Provenance: "obtained via fallback search; primary API failed",
		Elapsed:    time.Since(start),
	}
}

// fallbackQuery rewords a failed request as a natural-language search
// query. Deterministic: the same request always yields the same query.
func fallbackQuery(req core.ToolRequest) string {
	switch req.Tool {
	case "price_checker":
		market := "cryptocurrency or stock"
		switch req.Params["market_type"] {
		case "crypto":
			market = "cryptocurrency"
		case "stock":
			market = "stock"
		}
		return fmt.Sprintf("What is the current price of %s %s", req.Params["symbol"], market)
	case "market_trends":
		category := req.Params["category"]
		if category == "" {
			category = "trending"
		}
		market := req.Params["market_type"]
		if market == "" {
			market = "crypto"
		}
		return fmt.Sprintf("What are the top %s in the %s market today", category, market)
	}

	parts := []string{req.Tool}
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := req.Params[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (e *Executor) invoke(ctx context.Context, tool Tool, params map[string]string) (data []byte, err error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	return tool.Execute(callCtx, params)
}
