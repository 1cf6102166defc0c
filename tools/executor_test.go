package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/trademaster-ai/trademaster/core"
)

// fakeTool counts calls and returns a fixed payload or error.
type fakeTool struct {
	name    string
	payload string
	err     error
	calls   int
	lastReq map[string]string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }

func (f *fakeTool) Execute(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	f.calls++
	f.lastReq = params
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.payload), nil
}

func newExecutorWith(t *testing.T, tools ...Tool) *Executor {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name(), err)
		}
	}
	return NewExecutor(DefaultExecutorConfig(), reg)
}

func TestExecutePrimarySuccess(t *testing.T) {
	primary := &fakeTool{name: "price_checker", payload: `{"symbol":"BTC"}`}
	search := &fakeTool{name: "web_search", payload: `{"answer":"x"}`}
	e := newExecutorWith(t, primary, search)

	out := e.Execute(context.Background(), core.ToolRequest{
		Tool:   "price_checker",
		Params: map[string]string{"symbol": "BTC"},
	})
	if !out.Ok() {
		t.Fatalf("outcome = %+v", out)
	}
	if string(out.Data) != `{"symbol":"BTC"}` {
		t.Errorf("data = %s", out.Data)
	}
	if out.Provenance != "" {
		t.Errorf("primary success should carry no provenance, got %q", out.Provenance)
	}
	if search.calls != 0 {
		t.Errorf("fallback invoked %d times on success", search.calls)
	}
}

func TestExecuteFallbackServesFailedLookup(t *testing.T) {
	primary := &fakeTool{name: "price_checker", err: errors.New("api error 502: bad gateway")}
	search := &fakeTool{name: "web_search", payload: `{"answer":"BTC is around 64k"}`}
	e := newExecutorWith(t, primary, search)

	req := core.ToolRequest{
		Tool:   "price_checker",
		Params: map[string]string{"symbol": "BTC", "market_type": "crypto"},
	}
	out := e.Execute(context.Background(), req)
	if !out.Ok() {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Tool != "price_checker" {
		t.Errorf("outcome names %q, want the requested tool", out.Tool)
	}
	if out.Provenance == "" {
		t.Error("fallback data must carry provenance")
	}
	if search.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", search.calls)
	}
	if got := search.lastReq["query"]; got != "What is the current price of BTC cryptocurrency" {
		t.Errorf("fallback query = %q, want a natural-language rewording", got)
	}
}

func TestFallbackQueryWording(t *testing.T) {
	tests := []struct {
		name string
		req  core.ToolRequest
		want string
	}{
		{
			name: "price with unknown market",
			req:  core.ToolRequest{Tool: "price_checker", Params: map[string]string{"symbol": "ZORP"}},
			want: "What is the current price of ZORP cryptocurrency or stock",
		},
		{
			name: "price of a stock",
			req:  core.ToolRequest{Tool: "price_checker", Params: map[string]string{"symbol": "AAPL", "market_type": "stock"}},
			want: "What is the current price of AAPL stock",
		},
		{
			name: "stock gainers",
			req:  core.ToolRequest{Tool: "market_trends", Params: map[string]string{"market_type": "stock", "category": "gainers"}},
			want: "What are the top gainers in the stock market today",
		},
		{
			name: "trends with defaults",
			req:  core.ToolRequest{Tool: "market_trends"},
			want: "What are the top trending in the crypto market today",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackQuery(tt.req); got != tt.want {
				t.Errorf("fallbackQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecuteDoubleFailureKeepsPrimaryError(t *testing.T) {
	primaryErr := "api error 429: rate limit exceeded for coins/bitcoin"
	primary := &fakeTool{name: "market_trends", err: errors.New(primaryErr)}
	search := &fakeTool{name: "web_search", err: errors.New("search also down")}
	e := newExecutorWith(t, primary, search)

	out := e.Execute(context.Background(), core.ToolRequest{Tool: "market_trends"})
	if out.Ok() {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Err != primaryErr {
		t.Errorf("err = %q, want the primary error verbatim %q", out.Err, primaryErr)
	}
	if search.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", search.calls)
	}
}

func TestExecuteUnknownToolSkipsFallback(t *testing.T) {
	search := &fakeTool{name: "web_search", payload: `{}`}
	e := newExecutorWith(t, search)

	out := e.Execute(context.Background(), core.ToolRequest{Tool: "order_placer"})
	if out.Ok() {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.Err != "tool not found: order_placer" {
		t.Errorf("err = %q", out.Err)
	}
	if search.calls != 0 {
		t.Errorf("fallback must not run for unknown tools, got %d calls", search.calls)
	}
}

func TestExecuteSearchFailureDoesNotRecurse(t *testing.T) {
	search := &fakeTool{name: "web_search", err: errors.New("no results")}
	e := newExecutorWith(t, search)

	out := e.Execute(context.Background(), core.ToolRequest{
		Tool:   "web_search",
		Params: map[string]string{"query": "btc"},
	})
	if out.Ok() || out.Err != "no results" {
		t.Fatalf("outcome = %+v", out)
	}
	if search.calls != 1 {
		t.Errorf("search called %d times, want 1", search.calls)
	}
}
