package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trademaster-ai/trademaster/core"
	"github.com/trademaster-ai/trademaster/tools"
)

type stubTool struct {
	name    string
	payload string
	err     error
	calls   int
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }

func (t *stubTool) Execute(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return json.RawMessage(t.payload), nil
}

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// completionServer returns an OpenAI-compatible endpoint that records
// the last request and answers with the given content.
func completionServer(t *testing.T, content string, last *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(last); err != nil {
			t.Errorf("decode completion request: %v", err)
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}))
}

func newComposer(baseURL string, reg *tools.Registry) *Composer {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	exec := tools.NewExecutor(tools.ExecutorConfig{CallTimeout: time.Second, FallbackTool: "web_search"}, reg)
	return New(cfg, tools.NewMatcher(), exec)
}

func TestComposeEmbedsToolData(t *testing.T) {
	price := &stubTool{name: "price_checker", payload: `{"symbol":"BTC","price_usd":"64250.12"}`}
	reg := tools.NewRegistry()
	if err := reg.Register(price); err != nil {
		t.Fatal(err)
	}

	var last capturedRequest
	srv := completionServer(t, "BTC trades at $64,250.12.", &last)
	defer srv.Close()

	c := newComposer(srv.URL+"/v1", reg)
	reply, outcome := c.Compose(context.Background(), core.Inbound{UserID: "u1", Content: "price of BTC?"}, nil)

	if reply != "BTC trades at $64,250.12." {
		t.Fatalf("reply = %q", reply)
	}
	if outcome == nil || !outcome.Ok() {
		t.Fatalf("outcome = %+v, want successful price_checker run", outcome)
	}
	if price.calls != 1 {
		t.Fatalf("price tool calls = %d, want 1", price.calls)
	}
	if len(last.Messages) == 0 || last.Messages[0].Role != "system" {
		t.Fatalf("first message should be system, got %+v", last.Messages)
	}
	system := last.Messages[0].Content
	if !strings.Contains(system, "TradeMaster") {
		t.Errorf("system prompt missing persona: %q", system)
	}
	if !strings.Contains(system, "LIVE TOOL DATA (price_checker)") || !strings.Contains(system, "64250.12") {
		t.Errorf("system prompt missing tool data: %q", system)
	}
}

func TestComposeToolFailureForbidsFabrication(t *testing.T) {
	price := &stubTool{name: "price_checker", err: fmt.Errorf("coingecko: status 502")}
	reg := tools.NewRegistry()
	if err := reg.Register(price); err != nil {
		t.Fatal(err)
	}

	var last capturedRequest
	srv := completionServer(t, "I could not retrieve live data.", &last)
	defer srv.Close()

	c := newComposer(srv.URL+"/v1", reg)
	_, outcome := c.Compose(context.Background(), core.Inbound{Content: "price of BTC?"}, nil)

	if outcome == nil || outcome.Ok() {
		t.Fatalf("outcome = %+v, want failed run", outcome)
	}
	system := last.Messages[0].Content
	if !strings.Contains(system, "Do not fabricate") {
		t.Errorf("system prompt missing fabrication guard: %q", system)
	}
	if !strings.Contains(system, "coingecko: status 502") {
		t.Errorf("system prompt missing tool error: %q", system)
	}
}

func TestComposeTrimsHistory(t *testing.T) {
	var last capturedRequest
	srv := completionServer(t, "ok", &last)
	defer srv.Close()

	c := newComposer(srv.URL+"/v1", tools.NewRegistry())

	var history []core.Message
	for i := 0; i < 15; i++ {
		history = append(history, core.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}
	c.Compose(context.Background(), core.Inbound{Content: "hello there"}, history)

	// system + 10 history turns + current message
	if len(last.Messages) != 12 {
		t.Fatalf("messages = %d, want 12", len(last.Messages))
	}
	if last.Messages[1].Content != "turn 5" {
		t.Errorf("oldest kept turn = %q, want %q", last.Messages[1].Content, "turn 5")
	}
	if last.Messages[11].Content != "hello there" {
		t.Errorf("final message = %q, want the current message", last.Messages[11].Content)
	}
}

func TestComposeNeverFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newComposer(srv.URL+"/v1", tools.NewRegistry())
	reply, _ := c.Compose(context.Background(), core.Inbound{Content: "tell me something"}, nil)
	if reply == "" {
		t.Fatal("expected a canned reply when generation fails")
	}
	if !inPool(reply, defaultReplies) {
		t.Errorf("reply %q not drawn from the default pool", reply)
	}
}

func TestComposeWithoutAPIKeyUsesCannedPools(t *testing.T) {
	cfg := DefaultConfig()
	exec := tools.NewExecutor(tools.ExecutorConfig{CallTimeout: time.Second}, tools.NewRegistry())
	c := New(cfg, tools.NewMatcher(), exec)

	cases := []struct {
		message string
		pool    []string
	}{
		{"what are the best trades today?", bestTradesReplies},
		{"give me a market analysis", marketAnalysisReplies},
		{"is bitcoin going up?", cryptoReplies},
		{"how do I size a position?", generalTradingReplies},
		{"hello?", defaultReplies},
	}
	for _, tc := range cases {
		reply, _ := c.Compose(context.Background(), core.Inbound{Content: tc.message}, nil)
		if !inPool(reply, tc.pool) {
			t.Errorf("message %q: reply %q not in expected pool", tc.message, reply)
		}
	}
}

func inPool(reply string, pool []string) bool {
	for _, p := range pool {
		if reply == p {
			return true
		}
	}
	return false
}
