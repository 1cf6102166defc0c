package gatekeeper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trademaster-ai/trademaster/core"
)

func verdictServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": content},
		})
	}))
}

func newTestFilter(baseURL string) *RemoteFilter {
	cfg := DefaultRemoteConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	return NewRemoteFilter(cfg)
}

func TestRemoteEvaluateStrictFormat(t *testing.T) {
	srv := verdictServer(t, "YES 0.95 Contains trading terms")
	defer srv.Close()

	f := newTestFilter(srv.URL)
	v, err := f.Evaluate(context.Background(), "best trades today?", "u1", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.Respond || v.Confidence != 0.95 || v.Reason != "Contains trading terms" {
		t.Errorf("verdict = %+v", v)
	}
	if v.Source != core.SourceRemote {
		t.Errorf("source = %q", v.Source)
	}
}

func TestParseVerdictLenient(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		respond    bool
		confidence float64
	}{
		{"strict no", "NO 0.90 General greeting", false, 0.9},
		{"rambling yes", "I think YES, this looks like a trading question.", true, 0.7},
		{"no before yes", "NO. Well, maybe YES but unlikely.", false, 0.7},
		{"yes before no", "YES definitely, NO doubt about it.", true, 0.7},
		{"embedded float", "Sure: YES, confidence around 0.85 here", true, 0.85},
		{"confidence clamped", "YES 1.7 overshooting model", true, 1.0},
		{"neither token", "cannot evaluate this", false, 0.7},
		{"integer confidence", "NO 1 off topic chatter", false, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseVerdict(tt.content)
			if v.Respond != tt.respond {
				t.Errorf("respond = %v, want %v", v.Respond, tt.respond)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", v.Confidence, tt.confidence)
			}
		})
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := f.Evaluate(context.Background(), "msg", "u1", nil); err == nil {
			t.Fatal("expected error from failing endpoint")
		}
	}
	if f.Available() {
		t.Fatal("breaker should be open after 3 consecutive failures")
	}

	// Open breaker performs no transport calls at all.
	before := calls.Load()
	for i := 0; i < 10; i++ {
		if _, err := f.Evaluate(context.Background(), "msg", "u1", nil); err != ErrRemoteUnavailable {
			t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
		}
	}
	if got := calls.Load() - before; got != 0 {
		t.Errorf("open breaker made %d transport calls, want 0", got)
	}
}

func TestBreakerResetsOnHealthyProbe(t *testing.T) {
	healthy := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/version" && healthy.Load():
			w.Write([]byte(`{"version":"0.5.1"}`))
		case r.URL.Path == "/api/chat" && healthy.Load():
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"content": "YES 0.80 trading question"},
			})
		default:
			http.Error(w, "down", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	for i := 0; i < 3; i++ {
		f.Evaluate(context.Background(), "msg", "u1", nil)
	}
	if f.Available() {
		t.Fatal("breaker should be open")
	}

	// Probe while still down: breaker stays open.
	if err := f.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected failing probe")
	}
	if f.Available() {
		t.Fatal("failed probe must not close the breaker")
	}

	healthy.Store(true)
	if err := f.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !f.Available() {
		t.Fatal("breaker should close after healthy probe")
	}

	v, err := f.Evaluate(context.Background(), "is btc up?", "u1", nil)
	if err != nil {
		t.Fatalf("expected recovery after healthy probe, got %v", err)
	}
	if !v.Respond || v.Confidence != 0.8 {
		t.Errorf("verdict = %+v", v)
	}
}

func TestEvaluateSendsHistoryTail(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "NO 0.9 chatter"},
		})
	}))
	defer srv.Close()

	history := make([]core.Message, 0, 8)
	for _, c := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		history = append(history, core.Message{Role: "user", Content: c})
	}

	f := newTestFilter(srv.URL)
	if _, err := f.Evaluate(context.Background(), "hello", "u1", history); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if containsLine(gotPrompt, "user: one") || containsLine(gotPrompt, "user: two") {
		t.Error("history should be trimmed to the last five turns")
	}
	if !containsLine(gotPrompt, "user: seven") {
		t.Errorf("expected newest turn in prompt, got:\n%s", gotPrompt)
	}
}

func containsLine(haystack, line string) bool {
	for _, l := range splitLines(haystack) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
