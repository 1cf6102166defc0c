package gatekeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trademaster-ai/trademaster/core"
)

// ErrRemoteUnavailable marks a skipped call while the breaker is open.
// The breaker closes again only when CheckHealth succeeds.
var ErrRemoteUnavailable = errors.New("verdict endpoint unavailable")

const verdictSystemPrompt = `You are a message filter for a trading assistant named TradeMaster. Your task is to determine if a message needs a response from the main assistant.

RESPOND TO:
1. ANY message that mentions trading, investing, markets, finance, stocks, crypto, or financial terms
2. ANY direct questions about trading, investing, or financial advice
3. ANY message that explicitly mentions or addresses the assistant (TradeMaster, bot, assistant)
4. ANY message continuing a conversation about trading/finance topics
5. ANY message asking for price predictions, market updates, or trade recommendations

DO NOT RESPOND TO:
1. General chat completely unrelated to finance, trading, or the assistant
2. Random messages with no clear question or intent related to trading
3. Non-sequiturs or spam messages

ALWAYS respond to messages that ask "what are the best trades" or any variation of this.

You must respond with exactly ONE line containing:
- "YES" or "NO" (whether the assistant should respond)
- A confidence score between 0.0 and 1.0
- A brief reason for your decision

Example correct responses:
YES 0.95 Contains trading terms ("best trades today")
YES 0.90 Direct question about trading/investing
NO 0.90 General greeting unrelated to trading or finance`

// RemoteConfig configures the verdict model client.
type RemoteConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxFailures int // consecutive failures before the breaker opens
	Temperature float64
	NumPredict  int
}

// DefaultRemoteConfig targets a local Ollama with a small filter model.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:     "http://localhost:11434",
		Model:       "gemma3:1b",
		Timeout:     10 * time.Second,
		MaxFailures: 3,
		Temperature: 0.1,
		NumPredict:  100,
	}
}

// RemoteFilter calls the verdict model over HTTP. After MaxFailures
// consecutive errors the breaker opens and calls are skipped until a
// health probe succeeds.
type RemoteFilter struct {
	config RemoteConfig
	client *http.Client

	mu       sync.Mutex
	failures int
}

// NewRemoteFilter creates a remote filter with a pooled HTTP client.
func NewRemoteFilter(config RemoteConfig) *RemoteFilter {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: config.Timeout,
	}
	return &RemoteFilter{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

// Evaluate asks the verdict model whether the assistant should respond.
// history is the tail of the user's conversation, newest last.
func (f *RemoteFilter) Evaluate(ctx context.Context, message, userID string, history []core.Message) (core.Verdict, error) {
	if f.breakerOpen() {
		return core.Verdict{}, ErrRemoteUnavailable
	}

	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	var hist strings.Builder
	for _, m := range history {
		fmt.Fprintf(&hist, "%s: %s\n", m.Role, m.Content)
	}

	userPrompt := fmt.Sprintf(
		"USER MESSAGE: %s\n\nUSER ID: %s\n\nRECENT CONVERSATION:\n%s\nShould TradeMaster respond to this message? Reply with YES/NO, confidence score, and reason on a single line.",
		message, userID, hist.String())

	req := chatRequest{
		Model: f.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: verdictSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}
	req.Options.Temperature = f.config.Temperature
	req.Options.NumPredict = f.config.NumPredict

	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		f.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return core.Verdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.recordFailure()
		return core.Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		f.recordFailure()
		errBody, _ := io.ReadAll(resp.Body)
		return core.Verdict{}, fmt.Errorf("verdict API error %d: %s", resp.StatusCode, string(errBody))
	}

	var chatResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		f.recordFailure()
		return core.Verdict{}, err
	}

	f.recordSuccess()

	content := strings.TrimSpace(chatResp.Message.Content)
	if content == "" {
		return core.Verdict{}, fmt.Errorf("verdict model returned empty content")
	}
	return parseVerdict(content), nil
}

// CheckHealth probes the endpoint's version route. A success resets the
// failure counter and closes the breaker.
func (f *RemoteFilter) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", f.config.BaseURL+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != 200 {
		return fmt.Errorf("verdict endpoint health returned %d", resp.StatusCode)
	}
	f.recordSuccess()
	return nil
}

// Available reports whether the breaker is closed.
func (f *RemoteFilter) Available() bool { return !f.breakerOpen() }

func (f *RemoteFilter) breakerOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures >= f.config.MaxFailures
}

func (f *RemoteFilter) recordFailure() {
	f.mu.Lock()
	f.failures++
	f.mu.Unlock()
}

func (f *RemoteFilter) recordSuccess() {
	f.mu.Lock()
	f.failures = 0
	f.mu.Unlock()
}

var strictVerdict = regexp.MustCompile(`(?i)^(YES|NO)\s+(\d+(?:\.\d+)?)\s+(.+)$`)
var firstFloat = regexp.MustCompile(`\d+\.\d+`)

// parseVerdict reads the "YES 0.95 reason" line the model is asked for,
// falling back to token scanning when the model rambles.
func parseVerdict(content string) core.Verdict {
	line := strings.TrimSpace(content)

	if m := strictVerdict.FindStringSubmatch(line); m != nil {
		confidence := 0.5
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			confidence = clamp01(v)
		}
		return core.Verdict{
			Respond:    strings.EqualFold(m[1], "YES"),
			Confidence: confidence,
			Reason:     m[3],
			Source:     core.SourceRemote,
		}
	}

	// Lenient recovery: YES wins unless a NO appears before it.
	upper := strings.ToUpper(line)
	yesIdx := strings.Index(upper, "YES")
	noIdx := strings.Index(upper, "NO")
	respond := yesIdx >= 0 && !(noIdx >= 0 && noIdx < yesIdx)

	confidence := 0.7
	if m := firstFloat.FindString(line); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			confidence = clamp01(v)
		}
	}

	return core.Verdict{
		Respond:    respond,
		Confidence: confidence,
		Reason:     line,
		Source:     core.SourceRemote,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
