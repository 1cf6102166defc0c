// Package composer turns an approved message into a reply: it runs the
// tool layer for live data and asks the generation model to answer with
// that data in context. Compose never fails; when generation is
// unreachable it falls back to a canned reply.
package composer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/trademaster-ai/trademaster/core"
	"github.com/trademaster-ai/trademaster/tools"
)

const personaPrompt = `You are TradeMaster, an AI assistant specialized in trading, investing, and financial markets. You help users with trading strategies, market analysis, and financial education. When responding to users: 1. Be concise, accurate, and helpful 2. Use data and facts from your tools to support your statements 3. Never give guarantees about future prices or returns`

// Config tunes the generation call.
type Config struct {
	APIKey      string
	BaseURL     string // empty means the default OpenAI endpoint
	Model       string
	Temperature float32
	MaxTokens   int
	MaxHistory  int
}

// DefaultConfig matches the production tuning.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1024,
		MaxHistory:  10,
	}
}

// Recorder observes generation outcomes. The metrics package
// satisfies it.
type Recorder interface {
	RecordGeneration(latencySec float64, canned bool)
}

// Composer assembles prompts and calls the generation model.
type Composer struct {
	config   Config
	client   *openai.Client
	matcher  *tools.Matcher
	executor *tools.Executor
	recorder Recorder
}

// SetRecorder attaches a generation recorder. Safe to leave unset.
func (c *Composer) SetRecorder(r Recorder) {
	c.recorder = r
}

// New creates a composer. A missing API key leaves the client nil and
// every reply comes from the canned pools.
func New(config Config, matcher *tools.Matcher, executor *tools.Executor) *Composer {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = 10
	}

	var client *openai.Client
	if config.APIKey != "" {
		cc := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			cc.BaseURL = config.BaseURL
		}
		client = openai.NewClientWithConfig(cc)
	} else {
		log.Printf("[composer] no generation API key, canned replies only")
	}

	return &Composer{
		config:   config,
		client:   client,
		matcher:  matcher,
		executor: executor,
	}
}

// Compose produces a reply for an approved message. The returned
// outcome is nil when no tool intent matched.
func (c *Composer) Compose(ctx context.Context, msg core.Inbound, history []core.Message) (string, *core.ToolOutcome) {
	var outcome *core.ToolOutcome
	if c.matcher != nil && c.executor != nil {
		if req, ok := c.matcher.Match(msg.Content); ok {
			out := c.executor.Execute(ctx, req)
			outcome = &out
		}
	}

	if c.client == nil {
		c.record(0, true)
		return cannedReply(msg.Content), outcome
	}

	start := time.Now()
	reply, err := c.generate(ctx, msg, history, outcome)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		log.Printf("[composer] generation failed, using canned reply: %v", err)
		c.record(elapsed, true)
		return cannedReply(msg.Content), outcome
	}
	c.record(elapsed, false)
	return reply, outcome
}

func (c *Composer) record(latencySec float64, canned bool) {
	if c.recorder != nil {
		c.recorder.RecordGeneration(latencySec, canned)
	}
}

func (c *Composer) generate(ctx context.Context, msg core.Inbound, history []core.Message, outcome *core.ToolOutcome) (string, error) {
	system := personaPrompt
	if block := toolBlock(outcome); block != "" {
		system += "\n\n" + block
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	if len(history) > c.config.MaxHistory {
		history = history[len(history)-c.config.MaxHistory:]
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: msg.Content,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("empty completion")
	}
	return reply, nil
}

// toolBlock renders the tool outcome for the system prompt. Failures
// get an explicit instruction so the model does not invent figures.
func toolBlock(outcome *core.ToolOutcome) string {
	if outcome == nil {
		return ""
	}
	if outcome.Ok() {
		block := fmt.Sprintf("LIVE TOOL DATA (%s):\n%s\nBase your answer on this data.", outcome.Tool, outcome.Data)
		if outcome.Provenance != "" {
			block += "\nNote: " + outcome.Provenance + "."
		}
		return block
	}
	return fmt.Sprintf(
		"TOOL STATUS: %s failed (%s).\nIMPORTANT: No live data is available. Do not fabricate prices, percentages, or rankings. Tell the user the data could not be retrieved right now.",
		outcome.Tool, outcome.Err)
}
