package gatekeeper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/trademaster-ai/trademaster/core"
)

// VerdictSource is the remote filter seam the gatekeeper depends on.
// *RemoteFilter satisfies it; tests substitute fakes.
type VerdictSource interface {
	Evaluate(ctx context.Context, message, userID string, history []core.Message) (core.Verdict, error)
}

// Config tunes the decision sequence.
type Config struct {
	// Cooldown is the minimum gap between responses in one channel.
	Cooldown time.Duration
	// RecentWindow marks a user as mid-conversation after a reply.
	RecentWindow time.Duration
	// ReasonOverride flips a remote "NO" to "YES" when the verdict's
	// reason text itself names trading topics. Off by default; the
	// override amplifies false positives on chatty filter models.
	ReasonOverride bool
}

// DefaultConfig matches the production tuning.
func DefaultConfig() Config {
	return Config{
		Cooldown:     5 * time.Second,
		RecentWindow: 5 * time.Minute,
	}
}

// Overriding reason terms, only consulted when ReasonOverride is on.
var overrideTerms = []string{
	"trading", "market", "stock", "crypto", "invest",
	"finance", "question", "requires", "assistance",
}

// FailureRecorder observes remote verdict failures. The metrics
// package satisfies it.
type FailureRecorder interface {
	RecordRemoteFailure()
}

// Gatekeeper sequences the response decision: mention bypass, channel
// cooldown, remote verdict, heuristic fallback.
type Gatekeeper struct {
	config     Config
	remote     VerdictSource
	classifier *Classifier
	contexts   *core.ContextManager
	recorder   FailureRecorder

	mu           sync.Mutex
	lastResponse map[string]time.Time // channel -> last responding verdict
}

// SetRecorder attaches a failure recorder. Safe to leave unset.
func (g *Gatekeeper) SetRecorder(r FailureRecorder) {
	g.recorder = r
}

// New creates a gatekeeper. remote may be nil to run heuristics only.
func New(config Config, remote VerdictSource, contexts *core.ContextManager) *Gatekeeper {
	if config.Cooldown == 0 {
		config.Cooldown = 5 * time.Second
	}
	if config.RecentWindow == 0 {
		config.RecentWindow = 5 * time.Minute
	}
	return &Gatekeeper{
		config:       config,
		remote:       remote,
		classifier:   NewClassifier(),
		contexts:     contexts,
		lastResponse: make(map[string]time.Time),
	}
}

// ShouldRespond decides whether the assistant answers msg. A responding
// verdict stamps the channel cooldown regardless of which stage decided.
func (g *Gatekeeper) ShouldRespond(ctx context.Context, msg core.Inbound) core.Verdict {
	if msg.Mentioned {
		v := core.Verdict{
			Respond:    true,
			Confidence: 0.98,
			Reason:     "assistant was directly mentioned",
			Source:     core.SourceMention,
		}
		g.stamp(msg.ChannelID)
		return v
	}

	if since, limited := g.withinCooldown(msg.ChannelID); limited {
		return core.Verdict{
			Respond:    false,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("rate limiting: responded in this channel %.1f seconds ago", since.Seconds()),
			Source:     core.SourceRateLimit,
		}
	}

	recentTalk := g.contexts != nil && g.contexts.RecentlyActive(msg.UserID, g.config.RecentWindow)

	v, err := g.remoteVerdict(ctx, msg)
	if err != nil {
		log.Printf("[gatekeeper] remote verdict failed, using heuristics: %v", err)
		// Only a configured remote counts as a failure; falling back
		// because none exists is normal operation.
		if g.remote != nil && g.recorder != nil {
			g.recorder.RecordRemoteFailure()
		}
		v = g.classifier.Evaluate(msg.Content, msg.Mentioned, recentTalk)
	} else if !v.Respond && g.config.ReasonOverride && containsOverrideTerm(v.Reason) {
		v.Respond = true
		v.Reason = "reason names trading topics despite NO: " + v.Reason
	}

	if v.Respond {
		g.stamp(msg.ChannelID)
	}
	return v
}

func (g *Gatekeeper) remoteVerdict(ctx context.Context, msg core.Inbound) (core.Verdict, error) {
	if g.remote == nil {
		return core.Verdict{}, fmt.Errorf("no verdict endpoint configured")
	}
	var history []core.Message
	if g.contexts != nil {
		history = g.contexts.History(msg.UserID)
	}
	return g.remote.Evaluate(ctx, msg.Content, msg.UserID, history)
}

func (g *Gatekeeper) withinCooldown(channelID string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastResponse[channelID]
	if !ok {
		return 0, false
	}
	since := time.Since(last)
	return since, since < g.config.Cooldown
}

func (g *Gatekeeper) stamp(channelID string) {
	g.mu.Lock()
	g.lastResponse[channelID] = time.Now()
	g.mu.Unlock()
}

func containsOverrideTerm(reason string) bool {
	lower := strings.ToLower(reason)
	for _, term := range overrideTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
