// Package pipeline wires the gatekeeper, tool layer, and composer into
// a single message-handling path.
package pipeline

import (
	"context"
	"log"

	"github.com/trademaster-ai/trademaster/core"
	"github.com/trademaster-ai/trademaster/pkg/chat"
	"github.com/trademaster-ai/trademaster/pkg/composer"
	"github.com/trademaster-ai/trademaster/pkg/gatekeeper"
	"github.com/trademaster-ai/trademaster/pkg/metrics"
	"github.com/trademaster-ai/trademaster/pkg/streaming"
)

// Config tunes pipeline behavior.
type Config struct {
	// ChunkLimit caps reply chunk length. Zero means chat.DefaultLimit.
	ChunkLimit int
}

// Pipeline handles inbound messages end to end: verdict, tool run,
// generation, and chunking.
type Pipeline struct {
	config   Config
	gate     *gatekeeper.Gatekeeper
	composer *composer.Composer
	contexts *core.ContextManager
	metrics  *metrics.PipelineMetrics
	hub      *streaming.Hub
}

// New creates a pipeline. The hub may be nil when streaming is off.
func New(config Config, gate *gatekeeper.Gatekeeper, comp *composer.Composer, contexts *core.ContextManager, pm *metrics.PipelineMetrics, hub *streaming.Hub) *Pipeline {
	if config.ChunkLimit <= 0 {
		config.ChunkLimit = chat.DefaultLimit
	}
	if pm != nil && comp != nil {
		comp.SetRecorder(pm)
	}
	if pm != nil && gate != nil {
		gate.SetRecorder(pm)
	}
	return &Pipeline{
		config:   config,
		gate:     gate,
		composer: comp,
		contexts: contexts,
		metrics:  pm,
		hub:      hub,
	}
}

// HandleMessage runs one inbound message through the pipeline. A
// declined message returns an Outbound with Replied false and the
// verdict that declined it.
func (p *Pipeline) HandleMessage(ctx context.Context, msg core.Inbound) (*core.Outbound, error) {
	verdict := p.gate.ShouldRespond(ctx, msg)
	p.recordVerdict(msg.ChannelID, verdict)
	if p.hub != nil {
		p.hub.BroadcastVerdict(msg.ChannelID, verdict)
	}

	if !verdict.Respond {
		p.recordMessage(false, 0)
		return &core.Outbound{ChannelID: msg.ChannelID, Replied: false, Verdict: verdict}, nil
	}

	// History holds only prior turns; the composer appends the current
	// message itself.
	history := p.contexts.History(msg.UserID)
	reply, outcome := p.composer.Compose(ctx, msg, history)

	toolName := ""
	if outcome != nil {
		toolName = outcome.Tool
		p.recordTool(*outcome)
		if p.hub != nil {
			p.hub.BroadcastTool(*outcome)
		}
	}

	// Only answered conversations enter history; RecentlyActive then
	// marks users the assistant is already talking to.
	p.contexts.AddMessage(msg.UserID, "user", msg.Content)
	p.contexts.AddMessage(msg.UserID, "assistant", reply)

	chunks := chat.Split(reply, p.config.ChunkLimit)
	p.recordMessage(true, len(chunks))
	if p.hub != nil {
		p.hub.BroadcastReply(msg.ChannelID, len(chunks), toolName)
	}
	log.Printf("[pipeline] replied in %s (%d chunks, tool=%q, source=%s)",
		msg.ChannelID, len(chunks), toolName, verdict.Source)

	return &core.Outbound{
		ChannelID: msg.ChannelID,
		Replied:   true,
		Chunks:    chunks,
		Verdict:   verdict,
		Tool:      toolName,
	}, nil
}

func (p *Pipeline) recordVerdict(channelID string, v core.Verdict) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordVerdict(v.Source, v.Respond)
	if v.Source == core.SourceRateLimit {
		p.metrics.RecordRateLimitHit(channelID)
	}
}

func (p *Pipeline) recordTool(o core.ToolOutcome) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if !o.Ok() {
		status = "error"
	}
	p.metrics.RecordToolCall(o.Tool, status, o.Elapsed.Seconds(), o.Provenance != "")
}

func (p *Pipeline) recordMessage(replied bool, chunks int) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordMessage(replied, chunks)
}
