// Package core provides the shared types passed between the gatekeeper,
// the tool layer, and the response composer.
package core

import (
	"encoding/json"
	"time"
)

// Verdict sources, in the order the gatekeeper consults them.
const (
	SourceMention    = "mention"
	SourceRateLimit  = "rate_limit"
	SourceRemote     = "remote"
	SourceClassifier = "classifier"
)

// Verdict is the gatekeeper's decision for a single inbound message.
type Verdict struct {
	Respond    bool    `json:"respond"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Source     string  `json:"source"`
}

// ToolRequest names a tool and carries its call parameters.
type ToolRequest struct {
	Tool   string            `json:"tool"`
	Params map[string]string `json:"params,omitempty"`
}

// ToolOutcome is the result of running a tool, including fallbacks.
// Exactly one of Data and Err is meaningful; Err != "" marks failure.
type ToolOutcome struct {
	Tool string          `json:"tool"`
	Data json.RawMessage `json:"data,omitempty"`
	Err  string          `json:"error,omitempty"`
	// Provenance names the tool that actually produced Data when a
	// fallback served the request.
	Provenance string        `json:"provenance,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns,omitempty"`
}

// Ok reports whether the outcome carries data rather than an error.
func (o ToolOutcome) Ok() bool { return o.Err == "" }

// Message is one turn of a conversation as stored in history and as fed
// to the generation model.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Inbound is a chat message as received from the platform adapter.
type Inbound struct {
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Mentioned bool      `json:"mentioned"`
	At        time.Time `json:"at"`
}

// Outbound is the pipeline's reply, already split to platform limits.
// Replied is false when the gatekeeper declined; Chunks is then empty.
type Outbound struct {
	ChannelID string   `json:"channel_id"`
	Replied   bool     `json:"replied"`
	Chunks    []string `json:"chunks,omitempty"`
	Verdict   Verdict  `json:"verdict"`
	Tool      string   `json:"tool,omitempty"`
}
