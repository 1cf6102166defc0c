package gatekeeper

import (
	"strings"
	"testing"
)

func TestClassifierEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		mentioned  bool
		recentTalk bool
		respond    bool
		confidence float64
	}{
		{
			name:       "mention always responds",
			message:    "completely off topic",
			mentioned:  true,
			respond:    true,
			confidence: 0.95,
		},
		{
			name:       "key phrase",
			message:    "any trading advice for this week",
			respond:    true,
			confidence: 0.9,
		},
		{
			name:       "best trades query",
			message:    "what are the best trades right now",
			respond:    true,
			confidence: 0.9,
		},
		{
			name:       "trading keyword with question",
			message:    "is bitcoin going up?",
			respond:    true,
			confidence: 0.8,
		},
		{
			name:       "direct address",
			message:    "hey assistant, you there",
			respond:    true,
			confidence: 0.8,
		},
		{
			name:       "keyword continuing recent conversation",
			message:    "ok and ethereum too",
			recentTalk: true,
			respond:    true,
			confidence: 0.8,
		},
		{
			name:       "keyword without question or recency declines",
			message:    "crypto winter never ends",
			respond:    false,
			confidence: 0.7,
		},
		{
			name:       "plain chatter declines",
			message:    "just finished lunch, great sandwich",
			respond:    false,
			confidence: 0.7,
		},
		{
			name:       "empty message declines",
			message:    "",
			respond:    false,
			confidence: 0.7,
		},
		{
			name:       "whitespace-only message declines",
			message:    "   \n\t ",
			respond:    false,
			confidence: 0.7,
		},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Evaluate(tt.message, tt.mentioned, tt.recentTalk)
			if v.Respond != tt.respond {
				t.Errorf("respond = %v, want %v (reason %q)", v.Respond, tt.respond, v.Reason)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", v.Confidence, tt.confidence)
			}
			if v.Source != "classifier" {
				t.Errorf("source = %q, want classifier", v.Source)
			}
		})
	}
}

func TestClassifierFoldsAccents(t *testing.T) {
	c := NewClassifier()
	v := c.Evaluate("qué pasa con bitcóin?", false, false)
	if !v.Respond {
		t.Fatalf("expected accent-folded keyword match, got %+v", v)
	}
}

func TestClassifierReasonNamesSignals(t *testing.T) {
	c := NewClassifier()
	v := c.Evaluate("should i buy more eth?", false, false)
	if !v.Respond {
		t.Fatalf("expected respond, got %+v", v)
	}
	if !strings.Contains(v.Reason, "should i buy") {
		t.Errorf("expected matched phrase in reason, got %q", v.Reason)
	}
}
