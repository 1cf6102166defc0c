// Package gatekeeper decides which chat messages deserve a generated
// response. A remote verdict model does the filtering when reachable;
// a deterministic keyword classifier covers for it when it is not.
package gatekeeper

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/trademaster-ai/trademaster/core"
)

// Classifier confidence tiers.
const (
	confidenceMention = 0.95
	confidencePhrase  = 0.9
	confidenceKeyword = 0.8
	confidenceWeak    = 0.6
	confidenceDecline = 0.7
)

var tradingKeywords = map[string]bool{
	"stock": true, "trade": true, "trades": true, "trading": true,
	"invest": true, "investing": true, "investor": true, "portfolio": true,
	"market": true, "buy": true, "sell": true, "long": true, "short": true,
	"position": true, "entry": true, "exit": true,
	"analysis": true, "chart": true, "pattern": true, "breakout": true,
	"support": true, "resistance": true,
	"bullish": true, "bearish": true, "trend": true, "uptrend": true,
	"downtrend": true, "backtest": true,
	"strategy": true, "risk": true, "reward": true, "profit": true,
	"loss": true, "gain": true, "roi": true, "return": true,
	"crypto": true, "bitcoin": true, "btc": true, "ethereum": true,
	"eth": true, "altcoin": true, "token": true, "coin": true,
	"blockchain": true, "wallet": true, "address": true, "exchange": true,
	"dex": true, "defi": true, "nft": true,
	"mining": true, "staking": true, "yield": true, "dao": true,
	"gas": true, "gwei": true,
	"hodl": true, "fud": true, "fomo": true, "whale": true,
	"dump": true, "pump": true, "moon": true, "lambo": true,
	"price": true, "prediction": true, "forecast": true, "outlook": true,
	"recommendation": true,
	"best": true, "worst": true, "today": true, "tomorrow": true,
	"etf": true, "fund": true, "mutual": true,
}

var keyPhrases = []string{
	"best trades", "trading advice", "should i buy", "should i sell",
	"what stocks", "which crypto", "price prediction", "market analysis",
	"investment advice", "portfolio advice", "trading strategy",
	"smart contract",
}

var directAddress = map[string]bool{
	"trademaster": true, "bot": true, "assistant": true,
	"help": true, "hey": true, "hello": true, "hi": true, "ai": true,
}

var questionWords = map[string]bool{
	"what": true, "how": true, "when": true, "why": true,
	"where": true, "who": true, "which": true,
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// tokenize lowercases, strips accents and splits on non-word runes.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	return wordPattern.FindAllString(s, -1)
}

// Classifier is the deterministic heuristic filter used when the remote
// verdict model is unavailable. It is stateless and safe to share.
type Classifier struct{}

// NewClassifier returns the shared heuristic classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Evaluate scores a message without calling out. recentTalk marks users
// who spoke with the assistant within the continuation window.
func (c *Classifier) Evaluate(message string, mentioned, recentTalk bool) core.Verdict {
	if mentioned {
		return core.Verdict{
			Respond:    true,
			Confidence: confidenceMention,
			Reason:     "heuristic: directly mentioned",
			Source:     core.SourceClassifier,
		}
	}

	lower := strings.ToLower(message)
	words := make(map[string]bool)
	for _, w := range tokenize(message) {
		words[w] = true
	}

	addressed := intersects(words, directAddress)
	keyword := intersects(words, tradingKeywords)

	phrase := ""
	for _, p := range keyPhrases {
		if strings.Contains(lower, p) {
			phrase = p
			break
		}
	}

	question := strings.Contains(message, "?") || intersects(words, questionWords)

	bestAsk := strings.Contains(lower, "best trade") ||
		strings.Contains(lower, "best stock") ||
		strings.Contains(lower, "best crypto")

	respond := addressed || phrase != "" || bestAsk || (keyword && (question || recentTalk))
	if !respond {
		return core.Verdict{
			Respond:    false,
			Confidence: confidenceDecline,
			Reason:     "heuristic: not trading related or directed at the assistant",
			Source:     core.SourceClassifier,
		}
	}

	confidence := confidenceWeak
	switch {
	case phrase != "" || bestAsk:
		confidence = confidencePhrase
	case keyword || addressed:
		confidence = confidenceKeyword
	}

	var reasons []string
	if addressed {
		reasons = append(reasons, "directly addressed the assistant")
	}
	if keyword {
		reasons = append(reasons, "contains trading terminology")
	}
	if phrase != "" {
		reasons = append(reasons, fmt.Sprintf("contains key trading phrase %q", phrase))
	}
	if bestAsk {
		reasons = append(reasons, "asking about best trades/investments")
	}
	if question {
		reasons = append(reasons, "asks a question")
	}
	if recentTalk {
		reasons = append(reasons, "continues recent conversation")
	}

	return core.Verdict{
		Respond:    true,
		Confidence: confidence,
		Reason:     "heuristic: " + strings.Join(reasons, ", "),
		Source:     core.SourceClassifier,
	}
}

func intersects(words, set map[string]bool) bool {
	if len(words) > len(set) {
		words, set = set, words
	}
	for w := range words {
		if set[w] {
			return true
		}
	}
	return false
}
