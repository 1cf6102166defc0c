package composer

import (
	"math/rand"
	"strings"
)

// Canned pools keyed by the shape of the question. Used when the
// generation endpoint is missing or unreachable.
var (
	bestTradesReplies = []string{
		"I can't pull live rankings right now, so I won't guess at today's best trades. In general, look for liquid names with clear catalysts and size positions so a single loss can't hurt you.",
		"My market data feed is unavailable at the moment. Rather than invent picks, I'd suggest reviewing the day's top gainers once data is back and checking volume before chasing any move.",
		"I'm unable to fetch current movers right now. A solid fallback: stick to your watchlist, wait for confirmation, and avoid entering trades purely on momentum you can't verify.",
		"No live trade data is available at the moment. Please try again shortly and I'll rank the current movers for you.",
	}
	marketAnalysisReplies = []string{
		"I can't reach my market data sources right now, so I won't speculate on current conditions. Check back shortly and I'll give you a grounded read.",
		"Live market analysis is temporarily unavailable. When in doubt, watch the major indices and volume for direction rather than headlines.",
		"My analysis tools are offline at the moment. Please try again in a bit and I'll walk through the current trend with real numbers.",
	}
	cryptoReplies = []string{
		"I can't fetch live crypto prices right now, so I won't quote a number that could be stale. Try again shortly.",
		"My crypto data feed is unavailable at the moment. Remember that crypto moves fast, so always confirm a price on your exchange before acting.",
		"Live coin data is temporarily out of reach. Ask again in a few minutes and I'll pull the current quote for you.",
	}
	generalTradingReplies = []string{
		"I'm having trouble reaching my data sources right now. Core principles still apply: define your risk before entry, keep position sizes sane, and never trade money you can't afford to lose.",
		"My tools are temporarily unavailable, but happy to talk strategy: a written plan with entry, stop, and target beats improvising every time.",
		"I can't pull live data at the moment. If you're planning a trade, make sure the setup still holds once real quotes are back.",
	}
	defaultReplies = []string{
		"I'm having trouble processing your request right now. Please try again later.",
		"Something went wrong on my end while preparing a response. Give it another try in a moment.",
		"I couldn't complete that request just now. Please ask again shortly.",
	}
)

// cannedReply picks a pool by query shape and returns one entry.
func cannedReply(message string) string {
	pool := poolFor(message)
	return pool[rand.Intn(len(pool))]
}

func poolFor(message string) []string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "best trade", "best trades", "top trade", "what should i trade", "trade ideas"):
		return bestTradesReplies
	case containsAny(lower, "market analysis", "market trend", "market trends", "how is the market", "market today"):
		return marketAnalysisReplies
	case containsAny(lower, "crypto", "bitcoin", "btc", "ethereum", "eth", "coin", "token"):
		return cryptoReplies
	case containsAny(lower, "trade", "trading", "stock", "invest", "position", "portfolio"):
		return generalTradingReplies
	default:
		return defaultReplies
	}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
