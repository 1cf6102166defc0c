package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TrendEntry is one row of a trends payload. Unused fields stay zero
// depending on market type and category.
type TrendEntry struct {
	Rank                  int             `json:"rank"`
	Symbol                string          `json:"symbol"`
	Name                  string          `json:"name,omitempty"`
	PriceUSD              decimal.Decimal `json:"price_usd,omitempty"`
	PriceChange24h        decimal.Decimal `json:"price_change_24h,omitempty"`
	PriceChangePercent24h decimal.Decimal `json:"price_change_percentage_24h,omitempty"`
	MarketCap             decimal.Decimal `json:"market_cap,omitempty"`
	MarketCapRank         int             `json:"market_cap_rank,omitempty"`
	Volume                decimal.Decimal `json:"volume,omitempty"`
}

// TrendReport is the market_trends payload.
type TrendReport struct {
	Category   string       `json:"category"`
	MarketType string       `json:"market_type"`
	Results    []TrendEntry `json:"results"`
	Time       time.Time    `json:"time"`
	Source     string       `json:"source"`
}

// MarketTrends reports trending coins, gainers and losers for crypto
// (CoinGecko) and stocks (Alpha Vantage TOP_GAINERS_LOSERS).
type MarketTrends struct {
	config PriceConfig
	client *APIClient
}

// NewMarketTrends creates the tool over a shared API client.
func NewMarketTrends(config PriceConfig, client *APIClient) *MarketTrends {
	if client == nil {
		client = NewAPIClient()
	}
	return &MarketTrends{config: config, client: client}
}

func (m *MarketTrends) Name() string { return "market_trends" }

func (m *MarketTrends) Description() string {
	return "Gets market trends, top gainers, and top losers for crypto or stocks"
}

// Execute resolves params{market_type, category, limit}.
func (m *MarketTrends) Execute(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	marketType := strings.ToLower(params["market_type"])
	if marketType == "" {
		return nil, fmt.Errorf("market_type parameter is required")
	}

	category := params["category"]
	if category == "" {
		category = "trending"
	}
	if category != "gainers" && category != "losers" && category != "trending" {
		return nil, fmt.Errorf("invalid category: %s, valid categories: gainers, losers, trending", category)
	}

	limit := 5
	if s := params["limit"]; s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 25 {
		limit = 25
	}

	log.Printf("[market_trends] %s for %s market (limit %d)", category, marketType, limit)

	switch marketType {
	case "crypto":
		return m.cryptoTrends(ctx, category, limit)
	case "stock":
		return m.stockTrends(ctx, category, limit)
	default:
		return nil, fmt.Errorf("invalid market type: %s, use 'crypto' or 'stock'", marketType)
	}
}

func (m *MarketTrends) cryptoTrends(ctx context.Context, category string, limit int) (json.RawMessage, error) {
	if category == "trending" {
		var data struct {
			Coins []struct {
				Item struct {
					Symbol        string          `json:"symbol"`
					Name          string          `json:"name"`
					MarketCapRank int             `json:"market_cap_rank"`
					PriceBTC      decimal.Decimal `json:"price_btc"`
				} `json:"item"`
			} `json:"coins"`
		}
		if err := m.getCoinGecko(ctx, "/search/trending", nil, &data); err != nil {
			return nil, fmt.Errorf("failed to get trending coins: %w", err)
		}

		report := &TrendReport{
			Category:   "trending",
			MarketType: "crypto",
			Time:       time.Now(),
			Source:     "CoinGecko",
		}
		for i, c := range data.Coins {
			if i >= limit {
				break
			}
			report.Results = append(report.Results, TrendEntry{
				Rank:          i + 1,
				Symbol:        strings.ToUpper(c.Item.Symbol),
				Name:          c.Item.Name,
				MarketCapRank: c.Item.MarketCapRank,
			})
		}
		return marshalPayload(report)
	}

	// Gainers and losers come from a market snapshot sorted by 24h move.
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", "250")
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	var coins []struct {
		Symbol                   string          `json:"symbol"`
		Name                     string          `json:"name"`
		CurrentPrice             decimal.Decimal `json:"current_price"`
		PriceChange24h           decimal.Decimal `json:"price_change_24h"`
		PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
		MarketCap                decimal.Decimal `json:"market_cap"`
		TotalVolume              decimal.Decimal `json:"total_volume"`
	}
	if err := m.getCoinGecko(ctx, "/coins/markets", params, &coins); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", category, err)
	}

	sort.SliceStable(coins, func(i, j int) bool {
		if category == "gainers" {
			return coins[i].PriceChangePercentage24h.GreaterThan(coins[j].PriceChangePercentage24h)
		}
		return coins[i].PriceChangePercentage24h.LessThan(coins[j].PriceChangePercentage24h)
	})

	report := &TrendReport{
		Category:   category,
		MarketType: "crypto",
		Time:       time.Now(),
		Source:     "CoinGecko",
	}
	for i, c := range coins {
		if i >= limit {
			break
		}
		report.Results = append(report.Results, TrendEntry{
			Rank:                  i + 1,
			Symbol:                strings.ToUpper(c.Symbol),
			Name:                  c.Name,
			PriceUSD:              c.CurrentPrice,
			PriceChange24h:        c.PriceChange24h,
			PriceChangePercent24h: c.PriceChangePercentage24h,
			MarketCap:             c.MarketCap,
			Volume:                c.TotalVolume,
		})
	}
	return marshalPayload(report)
}

func (m *MarketTrends) stockTrends(ctx context.Context, category string, limit int) (json.RawMessage, error) {
	if m.config.AlphaVantageAPIKey == "" {
		return nil, fmt.Errorf("failed to get market trends: Alpha Vantage API key not configured")
	}

	params := url.Values{}
	params.Set("function", "TOP_GAINERS_LOSERS")
	params.Set("apikey", m.config.AlphaVantageAPIKey)

	type avMover struct {
		Ticker           string `json:"ticker"`
		Price            string `json:"price"`
		ChangeAmount     string `json:"change_amount"`
		ChangePercentage string `json:"change_percentage"`
		Volume           string `json:"volume"`
	}
	var data struct {
		ErrorMessage       string    `json:"Error Message"`
		TopGainers         []avMover `json:"top_gainers"`
		TopLosers          []avMover `json:"top_losers"`
		MostActivelyTraded []avMover `json:"most_actively_traded"`
	}
	if err := m.client.GetJSON(ctx, m.config.AlphaVantageBaseURL, nil, params, &data); err != nil {
		return nil, fmt.Errorf("failed to get market trends: %w", err)
	}
	if data.ErrorMessage != "" {
		return nil, fmt.Errorf("failed to get market trends: %s", data.ErrorMessage)
	}

	var movers []avMover
	switch category {
	case "gainers":
		movers = data.TopGainers
	case "losers":
		movers = data.TopLosers
	default: // trending maps to most active
		movers = data.MostActivelyTraded
	}
	if len(movers) == 0 {
		return nil, fmt.Errorf("no %s data available", category)
	}

	report := &TrendReport{
		Category:   category,
		MarketType: "stock",
		Time:       time.Now(),
		Source:     "Alpha Vantage",
	}
	for i, s := range movers {
		if i >= limit {
			break
		}
		report.Results = append(report.Results, TrendEntry{
			Rank:                  i + 1,
			Symbol:                s.Ticker,
			PriceUSD:              decimalOrZero(s.Price),
			PriceChange24h:        decimalOrZero(s.ChangeAmount),
			PriceChangePercent24h: decimalOrZero(strings.TrimSuffix(s.ChangePercentage, "%")),
			Volume:                decimalOrZero(s.Volume),
		})
	}
	return marshalPayload(report)
}

// getCoinGecko mirrors the price checker's Pro-then-public sequence.
func (m *MarketTrends) getCoinGecko(ctx context.Context, path string, params url.Values, out any) error {
	if m.config.CoinGeckoAPIKey != "" {
		headers := map[string]string{"x-cg-pro-api-key": m.config.CoinGeckoAPIKey}
		err := m.client.GetJSON(ctx, m.config.CoinGeckoProBaseURL+path, headers, params, out)
		if err == nil {
			return nil
		}
		log.Printf("[market_trends] CoinGecko Pro failed, trying public API: %v", err)
	}
	return m.client.GetJSON(ctx, m.config.CoinGeckoBaseURL+path, nil, params, out)
}
