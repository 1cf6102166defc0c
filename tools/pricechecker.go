package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var commonStocks = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "AMZN": true, "META": true,
	"TSLA": true, "NVDA": true, "JPM": true, "V": true, "JNJ": true,
	"WMT": true, "PG": true, "MA": true, "UNH": true, "HD": true,
	"BAC": true, "XOM": true, "DIS": true, "PYPL": true, "INTC": true,
	"CMCSA": true, "NFLX": true, "CSCO": true, "ADBE": true, "CRM": true,
	"VZ": true,
}

var commonCryptos = map[string]bool{
	"BTC": true, "ETH": true, "BNB": true, "XRP": true, "SOL": true,
	"ADA": true, "AVAX": true, "DOT": true, "DOGE": true, "MATIC": true,
	"LINK": true, "UNI": true, "LTC": true, "BCH": true, "ATOM": true,
	"XLM": true, "ALGO": true, "NEAR": true,
}

var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"AVAX":  "avalanche-2",
	"DOT":   "polkadot",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"ATOM":  "cosmos",
	"XLM":   "stellar",
	"ALGO":  "algorand",
	"NEAR":  "near",
}

// PriceConfig holds upstream endpoints and keys for the price checker.
type PriceConfig struct {
	CoinGeckoBaseURL    string
	CoinGeckoProBaseURL string
	CoinGeckoAPIKey     string
	AlphaVantageBaseURL string
	AlphaVantageAPIKey  string
}

// DefaultPriceConfig points at the public endpoints.
func DefaultPriceConfig() PriceConfig {
	return PriceConfig{
		CoinGeckoBaseURL:    CoinGeckoBaseURL,
		CoinGeckoProBaseURL: CoinGeckoProBaseURL,
		AlphaVantageBaseURL: AlphaVantageBaseURL,
	}
}

// CryptoQuote is the crypto price payload.
type CryptoQuote struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	MarketCap      decimal.Decimal `json:"market_cap"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
	Time           time.Time       `json:"time"`
	Source         string          `json:"source"`
}

// StockQuote is the stock price payload.
type StockQuote struct {
	Symbol             string          `json:"symbol"`
	PriceUSD           decimal.Decimal `json:"price_usd"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	Volume             int64           `json:"volume"`
	LatestTradingDay   string          `json:"latest_trading_day"`
	Time               time.Time       `json:"time"`
	Source             string          `json:"source"`
}

// PriceChecker looks up spot prices for crypto (CoinGecko, Pro tier
// first when keyed) and stocks (Alpha Vantage GLOBAL_QUOTE).
type PriceChecker struct {
	config PriceConfig
	client *APIClient
}

// NewPriceChecker creates the tool over a shared API client.
func NewPriceChecker(config PriceConfig, client *APIClient) *PriceChecker {
	if client == nil {
		client = NewAPIClient()
	}
	return &PriceChecker{config: config, client: client}
}

func (p *PriceChecker) Name() string { return "price_checker" }

func (p *PriceChecker) Description() string {
	return "Checks current prices of stocks and cryptocurrencies"
}

// Execute resolves params{symbol, market_type} to a quote. market_type
// "auto" (or absent) is detected from the symbol.
func (p *PriceChecker) Execute(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	symbol := strings.TrimSpace(params["symbol"])
	if symbol == "" {
		return nil, fmt.Errorf("symbol parameter is required")
	}

	marketType := params["market_type"]
	if marketType == "" || marketType == "auto" {
		marketType = detectMarketType(symbol)
	}
	log.Printf("[price_checker] checking %s as %s", symbol, marketType)

	switch strings.ToLower(marketType) {
	case "crypto":
		return p.cryptoPrice(ctx, symbol)
	case "stock":
		return p.stockPrice(ctx, symbol)
	default:
		return nil, fmt.Errorf("invalid market type: %s, use 'crypto' or 'stock'", marketType)
	}
}

// detectMarketType classifies a bare symbol. Short alphabetic tickers
// outside the known stock set are assumed to be crypto.
func detectMarketType(symbol string) string {
	upper := strings.ToUpper(symbol)
	if commonCryptos[upper] {
		return "crypto"
	}
	if commonStocks[upper] {
		return "stock"
	}
	if len(symbol) <= 4 && isAlpha(symbol) {
		return "crypto"
	}
	return "stock"
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

type simplePriceEntry struct {
	USD          decimal.Decimal `json:"usd"`
	USDMarketCap decimal.Decimal `json:"usd_market_cap"`
	USD24hVol    decimal.Decimal `json:"usd_24h_vol"`
	USD24hChange decimal.Decimal `json:"usd_24h_change"`
}

// cryptoPrice tries simple/price first, then the coins/{id} detail
// endpoint, each on the Pro tier before the public one.
func (p *PriceChecker) cryptoPrice(ctx context.Context, symbol string) (json.RawMessage, error) {
	upper := strings.ToUpper(symbol)
	coinID, known := coinGeckoIDs[upper]
	if !known {
		coinID = strings.ToLower(symbol)
	}

	quote, err := p.simplePrice(ctx, upper, coinID)
	if err == nil {
		return marshalPayload(quote)
	}
	log.Printf("[price_checker] simple/price failed for %s, trying coin detail: %v", coinID, err)

	quote, err = p.coinDetail(ctx, upper, coinID)
	if err != nil {
		return nil, fmt.Errorf("failed to get data for %s: %w", symbol, err)
	}
	return marshalPayload(quote)
}

func (p *PriceChecker) simplePrice(ctx context.Context, symbol, coinID string) (*CryptoQuote, error) {
	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")
	params.Set("include_market_cap", "true")
	params.Set("include_24hr_vol", "true")
	params.Set("include_24hr_change", "true")
	params.Set("include_last_updated_at", "true")

	var data map[string]simplePriceEntry
	if err := p.getCoinGecko(ctx, "/simple/price", params, &data); err != nil {
		return nil, err
	}
	entry, ok := data[coinID]
	if !ok {
		return nil, fmt.Errorf("no data found for %s", coinID)
	}

	name := coinID
	if n, ok := coinGeckoIDs[symbol]; ok {
		name = n
	}
	return &CryptoQuote{
		Symbol:         symbol,
		Name:           capitalize(name),
		PriceUSD:       entry.USD,
		PriceChange24h: entry.USD24hChange,
		MarketCap:      entry.USDMarketCap,
		Volume24h:      entry.USD24hVol,
		Time:           time.Now(),
		Source:         "CoinGecko",
	}, nil
}

func (p *PriceChecker) coinDetail(ctx context.Context, symbol, coinID string) (*CryptoQuote, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "true")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	var data struct {
		Name       string `json:"name"`
		MarketData struct {
			CurrentPrice             map[string]decimal.Decimal `json:"current_price"`
			PriceChangePercentage24h decimal.Decimal            `json:"price_change_percentage_24h"`
			MarketCap                map[string]decimal.Decimal `json:"market_cap"`
			TotalVolume              map[string]decimal.Decimal `json:"total_volume"`
		} `json:"market_data"`
	}
	if err := p.getCoinGecko(ctx, "/coins/"+coinID, params, &data); err != nil {
		return nil, err
	}

	return &CryptoQuote{
		Symbol:         symbol,
		Name:           data.Name,
		PriceUSD:       data.MarketData.CurrentPrice["usd"],
		PriceChange24h: data.MarketData.PriceChangePercentage24h,
		MarketCap:      data.MarketData.MarketCap["usd"],
		Volume24h:      data.MarketData.TotalVolume["usd"],
		Time:           time.Now(),
		Source:         "CoinGecko",
	}, nil
}

// getCoinGecko hits the Pro tier when keyed, falling back to the public
// API on any Pro failure.
func (p *PriceChecker) getCoinGecko(ctx context.Context, path string, params url.Values, out any) error {
	if p.config.CoinGeckoAPIKey != "" {
		headers := map[string]string{"x-cg-pro-api-key": p.config.CoinGeckoAPIKey}
		err := p.client.GetJSON(ctx, p.config.CoinGeckoProBaseURL+path, headers, params, out)
		if err == nil {
			return nil
		}
		log.Printf("[price_checker] CoinGecko Pro failed, trying public API: %v", err)
	}
	return p.client.GetJSON(ctx, p.config.CoinGeckoBaseURL+path, nil, params, out)
}

func (p *PriceChecker) stockPrice(ctx context.Context, symbol string) (json.RawMessage, error) {
	if p.config.AlphaVantageAPIKey == "" {
		return nil, fmt.Errorf("failed to get data for %s: Alpha Vantage API key not configured", symbol)
	}
	upper := strings.ToUpper(symbol)

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", upper)
	params.Set("apikey", p.config.AlphaVantageAPIKey)

	var data struct {
		ErrorMessage string `json:"Error Message"`
		GlobalQuote  struct {
			Price            string `json:"05. price"`
			Volume           string `json:"06. volume"`
			LatestTradingDay string `json:"07. latest trading day"`
			Change           string `json:"09. change"`
			ChangePercent    string `json:"10. change percent"`
		} `json:"Global Quote"`
	}
	if err := p.client.GetJSON(ctx, p.config.AlphaVantageBaseURL, nil, params, &data); err != nil {
		return nil, fmt.Errorf("failed to get data for %s: %w", symbol, err)
	}
	if data.ErrorMessage != "" {
		return nil, fmt.Errorf("failed to get data for %s: %s", symbol, data.ErrorMessage)
	}
	if data.GlobalQuote.Price == "" {
		return nil, fmt.Errorf("no data found for stock symbol %s", symbol)
	}

	price, err := decimal.NewFromString(data.GlobalQuote.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to get data for %s: bad price %q", symbol, data.GlobalQuote.Price)
	}

	quote := &StockQuote{
		Symbol:           upper,
		PriceUSD:         price,
		PriceChange:      decimalOrZero(data.GlobalQuote.Change),
		LatestTradingDay: data.GlobalQuote.LatestTradingDay,
		Time:             time.Now(),
		Source:           "Alpha Vantage",
	}
	quote.PriceChangePercent = decimalOrZero(strings.TrimSuffix(data.GlobalQuote.ChangePercent, "%"))
	if v, err := decimal.NewFromString(data.GlobalQuote.Volume); err == nil {
		quote.Volume = v.IntPart()
	}
	return marshalPayload(quote)
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
