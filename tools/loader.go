package tools

import (
	"fmt"
	"log"
)

// LoaderConfig carries everything needed to stand up the tool set.
type LoaderConfig struct {
	Price         PriceConfig
	SearchBaseURL string
}

// Load builds a registry with every known tool over one shared,
// rate-limited API client.
func Load(config LoaderConfig) (*Registry, error) {
	client := NewAPIClient()
	registry := NewRegistry()

	all := []Tool{
		NewPriceChecker(config.Price, client),
		NewMarketTrends(config.Price, client),
		NewWebSearch(config.SearchBaseURL, client),
	}
	for _, t := range all {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("load tools: %w", err)
		}
	}

	log.Printf("[tools] loaded %d tools: %v", len(registry.List()), registry.List())
	return registry, nil
}
