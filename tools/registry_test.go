package tools

import "testing"

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "price_checker"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(&fakeTool{name: "price_checker"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegistryGetAndList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "web_search"})
	reg.Register(&fakeTool{name: "market_trends"})

	if _, ok := reg.Get("web_search"); !ok {
		t.Error("web_search should be registered")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("missing tool should not resolve")
	}

	names := reg.List()
	if len(names) != 2 || names[0] != "market_trends" || names[1] != "web_search" {
		t.Errorf("names = %v", names)
	}

	reg.Clear()
	if len(reg.List()) != 0 {
		t.Error("clear should empty the registry")
	}
}

func TestLoadRegistersStandardTools(t *testing.T) {
	reg, err := Load(LoaderConfig{Price: DefaultPriceConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{"market_trends", "price_checker", "web_search"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("tool %s missing from loaded registry", name)
		}
	}
}
