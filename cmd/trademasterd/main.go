// trademasterd is the TradeMaster assistant daemon. It accepts chat
// messages over HTTP, runs them through the triage and generation
// pipeline, and streams pipeline events over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trademaster-ai/trademaster/core"
	"github.com/trademaster-ai/trademaster/pkg/composer"
	"github.com/trademaster-ai/trademaster/pkg/gatekeeper"
	"github.com/trademaster-ai/trademaster/pkg/metrics"
	"github.com/trademaster-ai/trademaster/pkg/pipeline"
	"github.com/trademaster-ai/trademaster/pkg/streaming"
	"github.com/trademaster-ai/trademaster/tools"
)

var (
	// Flags
	httpAddr     = flag.String("http", ":8080", "HTTP server address")
	cooldown     = flag.Duration("cooldown", 5*time.Second, "Per-channel response cooldown")
	verdictModel = flag.String("verdict-model", "gemma3:1b", "Model for the remote verdict filter")
	genModel     = flag.String("model", "gpt-4o-mini", "Model for reply generation")
	chunkLimit   = flag.Int("chunk-limit", 2000, "Maximum reply chunk length")
	reasonFlip   = flag.Bool("reason-override", false, "Flip a remote NO when its reason names trading topics")
	probeEvery   = flag.Duration("probe-interval", 30*time.Second, "Verdict endpoint health probe interval")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	log.Println("Starting TradeMaster assistant daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	app, err := newApp()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	go app.hub.Run()
	go app.startHTTP()
	go app.probeLoop(ctx)
	go app.purgeLoop(ctx)

	log.Printf("Daemon running (http=%s, verdict=%s, generation=%s)", *httpAddr, *verdictModel, *genModel)
	log.Printf("WebSocket streaming available at ws://%s/ws", *httpAddr)

	<-sigCh
	log.Println("Shutting down...")
	cancel()
	log.Printf("Final stats: %d active conversations", app.contexts.ActiveConversations())
}

type app struct {
	contexts *core.ContextManager
	remote   *gatekeeper.RemoteFilter
	pipe     *pipeline.Pipeline
	metrics  *metrics.PipelineMetrics
	hub      *streaming.Hub
}

func newApp() (*app, error) {
	a := &app{
		contexts: core.NewContextManager(core.DefaultMaxHistory, core.DefaultConversationTTL),
		metrics:  metrics.NewPipelineMetrics(),
		hub:      streaming.NewHub(),
	}

	// Remote verdict filter over the local Ollama endpoint.
	remoteCfg := gatekeeper.DefaultRemoteConfig()
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		remoteCfg.BaseURL = base
	}
	remoteCfg.Model = *verdictModel
	a.remote = gatekeeper.NewRemoteFilter(remoteCfg)

	gateCfg := gatekeeper.DefaultConfig()
	gateCfg.Cooldown = *cooldown
	gateCfg.ReasonOverride = *reasonFlip
	gate := gatekeeper.New(gateCfg, a.remote, a.contexts)

	// Tool registry over the public data APIs.
	priceCfg := tools.DefaultPriceConfig()
	priceCfg.CoinGeckoAPIKey = os.Getenv("COINGECKO_API_KEY")
	priceCfg.AlphaVantageAPIKey = os.Getenv("ALPHA_VANTAGE_API_KEY")
	registry, err := tools.Load(tools.LoaderConfig{
		Price:         priceCfg,
		SearchBaseURL: os.Getenv("SEARCH_BASE_URL"),
	})
	if err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(tools.DefaultExecutorConfig(), registry)

	compCfg := composer.DefaultConfig()
	compCfg.APIKey = os.Getenv("OPENAI_API_KEY")
	compCfg.Model = *genModel
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		compCfg.BaseURL = base
	}
	comp := composer.New(compCfg, tools.NewMatcher(), executor)

	a.pipe = pipeline.New(pipeline.Config{ChunkLimit: *chunkLimit}, gate, comp, a.contexts, a.metrics, a.hub)
	return a, nil
}

// probeLoop keeps the remote verdict circuit honest: a healthy probe
// closes it, and the gauge tracks its state.
func (a *app) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(*probeEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.remote.CheckHealth(ctx); err != nil {
				log.Printf("[probe] verdict endpoint unhealthy: %v", err)
			}
			a.metrics.SetCircuitOpen(!a.remote.Available())
		}
	}
}

// purgeLoop drops conversations idle past their TTL.
func (a *app) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.contexts.PurgeExpired(); n > 0 {
				log.Printf("[contexts] purged %d expired conversations", n)
			}
		}
	}
}

func (a *app) startHTTP() {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"verdict_endpoint_up":  a.remote.Available(),
			"active_conversations": a.contexts.ActiveConversations(),
			"stream_clients":       a.hub.ClientCount(),
		})
	})

	// Message intake
	mux.HandleFunc("/message", a.handleMessage)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", a.metrics.Handler())

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", a.hub.ServeWS)

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	log.Printf("HTTP server listening on %s", *httpAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

type messageRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Mentioned bool   `json:"mentioned"`
}

type messageResponse struct {
	Replied bool         `json:"replied"`
	Verdict core.Verdict `json:"verdict"`
	Chunks  []string     `json:"chunks,omitempty"`
	Tool    string       `json:"tool,omitempty"`
}

func (a *app) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ChannelID == "" || req.Content == "" {
		http.Error(w, "user_id, channel_id, and content are required", http.StatusBadRequest)
		return
	}

	out, err := a.pipe.HandleMessage(r.Context(), core.Inbound{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
		Content:   req.Content,
		Mentioned: req.Mentioned,
		At:        time.Now(),
	})
	if err != nil {
		a.hub.BroadcastError(err, "pipeline")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messageResponse{
		Replied: out.Replied,
		Verdict: out.Verdict,
		Chunks:  out.Chunks,
		Tool:    out.Tool,
	})
}
