package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-ledger/internal/api"
	"trade-ledger/internal/cache"
	"trade-ledger/internal/config"
	"trade-ledger/internal/eventbus"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/ledger"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	// 1. Config
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Initializing Trade Ledger Gateway...")
	log.Printf("Datasource: %s", cfg.DatasourceType)
	log.Printf("API Port: %s", cfg.Port)
	if cfg.TargetBuilder != "" {
		log.Printf("Target Builder: %s", cfg.TargetBuilder)
	}

	// 2. Upstream: weight limiter, datasource, paginator
	limiter := hyperliquid.NewWeightLimiter(cfg.UpstreamMaxWeight, cfg.UpstreamWindowMs)
	ds, err := hyperliquid.NewDatasource(cfg.DatasourceType, cfg.UpstreamURL, limiter)
	if err != nil {
		log.Fatalf("Failed to initialize datasource: %v", err)
	}
	paginator := hyperliquid.NewPaginator(ds)

	// 3. Caches and derivation services, leaves first
	store := cache.New(
		time.Duration(cfg.FillsTTLMs)*time.Millisecond,
		time.Duration(cfg.ClearinghouseTTLMs)*time.Millisecond,
	)
	filter := ledger.NewBuilderFilter(cfg.TargetBuilder)

	var resolver *ledger.BuilderResolver
	if cfg.ResolveBuilders {
		resolver = ledger.NewBuilderResolver(ds, cfg.Debug())
		log.Println("Builder tx resolution enabled")
	}

	trades := ledger.NewTradeService(store, paginator, filter, cfg.BuilderLabels, resolver)
	positions := ledger.NewPositionService(trades, filter)
	pnl := ledger.NewPnlService(trades, filter, store, ds)
	registry := ledger.NewRegistry()
	leaderboard := ledger.NewLeaderboard(registry, pnl)

	bus := eventbus.New()
	defer bus.Close()

	// 4. HTTP surface
	api.BuildCommit = BuildCommit
	server := api.NewServer(api.Deps{
		Config:      cfg,
		Datasource:  ds,
		Limiter:     limiter,
		Store:       store,
		Trades:      trades,
		Positions:   positions,
		Pnl:         pnl,
		Registry:    registry,
		Leaderboard: leaderboard,
		Bus:         bus,
	}, cfg.Port)

	go func() {
		log.Printf("API server listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// 5. Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Shutdown complete.")
}
