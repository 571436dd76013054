// Package main runs the marketplace as a self-contained service:
// - Settlement core over in-memory, PostgreSQL or ClickHouse-backed stores
// - HTTP JSON API for listing, purchase, withdrawal and registry operations
// - WebSocket endpoint broadcasting marketplace events to subscribers
// - Sandbox chain endpoints for minting assets and funding wallets
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"nft-market-lab/internal/chain"
	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/events"
	"nft-market-lab/internal/market"
	"nft-market-lab/internal/observability"
	"nft-market-lab/internal/oracle"
	"nft-market-lab/internal/registry"
	"nft-market-lab/internal/storage"
	chstore "nft-market-lab/internal/storage/clickhouse"
	"nft-market-lab/internal/storage/memory"
	"nft-market-lab/internal/storage/migrations"
	pgstore "nft-market-lab/internal/storage/postgres"
)

// Server holds the service's components and request counters.
type Server struct {
	market   *market.Market
	registry *registry.TokenRegistry
	assets   *chain.AssetCollectionSet
	bank     *chain.Bank
	native   *chain.Native
	self     domain.Address
	sales    storage.SaleStore
	bus      *events.Bus
	logger   *log.Logger

	// Guards the settlement core: operations are serialized here, the
	// engine itself only defends against same-goroutine reentry.
	opMu sync.Mutex

	statsMu   sync.Mutex
	started   time.Time
	opsServed map[string]int
}

func main() {
	loadEnvFile()

	listenAddr := flag.String("listen", envOr("MARKETD_LISTEN", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (sale history)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	adminAddr := flag.String("admin", os.Getenv("MARKET_ADMIN"), "Administrator wallet address")
	nativeFeed := flag.String("native-feed", envOr("NATIVE_PRICE_FEED", "native-usd"), "Price feed id of the native currency")
	oracleWS := flag.String("oracle-ws", os.Getenv("ORACLE_WS_ENDPOINT"), "WebSocket price oracle endpoint")
	staticPrices := flag.String("static-prices", os.Getenv("STATIC_PRICES"), "Fixture prices as feed=price pairs, comma separated (8 decimals)")

	flag.Parse()

	logger := log.New(os.Stdout, "[marketd] ", log.LstdFlags|log.Lshortfile)

	admin, err := domain.ParseAddress(*adminAddr)
	if err != nil {
		logger.Fatalf("--admin is required and must be a valid address: %v", err)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *oracleWS == "" && *staticPrices == "" {
		logger.Fatal("either --oracle-ws or --static-prices is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prices, err := createPriceSource(ctx, *oracleWS, *staticPrices, *nativeFeed, logger)
	if err != nil {
		logger.Fatalf("Failed to create price source: %v", err)
	}

	listings, proceeds, sales, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	marketSelf, err := chain.NewWalletAddress()
	if err != nil {
		logger.Fatalf("Failed to derive marketplace identity: %v", err)
	}
	logger.Printf("Marketplace identity: %s", marketSelf)

	bus := events.NewBus()
	tokenRegistry := registry.New(admin, *nativeFeed, bus)

	assets := chain.NewAssetCollectionSet()
	bank := chain.NewBank()
	native := chain.NewNative(marketSelf)

	engine, err := market.New(market.Config{
		Self:     marketSelf,
		Tokens:   tokenRegistry,
		Prices:   prices,
		Assets:   assets,
		Bank:     bank,
		Native:   native,
		Listings: listings,
		Proceeds: proceeds,
		Sink:     bus,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create market: %v", err)
	}

	recorder := events.NewRecorder(bus, sales, events.WithRecorderLogger(logger))
	recorder.Start(ctx)
	defer recorder.Stop()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.DefaultMetrics.UptimeSeconds.Inc()
			}
		}
	}()

	server := &Server{
		market:    engine,
		registry:  tokenRegistry,
		assets:    assets,
		bank:      bank,
		native:    native,
		self:      marketSelf,
		sales:     sales,
		bus:       bus,
		logger:    logger,
		started:   time.Now(),
		opsServed: make(map[string]int),
	}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createPriceSource connects the live oracle or builds a fixture source.
func createPriceSource(ctx context.Context, wsEndpoint, staticPrices, nativeFeed string, logger *log.Logger) (oracle.Source, error) {
	if wsEndpoint != "" {
		client, err := oracle.NewWSClient(ctx, wsEndpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("connect oracle: %w", err)
		}
		if err := client.Subscribe(ctx, nativeFeed); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", nativeFeed, err)
		}
		logger.Printf("Price oracle: %s", wsEndpoint)
		return client, nil
	}

	static := oracle.NewStatic()
	now := time.Now().UnixMilli()
	for _, pair := range strings.Split(staticPrices, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed static price %q", pair)
		}
		price, ok := new(big.Int).SetString(parts[1], 10)
		if !ok {
			return nil, fmt.Errorf("malformed static price %q", pair)
		}
		static.SetPrice(parts[0], price, now)
	}
	logger.Printf("Price oracle: static fixture (%s)", staticPrices)
	return static, nil
}

// createStores builds the listing, proceeds and sale stores, running
// migrations for the database-backed ones.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.ListingStore, storage.ProceedsStore, storage.SaleStore, func(), error) {
	if useMemory {
		return memory.NewListingStore(), memory.NewProceedsStore(), memory.NewSaleStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewListingStore(pool), pgstore.NewProceedsStore(pool), chstore.NewSaleHistoryStore(chConn), cleanup, nil
}

// envOr returns the environment value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// parseAmount parses a decimal amount string into a big.Int. Empty input
// parses to nil.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return amount, nil
}
