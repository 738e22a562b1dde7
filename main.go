package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightprotocol/forester/pkg/cache"
	"github.com/lightprotocol/forester/pkg/chainclient"
	"github.com/lightprotocol/forester/pkg/config"
	"github.com/lightprotocol/forester/pkg/coordinator"
	"github.com/lightprotocol/forester/pkg/indexerclient"
	"github.com/lightprotocol/forester/pkg/metrics"
	"github.com/lightprotocol/forester/pkg/proverclient"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

func main() {
	treeHex := flag.String("tree", "", "32-byte tree id, hex encoded")
	epoch := flag.Uint64("epoch", 0, "epoch number to process")
	interval := flag.Duration("poll-interval", 5*time.Second, "delay between process() calls once a tree goes idle")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the Prometheus metrics endpoint")
	cacheStatus := flag.Bool("cache-status", false, "print the warm-start snapshot for -tree and exit, without touching the live cache")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("forester: load config: %v", err)
	}

	tree, err := parseTreeID(*treeHex)
	if err != nil {
		log.Fatalf("forester: -tree: %v", err)
	}

	if *cacheStatus {
		runCacheStatus(cfg, tree)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("forester: invalid config: %v", err)
	}
	signer, err := crypto.HexToECDSA(cfg.SignerKeyHex)
	if err != nil {
		log.Fatalf("forester: signer_key_hex: %v", err)
	}

	logger := log.New(os.Stdout, "[forester] ", log.LstdFlags)

	recorder, registry := metrics.New()
	go serveMetrics(*metricsAddr, registry, logger)

	chainClient, err := chainclient.NewRPCClient(cfg.ChainRPCURL, cfg.ChainID, chainclient.BinaryDecoder{}, signer)
	if err != nil {
		log.Fatalf("forester: connect chain rpc: %v", err)
	}
	indexerClient := indexerclient.NewHTTPClient(cfg.IndexerURL, nil)
	proverClient := proverclient.NewHTTPClient(cfg.Prover, nil, logger)

	var verifier proverclient.Verifier
	if cfg.Prover.LocalVerify {
		lv, err := proverclient.LoadVerifyingKey(cfg.Prover.VerifyingKeyPath)
		if err != nil {
			log.Fatalf("forester: load verifying key: %v", err)
		}
		verifier = lv
	}

	caches := cache.New(logger)

	c := coordinator.New(tree, treetypes.Epoch(*epoch), 0, chainClient, indexerClient, proverClient, caches, cfg, recorder, logger)
	c.Verifier = verifier
	if cfg.CacheWarmStartPath != "" {
		snapshot, err := cache.OpenDiskSnapshot("forester", cfg.CacheWarmStartPath)
		if err != nil {
			logger.Printf("warm-start snapshot unavailable, continuing without one: %v", err)
		} else {
			defer snapshot.Close()
			c.Snapshot = snapshot
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		n, err := c.Process(ctx)
		switch {
		case err != nil:
			logger.Printf("process() stopped after %d items: %v", n, err)
			if ctx.Err() != nil {
				return
			}
		case n > 0:
			logger.Printf("process() handled %d items", n)
		}

		select {
		case <-ctx.Done():
			logger.Printf("shutting down")
			return
		case <-time.After(*interval):
		}
	}
}

// runCacheStatus is the `-cache-status` diagnostic path: it reads the
// warm-start snapshot and prints it, but never constructs a Coordinator
// or touches the live in-memory cache (SPEC_FULL.md §4.7 (NEW) —
// "write-only from the coordinator's perspective").
func runCacheStatus(cfg *config.Config, tree treetypes.TreeID) {
	if cfg.CacheWarmStartPath == "" {
		fmt.Println("cache-status: no cache_warm_start_path configured")
		return
	}
	snapshot, err := cache.OpenDiskSnapshot("forester", cfg.CacheWarmStartPath)
	if err != nil {
		log.Fatalf("forester: open warm-start snapshot: %v", err)
	}
	defer snapshot.Close()

	root, ok, err := snapshot.Load(tree)
	if err != nil {
		log.Fatalf("forester: read warm-start snapshot: %v", err)
	}
	if !ok {
		fmt.Printf("cache-status: no snapshot recorded for tree %x\n", tree)
		return
	}
	fmt.Printf("cache-status: tree %x last_root=%x (diagnostic only, never fed back into the live cache)\n", tree, root)
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}

func parseTreeID(s string) (treetypes.TreeID, error) {
	var id treetypes.TreeID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
