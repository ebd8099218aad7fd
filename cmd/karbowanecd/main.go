// Command karbowanecd wires the chain storage and validation core into a
// runnable daemon: open the store, build the currency config and checkpoint
// set, inject the crypto primitives into the validation kernel, and serve
// Prometheus metrics alongside the running chain manager.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aivve/karbowanec/chain"
	"github.com/aivve/karbowanec/chainmsg"
	"github.com/aivve/karbowanec/checkpoints"
	"github.com/aivve/karbowanec/cryptoprim"
	"github.com/aivve/karbowanec/currency"
	"github.com/aivve/karbowanec/kv"
	"github.com/aivve/karbowanec/pool"
	"github.com/aivve/karbowanec/validation"
)

func main() {
	dataDir := flag.String("data", "./data", "Data directory for the chain store")
	testnet := flag.Bool("testnet", false, "Use testnet currency parameters")
	checkpointsFile := flag.String("checkpoints", "", "Path to a checkpoints file (defaults to <data>/checkpoints.dat if present)")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics listen address (e.g. 127.0.0.1:9100); disabled if empty")
	configOverrides := flag.String("config", "", "Path to a JSON file overriding currency config fields (for integration tests)")
	debug := flag.Bool("debug", false, "Use a development logger with human-readable output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "karbowanecd: create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*dataDir, *testnet, *checkpointsFile, *configOverrides, *metricsAddr, logger); err != nil {
		logger.Error("karbowanecd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(dataDir string, testnet bool, checkpointsFile, configOverrides, metricsAddr string, logger *zap.Logger) error {
	store, err := kv.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	cfg := currency.MainNetConfig()
	if testnet {
		cfg = currency.TestNetConfig()
	}
	if configOverrides != "" {
		cfg, err = currency.LoadOverrides(configOverrides, cfg)
		if err != nil {
			return fmt.Errorf("load config overrides: %w", err)
		}
	}

	cps, err := loadCheckpoints(dataDir, checkpointsFile)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}

	kernel := validation.New(cfg, cps, cryptoprim.VerifyRingSignature, cryptoprim.KeyImageTorsionCheck, cryptoprim.VerifySignature, cryptoprim.PowHash)
	p := pool.New()
	bus := chainmsg.New()

	mgr, err := chain.New(store, p, kernel, cfg, cps, bus, logger)
	if err != nil {
		return fmt.Errorf("construct chain manager: %w", err)
	}
	logger.Info("chain manager ready", zap.Uint64("height", mgr.Height()), zap.String("tip", mgr.BestHash().String()))

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	<-make(chan struct{})
	return nil
}

func loadCheckpoints(dataDir, explicit string) (*checkpoints.Set, error) {
	path := explicit
	if path == "" {
		path = checkpoints.FilenameIn(dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		return checkpoints.Empty(), nil
	}
	return checkpoints.Load(path)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
