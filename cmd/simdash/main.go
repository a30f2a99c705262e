package main

import (
	"fmt"
	"os"

	"simdash/internal/cli"
	"simdash/internal/config"
	"simdash/internal/logging"
	"simdash/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	var store *storage.Store
	if cfg.Paths.DatabasePath != "" {
		store, err = storage.New(cfg.Paths.DatabasePath)
		if err != nil {
			log.Warn("history disabled", "database", cfg.Paths.DatabasePath, "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	if err := cli.NewRootCmd(cfg, log, store).Execute(); err != nil {
		store.Close()
		os.Exit(1)
	}
}
