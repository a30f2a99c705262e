package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"simdash/internal/config"
	"simdash/internal/logging"
	"simdash/internal/registry"
	"simdash/internal/storage"
	"simdash/internal/synth"
)

func main() {
	fmt.Println("🔍 Testing run registry + filesystem watcher integration")

	work, err := os.MkdirTemp("", "simdash-integration-")
	if err != nil {
		log.Fatal("Failed to create work dir:", err)
	}
	defer os.RemoveAll(work)

	cfg := config.Default()
	cfg.Data.Root = filepath.Join(work, "Output")
	logger := logging.New("info", "text")

	// Setup storage
	store, err := storage.New(filepath.Join(work, "test_integration.db"))
	if err != nil {
		log.Fatal("Failed to create storage:", err)
	}
	defer store.Close()

	opts := synth.DefaultOptions()
	opts.Size = 128
	for j := range opts.Sources {
		opts.Sources[j][0] /= 2
		opts.Sources[j][1] /= 2
	}
	if _, err := synth.WriteRun(cfg.Data.Root, "vla_c_integration_a", cfg.Data.FITSDir, opts); err != nil {
		log.Fatal("Failed to write run:", err)
	}

	reg, err := registry.Scan(context.Background(), cfg, logger)
	if err != nil {
		log.Fatal("Failed to scan runs:", err)
	}
	if err := store.RecordRegistry(reg); err != nil {
		log.Fatal("Failed to record scan:", err)
	}
	fmt.Println("✅ Initial scan recorded")

	for _, run := range reg.Runs() {
		fmt.Printf("📊 %s: %d directions\n", run.Name, len(run.Directions))
		for _, k := range registry.PanelKinds {
			p, _ := run.Panel(k)
			q := p.Stats[registry.Full].Quality
			fmt.Printf("   %-9s RMS %s  DR %s  on-source pixels %d\n", k, q.RMS, q.DR, p.Stats[registry.OnSource].Summary.Size)
		}
	}

	fmt.Println("\n🚀 Setting up watcher...")
	catalog := registry.NewCatalog(reg)
	watcher, err := registry.NewWatcher(cfg, catalog, logger)
	if err != nil {
		log.Fatal("Failed to create watcher:", err)
	}
	watcher.Debounce = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go watcher.Run(ctx)

	updates, unsubscribe := catalog.Subscribe()
	defer unsubscribe()

	fmt.Println("🎯 Writing a second run and waiting up to 30 seconds for the rescan...")
	opts.Noise *= 4
	if _, err := synth.WriteRun(cfg.Data.Root, "vla_c_integration_b", cfg.Data.FITSDir, opts); err != nil {
		log.Fatal("Failed to write run:", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Fatal("❌ Timed out waiting for the new run")
		case next := <-updates:
			fmt.Printf("📸 Scan %s: %v (%d failed)\n", next.ScanID, next.Names(), len(next.Errors()))
			if next.Len() < 2 {
				continue
			}
			if err := store.RecordRegistry(next); err != nil {
				log.Fatal("Failed to record scan:", err)
			}
			scans, err := store.RecentScans(10)
			if err != nil {
				log.Fatal("Failed to list scans:", err)
			}
			fmt.Printf("\n✅ Test completed. %d scans recorded.\n", len(scans))
			return
		}
	}
}
