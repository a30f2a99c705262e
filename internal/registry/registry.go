// Package registry builds the in-memory set of simulation runs the dashboard
// serves. A Registry is immutable once Scan returns; Catalog holds the
// current one and swaps it when the output root is rescanned.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"simdash/internal/config"
	"simdash/internal/fsutil"
	"simdash/internal/logging"
)

// Registry is the result of one scan of the output root.
type Registry struct {
	ScanID   string
	Root     string
	Started  time.Time
	Duration time.Duration

	runs   []*Run
	byName map[string]*Run
	errs   []*LoadError
}

// Names returns the loaded run names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.runs))
	for i, run := range r.runs {
		names[i] = run.Name
	}
	return names
}

// Runs returns the loaded runs in sorted order.
func (r *Registry) Runs() []*Run { return r.runs }

// Get looks a run up by folder name.
func (r *Registry) Get(name string) (*Run, bool) {
	run, ok := r.byName[name]
	return run, ok
}

// First returns the run the dashboard shows initially.
func (r *Registry) First() (*Run, bool) {
	if len(r.runs) == 0 {
		return nil, false
	}
	return r.runs[0], true
}

// Errors lists the runs that failed to load.
func (r *Registry) Errors() []*LoadError { return r.errs }

// Len is the number of loaded runs.
func (r *Registry) Len() int { return len(r.runs) }

// Scan enumerates run folders under cfg.Data.Root and loads them with up to
// cfg.Processing.ParallelLoads workers. Runs that fail are recorded as
// LoadErrors and skipped; only an unreadable root fails the scan.
func Scan(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Registry, error) {
	start := time.Now()
	reg := &Registry{
		ScanID:  uuid.New().String(),
		Root:    cfg.Data.Root,
		Started: start,
		byName:  map[string]*Run{},
	}

	folders, err := fsutil.ListRunFolders(cfg.Data.Root, cfg.Data.FolderPrefix)
	if err != nil {
		return nil, fmt.Errorf("list runs in %s: %w", cfg.Data.Root, err)
	}
	log.Info("scanning runs", "root", cfg.Data.Root, "prefix", cfg.Data.FolderPrefix, "folders", len(folders), "scan_id", reg.ScanID)

	layouts := make([]fsutil.RunFiles, len(folders))
	for i, f := range folders {
		layouts[i] = fsutil.RunLayout(cfg.Data.Root, f, cfg.Data.FITSDir, cfg.Data.Catalogs)
	}
	fsutil.CheckMemory(layouts, log)

	type result struct {
		run *Run
		err error
	}
	results := make([]result, len(folders))

	workers := cfg.Processing.ParallelLoads
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				run, err := LoadRun(layouts[idx], idx, cfg.Analysis)
				results[idx] = result{run: run, err: err}
			}
		}()
	}

feed:
	for i := range folders {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, res := range results {
		if res.err != nil {
			var le *LoadError
			if !errors.As(res.err, &le) {
				le = &LoadError{Run: folders[i], Err: res.err}
			}
			reg.errs = append(reg.errs, le)
			logging.LogRunFailed(log, le.Run, le.File, le.Err)
			continue
		}
		reg.runs = append(reg.runs, res.run)
		reg.byName[res.run.Name] = res.run
		logging.LogRunLoaded(log, res.run.Name, res.run.Index, len(res.run.Directions), res.run.LoadTime)
	}
	sort.Slice(reg.runs, func(i, j int) bool { return reg.runs[i].Name < reg.runs[j].Name })

	reg.Duration = time.Since(start)
	logging.LogScanComplete(log, reg.ScanID, len(reg.runs), len(reg.errs), reg.Duration)
	return reg, nil
}
