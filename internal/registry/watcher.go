package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"simdash/internal/config"
	"simdash/internal/fsutil"
)

// DefaultDebounce is how long the watcher waits for a burst of changes to settle.
const DefaultDebounce = 2 * time.Second

// Watcher rescans the output root when run folders appear, disappear or
// change inside their image directory.
type Watcher struct {
	cfg      *config.Config
	catalog  *Catalog
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	Debounce time.Duration
}

// NewWatcher watches cfg.Data.Root and the image directory of every current run.
func NewWatcher(cfg *config.Config, c *Catalog, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{cfg: cfg, catalog: c, log: log, watcher: fw, Debounce: DefaultDebounce}
	if err := fw.Add(cfg.Data.Root); err != nil {
		fw.Close()
		return nil, err
	}
	w.log.Info("watching output root", "path", cfg.Data.Root)
	w.watchRuns()
	return w, nil
}

func (w *Watcher) watchRuns() {
	folders, err := fsutil.ListRunFolders(w.cfg.Data.Root, w.cfg.Data.FolderPrefix)
	if err != nil {
		return
	}
	for _, f := range folders {
		w.watchRun(f)
	}
}

func (w *Watcher) watchRun(folder string) {
	for _, dir := range []string{
		filepath.Join(w.cfg.Data.Root, folder),
		filepath.Join(w.cfg.Data.Root, folder, w.cfg.Data.FITSDir),
	} {
		// already-watched paths are a no-op
		_ = w.watcher.Add(dir)
	}
}

// relevant reports whether an event touches a run folder or something in it.
func (w *Watcher) relevant(path string) bool {
	root := w.cfg.Data.Root
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	top := rel
	for d := filepath.Dir(top); d != "."; d = filepath.Dir(top) {
		top = d
	}
	return fsutil.IsRunFolder(root, filepath.Join(root, top), w.cfg.Data.FolderPrefix)
}

func operation(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return "created"
	case op&fsnotify.Write == fsnotify.Write:
		return "modified"
	case op&fsnotify.Remove == fsnotify.Remove:
		return "deleted"
	case op&fsnotify.Rename == fsnotify.Rename:
		return "renamed"
	}
	return ""
}

// Run processes events until ctx is cancelled, rescanning after each burst.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			op := operation(ev.Op)
			if op == "" || !w.relevant(ev.Name) {
				continue
			}
			w.log.Debug("run folder changed", "path", ev.Name, "operation", op)
			if op == "created" {
				if rel, err := filepath.Rel(w.cfg.Data.Root, ev.Name); err == nil && filepath.Dir(rel) == "." {
					w.watchRun(rel)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			reg, err := w.catalog.Rescan(ctx, w.cfg, w.log)
			if err != nil {
				w.log.Error("rescan failed", "error", err)
				continue
			}
			w.watchRuns()
			w.log.Info("registry refreshed", "runs", reg.Len(), "failed", len(reg.Errors()), "scan_id", reg.ScanID)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}
