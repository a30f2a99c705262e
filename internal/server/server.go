package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"simdash/internal/config"
	"simdash/internal/registry"
	"simdash/internal/render"
	"simdash/internal/storage"
	"simdash/internal/web"
)

// Server wraps the HTTP dashboard over a live run catalog.
type Server struct {
	addr         string
	cfg          *config.Config
	catalog      *registry.Catalog
	store        *storage.Store
	hub          *web.Hub
	log          *slog.Logger
	server       *http.Server
	interactions map[interactionKey]interactionFunc
}

// NewServer creates a server for the runs held by c. store may be nil.
func NewServer(cfg *config.Config, c *registry.Catalog, store *storage.Store, log *slog.Logger) *Server {
	s := &Server{
		addr:    cfg.Server.Addr,
		cfg:     cfg,
		catalog: c,
		store:   store,
		hub:     web.NewHub(log),
		log:     log,
	}
	s.interactions = s.interactionTable()
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.followCatalog(ctx)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr, "runs", s.catalog.Current().Len())
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// setupRoutes configures the dashboard and API routes
func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/", s.handleDashboard).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.hub.ServeWS).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleRuns).Methods("GET")
	api.HandleFunc("/runs/{run}", s.handleRun).Methods("GET")
	api.HandleFunc("/runs/{run}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/runs/{run}/panels/{panel}/image.png", s.handlePanelImage).Methods("GET")
	api.HandleFunc("/runs/{run}/panels/{panel}/{subset}/histogram.png", s.handleHistogram).Methods("GET")
	api.HandleFunc("/runs/{run}/panels/{panel}/{interaction}", s.handleInteraction).Methods("POST")

	r.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", http.FileServer(http.Dir(s.cfg.Server.AssetsDir))))
}

// followCatalog regenerates preview assets and tells pages about every new snapshot.
func (s *Server) followCatalog(ctx context.Context) {
	updates, unsubscribe := s.catalog.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case reg, ok := <-updates:
			if !ok {
				return
			}
			WriteAssets(s.cfg.Server.AssetsDir, reg, s.log)
			if s.store != nil {
				if err := s.store.RecordRegistry(reg); err != nil {
					s.log.Warn("recording scan failed", "scan_id", reg.ScanID, "error", err)
				}
			}
			msg := web.RunsMessage{Type: "runs", Runs: reg.Names(), ScanID: reg.ScanID, Failed: len(reg.Errors())}
			if err := s.hub.Publish(ctx, msg); err != nil {
				return
			}
		}
	}
}

// WriteAssets renders preview images for every run in reg.
func WriteAssets(dir string, reg *registry.Registry, log *slog.Logger) int {
	written := 0
	for _, run := range reg.Runs() {
		paths, err := render.WriteAssets(dir, run)
		if err != nil {
			log.Warn("preview rendering failed", "run", run.Name, "error", err)
		}
		written += len(paths)
	}
	return written
}

func assetURL(dir, run, name string) string {
	if _, err := os.Stat(filepath.Join(dir, run, name)); err != nil {
		return ""
	}
	return "/assets/" + run + "/" + name
}
