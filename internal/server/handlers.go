package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"simdash/internal/imagestats"
	"simdash/internal/logging"
	"simdash/internal/registry"
	"simdash/internal/render"
	"simdash/internal/web"
)

const maxBody = 1 << 16

// RunSummary is the list entry for a loaded run.
type RunSummary struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Directions int    `json:"directions"`
}

// RunsResponse lists loaded and failed runs.
type RunsResponse struct {
	ScanID string       `json:"scan_id"`
	Runs   []RunSummary `json:"runs"`
	Errors []LoadIssue  `json:"errors"`
}

// LoadIssue describes a run that failed to load.
type LoadIssue struct {
	Run   string `json:"run"`
	File  string `json:"file"`
	Error string `json:"error"`
}

// PanelResponse describes one analysed image.
type PanelResponse struct {
	Kind        string                             `json:"kind"`
	Title       string                             `json:"title"`
	Rows        int                                `json:"rows"`
	Cols        int                                `json:"cols"`
	Centers     []imagestats.Pixel                 `json:"centers"`
	Unprojected int                                `json:"unprojected"`
	Stats       map[registry.Subset]registry.Stats `json:"stats"`
}

// RunResponse is the full detail of a run.
type RunResponse struct {
	ScanID      string          `json:"scan_id"`
	Name        string          `json:"name"`
	Index       int             `json:"index"`
	CatalogPath string          `json:"catalog_path"`
	Directions  int             `json:"directions"`
	LoadMillis  int64           `json:"load_ms"`
	PSFURL      string          `json:"psf_url"`
	SkyModelURL string          `json:"skymodel_url"`
	Panels      []PanelResponse `json:"panels"`
}

// HistoryEntry is one stored statistics row. Undefined metrics are null.
type HistoryEntry struct {
	ScanID     string             `json:"scan_id"`
	Panel      string             `json:"panel"`
	Subset     string             `json:"subset"`
	Summary    imagestats.Summary `json:"summary"`
	RMS        *float64           `json:"rms"`
	DR         *float64           `json:"dr"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// RegionResponse answers a panel interaction.
type RegionResponse struct {
	Run        string             `json:"run"`
	Panel      string             `json:"panel"`
	Bounds     imagestats.Bounds  `json:"bounds"`
	Whole      bool               `json:"whole"`
	Summary    imagestats.Summary `json:"summary"`
	Quality    imagestats.Quality `json:"quality"`
	Annotation string             `json:"annotation"`
}

// writeJSON encodes before writing the header. Encoding failures are logged
// and answered with 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encoding response failed", "status", status, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"response encoding failed"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.log.Debug("writing response failed", "error", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	reg := s.catalog.Current()
	data := web.PageData{Title: "Simulated Radio Observation", Runs: reg.Names()}
	if first, ok := reg.First(); ok {
		data.Selected = first.Name
	}
	for _, k := range registry.PanelKinds {
		data.Panels = append(data.Panels, web.PanelLink{Kind: string(k), Title: k.Title()})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Render(w, data); err != nil {
		s.log.Error("dashboard render failed", "error", err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	reg := s.catalog.Current()
	resp := RunsResponse{ScanID: reg.ScanID, Runs: []RunSummary{}, Errors: []LoadIssue{}}
	for _, run := range reg.Runs() {
		resp.Runs = append(resp.Runs, RunSummary{Name: run.Name, Index: run.Index, Directions: len(run.Directions)})
	}
	for _, le := range reg.Errors() {
		resp.Errors = append(resp.Errors, LoadIssue{Run: le.Run, File: le.File, Error: le.Err.Error()})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// lookup resolves the {run} and optional {panel} route variables, writing a
// 404 and returning ok=false when either is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*registry.Registry, *registry.Run, *registry.Panel, bool) {
	vars := mux.Vars(r)
	reg := s.catalog.Current()
	run, ok := reg.Get(vars["run"])
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "unknown run "+strconv.Quote(vars["run"]))
		return nil, nil, nil, false
	}
	name, hasPanel := vars["panel"]
	if !hasPanel {
		return reg, run, nil, true
	}
	kind, err := registry.ParsePanelKind(name)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return nil, nil, nil, false
	}
	p, ok := run.Panel(kind)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "panel not loaded")
		return nil, nil, nil, false
	}
	return reg, run, p, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	reg, run, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	dir := s.cfg.Server.AssetsDir
	resp := RunResponse{
		ScanID:      reg.ScanID,
		Name:        run.Name,
		Index:       run.Index,
		CatalogPath: run.CatalogPath,
		Directions:  len(run.Directions),
		LoadMillis:  run.LoadTime.Milliseconds(),
		PSFURL:      assetURL(dir, run.Name, "psf.png"),
		SkyModelURL: assetURL(dir, run.Name, "skymodel.png"),
	}
	for _, k := range registry.PanelKinds {
		p, ok := run.Panel(k)
		if !ok {
			continue
		}
		resp.Panels = append(resp.Panels, PanelResponse{
			Kind:        string(k),
			Title:       k.Title(),
			Rows:        p.Image.Rows,
			Cols:        p.Image.Cols,
			Centers:     p.Centers,
			Unprojected: p.Unprojected,
			Stats:       p.Stats,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePanelImage(w http.ResponseWriter, r *http.Request) {
	_, _, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sub := registry.Full
	if q := r.URL.Query().Get("subset"); q != "" {
		var err error
		if sub, err = registry.ParseSubset(q); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	data, err := render.ImagePNG(p.Plane(sub), s.cfg.Server.DisplaySize)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePNG(w, data)
}

// selectionFromQuery reads x0,x1,y0,y1; it returns nil when none are given.
func selectionFromQuery(r *http.Request) (*imagestats.Selection, error) {
	q := r.URL.Query()
	keys := []string{"x0", "x1", "y0", "y1"}
	present := 0
	vals := make([]float64, len(keys))
	for i, k := range keys {
		raw := q.Get(k)
		if raw == "" {
			continue
		}
		present++
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.New("bad selection bound " + k)
		}
		vals[i] = v
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
		return &imagestats.Selection{X0: vals[0], X1: vals[1], Y0: vals[2], Y1: vals[3]}, nil
	}
	return nil, errors.New("selection needs x0, x1, y0 and y1")
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	_, _, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sub, err := registry.ParseSubset(mux.Vars(r)["subset"])
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	sel, err := selectionFromQuery(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats := p.Stats[sub]
	if sub == registry.Full && sel != nil {
		stats = p.Select(sel, s.cfg.Analysis).Stats
	}
	data, err := render.HistogramPNG(sub.Title(p.Kind), stats.Histogram, stats.Quality)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePNG(w, data)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	_, run, p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["interaction"]
	fn, ok := s.interactions[interactionKey{panel: p.Kind, interaction: name}]
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "unknown interaction "+strconv.Quote(name))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	resp, err := fn(run, p, body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.LogInteraction(s.log, run.Name, string(p.Kind), name, map[string]any{
		"bounds":   resp.Bounds,
		"pixels":   resp.Summary.Size,
		"duration": time.Since(start).String(),
	})
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	_, run, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.store.History(run.Name, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, HistoryEntry{
			ScanID:     rec.ScanID,
			Panel:      rec.Panel,
			Subset:     rec.Subset,
			Summary:    rec.Summary,
			RMS:        nullable(rec.RMS),
			DR:         nullable(rec.DR),
			RecordedAt: rec.RecordedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
