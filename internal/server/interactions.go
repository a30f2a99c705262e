package server

import (
	"encoding/json"
	"fmt"

	"simdash/internal/imagestats"
	"simdash/internal/registry"
	"simdash/internal/render"
)

// interactionKey addresses one handler in the dispatch table.
type interactionKey struct {
	panel       registry.PanelKind
	interaction string
}

// interactionFunc answers a browser event on a panel. body is the raw
// request payload.
type interactionFunc func(run *registry.Run, p *registry.Panel, body []byte) (RegionResponse, error)

// interactionTable wires select and reset for every panel kind. Each panel
// only ever sees its own events.
func (s *Server) interactionTable() map[interactionKey]interactionFunc {
	table := make(map[interactionKey]interactionFunc, 2*len(registry.PanelKinds))
	for _, k := range registry.PanelKinds {
		table[interactionKey{panel: k, interaction: "select"}] = s.selectRegion
		table[interactionKey{panel: k, interaction: "reset"}] = s.resetRegion
	}
	return table
}

func (s *Server) selectRegion(run *registry.Run, p *registry.Panel, body []byte) (RegionResponse, error) {
	var sel imagestats.Selection
	if err := json.Unmarshal(body, &sel); err != nil {
		return RegionResponse{}, fmt.Errorf("invalid selection: %w", err)
	}
	return s.region(run, p, &sel), nil
}

func (s *Server) resetRegion(run *registry.Run, p *registry.Panel, _ []byte) (RegionResponse, error) {
	return s.region(run, p, nil), nil
}

func (s *Server) region(run *registry.Run, p *registry.Panel, sel *imagestats.Selection) RegionResponse {
	reg := p.Select(sel, s.cfg.Analysis)
	return RegionResponse{
		Run:        run.Name,
		Panel:      string(p.Kind),
		Bounds:     reg.Bounds,
		Whole:      reg.Whole,
		Summary:    reg.Summary,
		Quality:    reg.Quality,
		Annotation: render.Annotation(reg.Quality),
	}
}
