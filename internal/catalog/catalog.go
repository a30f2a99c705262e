// Package catalog reads the per-run source lists that tell the dashboard
// where the simulated sources sit on the sky.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"gopkg.in/yaml.v3"
)

const (
	KeyRA  = "sp_direction_ra"
	KeyDec = "sp_direction_dec"
)

// ErrNotFound is returned when none of the candidate files exist.
var ErrNotFound = errors.New("no source catalog found")

// Direction is a sky position in degrees.
type Direction struct {
	RA  float64 `json:"ra" yaml:"ra"`
	Dec float64 `json:"dec" yaml:"dec"`
}

// Load reads the first existing candidate and returns its directions along
// with the path that was used.
func Load(candidates []string) ([]Direction, string, error) {
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		dirs, err := LoadFile(p)
		return dirs, p, err
	}
	return nil, "", ErrNotFound
}

// LoadFile decodes a catalog by extension: .pkl/.pickle through the pickle
// decoder, .yaml/.yml through yaml, anything else as JSON.
func LoadFile(path string) ([]Direction, error) {
	var (
		records []map[string]any
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pkl", ".pickle":
		records, err = readPickle(path)
	case ".yaml", ".yml":
		records, err = readYAML(path)
	default:
		records, err = readJSON(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	dirs := make([]Direction, 0, len(records))
	for i, rec := range records {
		d, err := direction(rec)
		if err != nil {
			return nil, fmt.Errorf("catalog %s record %d: %w", path, i, err)
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

func direction(rec map[string]any) (Direction, error) {
	ra, err := number(rec, KeyRA)
	if err != nil {
		return Direction{}, err
	}
	dec, err := number(rec, KeyDec)
	if err != nil {
		return Direction{}, err
	}
	return Direction{RA: ra, Dec: dec}, nil
}

func number(rec map[string]any, key string) (float64, error) {
	v, ok := rec[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("%q has unsupported type %T", key, v)
}

func readJSON(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readYAML(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// readPickle accepts a pickled list or tuple of dicts with string keys.
func readPickle(path string) ([]map[string]any, error) {
	obj, err := pickle.Load(path)
	if err != nil {
		return nil, err
	}

	var items []any
	switch seq := obj.(type) {
	case *types.List:
		for i := 0; i < seq.Len(); i++ {
			items = append(items, seq.Get(i))
		}
	case *types.Tuple:
		for i := 0; i < seq.Len(); i++ {
			items = append(items, seq.Get(i))
		}
	default:
		return nil, fmt.Errorf("expected a list of records, got %T", obj)
	}

	out := make([]map[string]any, 0, len(items))
	for i, it := range items {
		d, ok := it.(*types.Dict)
		if !ok {
			return nil, fmt.Errorf("record %d: expected dict, got %T", i, it)
		}
		rec := map[string]any{}
		for _, key := range []string{KeyRA, KeyDec} {
			if v, ok := d.Get(key); ok {
				rec[key] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
