package registry

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"simdash/internal/config"
	"simdash/internal/imagestats"
	"simdash/internal/logging"
	"simdash/internal/synth"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Root = t.TempDir()
	cfg.Analysis.MaskHalfWidth = 5
	cfg.Analysis.HistogramBins = 16
	return cfg
}

func smallRun() synth.Options {
	o := synth.DefaultOptions()
	o.Size = 40
	o.Sources = [][2]float64{{20.5, 12.5}}
	o.Noise = 0
	return o
}

func writeRun(t *testing.T, cfg *config.Config, folder string) {
	t.Helper()
	if _, err := synth.WriteRun(cfg.Data.Root, folder, cfg.Data.FITSDir, smallRun()); err != nil {
		t.Fatalf("write run %s: %v", folder, err)
	}
}

var quietLogger = logging.NewWriter(io.Discard, "error", "text")

func TestScanLoadsRunsAndSkipsBroken(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, "vla_c_b")
	writeRun(t, cfg, "vla_c_a")
	writeRun(t, cfg, "vla_c_broken")
	writeRun(t, cfg, "other_run")
	broken := filepath.Join(cfg.Data.Root, "vla_c_broken", cfg.Data.FITSDir, "vla_c_broken.residual.fits")
	if err := os.Remove(broken); err != nil {
		t.Fatal(err)
	}

	reg, err := Scan(context.Background(), cfg, quietLogger)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "vla_c_a" || names[1] != "vla_c_b" {
		t.Fatalf("unexpected runs %v", names)
	}
	if first, ok := reg.First(); !ok || first.Name != "vla_c_a" || first.Index != 0 {
		t.Fatalf("unexpected first run %+v", first)
	}
	if reg.ScanID == "" {
		t.Fatal("scan id not set")
	}

	errs := reg.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected one load error, got %v", errs)
	}
	if errs[0].Run != "vla_c_broken" || errs[0].File != broken {
		t.Fatalf("unexpected load error %+v", errs[0])
	}
	if !errors.Is(errs[0], os.ErrNotExist) {
		t.Fatalf("load error should wrap the missing file: %v", errs[0])
	}
}

func TestScanMissingRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Root = filepath.Join(cfg.Data.Root, "absent")
	if _, err := Scan(context.Background(), cfg, quietLogger); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestPanelMasksFollowSources(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, "vla_c_one")
	reg, err := Scan(context.Background(), cfg, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	run, ok := reg.Get("vla_c_one")
	if !ok {
		t.Fatalf("run missing, errors: %v", reg.Errors())
	}
	if len(run.Directions) != 1 || run.SkyModel == nil || run.PSF == nil {
		t.Fatalf("incomplete run %+v", run)
	}

	flat, ok := run.Panel(Flat)
	if !ok {
		t.Fatal("flat panel missing")
	}
	if len(flat.Centers) != 1 {
		t.Fatalf("expected one center, got %v", flat.Centers)
	}
	c := flat.Centers[0]
	if math.Abs(c.Col-20.5) > 1e-9 || math.Abs(c.Row-12.5) > 1e-9 {
		t.Fatalf("source projected to %+v, want (12.5,20.5)", c)
	}

	on := flat.Stats[OnSource].Summary
	off := flat.Stats[OffSource].Summary
	if on.Size != 100 || off.Size != 40*40-100 {
		t.Fatalf("on=%d off=%d", on.Size, off.Size)
	}
	if on.Size+off.Size != flat.Stats[Full].Summary.Size {
		t.Fatal("on and off subsets must partition the image")
	}
	if !flat.Stats[OnSource].Quality.DR.Valid() {
		t.Fatalf("on-source DR should be defined: %v", flat.Stats[OnSource].Quality.DR)
	}
	if math.IsNaN(flat.OnSource.At(12, 20)) || !math.IsNaN(flat.OnSource.At(0, 0)) {
		t.Fatal("on-source plane masks the wrong pixels")
	}

	// noise-free residual is all zero, so its dynamic range is undefined
	res, _ := run.Panel(Residual)
	if !errors.Is(res.Stats[Full].Quality.DR.Err, imagestats.ErrZeroRMS) {
		t.Fatalf("expected undefined DR, got %v", res.Stats[Full].Quality.DR)
	}
}

func TestIntegerSourcesKeepTheirWindow(t *testing.T) {
	cfg := testConfig(t)
	o := synth.DefaultOptions()
	o.Noise = 0
	o.Sources = [][2]float64{{40, 160}, {64, 80}, {128, 128}, {190, 170}, {201, 33}}
	if _, err := synth.WriteRun(cfg.Data.Root, "vla_c_grid", cfg.Data.FITSDir, o); err != nil {
		t.Fatal(err)
	}
	reg, err := Scan(context.Background(), cfg, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	run, ok := reg.Get("vla_c_grid")
	if !ok {
		t.Fatalf("run missing, errors: %v", reg.Errors())
	}
	flat, _ := run.Panel(Flat)
	if len(flat.Centers) != len(o.Sources) {
		t.Fatalf("got %d centers", len(flat.Centers))
	}
	hw := cfg.Analysis.MaskHalfWidth
	for i, src := range o.Sources {
		c := flat.Centers[i]
		if c.Col != src[0] || c.Row != src[1] {
			t.Errorf("source %v projected to %+v", src, c)
		}
		col, row := int(src[0]), int(src[1])
		if math.IsNaN(flat.OnSource.At(row-hw, col-hw)) || math.IsNaN(flat.OnSource.At(row+hw-1, col+hw-1)) {
			t.Errorf("source %v: window corners not on-source", src)
		}
		if !math.IsNaN(flat.OnSource.At(row-hw-1, col)) || !math.IsNaN(flat.OnSource.At(row+hw, col)) {
			t.Errorf("source %v: window rows shifted", src)
		}
		if !math.IsNaN(flat.OnSource.At(row, col-hw-1)) || !math.IsNaN(flat.OnSource.At(row, col+hw)) {
			t.Errorf("source %v: window columns shifted", src)
		}
	}
	if on := flat.Stats[OnSource].Summary.Size; on != len(o.Sources)*4*hw*hw {
		t.Fatalf("on-source size %d, want %d", on, len(o.Sources)*4*hw*hw)
	}
}

func TestPanelSelect(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, "vla_c_one")
	reg, err := Scan(context.Background(), cfg, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	run, _ := reg.Get("vla_c_one")
	flat, _ := run.Panel(Flat)

	whole := flat.Select(nil, cfg.Analysis)
	if !whole.Whole || whole.Summary != flat.Stats[Full].Summary {
		t.Fatalf("nil selection should reuse full stats: %+v", whole.Bounds)
	}

	r := flat.Select(&imagestats.Selection{X0: 10.4, X1: 20.6, Y0: -3, Y1: 5.5}, cfg.Analysis)
	want := imagestats.Bounds{R0: 0, R1: 6, C0: 10, C1: 21}
	if r.Bounds != want || r.Whole {
		t.Fatalf("bounds %+v, want %+v", r.Bounds, want)
	}
	if r.Summary.Size != 6*11 || len(r.Values) != 66 {
		t.Fatalf("region size %d", r.Summary.Size)
	}

	out := flat.Select(&imagestats.Selection{X0: 100, X1: 120, Y0: 100, Y1: 120}, cfg.Analysis)
	if !out.Summary.Empty || out.Quality.RMS.Valid() {
		t.Fatal("selection outside the image must report no data")
	}
}

func TestCatalogReplaceNotifies(t *testing.T) {
	first := &Registry{ScanID: "a", byName: map[string]*Run{}}
	second := &Registry{ScanID: "b", byName: map[string]*Run{}}
	third := &Registry{ScanID: "c", byName: map[string]*Run{}}

	c := NewCatalog(first)
	ch, unsub := c.Subscribe()
	defer unsub()

	c.Replace(second)
	c.Replace(third)
	if c.Current().ScanID != "c" {
		t.Fatalf("current = %s", c.Current().ScanID)
	}
	select {
	case got := <-ch:
		if got.ScanID != "c" {
			t.Fatalf("subscriber should see the latest snapshot, got %s", got.ScanID)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestWatcherRescansOnNewRun(t *testing.T) {
	cfg := testConfig(t)
	writeRun(t, cfg, "vla_c_a")
	reg, err := Scan(context.Background(), cfg, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	c := NewCatalog(reg)
	w, err := NewWatcher(cfg, c, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	w.Debounce = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ch, unsub := c.Subscribe()
	defer unsub()
	writeRun(t, cfg, "vla_c_b")

	deadline := time.After(10 * time.Second)
	for {
		select {
		case got := <-ch:
			if got.Len() == 2 {
				cancel()
				if err := <-done; err != nil {
					t.Fatal(err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("watcher did not pick up the new run; current runs %v", c.Current().Names())
		}
	}
}
