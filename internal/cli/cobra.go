package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"simdash/internal/config"
	"simdash/internal/imagestats"
	"simdash/internal/registry"
	"simdash/internal/render"
	"simdash/internal/server"
	"simdash/internal/storage"
	"simdash/internal/synth"
)

// Version is reported by the version command.
var Version = "0.3.0"

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store) *cobra.Command {
	return newRootCmd(NewRoot(cfg, log, store))
}

func newRootCmd(root *Root) *cobra.Command {
	var dataRoot string

	rootCmd := &cobra.Command{
		Use:   "simdash",
		Short: "simdash inspects radio interferometry simulation runs",
		Long: `simdash loads the FITS outputs of simulated observations, computes image
statistics on and off the simulated sources and serves them as a dashboard.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("root") {
				root.cfg.Data.Root = dataRoot
			}
			return nil
		},
	}
	rootCmd.SetOut(root.out)
	rootCmd.PersistentFlags().StringVar(&dataRoot, "root", root.cfg.Data.Root, "Directory holding the run folders")

	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newStatsCmd(root))
	rootCmd.AddCommand(newRegionCmd(root))
	rootCmd.AddCommand(newAssetsCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newScansCmd(root))
	rootCmd.AddCommand(newDemoCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard",
		Long: `Scan the run folders once and serve the dashboard over HTTP.
With --watch the folders are monitored and the run list is refreshed in open pages.

Examples:
  simdash serve --addr :8050
  simdash serve --root ./Output --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				root.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				root.cfg.Server.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, err := root.scan(ctx)
			if err != nil {
				return err
			}
			server.WriteAssets(root.cfg.Server.AssetsDir, reg, root.log)
			if root.store != nil {
				if err := root.store.RecordRegistry(reg); err != nil {
					root.log.Warn("recording scan failed", "scan_id", reg.ScanID, "error", err)
				}
			}

			catalog := registry.NewCatalog(reg)
			if root.cfg.Server.Watch {
				w, err := registry.NewWatcher(root.cfg, catalog, root.log)
				if err != nil {
					return fmt.Errorf("failed to watch %s: %w", root.cfg.Data.Root, err)
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						root.log.Error("watcher stopped", "error", err)
					}
				}()
			}

			root.log.Info("starting server",
				"addr", root.cfg.Server.Addr,
				"root", root.cfg.Data.Root,
				"watch", root.cfg.Server.Watch,
			)
			return root.serveFn(ctx, server.NewServer(root.cfg, catalog, root.store, root.log))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr, "HTTP listen address")
	cmd.Flags().BoolVar(&watch, "watch", root.cfg.Server.Watch, "Rescan when run folders change")
	return cmd
}

func newRunsCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List the runs found under the data root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.scan(cmd.Context())
			if err != nil {
				return err
			}
			tw := root.table()
			fmt.Fprintln(tw, "INDEX\tRUN\tDIRECTIONS\tCATALOG\tLOAD")
			for _, run := range reg.Runs() {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", run.Index, run.Name, len(run.Directions), run.CatalogPath, run.LoadTime.Round(time.Millisecond))
			}
			tw.Flush()
			for _, le := range reg.Errors() {
				root.printf("skipped %s\n", le)
			}
			return nil
		},
	}
}

// findRun scans and looks up a single run.
func (r *Root) findRun(ctx context.Context, name string) (*registry.Registry, *registry.Run, error) {
	reg, err := r.scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	run, ok := reg.Get(name)
	if !ok {
		for _, le := range reg.Errors() {
			if le.Run == name {
				return nil, nil, le
			}
		}
		return nil, nil, fmt.Errorf("no run named %q under %s", name, r.cfg.Data.Root)
	}
	return reg, run, nil
}

func kindsFor(panel string) ([]registry.PanelKind, error) {
	if panel == "" {
		return registry.PanelKinds, nil
	}
	k, err := registry.ParsePanelKind(panel)
	if err != nil {
		return nil, err
	}
	return []registry.PanelKind{k}, nil
}

func newStatsCmd(root *Root) *cobra.Command {
	var (
		panel  string
		asJSON bool
		record bool
	)

	cmd := &cobra.Command{
		Use:   "stats <run>",
		Short: "Print the statistics of a run's panels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := kindsFor(panel)
			if err != nil {
				return err
			}
			reg, run, err := root.findRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if record {
				if root.store == nil {
					return errNoStore
				}
				if err := root.store.RecordScan(reg); err != nil {
					return err
				}
				if err := root.store.RecordRun(reg.ScanID, run); err != nil {
					return err
				}
			}

			if asJSON {
				out := map[registry.PanelKind]map[registry.Subset]registry.Stats{}
				for _, k := range kinds {
					if p, ok := run.Panel(k); ok {
						out[k] = p.Stats
					}
				}
				enc := json.NewEncoder(root.out)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			root.printf("%s (%d directions, catalog %s)\n", run.Name, len(run.Directions), run.CatalogPath)
			tw := root.table()
			fmt.Fprintln(tw, "PANEL\tSUBSET\tSIZE\tMEAN\tMEDIAN\tSIGMA\tMIN\tMAX\tSUM\tRMS\tDR")
			for _, k := range kinds {
				p, ok := run.Panel(k)
				if !ok {
					continue
				}
				for _, sub := range registry.Subsets {
					st := p.Stats[sub]
					writeStatsRow(tw, string(k), string(sub), st.Summary, st.Quality)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&panel, "panel", "", "Only this panel (flat, residual, fidelity)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&record, "record", false, "Store the statistics in the history database")
	return cmd
}

func writeStatsRow(w io.Writer, panel, subset string, s imagestats.Summary, q imagestats.Quality) {
	if s.Empty {
		fmt.Fprintf(w, "%s\t%s\t0/%d\tno data\t\t\t\t\t\t%s\t%s\n", panel, subset, s.Total, q.RMS, q.DR)
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%d/%d\t%g\t%g\t%g\t%g\t%g\t%g\t%s\t%s\n",
		panel, subset, s.Size, s.Total, s.Mean, s.Median, s.Sigma, s.Min, s.Max, s.Sum, q.RMS, q.DR)
}

func newRegionCmd(root *Root) *cobra.Command {
	var sel imagestats.Selection

	cmd := &cobra.Command{
		Use:   "region <run> <panel>",
		Short: "Reduce a rectangular region of a panel",
		Long: `Compute statistics over a rectangle of a panel, as the dashboard does for a
mouse selection. X runs along columns and Y along rows, in pixels. Give all
four bounds, or none for the whole image.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := registry.ParsePanelKind(args[1])
			if err != nil {
				return err
			}
			_, run, err := root.findRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, ok := run.Panel(kind)
			if !ok {
				return fmt.Errorf("run %s has no %s panel", run.Name, kind)
			}

			// bounds are required together; x0 being set implies all four
			var region registry.Region
			if cmd.Flags().Changed("x0") {
				region = p.Select(&sel, root.cfg.Analysis)
			} else {
				region = p.Select(nil, root.cfg.Analysis)
			}

			b := region.Bounds
			root.printf("rows [%d,%d) cols [%d,%d)\n", b.R0, b.R1, b.C0, b.C1)
			tw := root.table()
			fmt.Fprintln(tw, "PANEL\tSUBSET\tSIZE\tMEAN\tMEDIAN\tSIGMA\tMIN\tMAX\tSUM\tRMS\tDR")
			writeStatsRow(tw, string(kind), "region", region.Summary, region.Quality)
			if err := tw.Flush(); err != nil {
				return err
			}
			root.printf("%s\n", render.Annotation(region.Quality))
			return nil
		},
	}

	cmd.Flags().Float64Var(&sel.X0, "x0", 0, "First column edge")
	cmd.Flags().Float64Var(&sel.X1, "x1", 0, "Second column edge")
	cmd.Flags().Float64Var(&sel.Y0, "y0", 0, "First row edge")
	cmd.Flags().Float64Var(&sel.Y1, "y1", 0, "Second row edge")
	cmd.MarkFlagsRequiredTogether("x0", "x1", "y0", "y1")
	return cmd
}

func newAssetsCmd(root *Root) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Render the PSF and sky model previews of every run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dir") {
				root.cfg.Server.AssetsDir = dir
			}
			reg, err := root.scan(cmd.Context())
			if err != nil {
				return err
			}
			n := server.WriteAssets(root.cfg.Server.AssetsDir, reg, root.log)
			root.printf("wrote %d previews for %d runs to %s\n", n, reg.Len(), root.cfg.Server.AssetsDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", root.cfg.Server.AssetsDir, "Output directory")
	return cmd
}

func newHistoryCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <run>",
		Short: "Show recorded statistics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.store == nil {
				return errNoStore
			}
			recs, err := root.store.History(args[0], limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				root.printf("no history for %s\n", args[0])
				return nil
			}
			tw := root.table()
			fmt.Fprintln(tw, "RECORDED\tSCAN\tPANEL\tSUBSET\tSIZE\tMEAN\tSIGMA\tRMS\tDR")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%g\t%g\t%s\t%s\n",
					rec.RecordedAt.Format("2006-01-02 15:04:05"), shortID(rec.ScanID), rec.Panel, rec.Subset,
					rec.Summary.Size, rec.Summary.Mean, rec.Summary.Sigma, nullString(rec.RMS.Valid, rec.RMS.Float64), nullString(rec.DR.Valid, rec.DR.Float64))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func newScansCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "scans",
		Short: "List recorded registry scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.store == nil {
				return errNoStore
			}
			scans, err := root.store.RecentScans(limit)
			if err != nil {
				return err
			}
			tw := root.table()
			fmt.Fprintln(tw, "STARTED\tSCAN\tROOT\tLOADED\tFAILED\tDURATION")
			for _, s := range scans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					s.StartedAt.Format("2006-01-02 15:04:05"), shortID(s.ID), s.Root, s.RunsLoaded, s.RunsFailed, s.Duration)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func nullString(valid bool, v float64) string {
	if !valid {
		return "undefined"
	}
	return fmt.Sprintf("%g", v)
}

func newDemoCmd(root *Root) *cobra.Command {
	var (
		runs  int
		size  int
		noise float64
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Write synthetic runs under the data root",
		Long: `Generate simulated observations with point sources, noise and a matching
source catalog. Useful to try the dashboard without real simulation output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runs < 1 || size < 8 {
				return fmt.Errorf("need at least one run of 8 pixels or more")
			}
			for i := 0; i < runs; i++ {
				o := synth.DefaultOptions()
				scale := float64(size) / float64(o.Size)
				for j := range o.Sources {
					o.Sources[j][0] = o.Sources[j][0]*scale + float64(i)
					o.Sources[j][1] *= scale
				}
				o.Size = size
				o.Noise = noise * float64(i+1)

				folder := fmt.Sprintf("%s_demo_%02d", root.cfg.Data.FolderPrefix, i+1)
				files, err := synth.WriteRun(root.cfg.Data.Root, folder, root.cfg.Data.FITSDir, o)
				if err != nil {
					return fmt.Errorf("failed to write %s: %w", folder, err)
				}
				root.log.Info("demo run written", "run", folder, "dir", files.Dir, "size", size, "noise", o.Noise)
				root.printf("%s\n", files.Dir)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 3, "Number of runs")
	cmd.Flags().IntVar(&size, "size", 256, "Image edge in pixels")
	cmd.Flags().Float64Var(&noise, "noise", 0.002, "Noise sigma of the first run; later runs get multiples")
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("simdash v" + Version)
		},
	}
}
