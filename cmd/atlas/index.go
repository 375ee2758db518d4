package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/atlas/internal/daemon"
	"github.com/steveyegge/atlas/internal/drift"
	"github.com/steveyegge/atlas/internal/health"
	"github.com/steveyegge/atlas/internal/indexer"
	"github.com/steveyegge/atlas/internal/logging"
	"github.com/steveyegge/atlas/internal/parser"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/store"
	"github.com/steveyegge/atlas/internal/ui"
	"github.com/steveyegge/atlas/internal/vcs"
)

// localIndex is a builder run without a daemon. It holds the daemon lock so
// a daemon cannot start while it writes.
type localIndex struct {
	store   *store.Store
	builder *indexer.Builder
	lock    *daemon.Lock
}

func openLocal() (*localIndex, error) {
	st := store.New(cfg.StateDir, quietLogger())
	if err := st.CheckWritable(); err != nil {
		return nil, err
	}
	lock, err := daemon.AcquireLock(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	b, err := indexer.New(cfg, st, parser.New(), newDetector(), logging.Stderr().Logger("indexer"))
	if err != nil {
		lock.Release()
		return nil, err
	}
	return &localIndex{store: st, builder: b, lock: lock}, nil
}

func (l *localIndex) Close() {
	l.lock.Release()
}

// newDetector returns a drift detector with VCS attribution when the root
// is in a repository.
func newDetector() *drift.Detector {
	v, err := vcs.GetForPath(cfg.Root, vcs.WithPreferredType(vcs.Type(cfg.VCS.Prefer)))
	if err != nil {
		v = nil
	}
	return drift.New(cfg.Root, cfg.Drift.MtimeTolerance, v, quietLogger())
}

// forwardOrRun sends p to a running daemon when the lock is held by one,
// otherwise runs build locally.
func forwardOrRun(p *rpc.NotifyParams, build func(ctx context.Context, l *localIndex) (*indexer.Result, error)) {
	ctx := context.Background()
	l, err := openLocal()
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		ack, reached, err := notifyDaemon(ctx, p)
		if err != nil {
			fatal("%v", err)
		}
		if !reached {
			fatal("a daemon holds the lock but is not answering on %s", cfg.SocketPath())
		}
		if !ack.Accepted {
			fatal("daemon refused %s: %s", p.Event, ack.Reason)
		}
		fmt.Printf("%s Queued %s on running daemon (queue depth %d)\n", ui.RenderAccent("→"), p.Event, ack.Queued)
		return
	}
	if err != nil {
		fatal("%v", err)
	}
	defer l.Close()

	start := time.Now()
	res, err := build(ctx, l)
	if err != nil {
		fatal("%v", err)
	}
	printResult(res, time.Since(start))
}

func printResult(res *indexer.Result, elapsed time.Duration) {
	if jsonOutput {
		outputJSON(res)
		return
	}
	if res.NoOp {
		fmt.Printf("%s Index is up to date\n", ui.RenderPass("✓"))
		return
	}
	fmt.Printf("%s Indexed in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
	fmt.Printf("   Re-indexed: %d\n", len(res.Touched))
	if len(res.Removed) > 0 {
		fmt.Printf("   Removed: %d\n", len(res.Removed))
	}
	fmt.Printf("   Modules written: %d\n", len(res.Modules))
	if res.Annotations > 0 {
		fmt.Printf("   Annotations applied: %d\n", res.Annotations)
	}
	for _, s := range res.Skipped {
		fmt.Printf("   %s skipped %s\n", ui.RenderWarn("⚠"), s.Error())
	}
	if res.Summary != nil {
		fmt.Printf("   Files: %d  Health: %s\n", res.Summary.Files, ui.RenderScore(res.Summary.Health.Score))
	}
}

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "index",
	Short:   "Rebuild the whole index",
	Long: `Re-index every source file and rewrite every module document.

When a daemon is running the rebuild is queued on it instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		forwardOrRun(&rpc.NotifyParams{Event: rpc.NotifyRebuild}, func(ctx context.Context, l *localIndex) (*indexer.Result, error) {
			return l.builder.Rebuild(ctx)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update [paths...]",
	GroupID: "index",
	Short:   "Incrementally re-index changed files",
	Long: `Re-index the given paths plus any drifted files and staged annotations.
With no paths only drifted files and staged annotations are processed.

When a daemon is running the update is queued on it instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		paths := relPaths(args)
		forwardOrRun(&rpc.NotifyParams{Event: rpc.NotifySourceChanged, Paths: paths}, func(ctx context.Context, l *localIndex) (*indexer.Result, error) {
			return l.builder.Update(ctx, paths)
		})
	},
}

// relPaths converts arguments to root-relative slash paths.
func relPaths(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			out = append(out, filepath.ToSlash(a))
			continue
		}
		if rel, err := filepath.Rel(cfg.Root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			out = append(out, filepath.ToSlash(rel))
			continue
		}
		out = append(out, filepath.ToSlash(a))
	}
	return out
}

var annotateCmd = &cobra.Command{
	Use:     "annotate <path>",
	GroupID: "index",
	Short:   "Stage a semantic annotation for a file",
	Long: `Stage a description, pattern or tag for a file (or one of its methods
with --method). Staged annotations are applied by the next index update and
take precedence over work-derived annotations.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		pattern, _ := cmd.Flags().GetString("pattern")
		tag, _ := cmd.Flags().GetString("tag")
		method, _ := cmd.Flags().GetString("method")

		p := &schema.PendingAnnotation{
			Timestamp:   time.Now().UTC(),
			Path:        relPaths(args)[0],
			Method:      method,
			Description: description,
			Pattern:     pattern,
			Tag:         tag,
			Source:      schema.SourceDirect,
		}
		if err := p.Validate(); err != nil {
			fatal("%v", err)
		}
		st := store.New(cfg.StateDir, quietLogger())
		if err := st.CheckWritable(); err != nil {
			fatal("%v", err)
		}
		if err := st.Pending().Append(p); err != nil {
			fatal("failed to stage annotation: %v", err)
		}

		ack, reached, err := notifyDaemon(context.Background(), &rpc.NotifyParams{
			Event: rpc.NotifySourceChanged,
			Paths: []string{p.Path},
		})
		switch {
		case err != nil:
			fatal("%v", err)
		case reached && ack.Accepted:
			fmt.Printf("%s Staged annotation for %s; daemon is applying it\n", ui.RenderPass("✓"), p.Path)
		default:
			fmt.Printf("%s Staged annotation for %s; run 'atlas update' to apply\n", ui.RenderPass("✓"), p.Path)
		}
	},
}

var driftCmd = &cobra.Command{
	Use:     "drift",
	GroupID: "index",
	Short:   "List index entries that no longer match their files",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		st := store.New(cfg.StateDir, quietLogger())
		modules, err := st.LoadModules()
		if err != nil {
			fatal("failed to load index: %v", err)
		}
		report, err := newDetector().Check(context.Background(), modules)
		if err != nil {
			fatal("drift check failed: %v", err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("\n%s Drift: %d of %d files\n\n", ui.RenderAccent("📊"), report.Count(), report.Total)
		for _, e := range report.Entries {
			if e.Status == drift.StatusUpToDate && !all {
				continue
			}
			line := fmt.Sprintf("  %s %s", e.Path, ui.RenderStatus(string(e.Status)))
			if e.Status == drift.StatusLinesChanged {
				line += ui.RenderMuted(fmt.Sprintf(" (%d → %d lines)", e.RecordedLines, e.CurrentLines))
			}
			if e.Author != "" {
				line += ui.RenderMuted(fmt.Sprintf(" by %s", e.Author))
			}
			fmt.Println(line)
		}
		if report.Count() > 0 {
			fmt.Printf("\nRun 'atlas update' to re-index drifted files\n")
		}
		fmt.Println()
	},
}

// diskHealth loads the index from disk and rescores it against the working
// tree, so freshness reflects edits made since the last build.
func diskHealth(ctx context.Context) (*schema.Summary, map[string]*schema.ModuleIndex, schema.HealthScore, error) {
	st := store.New(cfg.StateDir, quietLogger())
	summary, err := st.LoadSummary()
	if err != nil {
		return nil, nil, schema.HealthScore{}, fmt.Errorf("failed to load summary: %w", err)
	}
	if summary == nil {
		return nil, nil, schema.HealthScore{}, fmt.Errorf("no index at %s; run 'atlas index' first", cfg.StateDir)
	}
	modules, err := st.LoadModules()
	if err != nil {
		return nil, nil, schema.HealthScore{}, fmt.Errorf("failed to load index: %w", err)
	}
	detector := drift.New(cfg.Root, cfg.Drift.MtimeTolerance, nil, quietLogger())
	h, _, err := health.Live(ctx, detector, modules, summary.Alerts)
	if err != nil {
		return nil, nil, schema.HealthScore{}, fmt.Errorf("drift check failed: %w", err)
	}
	return summary, modules, h, nil
}

var healthCmd = &cobra.Command{
	Use:     "health",
	GroupID: "index",
	Short:   "Show the index health score and alerts",
	Run: func(cmd *cobra.Command, args []string) {
		showUnused, _ := cmd.Flags().GetBool("unused")

		summary, modules, h, err := diskHealth(context.Background())
		if err != nil {
			fatal("%v", err)
		}
		interfaces := health.Validate(modules)

		if jsonOutput {
			outputJSON(map[string]any{
				"health":     h,
				"alerts":     summary.Alerts,
				"interfaces": interfaces,
			})
			return
		}

		fmt.Printf("\n%s Index health: %s\n\n", ui.RenderAccent("📊"), ui.RenderScore(h.Score))
		for _, row := range []struct {
			name  string
			value float64
		}{
			{"Freshness", h.Freshness},
			{"Coverage", h.Coverage},
			{"Interfaces", h.InterfaceHealth},
		} {
			fmt.Printf("  %-11s %s %5.1f\n", row.name, ui.Bar(row.value, 20), row.value)
		}
		fmt.Printf("  %-11s -%.1f (%d alerts)\n", "Penalty", h.Penalty, h.Alerts)
		if h.Drifted > 0 {
			fmt.Printf("  %s\n", ui.RenderMuted(fmt.Sprintf("%d file(s) drifted since the last build; run 'atlas update'", h.Drifted)))
		}

		if len(summary.Alerts) > 0 {
			fmt.Printf("\n%s\n", ui.RenderHeader("Alerts"))
			alerts := append([]schema.Alert(nil), summary.Alerts...)
			sort.Slice(alerts, func(i, j int) bool { return alerts[i].Path < alerts[j].Path })
			for _, a := range alerts {
				fmt.Printf("  %s %s %s\n", ui.RenderWarn(a.Kind), a.Path, ui.RenderMuted(a.Detail))
			}
		}

		fmt.Printf("\n%s %d of %d exports unused\n", ui.RenderHeader("Interfaces"), len(interfaces.Unused), interfaces.Exports)
		if showUnused {
			for _, u := range interfaces.Unused {
				fmt.Printf("  %s %s\n", u.Path, ui.RenderMuted(u.Symbol))
			}
		}
		fmt.Println()
	},
}

func init() {
	annotateCmd.Flags().StringP("description", "d", "", "What the file or method does")
	annotateCmd.Flags().StringP("pattern", "p", "", "Design pattern it implements")
	annotateCmd.Flags().StringP("tag", "t", "", "Free-form tag")
	annotateCmd.Flags().StringP("method", "m", "", "Annotate this method instead of the file")
	driftCmd.Flags().Bool("all", false, "Also list up-to-date files")
	healthCmd.Flags().Bool("unused", false, "List unused exports")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(healthCmd)
}
