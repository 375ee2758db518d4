package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/atlas/internal/daemon"
	"github.com/steveyegge/atlas/internal/logging"
	"github.com/steveyegge/atlas/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "daemon",
	Short:   "Run the atlas daemon in the foreground",
	Long: `Run the atlas daemon for this project in the foreground.

The daemon:
  1. Loads the index into memory and serves queries on a unix socket
  2. Watches source files and re-indexes changed files after a debounce
  3. Processes notify signals (work units, groups, stages) one at a time
  4. Writes group and stage reports to .atlas/reports/

It stops on SIGINT/SIGTERM, on 'atlas daemon stop', or when a session-end
signal for its session is processed.`,
	Run: func(cmd *cobra.Command, args []string) {
		sink, err := logging.NewSink(cfg)
		if err != nil {
			fatal("failed to open log: %v", err)
		}
		defer sink.Close()

		d, err := daemon.New(cfg, daemon.Options{Sink: sink, Version: version})
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Starting atlas daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Root: %s\n", cfg.Root)
		fmt.Printf("   Session: %s\n", d.SessionID())
		fmt.Printf("   Socket: %s\n", cfg.SocketPath())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Run(ctx); err != nil {
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				fatal("a daemon is already running for %s", cfg.Root)
			}
			fatal("daemon stopped with error: %v", err)
		}
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		m, err := daemon.Signal(cfg.StateDir, timeout)
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Printf("%s No daemon running\n", ui.RenderWarn("⚠"))
			return
		}
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Stopped daemon (pid %d, session %s)\n", ui.RenderPass("✓"), m.PID, m.SessionID)
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		m, stale, err := daemon.LiveMarker(cfg.StateDir)
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]any{"running": m != nil, "stale_marker": stale, "marker": m})
			return
		}
		if m == nil {
			fmt.Printf("%s No daemon running\n", ui.RenderWarn("⚠"))
			if stale {
				fmt.Printf("   Stale marker found at %s\n", daemon.MarkerPath(cfg.StateDir))
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reachable := "yes"
		if _, err := newClient().Status(ctx); err != nil {
			reachable = ui.RenderFail("no") + " (" + err.Error() + ")"
		}

		fmt.Printf("\n%s Daemon running\n\n", ui.RenderPass("●"))
		fmt.Print(ui.KeyValues(
			[2]string{"PID", fmt.Sprint(m.PID)},
			[2]string{"Session", m.SessionID},
			[2]string{"Socket", m.Socket},
			[2]string{"Started", m.StartedAt.Local().Format("2006-01-02 15:04:05")},
			[2]string{"Uptime", time.Since(m.StartedAt).Round(time.Second).String()},
			[2]string{"Version", m.Version},
			[2]string{"Reachable", reachable},
		))
		fmt.Println()
	},
}

func init() {
	daemonCmd.Flags().String("session", "", "Session id (default: generated)")
	daemonStopCmd.Flags().Duration("timeout", 15*time.Second, "How long to wait for the daemon to exit")

	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}
