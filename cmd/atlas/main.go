// Command atlas maintains a structural index of a project and automates
// work-unit bookkeeping through a background daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/config"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/store"

	// VCS backends register themselves.
	_ "github.com/steveyegge/atlas/internal/vcs/git"
	_ "github.com/steveyegge/atlas/internal/vcs/jj"
)

var version = "0.1.0-dev"

var (
	cfg        *config.Config
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Structural code index and work automation daemon",
	Long: `atlas keeps a per-module structural index of a project (.atlas/index/)
fresh in the background and answers find, scope and status queries from
memory over a local socket.

Work units report start and completion through notify; the daemon records
what changed, tracks group and stage completion, and writes reports.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			root = wd
		}

		// .env carries ANTHROPIC_API_KEY for narrated reports.
		_ = godotenv.Load(filepath.Join(root, ".env"))

		v, err := config.New(root)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd); err != nil {
			return err
		}
		cfg, err = config.Decode(v, root)
		return err
	},
}

// bindFlags maps persistent flags onto config keys so a flag overrides the
// file and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"state_dir":      "state-dir",
		"daemon.socket":  "socket",
		"daemon.session": "session",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().String("state-dir", "", "State directory (default: <root>/.atlas)")
	rootCmd.PersistentFlags().String("socket", "", "Daemon socket path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "workflow", Title: "Workflow:"},
		&cobra.Group{ID: "index", Title: "Index maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}

// quietLogger is used by one-shot commands that print their own output.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newClient() *rpc.Client {
	return rpc.NewClient(cfg.SocketPath(), cfg.RPC.DialTimeout, cfg.RPC.ReadTimeout)
}

// newFallback answers through the daemon and falls back to the index on
// disk when no daemon is reachable.
func newFallback() *rpc.Fallback {
	return rpc.NewFallback(newClient(), func() (*cache.Cache, error) {
		return cache.Open(store.New(cfg.StateDir, quietLogger()), quietLogger())
	})
}

// notifyDaemon sends p and reports whether a daemon answered.
func notifyDaemon(ctx context.Context, p *rpc.NotifyParams) (*rpc.NotifyAck, bool, error) {
	ack, err := newClient().Notify(ctx, p)
	if err != nil {
		if rpc.IsUnreachable(err) {
			return nil, false, nil
		}
		return nil, true, err
	}
	return ack, true, nil
}
