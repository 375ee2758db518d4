package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/ui"
	"github.com/steveyegge/atlas/internal/workflow"
)

// send delivers p and exits non-zero when no daemon is running or the
// daemon refused it.
func send(p *rpc.NotifyParams) *rpc.NotifyAck {
	ack, reached, err := notifyDaemon(context.Background(), p)
	if err != nil {
		fatal("notify %s failed: %v", p.Event, err)
	}
	if !reached {
		fatal("no daemon running for %s (start one with 'atlas daemon')", cfg.Root)
	}
	if !ack.Accepted {
		fatal("daemon refused %s: %s", p.Event, ack.Reason)
	}
	return ack
}

func printAck(ack *rpc.NotifyAck) {
	if jsonOutput {
		outputJSON(ack)
		return
	}
	if ack.Ignored {
		fmt.Printf("%s %s ignored: %s\n", ui.RenderWarn("⚠"), ack.Event, ack.Reason)
		return
	}
	fmt.Printf("%s %s queued (depth %d)\n", ui.RenderPass("✓"), ack.Event, ack.Queued)
}

// parseAnnotations parses "path=description" flags into work annotations.
func parseAnnotations(flags []string) (map[string]rpc.NotifyAnnotation, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]rpc.NotifyAnnotation, len(flags))
	for _, f := range flags {
		path, desc, ok := strings.Cut(f, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid annotation %q (want path=description)", f)
		}
		a := out[path]
		a.Description = strings.TrimSpace(desc)
		out[path] = a
	}
	return out, nil
}

var notifyCmd = &cobra.Command{
	Use:       "notify <event>",
	GroupID:   "workflow",
	Short:     "Send a workflow signal to the daemon",
	ValidArgs: rpc.NotifyEvents,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Send a signal to the running daemon. Events:

  work-start      --participant P [--group G]
  work-complete   --participant P [--group G] [--summary S] [--annotation path=desc]...
  group-register  --group G --expected a,b [--stage S]
  stage-start     --stage S [--name N]
  stage-block     --stage S --blockers x,y [--reason R]
  source-changed  [--paths p1,p2]
  session-end
  tool-use        --tool T [--failed] [--tokens-in N] [--tokens-out N]
  rebuild

Signals carrying a --session that is not the daemon's session are
acknowledged and ignored.`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		annotations, _ := flags.GetStringArray("annotation")
		work, err := parseAnnotations(annotations)
		if err != nil {
			fatal("%v", err)
		}

		p := &rpc.NotifyParams{Event: args[0], WorkAnnotations: work}
		p.Session, _ = flags.GetString("session")
		p.Participant, _ = flags.GetString("participant")
		p.Group, _ = flags.GetString("group")
		p.Stage, _ = flags.GetString("stage")
		p.Name, _ = flags.GetString("name")
		p.Expected, _ = flags.GetStringSlice("expected")
		p.Blockers, _ = flags.GetStringSlice("blockers")
		p.Reason, _ = flags.GetString("reason")
		p.Summary, _ = flags.GetString("summary")
		p.Tool, _ = flags.GetString("tool")
		p.Failed, _ = flags.GetBool("failed")
		p.TokensIn, _ = flags.GetInt64("tokens-in")
		p.TokensOut, _ = flags.GetInt64("tokens-out")
		paths, _ := flags.GetStringSlice("paths")
		p.Paths = relPaths(paths)

		printAck(send(p))
	},
}

var groupCmd = &cobra.Command{
	Use:     "group",
	GroupID: "workflow",
	Short:   "Manage work-unit groups",
}

var groupRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a group of expected participants",
	Long: `Register a group whose completion is awaited together. Registering an
existing open group adds participants to it.

Missing flags are prompted for when running in a terminal.`,
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		expected, _ := cmd.Flags().GetStringSlice("expected")
		stage, _ := cmd.Flags().GetString("stage")

		if id == "" || len(expected) == 0 {
			if !ui.IsInteractive() {
				fatal("--id and --expected are required")
			}
			var err error
			id, expected, stage, err = promptGroup(id, expected, stage)
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Cancelled")
				return
			}
			if err != nil {
				fatal("%v", err)
			}
		}

		printAck(send(&rpc.NotifyParams{
			Event:    rpc.NotifyGroupRegister,
			Group:    id,
			Expected: expected,
			Stage:    stage,
		}))
	},
}

func promptGroup(id string, expected []string, stage string) (string, []string, string, error) {
	list := strings.Join(expected, ", ")
	required := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Group id").Value(&id).Validate(required),
			huh.NewInput().
				Title("Expected participants").
				Description("Comma-separated").
				Value(&list).
				Validate(required),
			huh.NewInput().Title("Stage").Description("Optional").Value(&stage),
		),
	)
	if err := form.Run(); err != nil {
		return "", nil, "", err
	}
	return strings.TrimSpace(id), splitList(list), strings.TrimSpace(stage), nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

var planCmd = &cobra.Command{
	Use:     "plan",
	GroupID: "workflow",
	Short:   "Apply stage manifests",
}

var planLoadCmd = &cobra.Command{
	Use:   "load <plan.toml>",
	Short: "Open a stage and register its groups from a manifest",
	Long: `Open the manifest's stage and register each of its groups:

  [stage]
  id = "S1"
  name = "auth rewrite"

  [[group]]
  id = "G1"
  expected = ["a", "b"]`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plan, err := workflow.LoadPlan(args[0])
		if err != nil {
			fatal("%v", err)
		}
		params, err := planParams(plan)
		if err != nil {
			fatal("%v", err)
		}

		acks := make([]*rpc.NotifyAck, 0, len(params))
		for _, p := range params {
			acks = append(acks, send(p))
		}
		if jsonOutput {
			outputJSON(acks)
			return
		}
		fmt.Printf("%s Stage %s opened with %d groups\n", ui.RenderPass("✓"), plan.Stage.ID, len(plan.Groups))
	},
}

// planParams converts a plan's events into notify signals.
func planParams(plan *workflow.Plan) ([]*rpc.NotifyParams, error) {
	var out []*rpc.NotifyParams
	for _, ev := range plan.Events() {
		p := &rpc.NotifyParams{
			Group:    ev.Group,
			Stage:    ev.Stage,
			Name:     ev.Name,
			Expected: ev.Expected,
		}
		switch ev.Type {
		case queue.StageStart:
			p.Event = rpc.NotifyStageStart
		case queue.GroupRegister:
			p.Event = rpc.NotifyGroupRegister
		default:
			return nil, fmt.Errorf("unexpected plan event %s", ev.Type)
		}
		out = append(out, p)
	}
	return out, nil
}

func init() {
	f := notifyCmd.Flags()
	f.String("session", "", "Session id of the signal source")
	f.String("participant", "", "Work unit id")
	f.String("group", "", "Group id")
	f.String("stage", "", "Stage id")
	f.String("name", "", "Stage name")
	f.StringSlice("expected", nil, "Expected participants")
	f.StringSlice("blockers", nil, "Blocking items")
	f.String("reason", "", "Block reason")
	f.StringSlice("paths", nil, "Changed paths")
	f.String("summary", "", "Work summary")
	f.StringArray("annotation", nil, "Work annotation as path=description (repeatable)")
	f.String("tool", "", "Tool name")
	f.Bool("failed", false, "Tool call failed")
	f.Int64("tokens-in", 0, "Input tokens")
	f.Int64("tokens-out", 0, "Output tokens")

	groupRegisterCmd.Flags().String("id", "", "Group id")
	groupRegisterCmd.Flags().StringSlice("expected", nil, "Expected participants")
	groupRegisterCmd.Flags().String("stage", "", "Stage the group belongs to")

	groupCmd.AddCommand(groupRegisterCmd)
	planCmd.AddCommand(planLoadCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(planCmd)
}
