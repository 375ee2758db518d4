package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/atlas/internal/cache"
	"github.com/steveyegge/atlas/internal/rpc"
	"github.com/steveyegge/atlas/internal/schema"
	"github.com/steveyegge/atlas/internal/ui"
	"github.com/steveyegge/atlas/internal/workflow"
)

func diskNote(fb *rpc.Fallback) string {
	if fb.UsedDisk {
		return ui.RenderMuted(" (from disk, no daemon)")
	}
	return ""
}

var findCmd = &cobra.Command{
	Use:     "find <keyword>",
	GroupID: "query",
	Short:   "Find files, classes and methods by name",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		fb := newFallback()
		hits, err := fb.Find(context.Background(), args[0])
		if err != nil {
			fatal("find failed: %v", err)
		}
		if jsonOutput {
			outputJSON(rpc.FindResult{Keyword: args[0], Hits: hits})
			return
		}
		if len(hits) == 0 {
			fmt.Printf("No matches for %q%s\n", args[0], diskNote(fb))
			return
		}

		fmt.Printf("\n%s %d matches for %q%s\n\n", ui.RenderAccent("🔍"), len(hits), args[0], diskNote(fb))
		for i, h := range hits {
			if limit > 0 && i == limit {
				fmt.Printf("  ... %d more (use --limit 0 for all)\n", len(hits)-limit)
				break
			}
			name := h.Name
			if h.Signature != "" {
				name = h.Signature
			}
			fmt.Printf("  %-9s %s %s\n", h.Type, ui.RenderBold(name), ui.RenderMuted(fmt.Sprintf("%s:%d", h.Path, h.Line)))
		}
		fmt.Println()
	},
}

var scopeCmd = &cobra.Command{
	Use:     "scope <path-prefix>...",
	GroupID: "query",
	Short:   "Show the structure of files under one or more paths",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fb := newFallback()
		files, err := fb.Scope(context.Background(), args)
		if err != nil {
			fatal("scope failed: %v", err)
		}
		if jsonOutput {
			outputJSON(rpc.ScopeResult{Files: files})
			return
		}
		if len(files) == 0 {
			fmt.Printf("No indexed files under %s%s\n", strings.Join(args, ", "), diskNote(fb))
			return
		}
		fmt.Printf("\n%s %d files%s\n", ui.RenderAccent("📁"), len(files), diskNote(fb))
		for _, f := range files {
			printScope(f)
		}
		fmt.Println()
	},
}

func printScope(f cache.FileScope) {
	fmt.Printf("\n%s %s\n", ui.RenderHeader(f.Path), ui.RenderMuted(fmt.Sprintf("(%s, %d lines)", f.Module, f.Lines)))
	if s := f.Semantic; s != nil {
		if s.Description != "" {
			fmt.Printf("  %s\n", s.Description)
		}
		var tags []string
		if s.Pattern != "" {
			tags = append(tags, "pattern: "+s.Pattern)
		}
		if s.Tag != "" {
			tags = append(tags, "tag: "+s.Tag)
		}
		if len(tags) > 0 {
			fmt.Printf("  %s\n", ui.RenderMuted(strings.Join(tags, "  ")))
		}
	}
	printClasses("class", f.Classes, f.MethodNotes)
	printClasses("interface", f.Interfaces, f.MethodNotes)
	for _, fn := range f.Functions {
		fmt.Printf("  func %s%s\n", fn, note(f.MethodNotes, fn))
	}
	if len(f.Exports) > 0 {
		fmt.Printf("  %s %s\n", ui.RenderMuted("exports:"), strings.Join(f.Exports, ", "))
	}
	if len(f.Imports) > 0 {
		fmt.Printf("  %s %s\n", ui.RenderMuted("imports:"), strings.Join(f.Imports, ", "))
	}
}

func printClasses(kind string, classes []cache.ClassScope, notes map[string]string) {
	for _, c := range classes {
		head := fmt.Sprintf("  %s %s", kind, ui.RenderBold(c.Name))
		if c.Extends != "" {
			head += " extends " + c.Extends
		}
		fmt.Printf("%s %s\n", head, ui.RenderMuted(fmt.Sprintf("L%d", c.Line)))
		for _, m := range c.Methods {
			fmt.Printf("    .%s%s\n", m, note(notes, m))
		}
	}
}

func note(notes map[string]string, name string) string {
	if n, ok := notes[name]; ok && n != "" {
		return ui.RenderMuted("  # " + n)
	}
	return ""
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "query",
	Short:   "Show index and workflow status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fb := newFallback()
		res, err := fb.Status(ctx)
		if err != nil {
			fatal("status failed: %v", err)
		}
		if res.Source == "disk" {
			// No daemon is re-indexing edits, so score against the tree now.
			if _, _, h, err := diskHealth(ctx); err == nil {
				res.Health = h.Score
			}
		}
		state := workflow.LoadState(filepath.Join(cfg.StateDir, workflow.StateFile), cfg.Automation.Toggles(), quietLogger())

		if jsonOutput {
			outputJSON(map[string]any{"index": res, "workflow": state})
			return
		}

		fmt.Printf("\n%s Index%s\n\n", ui.RenderAccent("📊"), diskNote(fb))
		pairs := [][2]string{
			{"Files", fmt.Sprint(res.Files)},
			{"Modules", fmt.Sprint(len(res.Modules))},
			{"Classes", fmt.Sprintf("%d (%d interfaces)", res.Classes, res.Interfaces)},
			{"Methods", fmt.Sprint(res.Methods)},
			{"Lines", fmt.Sprint(res.Lines)},
			{"Health", ui.RenderScore(res.Health)},
		}
		if res.Source == "daemon" {
			pairs = append(pairs,
				[2]string{"Dirty", fmt.Sprint(res.Dirty)},
				[2]string{"Queue", fmt.Sprint(res.QueueDepth)},
				[2]string{"Session", res.Session},
				[2]string{"Daemon", fmt.Sprintf("pid %d, up %s", res.PID, time.Since(res.StartedAt).Round(time.Second))},
			)
		}
		fmt.Print(ui.KeyValues(pairs...))
		printWorkflow(state)
		fmt.Println()
	},
}

func printWorkflow(st *schema.WorkflowState) {
	if st.CurrentStage == nil && len(st.Groups) == 0 && len(st.CompletedStages) == 0 {
		return
	}
	fmt.Printf("\n%s Workflow\n\n", ui.RenderAccent("🔄"))
	if s := st.CurrentStage; s != nil {
		label := s.ID
		if s.Name != "" {
			label += " (" + s.Name + ")"
		}
		fmt.Printf("  Stage: %s\n", ui.RenderBold(label))
		if len(s.Blockers) > 0 {
			fmt.Printf("  %s by %s", ui.RenderStatus("blocked"), strings.Join(s.Blockers, ", "))
			if s.BlockReason != "" {
				fmt.Printf(": %s", s.BlockReason)
			}
			fmt.Println()
		}
	}
	if len(st.CompletedStages) > 0 {
		fmt.Printf("  Completed stages: %s\n", strings.Join(st.CompletedStages, ", "))
	}

	ids := make([]string, 0, len(st.Groups))
	for id := range st.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		g := st.Groups[id]
		fmt.Printf("  %s %s %d/%d", ui.RenderBold(g.ID), ui.RenderStatus(g.Status), len(g.Completed), len(g.Expected))
		if g.Stage != "" {
			fmt.Printf(" %s", ui.RenderMuted("stage "+g.Stage))
		}
		if waiting := waitingOn(g); len(waiting) > 0 && g.Status != schema.GroupCompleted {
			fmt.Printf(" %s", ui.RenderMuted("waiting on "+strings.Join(waiting, ", ")))
		}
		fmt.Println()
	}
}

func waitingOn(g *schema.GroupState) []string {
	var out []string
	for _, p := range g.Expected {
		if !g.HasCompleted(p) {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	findCmd.Flags().IntP("limit", "n", 50, "Maximum matches to print (0 for all)")

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(scopeCmd)
	rootCmd.AddCommand(statusCmd)
}
