package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/steveyegge/atlas/internal/eventlog"
	"github.com/steveyegge/atlas/internal/queue"
	"github.com/steveyegge/atlas/internal/ui"
)

// parseSince accepts a duration ("2h"), an RFC3339 timestamp or a natural
// language expression ("yesterday", "last monday").
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return r.Time, nil
}

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "workflow",
	Short:   "Show processed automation events",
	Long: `Show events the daemon processed, oldest first.

--since takes a duration (2h), an RFC3339 timestamp or a phrase such as
"yesterday" or "last monday".`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceFlag, _ := cmd.Flags().GetString("since")
		event, _ := cmd.Flags().GetString("event")
		failed, _ := cmd.Flags().GetBool("failed")
		limit, _ := cmd.Flags().GetInt("limit")

		since, err := parseSince(sinceFlag, time.Now())
		if err != nil {
			fatal("%v", err)
		}

		path := cfg.StatePath(eventlog.FileName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fatal("no event log at %s", path)
		}
		events, err := eventlog.Open(path, quietLogger())
		if err != nil {
			fatal("%v", err)
		}
		defer events.Close()

		outcomes, err := events.Since(context.Background(), since, eventlog.Filter{
			Event:      queue.Type(event),
			FailedOnly: failed,
			Limit:      limit,
		})
		if err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(outcomes)
			return
		}
		if len(outcomes) == 0 {
			fmt.Printf("No events since %s\n", since.Local().Format("2006-01-02 15:04"))
			return
		}
		for _, o := range outcomes {
			mark := ui.RenderPass("✓")
			if !o.OK {
				mark = ui.RenderFail("✗")
			}
			subject := o.Participant
			if subject == "" {
				subject = o.Group
			}
			if subject == "" {
				subject = o.Stage
			}
			line := fmt.Sprintf("%s %s %-20s %s", mark, ui.RenderMuted(o.StartedAt.Local().Format("01-02 15:04:05")), o.Event, subject)
			if o.Error != "" {
				line += " " + ui.RenderFail(o.Error)
			} else if o.Detail != "" {
				line += " " + ui.RenderMuted(o.Detail)
			}
			fmt.Println(line)
		}
	},
}

func init() {
	logCmd.Flags().String("since", "24h", "Show events since (duration, RFC3339 or phrase)")
	logCmd.Flags().String("event", "", "Only this event type (e.g. work-unit-complete)")
	logCmd.Flags().Bool("failed", false, "Only failed events")
	logCmd.Flags().IntP("limit", "n", 0, "Show at most the newest N events")

	rootCmd.AddCommand(logCmd)
}
