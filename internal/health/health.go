// Package health scores the index and cross-checks exports against imports.
package health

import (
	"fmt"
	"math"
	"sort"

	"github.com/steveyegge/atlas/internal/schema"
)

// Score weights. The constant term rewards an index that exists at all.
const (
	WeightFreshness = 0.4
	WeightCoverage  = 0.3
	WeightInterface = 0.2
	WeightBase      = 0.1

	// AlertPenalty is subtracted per alert, up to MaxPenalty.
	AlertPenalty = 0.5
	MaxPenalty   = 10.0
)

// Inputs are the counts a score is computed from.
type Inputs struct {
	Files         int
	Drifted       int
	Annotated     int
	Exports       int
	UnusedExports int
	Alerts        int
}

// Score computes the composite health score. Empty denominators count as
// fully healthy. The result lies in [0,100].
func Score(in Inputs) schema.HealthScore {
	f := ratio(in.Files-in.Drifted, in.Files)
	c := ratio(in.Annotated, in.Files)
	i := ratio(in.Exports-in.UnusedExports, in.Exports)
	penalty := math.Min(float64(in.Alerts)*AlertPenalty, MaxPenalty)

	score := 100*(WeightFreshness*f+WeightCoverage*c+WeightInterface*i+WeightBase) - penalty
	score = math.Max(0, math.Min(100, score))

	return schema.HealthScore{
		Score:           round1(score),
		Freshness:       round1(f * 100),
		Coverage:        round1(c * 100),
		InterfaceHealth: round1(i * 100),
		Penalty:         penalty,
		Drifted:         in.Drifted,
		UnusedExports:   in.UnusedExports,
		Alerts:          in.Alerts,
	}
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 1
	}
	r := float64(num) / float64(den)
	return math.Max(0, math.Min(1, r))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Alerts lists oversized files and files without an annotation, ordered by
// path then kind.
func Alerts(modules map[string]*schema.ModuleIndex, oversizedLines int) []schema.Alert {
	var alerts []schema.Alert
	for _, m := range modules {
		for _, e := range m.Files {
			if oversizedLines > 0 && e.Record.Lines > oversizedLines {
				alerts = append(alerts, schema.Alert{
					Kind:   schema.AlertOversized,
					Path:   e.Path,
					Detail: fmt.Sprintf("%d lines (limit %d)", e.Record.Lines, oversizedLines),
				})
			}
			if !e.Annotated() {
				alerts = append(alerts, schema.Alert{Kind: schema.AlertMissingSemantics, Path: e.Path})
			}
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Path != alerts[j].Path {
			return alerts[i].Path < alerts[j].Path
		}
		return alerts[i].Kind < alerts[j].Kind
	})
	return alerts
}

// Assess scores modules given the number of currently drifted files and the
// alerts already computed for them.
func Assess(modules map[string]*schema.ModuleIndex, drifted int, alerts []schema.Alert) schema.HealthScore {
	in := Inputs{Drifted: drifted, Alerts: len(alerts)}
	for _, m := range modules {
		for _, e := range m.Files {
			in.Files++
			if e.Annotated() {
				in.Annotated++
			}
		}
	}
	report := Validate(modules)
	in.Exports = report.Exports
	in.UnusedExports = len(report.Unused)
	return Score(in)
}
